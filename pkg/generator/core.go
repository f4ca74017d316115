package generator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/shouni/gemini-site-kit/pkg/domain"
	"github.com/shouni/gemini-site-kit/pkg/imgutil"
)

// cleanupTimeout は呼び出し元の context が終了していても File API の後片付けを行うための猶予です。
const cleanupTimeout = 15 * time.Second

// GeminiSiteGenerator は入力チェック、画像の前処理、リクエスト組み立て、実行をまとめる統合ジェネレーターです。
type GeminiSiteGenerator struct {
	invoker     *Invoker
	uploader    FileUploader
	defaults    func() domain.GenerationConfig
	inlineLimit int
}

// GeneratorOption は GeminiSiteGenerator の設定を行うための関数型です。
type GeneratorOption func(*GeminiSiteGenerator)

// WithFileUploader は大きな画像を File API 経由で送るためのアップローダーを設定します。
// 未設定の場合、大きな画像は JPEG に再圧縮して送信します。
func WithFileUploader(u FileUploader) GeneratorOption {
	return func(g *GeminiSiteGenerator) {
		g.uploader = u
	}
}

// WithInlineImageLimit はインライン送信する画像サイズの上限を設定します。
func WithInlineImageLimit(n int) GeneratorOption {
	return func(g *GeminiSiteGenerator) {
		if n > 0 {
			g.inlineLimit = n
		}
	}
}

// NewGeminiSiteGenerator は依存関係を注入して GeminiSiteGenerator を初期化します。
// defaults は呼び出しのたびに読まれるため、ユーザー設定の変更がすぐに反映されます。
func NewGeminiSiteGenerator(invoker *Invoker, defaults func() domain.GenerationConfig, opts ...GeneratorOption) (*GeminiSiteGenerator, error) {
	if invoker == nil {
		return nil, fmt.Errorf("invoker is required")
	}
	if defaults == nil {
		return nil, fmt.Errorf("defaults is required")
	}

	g := &GeminiSiteGenerator{
		invoker:     invoker,
		defaults:    defaults,
		inlineLimit: DefaultInlineImageLimit,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Generate は1回分のサイト生成を行います。失敗時は *ClassifiedError を返します。
func (g *GeminiSiteGenerator) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.WebsiteArtifacts, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}

	if req.HasImage() {
		img, cleanup, err := g.prepareImage(ctx, *req.Image)
		if err != nil {
			return nil, classify(err)
		}
		defer cleanup()
		req.Image = img
	}

	return g.invoker.Invoke(ctx, ComposeRequest(req, g.defaults()))
}

// prepareImage はインライン上限を超える画像を File API へアップロードするか、再圧縮します。
// 戻り値の cleanup はアップロードしたファイルの削除を行います。
func (g *GeminiSiteGenerator) prepareImage(ctx context.Context, img domain.ImageAttachment) (*domain.ImageAttachment, func(), error) {
	noop := func() {}
	if img.FileURI != "" || len(img.Data) <= g.inlineLimit {
		return &img, noop, nil
	}

	if g.uploader != nil {
		displayName := filepath.Base(img.Source)
		if img.Source == "" {
			displayName = "design-reference"
		}

		// File API へのアップロード
		uri, fileName, err := g.uploader.UploadFile(ctx, img.Data, img.MIMEType, displayName)
		if err != nil {
			return nil, noop, fmt.Errorf("参照画像のアップロードに失敗しました: %w", err)
		}
		slog.InfoContext(ctx, "参照画像を File API にアップロードしました", "uri", uri, "size", len(img.Data))

		img.FileURI = uri
		cleanup := func() {
			// メインの context がキャンセルされていても削除できるよう、新しい context を作成
			cctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
			defer cancel()
			if err := g.uploader.DeleteFile(cctx, fileName); err != nil {
				slog.Warn("File API の参照画像の削除に失敗しました", "name", fileName, "error", err)
			}
		}
		return &img, cleanup, nil
	}

	compressed, err := imgutil.CompressToFit(img.Data, g.inlineLimit, ImageCompressionQuality)
	if err != nil {
		return nil, noop, fmt.Errorf("参照画像が大きすぎるため再圧縮を試みましたが失敗しました: %w", err)
	}
	slog.InfoContext(ctx, "参照画像を再圧縮しました", "before", len(img.Data), "after", len(compressed))
	img.Data = compressed
	img.MIMEType = "image/jpeg"
	return &img, noop, nil
}
