package adapters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shouni/gemini-site-kit/pkg/domain"
	"github.com/shouni/go-http-kit/pkg/httpkit"
	"github.com/shouni/go-remote-io/pkg/remoteio"
)

// MaxImageBytes は読み込みを許可する参照画像の最大サイズです。
const MaxImageBytes = 20 * 1024 * 1024

var (
	ErrNotImage      = errors.New("添付されたファイルは画像ではありません")
	ErrUnsafeURL     = errors.New("このURLからは画像を読み込めません")
	ErrImageTooLarge = fmt.Errorf("画像が大きすぎます（最大 %d MB）", MaxImageBytes/1024/1024)
)

// HTTPFetcher は URL からバイト列を取得するためのインターフェースです。
// go-http-kit の httpkit.Client がこれを満たします。
type HTTPFetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
	// IsSafeURL は SSRF 対策としてプライベートネットワーク宛ての URL を拒否します。
	IsSafeURL(urlStr string) (bool, error)
}

// SourceOpener はローカルファイルや gs://, s3:// の URI を開くためのインターフェースです。
// go-remote-io の remoteio.InputReader がこれを満たします。
type SourceOpener interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// ImageCacher は読み込み済み画像のキャッシュ操作を抽象化するインターフェースです。
// golang-lru の expirable.LRU[string, []byte] がこれを満たします。
type ImageCacher interface {
	Get(key string) ([]byte, bool)
	Add(key string, value []byte) bool
}

var (
	_ HTTPFetcher  = (*httpkit.Client)(nil)
	_ SourceOpener = (*remoteio.UniversalInputReader)(nil)
	_ ImageCacher  = (*expirable.LRU[string, []byte])(nil)
)

// ImageLoader は参照画像をパス・URL・クラウドストレージから読み込み、ImageAttachment にします。
type ImageLoader struct {
	httpClient HTTPFetcher
	opener     SourceOpener
	cache      ImageCacher
}

// NewImageLoader は依存関係を注入して ImageLoader のインスタンスを生成します。
// cache は nil でも構いません。
func NewImageLoader(httpClient HTTPFetcher, opener SourceOpener, cache ImageCacher) (*ImageLoader, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("httpClient is required")
	}
	if opener == nil {
		return nil, fmt.Errorf("opener is required")
	}
	return &ImageLoader{
		httpClient: httpClient,
		opener:     opener,
		cache:      cache,
	}, nil
}

// Load は source から画像を読み込みます。MIME タイプは内容から判定します。
func (l *ImageLoader) Load(ctx context.Context, source string) (*domain.ImageAttachment, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("画像の読み込み元が指定されていません")
	}

	// キャッシュの確認
	if l.cache != nil {
		if data, found := l.cache.Get(source); found {
			slog.DebugContext(ctx, "参照画像をキャッシュから読み込みました", "source", source)
			return toAttachment(source, data)
		}
	}

	data, err := l.fetch(ctx, source)
	if err != nil {
		return nil, err
	}

	att, err := toAttachment(source, data)
	if err != nil {
		return nil, err
	}
	if l.cache != nil {
		l.cache.Add(source, data)
	}
	slog.InfoContext(ctx, "参照画像を読み込みました", "source", source, "mime_type", att.MIMEType, "size", len(data))
	return att, nil
}

func (l *ImageLoader) fetch(ctx context.Context, source string) ([]byte, error) {
	if isHTTPURL(source) {
		// SSRF対策のバリデーション
		if safe, err := l.httpClient.IsSafeURL(source); !safe || err != nil {
			slog.WarnContext(ctx, "SSRFの可能性がある、または不正なURLをブロックしました", "url", source, "error", err)
			return nil, fmt.Errorf("%w: %s", ErrUnsafeURL, source)
		}
		data, err := l.httpClient.FetchBytes(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("参照画像のダウンロードに失敗しました: %w", err)
		}
		if len(data) > MaxImageBytes {
			return nil, ErrImageTooLarge
		}
		return data, nil
	}

	rc, err := l.opener.Open(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("参照画像を開けませんでした: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("参照画像の読み込みに失敗しました: %w", err)
	}
	if len(data) > MaxImageBytes {
		return nil, ErrImageTooLarge
	}
	return data, nil
}

// toAttachment はバイト列の MIME タイプを判定し、画像であれば ImageAttachment にします。
func toAttachment(source string, data []byte) (*domain.ImageAttachment, error) {
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("%w (detected: %s)", ErrNotImage, mimeType)
	}
	return &domain.ImageAttachment{
		Data:     data,
		MIMEType: mimeType,
		Source:   source,
	}, nil
}

func isHTTPURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
