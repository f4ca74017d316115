package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/shouni/go-remote-io/pkg/gcsfactory"
	"github.com/shouni/go-remote-io/pkg/remoteio"
	"github.com/shouni/go-remote-io/pkg/s3factory"
	"github.com/spf13/cobra"

	"github.com/shouni/gemini-site-kit/pkg/config"
	"github.com/shouni/gemini-site-kit/pkg/domain"
	"github.com/shouni/gemini-site-kit/pkg/generator"
	"github.com/shouni/gemini-site-kit/pkg/history"
	"github.com/shouni/gemini-site-kit/pkg/workspace"
)

// errOffline は生成を行わないコマンドで Generate が呼ばれた場合のエラーです。
var errOffline = errors.New("このコマンドではサイトを生成できません")

// offlineGenerator は履歴の閲覧・書き出しなど、API キーを必要としないコマンド用の SiteGenerator です。
type offlineGenerator struct{}

func (offlineGenerator) Generate(context.Context, domain.GenerationRequest) (*domain.WebsiteArtifacts, error) {
	return nil, errOffline
}

// app は1回のコマンド実行で使う依存関係をまとめたものです。
type app struct {
	cfg     *config.Config
	repo    *history.SQLiteRepository
	session *workspace.Session
}

// newApp は履歴を開き、Session を初期化して保存済みの履歴を読み込みます。
// gen が nil の場合は生成を行わない Session になります。
func newApp(cmd *cobra.Command, gen generator.SiteGenerator) (*app, error) {
	ctx := cmd.Context()
	cfg, err := configFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if gen == nil {
		gen = offlineGenerator{}
	}

	repo, err := history.OpenSQLite(ctx, cfg.HistoryDB)
	if err != nil {
		return nil, err
	}
	session, err := workspace.NewSession(gen, repo, cfg.HistoryCap)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}
	if err := session.Load(ctx); err != nil {
		_ = repo.Close()
		return nil, err
	}
	return &app{cfg: cfg, repo: repo, session: session}, nil
}

func (a *app) Close() {
	if err := a.repo.Close(); err != nil {
		slog.Warn("履歴データベースのクローズに失敗しました", "error", err)
	}
}

// restore は ref の履歴をワークスペースに戻します。ref が空なら最新の履歴を使います。
func (a *app) restore(ref string) (domain.HistoryEntry, error) {
	if len(a.session.State().History) == 0 {
		return domain.HistoryEntry{}, fmt.Errorf("履歴がありません。先に generate を実行してください")
	}
	if ref == "" {
		ref = "1"
	}
	e, err := a.session.Restore(ref)
	if err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("%w: %s", err, ref)
	}
	return e, nil
}

// storage は URI のスキームに応じて選ばれた入出力です。
type storage struct {
	reader remoteio.InputReader
	writer remoteio.OutputWriter
	closer io.Closer
}

func (s *storage) Close() {
	if s.closer == nil {
		return
	}
	if err := s.closer.Close(); err != nil {
		slog.Warn("ストレージクライアントのクローズに失敗しました", slog.Any("error", err))
	}
}

// storageInitTimeout はクラウドストレージのクライアント初期化に使うタイムアウトです。
const storageInitTimeout = 10 * time.Second

// newStorage は uri が gs:// なら GCS、s3:// なら S3、それ以外はローカルファイルの入出力を返します。
func newStorage(ctx context.Context, uri string) (*storage, error) {
	var newFactory func(context.Context) (remoteio.IOFactory, error)
	switch {
	case remoteio.IsGCSURI(uri):
		newFactory = gcsfactory.New
	case remoteio.IsS3URI(uri):
		newFactory = s3factory.New
	default:
		return &storage{
			reader: remoteio.NewUniversalInputReader(nil, nil),
			writer: remoteio.NewUniversalIOWriter(nil, nil),
		}, nil
	}

	initCtx, cancel := context.WithTimeout(ctx, storageInitTimeout)
	defer cancel()

	factory, err := newFactory(initCtx)
	if err != nil {
		return nil, fmt.Errorf("ストレージクライアントの初期化に失敗しました (%s): %w", uri, err)
	}
	reader, err := factory.InputReader()
	if err != nil {
		_ = factory.Close()
		return nil, err
	}
	writer, err := factory.OutputWriter()
	if err != nil {
		_ = factory.Close()
		return nil, err
	}
	slog.Debug("ストレージクライアントを初期化しました", "uri", uri)
	return &storage{reader: reader, writer: writer, closer: factory}, nil
}

// reportError は分類済みエラーの案内を w に書き出し、err をそのまま返します。
func reportError(w io.Writer, err error, now time.Time) error {
	if err == nil {
		return nil
	}
	var ce *generator.ClassifiedError
	if errors.As(err, &ce) {
		fmt.Fprintf(w, "エラー: %s\n%s\n", ce.Message, ce.Advice(now))
	}
	return err
}
