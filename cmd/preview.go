package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shouni/gemini-site-kit/pkg/adapters"
	"github.com/shouni/gemini-site-kit/pkg/domain"
	"github.com/shouni/gemini-site-kit/pkg/generator"
	"github.com/shouni/gemini-site-kit/pkg/preview"
	"github.com/shouni/gemini-site-kit/pkg/workspace"
)

const (
	defaultPreviewAddr = "127.0.0.1:8080"
	shutdownTimeout    = 5 * time.Second
)

// Overrides は成果物の一部をファイルの内容で置き換えるためのフラグです。
type Overrides struct {
	HTML string
	CSS  string
	JS   string
}

func (o *Overrides) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.HTML, "html", "", "index.html をこのファイルの内容で置き換える（パス、gs://、s3://）")
	cmd.Flags().StringVar(&o.CSS, "css", "", "styles.css をこのファイルの内容で置き換える")
	cmd.Flags().StringVar(&o.JS, "js", "", "script.js をこのファイルの内容で置き換える")
}

// Apply は指定されたファイルを読み込み、編集としてワークスペースに反映します。
func (o Overrides) Apply(ctx context.Context, s *workspace.Session) error {
	for _, f := range []struct {
		kind domain.ArtifactKind
		path string
	}{
		{domain.KindMarkup, o.HTML},
		{domain.KindStylesheet, o.CSS},
		{domain.KindScript, o.JS},
	} {
		if f.path == "" {
			continue
		}
		content, err := readText(ctx, f.path)
		if err != nil {
			return err
		}
		s.Edit(f.kind, content)
		slog.DebugContext(ctx, "成果物を置き換えました", "kind", f.kind, "source", f.path)
	}
	return nil
}

// readText は uri（ローカルパス、gs://、s3://）の内容を文字列として読み込みます。
func readText(ctx context.Context, uri string) (string, error) {
	st, err := newStorage(ctx, uri)
	if err != nil {
		return "", err
	}
	defer st.Close()

	rc, err := st.reader.Open(ctx, uri)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("ファイルの読み込みに失敗しました (%s): %w", uri, err)
	}
	return string(data), nil
}

func previewCmd() *cobra.Command {
	var (
		addr      string
		live      bool
		overrides Overrides
	)
	cmd := &cobra.Command{
		Use:   "preview [ref]",
		Short: "成果物をサンドボックス化したプレビューとしてローカルで配信します。",
		Long: `ref は ID または history list の番号です（省略時は最新）。
GET /             合成済みの文書（スクリプトはサンドボックス内で実行）
GET /files/{name} index.html, styles.css, script.js
GET /export       zip のダウンロード
--live を指定すると GET/POST /generate から再生成できます（API キーが必要です）。`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var gen generator.SiteGenerator
			if live {
				cfg, err := configFromContext(ctx)
				if err != nil {
					return err
				}
				if gen, err = buildGenerator(ctx, cfg, cmd.ErrOrStderr()); err != nil {
					return err
				}
			}

			a, err := newApp(cmd, gen)
			if err != nil {
				return err
			}
			defer a.Close()

			e, err := a.restore(firstArg(args))
			if err != nil {
				return err
			}
			if err := overrides.Apply(ctx, a.session); err != nil {
				return err
			}

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("プレビューサーバーを起動できませんでした: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s をプレビューしています: http://%s/ (Ctrl+C で終了)\n", e.ID, ln.Addr())

			source := func() domain.WebsiteArtifacts { return a.session.State().Artifacts }
			if !live {
				return servePreview(ctx, ln, preview.NewServer(source))
			}

			opener := newStorageOpener()
			defer opener.Close()
			loader, err := newImageLoader(a.cfg, opener)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "再生成: http://%s/generate\n", ln.Addr())
			return servePreview(ctx, ln, preview.NewServer(source, preview.WithGenerate(liveGenerate(a, loader))))
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", defaultPreviewAddr, "待ち受けアドレス")
	cmd.Flags().BoolVar(&live, "live", false, "プレビュー画面からの再生成を有効にする")
	overrides.AddFlags(cmd)
	return cmd
}

// liveGenerate はプレビュー画面からの再生成を Session に渡します。
// 参照画像は loader を通して読み込むため、同じ画像の再指定はキャッシュから返ります。
func liveGenerate(a *app, loader *adapters.ImageLoader) preview.GenerateFunc {
	return func(ctx context.Context, in preview.GenerateInput) error {
		req := domain.GenerationRequest{Prompt: in.Prompt}
		if in.ImageRef != "" {
			img, err := loader.Load(ctx, in.ImageRef)
			if err != nil {
				return &generator.ClassifiedError{Kind: generator.KindInvalidInput, Message: err.Error(), Err: err}
			}
			req.Image = img
		}
		entry, err := a.session.Generate(ctx, req)
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, "プレビューから再生成しました", "id", entry.ID)
		return nil
	}
}

// servePreview は ctx が終了するまで ln で配信し、その後サーバーを停止します。
func servePreview(ctx context.Context, ln net.Listener, h http.Handler) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("プレビューサーバーを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("プレビューサーバーの停止に失敗しました: %w", err)
	}
	return nil
}
