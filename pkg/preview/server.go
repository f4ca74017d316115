package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shouni/gemini-site-kit/pkg/domain"
	"github.com/shouni/gemini-site-kit/pkg/export"
	"github.com/shouni/gemini-site-kit/pkg/generator"
	"github.com/shouni/gemini-site-kit/pkg/workspace"
)

// Source は配信時点の成果物を返します。
type Source func() domain.WebsiteArtifacts

// GenerateInput はプレビュー画面から送られた再生成の入力です。
type GenerateInput struct {
	Prompt   string
	ImageRef string // 参照画像のパス、URL、gs:// または s3://（任意）
}

// GenerateFunc は再生成を行い、成功したら Source が新しい成果物を返すようにします。
type GenerateFunc func(ctx context.Context, in GenerateInput) error

// ServerOption はプレビューサーバーの設定を行うための関数型です。
type ServerOption func(*serverConfig)

type serverConfig struct {
	generate GenerateFunc
}

// WithGenerate は GET/POST /generate による再生成を有効にします。
func WithGenerate(fn GenerateFunc) ServerOption {
	return func(c *serverConfig) {
		c.generate = fn
	}
}

// NewServer はプレビュー用の HTTP ハンドラーを返します。
//
//	GET /              サンドボックス化した合成済み文書
//	GET /files/{name}  index.html, styles.css, script.js をテキストとして表示
//	GET /export        zip のダウンロード
//	GET|POST /generate 再生成フォームと実行（WithGenerate を指定した場合のみ）
func NewServer(source Source, opts ...ServerOption) http.Handler {
	var cfg serverConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(noStore)

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Security-Policy", ContentSecurityPolicy)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(Compose(source())))
	})

	r.Get("/files/{name}", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "name")
		a := source()
		for _, kind := range domain.ArtifactKinds {
			if kind.FileName() == name {
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				_, _ = w.Write([]byte(a.Get(kind)))
				return
			}
		}
		http.NotFound(w, req)
	})

	r.Get("/export", func(w http.ResponseWriter, req *http.Request) {
		data, err := export.Archive(source())
		if err != nil {
			slog.ErrorContext(req.Context(), "アーカイブの作成に失敗しました", "error", err)
			http.Error(w, "failed to build archive", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", `attachment; filename="`+export.DefaultArchiveName+`"`)
		_, _ = w.Write(data)
	})

	if cfg.generate != nil {
		r.Get("/generate", func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(generateForm))
		})
		r.Post("/generate", generateHandler(cfg.generate))
	}

	return r
}

// generateForm は再生成用の入力画面です。利用者の入力は埋め込みません。
const generateForm = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>promptsite</title></head>
<body>
<form method="post" action="/generate">
<p><textarea name="prompt" rows="8" cols="80" maxlength="10000" placeholder="作りたいサイトを説明してください"></textarea></p>
<p><input name="image" size="80" placeholder="参照画像（パス、URL、gs://、s3://）"></p>
<p><button type="submit">Generate</button> <a href="/" target="_blank">プレビュー</a> <a href="/export">zip</a></p>
</form>
</body></html>`

func generateHandler(fn GenerateFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := req.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}
		in := GenerateInput{
			Prompt:   req.PostForm.Get("prompt"),
			ImageRef: strings.TrimSpace(req.PostForm.Get("image")),
		}

		if err := fn(req.Context(), in); err != nil {
			status, msg := generateErrorResponse(err, time.Now())
			slog.WarnContext(req.Context(), "再生成に失敗しました", "status", status, "error", err)
			http.Error(w, msg, status)
			return
		}
		http.Redirect(w, req, "/", http.StatusSeeOther)
	}
}

// generateErrorResponse はエラーの分類に応じたステータスコードと本文を返します。
func generateErrorResponse(err error, now time.Time) (int, string) {
	if errors.Is(err, workspace.ErrSuperseded) {
		return http.StatusConflict, err.Error()
	}
	var ce *generator.ClassifiedError
	if !errors.As(err, &ce) {
		return http.StatusInternalServerError, err.Error()
	}

	msg := fmt.Sprintf("%s\n%s", ce.Message, ce.Advice(now))
	switch ce.Kind {
	case generator.KindInvalidInput:
		return http.StatusBadRequest, msg
	case generator.KindQuotaRate, generator.KindQuotaDaily:
		return http.StatusTooManyRequests, msg
	case generator.KindCanceled:
		return http.StatusConflict, msg
	}
	return http.StatusBadGateway, msg
}

func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}
