package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	clibase "github.com/shouni/go-cli-base"
	"github.com/shouni/go-gemini-client/pkg/gemini"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/gemini-site-kit/pkg/config"
	"github.com/shouni/gemini-site-kit/pkg/domain"
	"github.com/shouni/gemini-site-kit/pkg/export"
	"github.com/shouni/gemini-site-kit/pkg/generator"
	"github.com/shouni/gemini-site-kit/pkg/history"
	"github.com/shouni/gemini-site-kit/pkg/keyhook"
	"github.com/shouni/gemini-site-kit/pkg/preview"
	"github.com/shouni/gemini-site-kit/pkg/workspace"
)

type testEnv struct {
	dir      string
	db       string
	settings string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("PROMPTSITE_KEY_COMMAND", "")
	dir := t.TempDir()
	return testEnv{
		dir:      dir,
		db:       filepath.Join(dir, "history.db"),
		settings: filepath.Join(dir, "settings.yaml"),
	}
}

// run はルートコマンドを組み立てて args を実行し、標準出力と標準エラー出力を返します。
func (e testEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := clibase.NewRootCmd(appName, addAppPersistentFlags, initPersistentPreRunE)
	root.AddCommand(commands()...)
	root.SilenceUsage = true

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config", e.settings, "--history-db", e.db}, args...))

	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func (e testEnv) seed(t *testing.T, entries ...domain.HistoryEntry) {
	t.Helper()
	ctx := context.Background()
	repo, err := history.OpenSQLite(ctx, e.db)
	require.NoError(t, err)
	defer repo.Close()
	require.NoError(t, repo.Save(ctx, entries))
}

func (e testEnv) stored(t *testing.T) []domain.HistoryEntry {
	t.Helper()
	ctx := context.Background()
	repo, err := history.OpenSQLite(ctx, e.db)
	require.NoError(t, err)
	defer repo.Close()
	entries, err := repo.Load(ctx)
	require.NoError(t, err)
	return entries
}

func sampleEntry(id, prompt string) domain.HistoryEntry {
	return domain.HistoryEntry{
		ID:        id,
		Prompt:    prompt,
		CreatedAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		Artifacts: domain.WebsiteArtifacts{
			Markup:     "<html><body>" + id + "</body></html>",
			Stylesheet: "body{color:" + id + "}",
			Script:     "console.log('" + id + "')",
		},
	}
}

func TestHistoryCommands(t *testing.T) {
	t.Run("履歴がない場合はその旨を表示する", func(t *testing.T) {
		env := newTestEnv(t)
		out, _, err := env.run(t, "history", "list")
		require.NoError(t, err)
		assert.Contains(t, out, "履歴はありません。")
	})

	t.Run("一覧は新しい順に番号付きで表示される", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, sampleEntry("new", "Landing page for a bakery"), sampleEntry("old", "Portfolio"))

		out, _, err := env.run(t, "history", "list")
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 3)
		assert.Contains(t, lines[1], "new")
		assert.Contains(t, lines[1], "Landing page for a bakery")
		assert.Contains(t, lines[2], "old")
	})

	t.Run("show は指定した種別のファイルを表示する", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, sampleEntry("new", "a"), sampleEntry("old", "b"))

		out, _, err := env.run(t, "history", "show", "old", "--kind", "js")
		require.NoError(t, err)
		assert.Equal(t, "console.log('old')\n", out)
	})

	t.Run("rm は1件だけ削除して保存する", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, sampleEntry("new", "a"), sampleEntry("old", "b"))

		_, _, err := env.run(t, "history", "rm", "1")
		require.NoError(t, err)

		got := env.stored(t)
		require.Len(t, got, 1)
		assert.Equal(t, "old", got[0].ID)
	})

	t.Run("存在しない履歴の削除はエラー", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, sampleEntry("new", "a"))

		_, _, err := env.run(t, "history", "rm", "missing")
		assert.ErrorIs(t, err, history.ErrNotFound)
		assert.Len(t, env.stored(t), 1)
	})

	t.Run("clear はすべて削除する", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, sampleEntry("new", "a"), sampleEntry("old", "b"))

		_, _, err := env.run(t, "history", "clear")
		require.NoError(t, err)
		assert.Empty(t, env.stored(t))
	})
}

func TestCopyCommand(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, sampleEntry("new", "a"), sampleEntry("old", "b"))

	t.Run("省略時は最新の3ファイルを見出し付きで出力する", func(t *testing.T) {
		out, _, err := env.run(t, "copy")
		require.NoError(t, err)
		assert.Equal(t, "HTML:\n<html><body>new</body></html>\n\nCSS:\nbody{color:new}\n\nJS:\nconsole.log('new')", out)
	})

	t.Run("種別を指定するとそのファイルだけを出力する", func(t *testing.T) {
		out, _, err := env.run(t, "copy", "--kind", "html")
		require.NoError(t, err)
		assert.Equal(t, "<html><body>new</body></html>", out)
	})

	t.Run("番号と種別を指定できる", func(t *testing.T) {
		out, _, err := env.run(t, "copy", "2", "--kind", "css")
		require.NoError(t, err)
		assert.Equal(t, "body{color:old}", out)
	})

	t.Run("不明な種別はエラー", func(t *testing.T) {
		_, _, err := env.run(t, "copy", "--kind", "wasm")
		assert.Error(t, err)
	})

	t.Run("履歴が空の場合はエラー", func(t *testing.T) {
		empty := newTestEnv(t)
		_, _, err := empty.run(t, "copy")
		assert.Error(t, err)
	})
}

func TestExportCommand(t *testing.T) {
	t.Run("ディレクトリを指定すると既定のファイル名で書き出す", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, sampleEntry("new", "a"))
		outDir := filepath.Join(env.dir, "out") + "/"

		_, stderr, err := env.run(t, "export", "--out", outDir)
		require.NoError(t, err)

		target := filepath.Join(env.dir, "out", export.DefaultArchiveName)
		assert.Contains(t, stderr, target)
		data, err := os.ReadFile(target)
		require.NoError(t, err)
		got, err := export.ReadArchive(data)
		require.NoError(t, err)
		assert.Equal(t, sampleEntry("new", "a").Artifacts, got)
	})

	t.Run("ファイルで成果物の一部を置き換えて書き出せる", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, sampleEntry("new", "a"))
		cssPath := filepath.Join(env.dir, "edited.css")
		require.NoError(t, os.WriteFile(cssPath, []byte("body{color:red}"), 0o644))
		target := filepath.Join(env.dir, "site.zip")

		_, _, err := env.run(t, "export", "--out", target, "--css", cssPath)
		require.NoError(t, err)

		data, err := os.ReadFile(target)
		require.NoError(t, err)
		got, err := export.ReadArchive(data)
		require.NoError(t, err)
		assert.Equal(t, "body{color:red}", got.Stylesheet)
		assert.Equal(t, "<html><body>new</body></html>", got.Markup)

		// 置き換えは履歴には保存されない
		assert.Equal(t, "body{color:new}", env.stored(t)[0].Artifacts.Stylesheet)
	})
}

func TestGenerateCommand(t *testing.T) {
	t.Run("プロンプトも画像もない場合は入力エラーと案内を表示する", func(t *testing.T) {
		env := newTestEnv(t)
		_, stderr, err := env.run(t, "generate")
		assert.ErrorIs(t, err, generator.ErrEmptyPrompt)
		assert.Contains(t, stderr, "入力内容を確認してください。")
	})

	t.Run("APIキーがない場合はエラー", func(t *testing.T) {
		env := newTestEnv(t)
		_, _, err := env.run(t, "generate", "a", "bakery", "site")
		assert.ErrorIs(t, err, gemini.ErrAPIKeyRequired)
		assert.Empty(t, env.stored(t))
	})

	t.Run("不明な表示種別はAPI呼び出し前にエラー", func(t *testing.T) {
		env := newTestEnv(t)
		_, _, err := env.run(t, "generate", "site", "--print", "wasm")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, gemini.ErrAPIKeyRequired)
	})
}

func TestKeyCommand(t *testing.T) {
	t.Run("コマンドが未設定の場合は利用できない", func(t *testing.T) {
		env := newTestEnv(t)
		_, _, err := env.run(t, "key")
		assert.ErrorIs(t, err, keyhook.ErrKeyHookUnavailable)
	})

	t.Run("設定されたコマンドを実行する", func(t *testing.T) {
		env := newTestEnv(t)
		t.Setenv("PROMPTSITE_KEY_COMMAND", "echo key-selected")
		out, stderr, err := env.run(t, "key")
		require.NoError(t, err)
		assert.Contains(t, out, "key-selected")
		assert.Contains(t, stderr, "APIキーを更新しました")
	})
}

func TestConfigCommand(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("GEMINI_API_KEY", "secret-key-1234")

	_, _, err := env.run(t, "config", "set", "model", "gemini-2.5-pro")
	require.NoError(t, err)
	_, _, err = env.run(t, "config", "set", "temperature", "1.2")
	require.NoError(t, err)

	out, _, err := env.run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "model: gemini-2.5-pro")
	assert.Contains(t, out, "temperature: 1.2")
	assert.Contains(t, out, "1234")
	assert.NotContains(t, out, "secret-key")

	t.Run("不正な値は保存しない", func(t *testing.T) {
		_, _, err := env.run(t, "config", "set", "temperature", "3")
		assert.Error(t, err)

		out, _, err := env.run(t, "config", "show")
		require.NoError(t, err)
		assert.Contains(t, out, "temperature: 1.2")
	})

	t.Run("不明なキーはエラー", func(t *testing.T) {
		_, _, err := env.run(t, "config", "set", "color", "blue")
		assert.Error(t, err)
	})
}

func TestServePreview(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	artifacts := sampleEntry("live", "a").Artifacts
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- servePreview(ctx, ln, preview.NewServer(func() domain.WebsiteArtifacts { return artifacts }))
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/files/styles.css")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, artifacts.Stylesheet, string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("プレビューサーバーが停止しませんでした")
	}
}

func TestHelpers(t *testing.T) {
	t.Run("summarize", func(t *testing.T) {
		e := domain.HistoryEntry{Prompt: "a  multi\nline   prompt"}
		assert.Equal(t, "a multi line prompt", summarize(e, 48))
		assert.Equal(t, "a mu…", summarize(e, 4))
		assert.Equal(t, "[image] ref.png", summarize(domain.HistoryEntry{ImageRef: "ref.png"}, 48))
		assert.Equal(t, "(no prompt)", summarize(domain.HistoryEntry{}, 48))
	})

	t.Run("maskSecret", func(t *testing.T) {
		assert.Equal(t, "(未設定)", maskSecret(""))
		assert.Equal(t, "***", maskSecret("abc"))
		assert.Equal(t, "****5678", maskSecret("12345678"))
	})

	t.Run("progressObserver は再試行のみ表示する", func(t *testing.T) {
		var buf bytes.Buffer
		observe := progressObserver(&buf, 3)
		observe(generator.Transition{Phase: generator.PhasePending})
		observe(generator.Transition{Phase: generator.PhaseRetrying, Attempt: 1, Delay: 2500 * time.Millisecond})
		assert.Equal(t, "レート制限に達しました。2.5s 後に再試行します (2/3)\n", buf.String())
	})

	t.Run("reportError は分類済みエラーの案内を書き出す", func(t *testing.T) {
		var buf bytes.Buffer
		ce := &generator.ClassifiedError{Kind: generator.KindQuotaRate, Message: "rate"}
		err := reportError(&buf, ce, time.Now())
		assert.Same(t, ce, err)
		assert.Contains(t, buf.String(), "エラー: rate")
		assert.Contains(t, buf.String(), "60秒")

		buf.Reset()
		plain := errors.New("plain")
		assert.Equal(t, plain, reportError(&buf, plain, time.Now()))
		assert.Empty(t, buf.String())
	})

	t.Run("ローカルパスはクラウドのクライアントを作らない", func(t *testing.T) {
		st, err := newStorage(context.Background(), filepath.Join(t.TempDir(), "a.zip"))
		require.NoError(t, err)
		defer st.Close()
		assert.NotNil(t, st.reader)
		assert.NotNil(t, st.writer)
		assert.Nil(t, st.closer)
	})
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func testImageConfig() *config.Config {
	return &config.Config{HTTPTimeout: time.Second, ImageCacheSize: 4, ImageCacheTTL: time.Minute}
}

func TestImageLoaderCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ref.png")
	require.NoError(t, os.WriteFile(path, pngHeader, 0o600))

	opener := newStorageOpener()
	defer opener.Close()
	loader, err := newImageLoader(testImageConfig(), opener)
	require.NoError(t, err)

	first, err := loader.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "image/png", first.MIMEType)

	// 2回目はファイルを消してもキャッシュから返る
	require.NoError(t, os.Remove(path))
	second, err := loader.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, first.Data, second.Data)

	// loadImage は呼び出しごとに新しいローダーを使う
	_, err = loadImage(context.Background(), testImageConfig(), path)
	assert.Error(t, err)
}

func TestStorageOpener(t *testing.T) {
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("a"), 0o600))
	require.NoError(t, os.WriteFile(b, []byte("b"), 0o600))

	opener := newStorageOpener()
	for _, p := range []string{a, b} {
		rc, err := opener.Open(context.Background(), p)
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		assert.Equal(t, filepath.Base(p)[:1], string(data))
	}
	assert.Len(t, opener.storages, 1)
	assert.Equal(t, "gs", storageScheme("gs://bucket/a.png"))
	assert.Equal(t, "s3", storageScheme("s3://bucket/a.png"))

	opener.Close()
	assert.Empty(t, opener.storages)
}

type fixedGenerator struct {
	requests []domain.GenerationRequest
}

func (g *fixedGenerator) Generate(_ context.Context, req domain.GenerationRequest) (*domain.WebsiteArtifacts, error) {
	g.requests = append(g.requests, req)
	a := sampleEntry("gen", req.Prompt).Artifacts
	return &a, nil
}

func TestLiveGenerate(t *testing.T) {
	ctx := context.Background()
	gen := &fixedGenerator{}
	session, err := workspace.NewSession(gen, history.NewMemoryRepository(), 20)
	require.NoError(t, err)
	a := &app{cfg: testImageConfig(), session: session}

	opener := newStorageOpener()
	defer opener.Close()
	loader, err := newImageLoader(a.cfg, opener)
	require.NoError(t, err)
	generate := liveGenerate(a, loader)

	t.Run("参照画像付きで生成し、履歴に追加する", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ref.png")
		require.NoError(t, os.WriteFile(path, pngHeader, 0o600))

		require.NoError(t, generate(ctx, preview.GenerateInput{Prompt: "bakery", ImageRef: path}))
		require.Len(t, gen.requests, 1)
		require.NotNil(t, gen.requests[0].Image)
		assert.Equal(t, path, gen.requests[0].Image.Source)

		st := session.State()
		require.Len(t, st.History, 1)
		assert.Equal(t, path, st.History[0].ImageRef)
		assert.Contains(t, st.Artifacts.Markup, "gen")
	})

	t.Run("画像を読み込めない場合は入力エラーとして返し、生成しない", func(t *testing.T) {
		before := len(gen.requests)
		err := generate(ctx, preview.GenerateInput{Prompt: "x", ImageRef: filepath.Join(t.TempDir(), "missing.png")})
		var ce *generator.ClassifiedError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, generator.KindInvalidInput, ce.Kind)
		assert.Len(t, gen.requests, before)
	})

	t.Run("空の入力は検証エラー", func(t *testing.T) {
		err := generate(ctx, preview.GenerateInput{})
		assert.ErrorIs(t, err, generator.ErrEmptyPrompt)
	})
}
