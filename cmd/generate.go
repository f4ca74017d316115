package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shouni/go-gemini-client/pkg/gemini"
	"github.com/spf13/cobra"

	"github.com/shouni/gemini-site-kit/pkg/adapters"
	"github.com/shouni/gemini-site-kit/pkg/config"
	"github.com/shouni/gemini-site-kit/pkg/domain"
	"github.com/shouni/gemini-site-kit/pkg/export"
	"github.com/shouni/gemini-site-kit/pkg/generator"
)

// GenerateFlags は generate コマンドのフラグです。
type GenerateFlags struct {
	Image             string
	Model             string
	Temperature       float32
	SystemInstruction string
	Export            string
	Print             string
}

func generateCmd() *cobra.Command {
	var flags GenerateFlags

	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "プロンプトや参照画像から Web サイトを生成します。",
		Long: `プロンプト（最大10000文字）と任意の参照画像から index.html / styles.css / script.js を生成し、履歴の先頭に保存します。
参照画像にはローカルパス、http(s) URL、gs:// または s3:// の URI を指定できます。`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var temperature *float32
			if cmd.Flags().Changed("temperature") {
				temperature = &flags.Temperature
			}
			return runGenerate(cmd, strings.Join(args, " "), temperature, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.Image, "image", "i", "", "デザイン参照用の画像（パス、URL、gs://、s3://）")
	cmd.Flags().StringVarP(&flags.Model, "model", "m", "", "利用するモデル（未指定なら設定値）")
	cmd.Flags().Float32VarP(&flags.Temperature, "temperature", "t", 0, "サンプリング温度 (0〜2)")
	cmd.Flags().StringVar(&flags.SystemInstruction, "system", "", "システム指示の上書き")
	cmd.Flags().StringVarP(&flags.Export, "export", "o", "", "生成後に zip を書き出す先（パス、gs://、s3://）")
	cmd.Flags().StringVarP(&flags.Print, "print", "p", "", "生成後に標準出力へ表示するファイル (html, css, js)")
	return cmd
}

func runGenerate(cmd *cobra.Command, prompt string, temperature *float32, flags GenerateFlags) error {
	ctx := cmd.Context()
	cfg, err := configFromContext(ctx)
	if err != nil {
		return err
	}
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	var printKind domain.ArtifactKind
	if flags.Print != "" {
		if printKind, err = domain.ParseArtifactKind(flags.Print); err != nil {
			return err
		}
	}

	req := domain.GenerationRequest{
		Prompt: prompt,
		Params: domain.GenerationParams{
			Model:             flags.Model,
			Temperature:       temperature,
			SystemInstruction: flags.SystemInstruction,
		},
	}
	if err := generator.Validate(req); err != nil && flags.Image == "" {
		return reportError(errOut, err, time.Now())
	}

	gen, err := buildGenerator(ctx, cfg, errOut)
	if err != nil {
		return err
	}

	if flags.Image != "" {
		img, err := loadImage(ctx, cfg, flags.Image)
		if err != nil {
			return err
		}
		req.Image = img
	}

	a, err := newApp(cmd, gen)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprintln(errOut, "サイトを生成しています...")
	entry, err := a.session.Generate(ctx, req)
	if err != nil {
		return reportError(errOut, err, time.Now())
	}

	fmt.Fprintf(errOut, "生成しました: %s (%s)\n", entry.ID, entry.CreatedAt.Format(time.DateTime))
	for _, kind := range domain.ArtifactKinds {
		fmt.Fprintf(errOut, "  %-10s %d bytes\n", kind.FileName(), len(entry.Artifacts.Get(kind)))
	}

	if flags.Export != "" {
		dest, err := exportArtifacts(ctx, flags.Export, entry.Artifacts)
		if err != nil {
			return err
		}
		fmt.Fprintf(errOut, "書き出しました: %s\n", dest)
	}
	if printKind != "" {
		fmt.Fprintln(out, export.CopyText(entry.Artifacts, printKind))
	}
	return nil
}

// buildGenerator は設定から Gemini 用の SiteGenerator を組み立てます。
func buildGenerator(ctx context.Context, cfg *config.Config, progress io.Writer) (generator.SiteGenerator, error) {
	client, err := adapters.NewContentGenerator(ctx, cfg.APIKey)
	if errors.Is(err, gemini.ErrAPIKeyRequired) {
		return nil, fmt.Errorf("GEMINI_API_KEY が設定されていません。環境変数か .env で設定するか、`%s key` を実行してください: %w", appName, err)
	}
	if err != nil {
		return nil, err
	}
	uploader, err := adapters.NewFileUploader(ctx, cfg.APIKey)
	if err != nil {
		return nil, err
	}

	invoker, err := generator.NewInvoker(client,
		generator.WithRetryPolicy(cfg.RetryPolicy()),
		generator.WithObserver(progressObserver(progress, cfg.MaxAttempts)),
	)
	if err != nil {
		return nil, err
	}
	return generator.NewGeminiSiteGenerator(invoker, cfg.GenerationConfig, generator.WithFileUploader(uploader))
}

// progressObserver は再試行の待機をユーザーに知らせます。
func progressObserver(w io.Writer, maxAttempts int) generator.Observer {
	return func(t generator.Transition) {
		if t.Phase != generator.PhaseRetrying {
			return
		}
		fmt.Fprintf(w, "レート制限に達しました。%s 後に再試行します (%d/%d)\n",
			t.Delay.Round(100*time.Millisecond), t.Attempt+1, maxAttempts)
	}
}

// exportArtifacts は dest のスキームに応じた書き出し先へ zip を書き出します。
func exportArtifacts(ctx context.Context, dest string, artifacts domain.WebsiteArtifacts) (string, error) {
	target := export.ResolveDestination(dest)
	st, err := newStorage(ctx, target)
	if err != nil {
		return "", err
	}
	defer st.Close()

	exporter, err := export.NewExporter(st.writer)
	if err != nil {
		return "", err
	}
	return exporter.Export(ctx, target, artifacts)
}
