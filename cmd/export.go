package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shouni/gemini-site-kit/pkg/domain"
	"github.com/shouni/gemini-site-kit/pkg/export"
)

func exportCmd() *cobra.Command {
	var (
		dest      string
		overrides Overrides
	)
	cmd := &cobra.Command{
		Use:   "export [ref]",
		Short: "履歴の成果物を zip (index.html, styles.css, script.js) として書き出します。",
		Long: `ref は ID または history list の番号です（省略時は最新）。
書き出し先にはローカルパス、gs:// または s3:// の URI を指定できます。ディレクトリを指定した場合は ` + export.DefaultArchiveName + ` を作成します。`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.restore(firstArg(args)); err != nil {
				return err
			}
			if err := overrides.Apply(cmd.Context(), a.session); err != nil {
				return err
			}

			target, err := exportArtifacts(cmd.Context(), dest, a.session.State().Artifacts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "書き出しました: %s\n", target)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dest, "out", "o", export.DefaultArchiveName, "書き出し先（パス、gs://、s3://）")
	overrides.AddFlags(cmd)
	return cmd
}

func copyCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "copy [ref]",
		Short: "成果物の1ファイルをそのまま標準出力に書き出します（パイプでクリップボードへ渡せます）。",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKindFlag(kind)
			if err != nil {
				return err
			}
			a, err := newApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.restore(firstArg(args)); err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), export.CopyText(a.session.State().Artifacts, k))
			return err
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "書き出すファイル (html, css, js)。省略時は3ファイルを見出し付きで連結")
	return cmd
}

// parseKindFlag は --kind の値を解釈します。空または "all" は3ファイルすべてを表します。
func parseKindFlag(s string) (domain.ArtifactKind, error) {
	if s == "" || strings.EqualFold(s, "all") {
		return "", nil
	}
	return domain.ParseArtifactKind(s)
}
