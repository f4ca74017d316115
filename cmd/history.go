package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/shouni/gemini-site-kit/pkg/domain"
	"github.com/shouni/gemini-site-kit/pkg/export"
)

// promptPreviewRunes は一覧に表示するプロンプトの最大文字数です。
const promptPreviewRunes = 48

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "生成履歴を管理します（保持件数は history_cap で変更できます）。",
	}
	cmd.AddCommand(historyListCmd(), historyShowCmd(), historyRemoveCmd(), historyClearCmd())
	return cmd
}

func historyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "履歴を新しい順に表示します。",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			entries := a.session.State().History
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "履歴はありません。")
				return nil
			}
			return writeHistory(cmd.OutOrStdout(), entries)
		},
	}
}

// writeHistory は履歴を表形式で書き出します。先頭の番号は他のコマンドの ref として使えます。
func writeHistory(w io.Writer, entries []domain.HistoryEntry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tCREATED\tPROMPT")
	for i, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, e.ID, e.CreatedAt.Local().Format(time.DateTime), summarize(e, promptPreviewRunes))
	}
	return tw.Flush()
}

// summarize はプロンプトを1行に収まる長さに切り詰めます。プロンプトがない場合は画像の参照元を表示します。
func summarize(e domain.HistoryEntry, limit int) string {
	s := strings.Join(strings.Fields(e.Prompt), " ")
	if s == "" {
		if e.ImageRef != "" {
			return "[image] " + e.ImageRef
		}
		return "(no prompt)"
	}
	r := []rune(s)
	if len(r) > limit {
		return string(r[:limit]) + "…"
	}
	return s
}

func historyShowCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "show [ref]",
		Short: "履歴の1件を表示します。ref は ID または list の番号です（省略時は最新）。",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := domain.ParseArtifactKind(kind)
			if err != nil {
				return err
			}
			a, err := newApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			e, err := a.restore(firstArg(args))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s  %s\n%s\n\n", e.ID, e.CreatedAt.Local().Format(time.DateTime), e.Prompt)
			fmt.Fprintln(cmd.OutOrStdout(), export.CopyText(e.Artifacts, k))
			return nil
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", string(domain.KindMarkup), "表示するファイル (html, css, js)")
	return cmd
}

func historyRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <ref>",
		Aliases: []string{"remove"},
		Short:   "履歴から1件削除します。",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.session.Remove(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("%w: %s", err, args[0])
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "削除しました: %s\n", args[0])
			return nil
		},
	}
}

func historyClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "履歴をすべて削除します。",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.session.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "履歴をすべて削除しました。")
			return nil
		},
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
