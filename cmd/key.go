package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shouni/gemini-site-kit/pkg/keyhook"
)

func keyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key",
		Short: "APIキーを選択・更新するためのコマンド (PROMPTSITE_KEY_COMMAND) を実行します。",
		Long: `クォータ超過などで別の APIキーに切り替えたいときに使います。
PROMPTSITE_KEY_COMMAND が設定されていない環境では利用できません。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			hook := keyhook.NewCommandHook(cfg.KeyCommand, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err := keyhook.Open(cmd.Context(), hook); err != nil {
				return err
			}

			fmt.Fprintln(cmd.ErrOrStderr(), "APIキーを更新しました。generate を再実行してください。")
			return nil
		},
	}
}
