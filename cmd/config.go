package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shouni/gemini-site-kit/pkg/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "生成設定（モデル、温度、システム指示、履歴件数）を表示・変更します。",
	}
	cmd.AddCommand(configShowCmd(), configSetCmd())
	return cmd
}

// effectiveConfig は表示用の設定です。APIキーは伏せ字にします。
type effectiveConfig struct {
	APIKey            string  `yaml:"api_key"`
	Model             string  `yaml:"model"`
	Temperature       float32 `yaml:"temperature"`
	SystemInstruction string  `yaml:"system_instruction,omitempty"`
	MaxAttempts       int     `yaml:"max_attempts"`
	HistoryCap        int     `yaml:"history_cap"`
	HistoryDB         string  `yaml:"history_db"`
	Settings          string  `yaml:"settings"`
	KeyCommand        string  `yaml:"key_command,omitempty"`
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "環境変数と設定ファイルを反映した現在の設定を表示します。",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return writeConfig(cmd.OutOrStdout(), cfg)
		},
	}
}

func writeConfig(w io.Writer, cfg *config.Config) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(effectiveConfig{
		APIKey:            maskSecret(cfg.APIKey),
		Model:             cfg.Model,
		Temperature:       cfg.Temperature,
		SystemInstruction: cfg.SystemInstruction,
		MaxAttempts:       cfg.MaxAttempts,
		HistoryCap:        cfg.HistoryCap,
		HistoryDB:         cfg.HistoryDB,
		Settings:          cfg.SettingsPath,
		KeyCommand:        cfg.KeyCommand,
	})
}

// maskSecret は末尾4文字だけを残して伏せ字にします。
func maskSecret(s string) string {
	if s == "" {
		return "(未設定)"
	}
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}

func configSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> [value]",
		Short: "設定ファイルの値を変更します。value を省略すると設定を解除します。",
		Long:  "指定できるキー: " + strings.Join(config.SettingKeys, ", "),
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}

			s, err := config.LoadSettings(cfg.SettingsPath)
			if err != nil {
				return err
			}
			value := ""
			if len(args) == 2 {
				value = args[1]
			}
			if err := s.Set(args[0], value); err != nil {
				return err
			}
			if err := config.SaveSettings(cfg.SettingsPath, s); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s を更新しました (%s)\n", args[0], cfg.SettingsPath)
			return nil
		},
	}
}
