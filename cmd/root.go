package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	clibase "github.com/shouni/go-cli-base"
	"github.com/spf13/cobra"

	"github.com/shouni/gemini-site-kit/pkg/config"
)

const appName = "promptsite"

// configKey は context.Context に *config.Config を格納・取得するための非公開キー
type configKey struct{}

// AppFlags はこのアプリケーション固有の永続フラグを保持
type AppFlags struct {
	HistoryDB string // --history-db 履歴データベースのパス（環境変数より優先）
}

var appFlags AppFlags

// addAppPersistentFlags は、アプリケーション固有の永続フラグをルートコマンドに追加します。
func addAppPersistentFlags(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().StringVar(&appFlags.HistoryDB, "history-db", "", "履歴データベース (SQLite) のパス")
}

// initPersistentPreRunE は、ログレベルを設定し、設定を読み込んで Context に格納します。
func initPersistentPreRunE(cmd *cobra.Command, args []string) error {
	level := slog.LevelWarn
	if clibase.Flags.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := config.Load(clibase.Flags.ConfigFile)
	if err != nil {
		return fmt.Errorf("設定の読み込みに失敗しました: %w", err)
	}
	if appFlags.HistoryDB != "" {
		cfg.HistoryDB = appFlags.HistoryDB
	}
	slog.Debug("設定を読み込みました", "model", cfg.Model, "history_db", cfg.HistoryDB, "settings", cfg.SettingsPath)

	cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))
	return nil
}

// configFromContext は、cmd.Context() から *config.Config を取り出します。
func configFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("コンテキストに設定が見つかりません。")
	}
	return cfg, nil
}

// commands はルートコマンドに登録するサブコマンドです。
func commands() []*cobra.Command {
	return []*cobra.Command{
		generateCmd(),
		historyCmd(),
		previewCmd(),
		exportCmd(),
		copyCmd(),
		keyCmd(),
		configCmd(),
	}
}

// Execute は、promptsite のエントリポイントです。
func Execute() {
	clibase.Execute(appName, addAppPersistentFlags, initPersistentPreRunE, commands()...)
}
