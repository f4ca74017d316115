package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shouni/gemini-site-kit/pkg/domain"
	"github.com/shouni/gemini-site-kit/pkg/generator"
)

// Config はプロセス全体の設定です。環境変数（.env を含む）から読み込み、設定ファイルで上書きします。
type Config struct {
	APIKey string `env:"GEMINI_API_KEY"`

	Model             string  `env:"PROMPTSITE_MODEL"`
	Temperature       float32 `env:"PROMPTSITE_TEMPERATURE" envDefault:"0.7"`
	SystemInstruction string  `env:"PROMPTSITE_SYSTEM_INSTRUCTION"`
	MaxAttempts       int     `env:"PROMPTSITE_MAX_ATTEMPTS"`

	HistoryDB  string `env:"PROMPTSITE_HISTORY_DB"`
	HistoryCap int    `env:"PROMPTSITE_HISTORY_CAP" envDefault:"20"`

	SettingsPath string `env:"PROMPTSITE_SETTINGS"`
	KeyCommand   string `env:"PROMPTSITE_KEY_COMMAND"`

	HTTPTimeout    time.Duration `env:"PROMPTSITE_HTTP_TIMEOUT" envDefault:"30s"`
	ImageCacheSize int           `env:"PROMPTSITE_IMAGE_CACHE_SIZE" envDefault:"16"`
	ImageCacheTTL  time.Duration `env:"PROMPTSITE_IMAGE_CACHE_TTL" envDefault:"30m"`
}

// Load は .env と環境変数を読み込み、settingsPath（空なら PROMPTSITE_SETTINGS、それも空なら既定の場所）の
// 設定ファイルがあれば上書きします。
func Load(settingsPath string) (*Config, error) {
	// .env がなくてもエラーにしない
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("環境変数の読み込みに失敗しました: %w", err)
	}

	if settingsPath != "" {
		cfg.SettingsPath = settingsPath
	}
	if cfg.SettingsPath == "" {
		cfg.SettingsPath = filepath.Join(defaultDir(), "settings.yaml")
	}
	// 未設定の項目は generator の既定値に合わせる
	if cfg.Model == "" {
		cfg.Model = generator.DefaultModel
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = generator.DefaultRetryPolicy().MaxAttempts
	}
	if cfg.HistoryDB == "" {
		cfg.HistoryDB = filepath.Join(defaultDir(), "history.db")
	}

	s, err := LoadSettings(cfg.SettingsPath)
	if err != nil {
		return nil, err
	}
	s.Apply(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は値の範囲を確認します。
func (c *Config) Validate() error {
	var errs []error
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature は 0〜2 の範囲で指定してください: %v", c.Temperature))
	}
	if c.HistoryCap <= 0 {
		errs = append(errs, fmt.Errorf("history cap は1以上を指定してください: %d", c.HistoryCap))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max attempts は1以上を指定してください: %d", c.MaxAttempts))
	}
	if c.ImageCacheSize < 1 {
		errs = append(errs, fmt.Errorf("image cache size は1以上を指定してください: %d", c.ImageCacheSize))
	}
	return errors.Join(errs...)
}

// GenerationConfig は生成のデフォルト値を返します。
func (c *Config) GenerationConfig() domain.GenerationConfig {
	return domain.GenerationConfig{
		Model:             c.Model,
		Temperature:       c.Temperature,
		SystemInstruction: c.SystemInstruction,
	}
}

// RetryPolicy は試行回数を反映した再試行ポリシーを返します。
func (c *Config) RetryPolicy() generator.RetryPolicy {
	p := generator.DefaultRetryPolicy()
	p.MaxAttempts = c.MaxAttempts
	return p
}

// defaultDir はユーザー設定ディレクトリ配下の保存先です。
func defaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".promptsite"
	}
	return filepath.Join(dir, "promptsite")
}
