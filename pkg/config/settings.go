package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Settings はユーザーが `config set` で変更できる生成設定です。未設定の項目は環境変数の値が使われます。
type Settings struct {
	Model             string   `yaml:"model,omitempty"`
	Temperature       *float32 `yaml:"temperature,omitempty"`
	SystemInstruction string   `yaml:"system_instruction,omitempty"`
	HistoryCap        int      `yaml:"history_cap,omitempty"`
}

// SettingKeys は `config set` で指定できるキーです。
var SettingKeys = []string{"model", "temperature", "system_instruction", "history_cap"}

// LoadSettings は YAML の設定ファイルを読み込みます。ファイルがない場合は空の Settings を返します。
func LoadSettings(path string) (Settings, error) {
	var s Settings
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("設定ファイルを読み込めませんでした: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("設定ファイルの形式が不正です (%s): %w", path, err)
	}
	return s, nil
}

// SaveSettings は設定ファイルを書き出します。
func SaveSettings(path string, s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("設定のエンコードに失敗しました: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("設定ディレクトリを作成できませんでした: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("設定ファイルを書き込めませんでした: %w", err)
	}
	return nil
}

// Apply は設定ファイルの値で cfg を上書きします。
func (s Settings) Apply(cfg *Config) {
	if s.Model != "" {
		cfg.Model = s.Model
	}
	if s.Temperature != nil {
		cfg.Temperature = *s.Temperature
	}
	if s.SystemInstruction != "" {
		cfg.SystemInstruction = s.SystemInstruction
	}
	if s.HistoryCap > 0 {
		cfg.HistoryCap = s.HistoryCap
	}
}

// Set は key に value を設定します。value が空なら設定を解除します。
func (s *Settings) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case "model":
		s.Model = value
	case "system_instruction":
		s.SystemInstruction = value
	case "temperature":
		if value == "" {
			s.Temperature = nil
			return nil
		}
		f, err := strconv.ParseFloat(value, 32)
		if err != nil || f < 0 || f > 2 {
			return fmt.Errorf("temperature は 0〜2 の数値で指定してください: %q", value)
		}
		t := float32(f)
		s.Temperature = &t
	case "history_cap":
		if value == "" {
			s.HistoryCap = 0
			return nil
		}
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("history_cap は1以上の整数で指定してください: %q", value)
		}
		s.HistoryCap = n
	default:
		return fmt.Errorf("不明な設定キーです: %q (指定できるキー: %s)", key, strings.Join(SettingKeys, ", "))
	}
	return nil
}
