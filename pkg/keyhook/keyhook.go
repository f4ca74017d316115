package keyhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// ErrKeyHookUnavailable はキー管理の仕組みが設定されていないことを示します。
var ErrKeyHookUnavailable = errors.New("APIキーの管理は PROMPTSITE_KEY_COMMAND が設定された環境でのみ利用できます")

// Hook は認証情報を選択・更新する画面や仕組みを開くためのインターフェースです。
type Hook interface {
	Open(ctx context.Context) error
}

// CommandHook は設定されたシェルコマンドを実行するキー管理フックです。
type CommandHook struct {
	command string
	stdout  io.Writer
	stderr  io.Writer
}

// NewCommandHook は command を実行する Hook を返します。command が空なら nil を返します。
func NewCommandHook(command string, stdout, stderr io.Writer) Hook {
	if strings.TrimSpace(command) == "" {
		return nil
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return &CommandHook{command: command, stdout: stdout, stderr: stderr}
}

func (h *CommandHook) Open(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", h.command)
	cmd.Stdin = os.Stdin
	cmd.Stdout = h.stdout
	cmd.Stderr = h.stderr

	slog.DebugContext(ctx, "キー管理コマンドを実行します", "command", h.command)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("キー管理コマンドの実行に失敗しました: %w", err)
	}
	return nil
}

// Open はフックを開きます。フックがない場合は ErrKeyHookUnavailable を返します。
func Open(ctx context.Context, h Hook) error {
	if h == nil {
		return ErrKeyHookUnavailable
	}
	return h.Open(ctx)
}
