package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shouni/gemini-site-kit/pkg/domain"
	_ "modernc.org/sqlite"
)

// memoryPath はメモリ上のデータベースを表すパスです。
const memoryPath = ":memory:"

const schema = `CREATE TABLE IF NOT EXISTS kv_store (
	namespace  TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteRepository は履歴一覧を JSON 配列として1つのキーに保存する Repository です。
type SQLiteRepository struct {
	db  *sql.DB
	key string
}

// OpenSQLite は path の SQLite データベースを開き、テーブルを準備します。
// path に ":memory:" を渡すとメモリ上のデータベースになります。
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepository, error) {
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("履歴データベースのディレクトリを作成できませんでした: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("履歴データベースを開けませんでした: %w", err)
	}
	// メモリ DB は接続ごとに別物になるため1本に固定する
	db.SetMaxOpenConns(1)

	repo, err := NewSQLiteRepository(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// NewSQLiteRepository は既存の *sql.DB を使って Repository を初期化します。
func NewSQLiteRepository(ctx context.Context, db *sql.DB) (*SQLiteRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("履歴テーブルの作成に失敗しました: %w", err)
	}
	return &SQLiteRepository{db: db, key: StorageKey}, nil
}

// Load は保存されている履歴を返します。未保存の場合は空のスライスです。
func (r *SQLiteRepository) Load(ctx context.Context) ([]domain.HistoryEntry, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE namespace = ?`, r.key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []domain.HistoryEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("履歴の読み込みに失敗しました: %w", err)
	}

	var entries []domain.HistoryEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptHistory, err)
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	return entries, nil
}

// Save は履歴一覧全体を上書き保存します。
func (r *SQLiteRepository) Save(ctx context.Context, entries []domain.HistoryEntry) error {
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("履歴のエンコードに失敗しました: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO kv_store (namespace, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(namespace) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		r.key, string(raw), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("履歴の保存に失敗しました: %w", err)
	}
	slog.DebugContext(ctx, "履歴を保存しました", "count", len(entries))
	return nil
}

// Close はデータベース接続を閉じます。
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
