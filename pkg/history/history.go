package history

import (
	"context"
	"errors"
	"sync"

	"github.com/shouni/gemini-site-kit/pkg/domain"
)

const (
	// StorageKey は履歴一覧を保存する名前空間キーです。
	StorageKey = "prompt_site_history"
	// DefaultCapacity は保持する履歴の最大件数です。
	DefaultCapacity = 20
)

var (
	ErrNotFound       = errors.New("指定された履歴が見つかりません")
	ErrCorruptHistory = errors.New("保存されている履歴を読み込めませんでした")
)

// Repository は履歴一覧（新しい順）の読み書きを抽象化するインターフェースです。
type Repository interface {
	Load(ctx context.Context) ([]domain.HistoryEntry, error)
	Save(ctx context.Context, entries []domain.HistoryEntry) error
}

// Prepend は entry を先頭に追加し、capacity を超えた古いものを切り捨てた新しいスライスを返します。
// 元のスライスは変更しません。
func Prepend(entries []domain.HistoryEntry, entry domain.HistoryEntry, capacity int) []domain.HistoryEntry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	n := min(len(entries)+1, capacity)
	out := make([]domain.HistoryEntry, 0, n)
	out = append(out, entry)
	out = append(out, entries[:n-1]...)
	return out
}

// Remove は id の履歴を除いた新しいスライスを返します。
func Remove(entries []domain.HistoryEntry, id string) []domain.HistoryEntry {
	out := make([]domain.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return out
}

// Find は id または一覧での位置（1始まり、"1" が最新）で履歴を探します。
func Find(entries []domain.HistoryEntry, ref string) (domain.HistoryEntry, error) {
	for _, e := range entries {
		if e.ID == ref {
			return e, nil
		}
	}
	var idx int
	for _, r := range ref {
		if r < '0' || r > '9' {
			return domain.HistoryEntry{}, ErrNotFound
		}
		idx = idx*10 + int(r-'0')
		if idx > len(entries) {
			return domain.HistoryEntry{}, ErrNotFound
		}
	}
	if idx < 1 {
		return domain.HistoryEntry{}, ErrNotFound
	}
	return entries[idx-1], nil
}

// Truncate は capacity を超えた分を切り捨てます。
func Truncate(entries []domain.HistoryEntry, capacity int) []domain.HistoryEntry {
	if capacity > 0 && len(entries) > capacity {
		return entries[:capacity]
	}
	return entries
}

// MemoryRepository はプロセス内だけで履歴を保持する Repository です。
type MemoryRepository struct {
	mu      sync.Mutex
	entries []domain.HistoryEntry
	saves   int
}

func NewMemoryRepository(initial ...domain.HistoryEntry) *MemoryRepository {
	return &MemoryRepository{entries: append([]domain.HistoryEntry(nil), initial...)}
}

func (r *MemoryRepository) Load(ctx context.Context) ([]domain.HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.HistoryEntry(nil), r.entries...), nil
}

func (r *MemoryRepository) Save(ctx context.Context, entries []domain.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append([]domain.HistoryEntry(nil), entries...)
	r.saves++
	return nil
}

// Saves は Save が呼ばれた回数を返します。
func (r *MemoryRepository) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}
