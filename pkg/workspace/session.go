package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shouni/gemini-site-kit/pkg/domain"
	"github.com/shouni/gemini-site-kit/pkg/generator"
	"github.com/shouni/gemini-site-kit/pkg/history"
)

var (
	// ErrSuperseded は後から開始された生成によって結果が破棄されたことを示します。
	ErrSuperseded = errors.New("新しい生成が開始されたため、この生成結果は破棄されました")
	// ErrHistoryNotSaved は履歴の変更をリポジトリに保存できなかったことを示します。
	// 状態は変更後のまま進みます。
	ErrHistoryNotSaved = errors.New("履歴を保存できませんでした")
)

// Session はワークスペースの操作窓口です。生成・履歴・編集をすべて Store へのアクションに変換します。
type Session struct {
	store *Store
	gen   generator.SiteGenerator
	repo  history.Repository
	now   func() time.Time
	newID func() string

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// SessionOption は Session の設定を行うための関数型です。
type SessionOption func(*Session)

// WithClock は履歴の作成日時に使う時計を差し替えます。
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		s.now = now
	}
}

// WithIDGenerator は履歴 ID の生成方法を差し替えます。
func WithIDGenerator(fn func() string) SessionOption {
	return func(s *Session) {
		s.newID = fn
	}
}

// NewSession は依存関係を注入して Session を初期化します。
// repo への保存は履歴が変わる操作のたびに行われ、失敗はその操作のエラーとして返ります。
func NewSession(gen generator.SiteGenerator, repo history.Repository, historyCap int, opts ...SessionOption) (*Session, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}

	s := &Session{
		store: NewStore(NewState(historyCap)),
		gen:   gen,
		repo:  repo,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Store は状態の購読やスナップショット取得のために Store を返します。
func (s *Session) Store() *Store { return s.store }

// State は現在の状態のスナップショットです。
func (s *Session) State() State { return s.store.Snapshot() }

// Load は保存済みの履歴を読み込みます。起動時に1度だけ呼びます。
func (s *Session) Load(ctx context.Context) error {
	entries, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}
	s.store.Dispatch(HistoryLoaded{Entries: entries})
	slog.DebugContext(ctx, "履歴を読み込みました", "count", len(entries))
	return nil
}

// Generate はサイトを生成し、成功したら履歴の先頭に追加します。
// 生成中に別の Generate が呼ばれると、古い方はキャンセルされ ErrSuperseded を返します。
func (s *Session) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.HistoryEntry, error) {
	if err := generator.Validate(req); err != nil {
		ce := generator.AsClassified(err)
		// 生成中の場合、Pending とエラー表示はその生成の結果に任せる
		s.mu.Lock()
		if s.cancel == nil {
			s.store.Dispatch(GenerationFailed{Err: ce})
		}
		s.mu.Unlock()
		return nil, ce
	}

	gctx, seq := s.begin(ctx)
	s.store.Dispatch(GenerationStarted{Prompt: req.Prompt})

	artifacts, err := s.gen.Generate(gctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq {
		slog.InfoContext(ctx, "古い生成結果を破棄しました", "seq", seq)
		return nil, ErrSuperseded
	}
	s.cancel()
	s.cancel = nil

	if err != nil {
		ce := generator.AsClassified(err)
		s.store.Dispatch(GenerationFailed{Err: ce})
		return nil, ce
	}

	entry := domain.HistoryEntry{
		ID:        s.newID(),
		Prompt:    req.Prompt,
		CreatedAt: s.now(),
		Artifacts: *artifacts,
	}
	if req.Image != nil {
		entry.ImageRef = req.Image.Source
	}
	if err := s.commit(context.WithoutCancel(ctx), GenerationSucceeded{Entry: entry}); err != nil {
		return nil, err
	}
	return &entry, nil
}

// commit はアクションを適用し、履歴が変わった場合は repo に保存します。
func (s *Session) commit(ctx context.Context, a Action) error {
	next := s.store.Dispatch(a)
	if !ChangesHistory(a) {
		return nil
	}
	if err := s.repo.Save(ctx, next.History); err != nil {
		slog.WarnContext(ctx, "履歴の保存に失敗しました", "error", err)
		return fmt.Errorf("%w: %w", ErrHistoryNotSaved, err)
	}
	return nil
}

// begin は進行中の生成をキャンセルし、新しい生成の context と通番を返します。
func (s *Session) begin(ctx context.Context) (context.Context, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	gctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	return gctx, s.seq
}

// Cancel は進行中の生成を中断します。
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Restore は履歴のエントリをワークスペースに戻します。ref は ID または一覧での位置です。
func (s *Session) Restore(ref string) (domain.HistoryEntry, error) {
	e, err := history.Find(s.store.Snapshot().History, ref)
	if err != nil {
		return domain.HistoryEntry{}, err
	}
	s.store.Dispatch(HistoryEntryRestored{ID: e.ID})
	return e, nil
}

// Remove は履歴から1件削除して保存します。
func (s *Session) Remove(ctx context.Context, ref string) error {
	e, err := history.Find(s.store.Snapshot().History, ref)
	if err != nil {
		return err
	}
	return s.commit(ctx, HistoryEntryRemoved{ID: e.ID})
}

// Clear は履歴をすべて削除して保存します。
func (s *Session) Clear(ctx context.Context) error {
	return s.commit(ctx, HistoryCleared{})
}

// Edit は現在の成果物の1ファイルを置き換えます。
func (s *Session) Edit(kind domain.ArtifactKind, content string) {
	s.store.Dispatch(ArtifactEdited{Kind: kind, Content: content})
}

// DismissError は表示中のエラーを消します。
func (s *Session) DismissError() {
	s.store.Dispatch(ErrorDismissed{})
}
