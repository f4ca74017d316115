package workspace

import (
	"context"
	"errors"
	"sync"

	"github.com/shouni/gemini-site-kit/pkg/domain"
	"github.com/shouni/gemini-site-kit/pkg/history"
)

type mockGenerator struct {
	mu       sync.Mutex
	calls    int
	generate func(ctx context.Context, req domain.GenerationRequest) (*domain.WebsiteArtifacts, error)
}

func (m *mockGenerator) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.WebsiteArtifacts, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.generate == nil {
		return &domain.WebsiteArtifacts{Markup: "<p>" + req.Prompt + "</p>", Stylesheet: "p{}", Script: "1"}, nil
	}
	return m.generate(ctx, req)
}

type failingRepo struct{}

func (failingRepo) Load(ctx context.Context) ([]domain.HistoryEntry, error) {
	return nil, errors.New("disk error")
}

func (failingRepo) Save(ctx context.Context, entries []domain.HistoryEntry) error {
	return errors.New("disk error")
}

// saveFailingRepo は読み込みはできるが保存に失敗するリポジトリです。
type saveFailingRepo struct {
	*history.MemoryRepository
}

func (saveFailingRepo) Save(ctx context.Context, entries []domain.HistoryEntry) error {
	return errors.New("disk full")
}
