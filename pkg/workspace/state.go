package workspace

import (
	"github.com/shouni/gemini-site-kit/pkg/domain"
	"github.com/shouni/gemini-site-kit/pkg/generator"
	"github.com/shouni/gemini-site-kit/pkg/history"
)

// State はワークスペース全体の状態です。Reduce 以外から直接変更しないでください。
// スライスは Reduce が毎回新しく確保するため、Snapshot の戻り値を共有しても安全です。
type State struct {
	Prompt     string
	Artifacts  domain.WebsiteArtifacts
	Generated  bool   // Artifacts がプレースホルダーではなく生成・復元されたものか
	ActiveID   string // 表示中の履歴エントリ
	History    []domain.HistoryEntry
	HistoryCap int
	Pending    bool
	Err        *generator.ClassifiedError
}

// NewState は初期状態を返します。
func NewState(historyCap int) State {
	if historyCap <= 0 {
		historyCap = history.DefaultCapacity
	}
	return State{
		Artifacts:  domain.PlaceholderArtifacts(),
		History:    []domain.HistoryEntry{},
		HistoryCap: historyCap,
	}
}

// Action は State を変化させるイベントです。
type Action interface {
	isAction()
}

type (
	GenerationStarted struct {
		Prompt string
	}
	GenerationSucceeded struct {
		Entry domain.HistoryEntry
	}
	GenerationFailed struct {
		Err *generator.ClassifiedError
	}
	ArtifactEdited struct {
		Kind    domain.ArtifactKind
		Content string
	}
	HistoryLoaded struct {
		Entries []domain.HistoryEntry
	}
	HistoryEntryRemoved struct {
		ID string
	}
	HistoryCleared       struct{}
	HistoryEntryRestored struct {
		ID string
	}
	ErrorDismissed struct{}
)

func (GenerationStarted) isAction()    {}
func (GenerationSucceeded) isAction()  {}
func (GenerationFailed) isAction()     {}
func (ArtifactEdited) isAction()       {}
func (HistoryLoaded) isAction()        {}
func (HistoryEntryRemoved) isAction()  {}
func (HistoryCleared) isAction()       {}
func (HistoryEntryRestored) isAction() {}
func (ErrorDismissed) isAction()       {}

// ChangesHistory は永続化が必要な履歴の変更を伴うアクションかどうかを返します。
// 読み込み（HistoryLoaded）は保存済みの内容そのものなので含みません。
func ChangesHistory(a Action) bool {
	switch a.(type) {
	case GenerationSucceeded, HistoryEntryRemoved, HistoryCleared:
		return true
	}
	return false
}

// Reduce は副作用のない状態遷移です。
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case GenerationStarted:
		s.Prompt = a.Prompt
		s.Pending = true
		s.Err = nil

	case GenerationSucceeded:
		s.Pending = false
		s.Err = nil
		s.Prompt = a.Entry.Prompt
		s.Artifacts = a.Entry.Artifacts
		s.Generated = true
		s.ActiveID = a.Entry.ID
		s.History = history.Prepend(s.History, a.Entry, s.HistoryCap)

	case GenerationFailed:
		// 直前の成果物と履歴はそのまま残す
		s.Pending = false
		s.Err = a.Err

	case ArtifactEdited:
		s.Artifacts = s.Artifacts.With(a.Kind, a.Content)
		s.Generated = true

	case HistoryLoaded:
		entries := append([]domain.HistoryEntry{}, a.Entries...)
		s.History = history.Truncate(entries, s.HistoryCap)

	case HistoryEntryRemoved:
		s.History = history.Remove(s.History, a.ID)
		if s.ActiveID == a.ID {
			s.ActiveID = ""
		}

	case HistoryCleared:
		s.History = []domain.HistoryEntry{}
		s.ActiveID = ""

	case HistoryEntryRestored:
		for _, e := range s.History {
			if e.ID == a.ID {
				s.Prompt = e.Prompt
				s.Artifacts = e.Artifacts
				s.Generated = true
				s.ActiveID = e.ID
				s.Err = nil
				break
			}
		}

	case ErrorDismissed:
		s.Err = nil
	}
	return s
}
