package workspace

import (
	"sync"
)

// Listener は状態遷移の後に呼ばれます。Listener の中から Dispatch してはいけません。
type Listener func(prev, next State, a Action)

// Store は State を保持し、アクションを直列に適用します。
type Store struct {
	dispatchMu sync.Mutex
	mu         sync.RWMutex
	state      State
	listeners  map[int]Listener
	nextID     int
}

func NewStore(initial State) *Store {
	return &Store{state: initial, listeners: make(map[int]Listener)}
}

// Dispatch はアクションを適用し、登録順にリスナーへ通知して新しい状態を返します。
func (s *Store) Dispatch(a Action) State {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	prev := s.state
	next := Reduce(prev, a)
	s.state = next
	listeners := s.sortedListeners()
	s.mu.Unlock()

	for _, l := range listeners {
		l(prev, next, a)
	}
	return next
}

// Subscribe はリスナーを登録し、登録解除用の関数を返します。
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Snapshot は現在の状態を返します。
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// sortedListeners は登録順のリスナー一覧を返します。mu を保持した状態で呼びます。
func (s *Store) sortedListeners() []Listener {
	out := make([]Listener, 0, len(s.listeners))
	for id := 0; id < s.nextID; id++ {
		if l, ok := s.listeners[id]; ok {
			out = append(out, l)
		}
	}
	return out
}
