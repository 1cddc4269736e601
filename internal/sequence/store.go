package sequence

import "sync"

// DefaultHistory is the number of previously selected sequences kept by a Store.
const DefaultHistory = 8

// Store owns the currently selected Sequence. Replacing it moves the previous
// one into a bounded history so it can be recalled without re-validating.
type Store struct {
	mu      sync.RWMutex
	current *Sequence
	history []*Sequence
	limit   int
}

func NewStore(historyLimit int) *Store {
	if historyLimit < 0 {
		historyLimit = 0
	}
	return &Store{limit: historyLimit}
}

// Load validates raw and, on success, makes it the current sequence. A
// rejected input leaves the store untouched.
func (s *Store) Load(raw string, opts Options) (*Sequence, error) {
	seq, err := Parse(raw, opts)
	if err != nil {
		return nil, err
	}
	s.Set(seq)
	return seq, nil
}

// Set makes seq the current sequence.
func (s *Store) Set(seq *Sequence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current != seq {
		s.remember(s.current)
	}
	s.forget(seq.ID())
	s.current = seq
}

// Current returns the selected sequence, or nil if none was loaded.
func (s *Store) Current() *Sequence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// History returns previously selected sequences, most recent first.
func (s *Store) History() []*Sequence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Sequence(nil), s.history...)
}

// Recall reselects a sequence from the history by ID.
func (s *Store) Recall(id string) (*Sequence, bool) {
	s.mu.Lock()
	var found *Sequence
	for _, h := range s.history {
		if h.ID() == id {
			found = h
			break
		}
	}
	s.mu.Unlock()
	if found == nil {
		return nil, false
	}
	s.Set(found)
	return found, true
}

func (s *Store) remember(seq *Sequence) {
	if s.limit == 0 {
		return
	}
	s.forget(seq.ID())
	s.history = append([]*Sequence{seq}, s.history...)
	if len(s.history) > s.limit {
		s.history = s.history[:s.limit]
	}
}

func (s *Store) forget(id string) {
	for i, h := range s.history {
		if h.ID() == id {
			s.history = append(s.history[:i], s.history[i+1:]...)
			return
		}
	}
}
