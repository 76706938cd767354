package sink

import (
	"context"
	"slices"
	"sync"
)

// MemorySink keeps every delivered envelope in order
type MemorySink struct {
	name string

	mu        sync.Mutex
	envelopes []Envelope
}

// NewMemorySink creates a memory sink registered under name
func NewMemorySink(name string) *MemorySink {
	if name == "" {
		name = "memory"
	}
	return &MemorySink{name: name}
}

func (s *MemorySink) Name() string { return s.name }

func (s *MemorySink) Deliver(_ context.Context, env Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envelopes = append(s.envelopes, env)
	return nil
}

// Envelopes returns a copy of everything delivered so far
func (s *MemorySink) Envelopes() []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.envelopes)
}

// Reset drops collected envelopes
func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envelopes = nil
}
