// Package sink delivers routed signal candidates to downstream consumers.
package sink

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/confluence/internal/core"
)

// Envelope is one routed candidate
type Envelope struct {
	ID        string               `json:"id"`
	Candidate core.SignalCandidate `json:"candidate"`
	RoutedAt  time.Time            `json:"routed_at"`
}

// NewEnvelope wraps c with a fresh ID
func NewEnvelope(c core.SignalCandidate, routedAt time.Time) Envelope {
	return Envelope{ID: uuid.NewString(), Candidate: c, RoutedAt: routedAt}
}

// Sink defines a destination for routed candidates
type Sink interface {
	// Name returns the unique identifier for this sink
	Name() string

	// Deliver hands one envelope to the sink
	Deliver(ctx context.Context, env Envelope) error
}

// Registry manages sink instances
type Registry struct {
	mu    sync.RWMutex
	sinks map[string]Sink
}

// NewRegistry creates a new sink registry
func NewRegistry() *Registry {
	return &Registry{
		sinks: make(map[string]Sink),
	}
}

// Register adds a sink to the registry
func (r *Registry) Register(s Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Name()
	if _, exists := r.sinks[name]; exists {
		return fmt.Errorf("sink %s already registered", name)
	}

	r.sinks[name] = s
	return nil
}

// Get retrieves a sink by name
func (r *Registry) Get(name string) (Sink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.sinks[name]
	if !exists {
		return nil, fmt.Errorf("sink %s not found", name)
	}
	return s, nil
}

// Names returns the registered sink names sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sinks))
	for name := range r.sinks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered sinks
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}

// DeliverAll sends env to every registered sink and returns the failures
// keyed by sink name.
func (r *Registry) DeliverAll(ctx context.Context, env Envelope) map[string]error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	errs := make(map[string]error)
	for name, s := range r.sinks {
		if err := ctx.Err(); err != nil {
			errs[name] = err
			continue
		}
		if err := s.Deliver(ctx, env); err != nil {
			errs[name] = err
		}
	}
	return errs
}
