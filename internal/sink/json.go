package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// JSONSink writes one JSON object per envelope to an io.Writer
type JSONSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONSink creates a JSON lines sink over w
func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{enc: json.NewEncoder(w)}
}

func (s *JSONSink) Name() string { return "json" }

func (s *JSONSink) Deliver(_ context.Context, env Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(env); err != nil {
		return fmt.Errorf("json sink: %w", err)
	}
	return nil
}
