package llm

import (
	"context"
	"fmt"
	"sync"
)

// Scripted replays fixed responses in order, cycling when exhausted.
// It backs dry runs and tests.
type Scripted struct {
	mu        sync.Mutex
	responses []string
	next      int
	requests  []Request
}

// NewScripted returns a scripted backend. At least one response is required.
func NewScripted(responses ...string) (*Scripted, error) {
	if len(responses) == 0 {
		return nil, fmt.Errorf("scripted backend requires responses")
	}
	return &Scripted{responses: append([]string(nil), responses...)}, nil
}

// Generate implements Generator.
func (s *Scripted) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", backendErr(BackendScripted, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	out := s.responses[s.next%len(s.responses)]
	s.next++
	return out, nil
}

// Requests returns the requests received so far.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}
