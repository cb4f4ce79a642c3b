// Package events defines run progress events and the per-run fan-out registry.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypeLog          = "log"
	TypeGraphUpdate  = "graph_update"
	TypeRoundUpdate  = "round_update"
	TypeDraftCreated = "draft_created"
	TypeReviewResult = "review_result"
	TypeRunStatus    = "run_status"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 256

// Event is a single progress notification of a run.
type Event struct {
	ID      string          `json:"event_id"`
	RunID   string          `json:"run_id"`
	Seq     int64           `json:"seq"`
	TS      time.Time       `json:"ts"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// New builds an event with a fresh ID and timestamp. payload is JSON-encoded.
func New(runID, typ string, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:      uuid.NewString(),
		RunID:   runID,
		TS:      time.Now().UTC(),
		Type:    typ,
		Payload: body,
	}, nil
}

// Subscription receives the events of one run.
type Subscription struct {
	C     <-chan Event
	ch    chan Event
	runID string
	reg   *Registry
	once  sync.Once
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.reg.unsubscribe(s) })
}

type channel struct {
	subs     map[*Subscription]struct{}
	finished bool
}

// Registry fans run events out to subscribers. Each subscriber has a bounded
// queue; events published while the queue is full are dropped for that subscriber.
type Registry struct {
	buffer int

	mu       sync.Mutex
	channels map[string]*channel
	dropped  func(runID string)
}

// NewRegistry creates a registry with the given per-subscriber buffer.
func NewRegistry(buffer int) *Registry {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Registry{buffer: buffer, channels: map[string]*channel{}}
}

// OnDrop registers a callback invoked for every event dropped on a full queue.
func (r *Registry) OnDrop(fn func(runID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped = fn
}

// Open creates the channel of a run. Opening an existing channel is a no-op.
func (r *Registry) Open(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.channels[runID]; !ok {
		r.channels[runID] = &channel{subs: map[*Subscription]struct{}{}}
	}
}

// Publish delivers ev to every current subscriber of its run without blocking.
func (r *Registry) Publish(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.channels[ev.RunID]
	if !ok || c.finished {
		return
	}
	for sub := range c.subs {
		select {
		case sub.ch <- ev:
		default:
			if r.dropped != nil {
				r.dropped(ev.RunID)
			}
		}
	}
}

// Subscribe attaches a subscriber to the run. A subscription to a run without
// an open channel, or to a finished one, comes back already closed.
func (r *Registry) Subscribe(runID string) *Subscription {
	ch := make(chan Event, r.buffer)
	sub := &Subscription{C: ch, ch: ch, runID: runID, reg: r}

	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.channels[runID]
	if !ok || c.finished {
		close(ch)
		sub.once.Do(func() {})
		return sub
	}
	c.subs[sub] = struct{}{}
	return sub
}

func (r *Registry) unsubscribe(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.channels[sub.runID]
	if !ok {
		return
	}
	if _, ok := c.subs[sub]; ok {
		delete(c.subs, sub)
		if !c.finished {
			close(sub.ch)
		}
	}
	if c.finished && len(c.subs) == 0 {
		delete(r.channels, sub.runID)
	}
}

// Finish marks the run done and closes every subscriber channel. Subscribers
// still drain what is queued. The run channel is torn down once the last
// subscriber unsubscribes, or at once when there is none.
func (r *Registry) Finish(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.channels[runID]
	if !ok || c.finished {
		return
	}
	c.finished = true
	for sub := range c.subs {
		close(sub.ch)
	}
	if len(c.subs) == 0 {
		delete(r.channels, runID)
	}
}

// Active reports whether the run still has an open channel.
func (r *Registry) Active(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.channels[runID]
	return ok
}

// Subscribers returns the number of subscribers of a run.
func (r *Registry) Subscribers(runID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.channels[runID]; ok {
		return len(c.subs)
	}
	return 0
}
