package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/metalagman/quorum/internal/db"
	"github.com/metalagman/quorum/internal/events"
)

const (
	runPrefix   = "runs/"
	eventPrefix = "events/"
)

// ErrNotFound is returned for unknown run ids.
var ErrNotFound = errors.New("run not found")

// Store persists run documents and their event logs.
type Store struct {
	kv *db.Store
}

// NewStore creates a store for run persistence.
func NewStore(kv *db.Store) *Store {
	return &Store{kv: kv}
}

// Save writes the whole run document.
func (s *Store) Save(ctx context.Context, r Run) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", r.ID, err)
	}
	return s.kv.Write(ctx, runPrefix+r.ID, body)
}

// Load reads a run document.
func (s *Store) Load(ctx context.Context, runID string) (Run, error) {
	body, err := s.kv.Read(ctx, runPrefix+runID)
	if errors.Is(err, db.ErrNotFound) {
		return Run{}, fmt.Errorf("%s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return Run{}, err
	}
	var r Run
	if err := json.Unmarshal(body, &r); err != nil {
		return Run{}, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return r, nil
}

// List returns all runs, newest first.
func (s *Store) List(ctx context.Context) ([]Run, error) {
	docs, err := s.kv.List(ctx, runPrefix)
	if err != nil {
		return nil, err
	}
	runs := make([]Run, 0, len(docs))
	for _, d := range docs {
		var r Run
		if err := json.Unmarshal(d.Body, &r); err != nil {
			return nil, fmt.Errorf("decode run %s: %w", strings.TrimPrefix(d.Key, runPrefix), err)
		}
		runs = append(runs, r)
	}
	slices.SortStableFunc(runs, func(a, b Run) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return runs, nil
}

// AppendEvent adds ev to the run's event log and returns it with its sequence number.
func (s *Store) AppendEvent(ctx context.Context, ev events.Event) (events.Event, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return ev, fmt.Errorf("encode event: %w", err)
	}
	seq, err := s.kv.Append(ctx, eventPrefix+ev.RunID, body)
	if err != nil {
		return ev, err
	}
	ev.Seq = seq
	return ev, nil
}

// Events returns the logged events of a run with a sequence number above afterSeq.
func (s *Store) Events(ctx context.Context, runID string, afterSeq int64) ([]events.Event, error) {
	records, err := s.kv.Records(ctx, eventPrefix+runID, afterSeq)
	if err != nil {
		return nil, err
	}
	out := make([]events.Event, 0, len(records))
	for _, rec := range records {
		var ev events.Event
		if err := json.Unmarshal(rec.Body, &ev); err != nil {
			return nil, fmt.Errorf("decode event %d of %s: %w", rec.Seq, runID, err)
		}
		ev.Seq = rec.Seq
		out = append(out, ev)
	}
	return out, nil
}

// Delete removes the run document and its event log.
func (s *Store) Delete(ctx context.Context, runID string) error {
	if err := s.kv.Delete(ctx, runPrefix+runID); err != nil {
		return err
	}
	return s.kv.Delete(ctx, eventPrefix+runID)
}
