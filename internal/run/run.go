// Package run orchestrates document runs: ingestion, candidate fan-out,
// ranking and the event log.
package run

import (
	"time"

	"github.com/metalagman/quorum/internal/pipeline"
	"github.com/metalagman/quorum/internal/review"
	"github.com/metalagman/quorum/internal/scoring"
)

// Run statuses.
const (
	StatusQueued    = "queued"
	StatusIngesting = "ingesting"
	StatusWriting   = pipeline.StatusWriting
	StatusReviewing = pipeline.StatusReviewing
	StatusRendering = "rendering"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Terminal reports whether status ends a run.
func Terminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// Run is the persisted state of one run.
type Run struct {
	ID         string               `json:"run_id"`
	Status     string               `json:"status"`
	Round      int                  `json:"round"`
	MaxRounds  int                  `json:"max_rounds"`
	Inputs     Inputs               `json:"inputs"`
	Candidates []pipeline.Candidate `json:"candidates"`
	Selected   []string             `json:"selected_candidates"`
	Review     *review.Result       `json:"review,omitempty"`
	Forecast   *scoring.Forecast    `json:"forecast,omitempty"`
	Artifacts  map[string]any       `json:"artifacts"`
	Error      string               `json:"error,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
	Dir        string               `json:"run_dir"`
}

// Top returns the best ranked candidate, if any was selected.
func (r Run) Top() (pipeline.Candidate, bool) {
	if len(r.Selected) == 0 {
		return pipeline.Candidate{}, false
	}
	for _, c := range r.Candidates {
		if c.ID == r.Selected[0] {
			return c, true
		}
	}
	return pipeline.Candidate{}, false
}
