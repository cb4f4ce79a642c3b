// Package scoring computes draft metrics, the aggregate score and the approval forecast.
package scoring

import (
	"fmt"
	"strings"

	"github.com/metalagman/quorum/internal/retrieval"
	"github.com/metalagman/quorum/internal/review"
)

// Metric IDs.
const (
	StrategicConsistency = "strategic_consistency"
	CountryPriorityMatch = "country_priority_match"
	TechnicalFeasibility = "technical_feasibility"
	ComplianceRisk       = "compliance_risk"
	Innovation           = "innovation"
)

// Scoring constants.
const (
	MaxScore       = 5.0
	PassThreshold  = 3.0
	ExcerptLength  = 2000
	SimilarityTopK = 3
	evidencePerHit = 2
)

// Forecast phases.
const (
	PhaseOnTrack   = "on_track"
	PhaseWatchlist = "watchlist"
	PhaseAtRisk    = "at_risk"
)

// Searcher finds scoped evidence for a query.
type Searcher interface {
	Search(query string, topK int, scopes ...string) ([]retrieval.Hit, error)
}

// Metric is one scored dimension of a draft.
type Metric struct {
	ID        string            `json:"id"`
	Label     string            `json:"label"`
	Score     float64           `json:"score"`
	Rationale string            `json:"rationale"`
	Evidence  []retrieval.Chunk `json:"evidence,omitempty"`
}

// Forecast is the qualitative approval outlook of a candidate.
type Forecast struct {
	Phase      string  `json:"phase"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

type similarityMetric struct {
	id     string
	label  string
	scopes []string
	invert bool
}

var similarityMetrics = []similarityMetric{
	{StrategicConsistency, "Strategic consistency", []string{"ifad"}, false},
	{CountryPriorityMatch, "Country priority match", []string{"government"}, false},
	{TechnicalFeasibility, "Technical feasibility", []string{"technical"}, false},
	{Innovation, "Innovation (distance from prior COSOPs)", []string{"public", "historical_cosop"}, true},
}

// Metrics scores draft against the index. The compliance metric is derived from
// the compliance review. Metrics come back in a fixed order.
func Metrics(idx Searcher, draft string, compliance review.Result) ([]Metric, error) {
	excerpt := leading(draft, ExcerptLength)
	out := make([]Metric, 0, 5)
	for _, sm := range similarityMetrics {
		if sm.id == Innovation {
			out = append(out, complianceMetric(compliance))
		}
		m, err := similarity(idx, excerpt, sm)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func similarity(idx Searcher, excerpt string, sm similarityMetric) (Metric, error) {
	m := Metric{ID: sm.id, Label: sm.label}
	hits, err := idx.Search(excerpt, SimilarityTopK, sm.scopes...)
	if err != nil {
		return Metric{}, fmt.Errorf("score %s: %w", sm.id, err)
	}
	scopes := strings.Join(sm.scopes, ", ")
	if len(hits) == 0 {
		if sm.invert {
			m.Score = MaxScore
		}
		m.Rationale = fmt.Sprintf("No evidence retrieved for scopes: %s.", scopes)
		return m, nil
	}

	best := hits[0].Score
	for _, h := range hits[1:] {
		best = max(best, h.Score)
	}
	score := best * MaxScore
	if sm.invert {
		score = (1 - best) * MaxScore
	}
	m.Score = clamp(score)
	m.Rationale = fmt.Sprintf("Top cosine similarity=%.2f for scopes: %s.", best, scopes)
	for _, h := range hits[:min(evidencePerHit, len(hits))] {
		m.Evidence = append(m.Evidence, h.Chunk)
	}
	return m, nil
}

func complianceMetric(r review.Result) Metric {
	m := Metric{ID: ComplianceRisk, Label: "Compliance, risk, and results chain"}
	blockers := r.Blockers()
	switch {
	case r.Passed && blockers == 0:
		m.Score = 4.5
		m.Rationale = "ODE review passed; no blocker issues."
	case blockers > 0:
		m.Score = 1.5
		m.Rationale = fmt.Sprintf("ODE review flagged blockers (%d).", blockers)
	default:
		m.Score = 2.5
		m.Rationale = "ODE review identified gaps but no blockers."
	}
	return m
}

// Aggregate is the arithmetic mean of the metric scores.
func Aggregate(metrics []Metric) float64 {
	if len(metrics) == 0 {
		return 0
	}
	var sum float64
	for _, m := range metrics {
		sum += m.Score
	}
	return sum / float64(len(metrics))
}

// Passed reports whether a candidate clears both reviews and the score threshold.
func Passed(compliance, quality review.Result, score float64) bool {
	return compliance.Passed && quality.Passed && score >= PassThreshold
}

// BuildForecast derives the approval outlook from the score and pass state.
func BuildForecast(score float64, passed bool, blockers int) Forecast {
	var f Forecast
	switch {
	case passed && score >= 4.0:
		f.Phase = PhaseOnTrack
		f.Confidence = min(0.9, 0.6+score/10)
	case passed:
		f.Phase = PhaseWatchlist
		f.Confidence = min(0.75, 0.5+score/10)
	default:
		f.Phase = PhaseAtRisk
		f.Confidence = max(0.35, 0.3+score/10)
	}
	f.Rationale = fmt.Sprintf("Overall score %.2f. Passed=%t. Blockers=%d. Higher scores imply stronger alignment and feasibility.",
		score, passed, blockers)
	return f
}

func clamp(v float64) float64 {
	return max(0, min(MaxScore, v))
}

func leading(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
