package scoring

import (
	"errors"
	"testing"

	"github.com/metalagman/quorum/internal/retrieval"
	"github.com/metalagman/quorum/internal/review"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	byScope map[string][]retrieval.Hit
	queries []string
	err     error
}

func (f *fakeSearcher) Search(query string, _ int, scopes ...string) ([]retrieval.Hit, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.byScope[scopes[0]], nil
}

func hit(score float64, id string) retrieval.Hit {
	return retrieval.Hit{Score: score, Chunk: retrieval.Chunk{ID: id}}
}

func TestMetricsScalesSimilarity(t *testing.T) {
	t.Parallel()

	idx := &fakeSearcher{byScope: map[string][]retrieval.Hit{
		"ifad":       {hit(0.6, "a"), hit(0.2, "b"), hit(0.1, "c")},
		"government": {hit(0.3, "g")},
		"public":     {hit(0.4, "p")},
	}}
	passed := review.Result{Passed: true}

	metrics, err := Metrics(idx, "draft", passed)
	require.NoError(t, err)
	require.Len(t, metrics, 5)

	ids := make([]string, 0, len(metrics))
	for _, m := range metrics {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{StrategicConsistency, CountryPriorityMatch, TechnicalFeasibility, ComplianceRisk, Innovation}, ids)

	assert.InDelta(t, 3.0, metrics[0].Score, 1e-9)
	assert.Len(t, metrics[0].Evidence, 2)
	assert.InDelta(t, 1.5, metrics[1].Score, 1e-9)
	assert.Zero(t, metrics[2].Score)
	assert.Equal(t, "No evidence retrieved for scopes: technical.", metrics[2].Rationale)
	assert.InDelta(t, 4.5, metrics[3].Score, 1e-9)
	assert.InDelta(t, 3.0, metrics[4].Score, 1e-9)
}

func TestMetricsInnovationWithoutHitsIsMax(t *testing.T) {
	t.Parallel()

	metrics, err := Metrics(&fakeSearcher{}, "draft", review.Result{})
	require.NoError(t, err)
	assert.Equal(t, MaxScore, metrics[4].Score)
}

func TestMetricsUsesLeadingExcerpt(t *testing.T) {
	t.Parallel()

	idx := &fakeSearcher{}
	long := make([]rune, ExcerptLength+500)
	for i := range long {
		long[i] = 'a'
	}
	_, err := Metrics(idx, string(long), review.Result{})
	require.NoError(t, err)
	for _, q := range idx.queries {
		assert.Len(t, q, ExcerptLength)
	}
}

func TestMetricsPropagatesSearchError(t *testing.T) {
	t.Parallel()

	_, err := Metrics(&fakeSearcher{err: retrieval.ErrEmptyIndex}, "draft", review.Result{})
	assert.True(t, errors.Is(err, retrieval.ErrEmptyIndex))
}

func TestComplianceMetric(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		res  review.Result
		want float64
	}{
		{name: "passed", res: review.Result{Passed: true}, want: 4.5},
		{name: "blockers", res: review.Result{Comments: []review.Comment{{Severity: review.SeverityBlocker}}}, want: 1.5},
		{name: "passed with blocker", res: review.Result{Passed: true, Comments: []review.Comment{{Severity: review.SeverityBlocker}}}, want: 1.5},
		{name: "gaps", res: review.Result{Comments: []review.Comment{{Severity: review.SeverityMajor}}}, want: 2.5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, complianceMetric(tc.res).Score)
		})
	}
}

func TestAggregate(t *testing.T) {
	t.Parallel()

	assert.Zero(t, Aggregate(nil))
	assert.InDelta(t, 3.0, Aggregate([]Metric{{Score: 1}, {Score: 5}, {Score: 3}}), 1e-9)
}

func TestPassed(t *testing.T) {
	t.Parallel()

	ok := review.Result{Passed: true}
	assert.True(t, Passed(ok, ok, 3.0))
	assert.False(t, Passed(ok, ok, 2.99))
	assert.False(t, Passed(ok, review.Result{}, 4.0))
}

func TestBuildForecast(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		score      float64
		passed     bool
		phase      string
		confidence float64
	}{
		{name: "on track", score: 4.5, passed: true, phase: PhaseOnTrack, confidence: 0.9},
		{name: "on track low", score: 4.0, passed: true, phase: PhaseOnTrack, confidence: 0.9},
		{name: "watchlist", score: 3.5, passed: true, phase: PhaseWatchlist, confidence: 0.75},
		{name: "watchlist low", score: 2.0, passed: true, phase: PhaseWatchlist, confidence: 0.7},
		{name: "at risk", score: 1.0, passed: false, phase: PhaseAtRisk, confidence: 0.4},
		{name: "at risk floor", score: 0.2, passed: false, phase: PhaseAtRisk, confidence: 0.35},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := BuildForecast(tc.score, tc.passed, 0)
			assert.Equal(t, tc.phase, f.Phase)
			assert.InDelta(t, tc.confidence, f.Confidence, 1e-9)
			assert.GreaterOrEqual(t, f.Confidence, 0.0)
			assert.LessOrEqual(t, f.Confidence, 1.0)
		})
	}
}
