package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Not parallel: mutates the global logger.
func TestInitWriterTagsRecords(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	InitWriter(false, &buf)
	l := ForCandidate("r1", "cand_001")
	l.Debug().Msg("hidden")
	l.Info().Msg("shown")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["message"])
	assert.Equal(t, "r1", rec["run_id"])
	assert.Equal(t, "cand_001", rec["candidate_id"])
	assert.Equal(t, "quorum", rec["service"])

	buf.Reset()
	InitWriter(true, &buf)
	log.Debug().Msg("visible")
	assert.Contains(t, buf.String(), "visible")
}
