package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/metalagman/quorum/internal/pipeline"
	"github.com/metalagman/quorum/internal/run"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useConfig points the package-level config flag at a scripted-backend config.
func useConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	path := filepath.Join(dir, "config.json")
	body := `{
  "backend": {"type": "scripted", "responses": ["too short"]},
  "run": {"num_simulations": 2, "max_rounds": 1, "top_candidates": 1},
  "paths": {"data_dir": "` + filepath.ToSlash(dataDir) + `"}
}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	prev := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = prev })
	return dataDir
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunStatusShowEvents(t *testing.T) {
	dataDir := useConfig(t)

	out, err := execute(t, runCmd(), "--country", "Kenya", "--json")
	require.NoError(t, err)
	var r run.Run
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, run.StatusCompleted, r.Status)
	assert.Len(t, r.Candidates, 2)
	require.Len(t, r.Selected, 1)
	assert.DirExists(t, filepath.Join(dataDir, "runs", r.ID))

	out, err = execute(t, statusCmd())
	require.NoError(t, err)
	assert.Contains(t, out, r.ID)

	out, err = execute(t, statusCmd(), r.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, r.Selected[0])

	out, err = execute(t, showCmd(), r.ID, "--raw")
	require.NoError(t, err)
	assert.Contains(t, out, "too short")

	out, err = execute(t, eventsCmd(), r.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "status completed")

	_, err = execute(t, eventsCmd(), "missing")
	assert.ErrorIs(t, err, run.ErrNotFound)

	_, err = execute(t, pruneCmd(), "--keep-last", "5", "--dry-run")
	require.NoError(t, err)
}

func TestRunRejectsInvalidOutputType(t *testing.T) {
	useConfig(t)

	_, err := execute(t, runCmd(), "--output-type", "memo")
	assert.ErrorIs(t, err, run.ErrInvalidInputs)
}

func TestDocumentPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	draft := filepath.Join(pipeline.CandidateDir(dir, "cand_002"), "draft_round_1.md")
	require.NoError(t, os.MkdirAll(filepath.Dir(draft), 0o755))
	require.NoError(t, os.WriteFile(draft, []byte("# Draft"), 0o644))
	output := filepath.Join(dir, "outputs", "cand_001", "pcn.md")
	require.NoError(t, os.MkdirAll(filepath.Dir(output), 0o755))
	require.NoError(t, os.WriteFile(output, []byte("# Output"), 0o644))

	r := run.Run{
		ID:     "r1",
		Status: run.StatusCompleted,
		Dir:    dir,
		Inputs: run.Inputs{OutputType: "pcn"},
		Candidates: []pipeline.Candidate{
			{ID: "cand_001"},
			{ID: "cand_002", DraftPath: draft},
		},
		Selected: []string{"cand_001"},
	}

	got, err := documentPath(r, "")
	require.NoError(t, err)
	assert.Equal(t, output, got)

	got, err = documentPath(r, "cand_002")
	require.NoError(t, err)
	assert.Equal(t, draft, got)

	_, err = documentPath(r, "cand_009")
	assert.ErrorContains(t, err, "not found")

	r.Selected = nil
	_, err = documentPath(r, "")
	assert.ErrorContains(t, err, "no selected candidate")
}
