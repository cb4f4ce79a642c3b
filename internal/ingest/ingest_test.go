package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/metalagman/quorum/internal/retrieval"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "nbsp", in: "a b", want: "a b"},
		{name: "tabs and spaces", in: "a \t  b", want: "a b"},
		{name: "blank lines", in: "a\n\n\n\nb", want: "a\n\nb"},
		{name: "trim", in: "  a  ", want: "a"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestChunkTextPacksParagraphs(t *testing.T) {
	t.Parallel()

	chunks := ChunkText("first para\n\nsecond para\n\nthird para", 25, 5)
	assert.Equal(t, []string{"first para\n\nsecond para", "third para"}, chunks)
}

func TestChunkTextWindowsLongParagraphs(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("abcdefghij", 300)
	chunks := ChunkText(long, DefaultChunkSize, DefaultOverlap)
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), DefaultChunkSize)
	}
	assert.Equal(t, long[1000:1200], chunks[1][:200])
}

func TestChunkTextEmpty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, ChunkText(" \n\n ", 100, 10))
}

func TestSegmentersRejectUnknownExtension(t *testing.T) {
	t.Parallel()

	_, err := DefaultSegmenters().Extract("deck.pptx")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestKnowledgeSourcesMapFoldersToScopes(t *testing.T) {
	t.Parallel()

	assets := t.TempDir()
	writeFile(t, filepath.Join(assets, InternalMaterialsDir, "strategy.md"), "strategy")
	writeFile(t, filepath.Join(assets, AgentKBDir, "cdt_econ", "econ.txt"), "econ")

	sources, err := KnowledgeSources(assets)
	require.NoError(t, err)
	require.Len(t, sources, 1+len(kbScopes))

	assert.Equal(t, []string{"ifad"}, sources[0].Scopes)
	assert.Len(t, sources[0].Paths, 1)

	for _, src := range sources {
		if src.Label == "agent_kb:cdt_econ" {
			assert.Equal(t, []string{"ifad", "technical"}, src.Scopes)
			assert.Len(t, src.Paths, 1)
		}
	}
}

func TestIngestorRunSkipsBadFilesAndBuilds(t *testing.T) {
	t.Parallel()

	assets := t.TempDir()
	writeFile(t, filepath.Join(assets, AgentKBDir, "government", "plan.md"), "National agriculture investment plan for irrigation.")
	writeFile(t, filepath.Join(assets, AgentKBDir, "government", "slides.pptx"), "binary")
	upload := filepath.Join(t.TempDir(), "notes.txt")
	writeFile(t, upload, "Project notes on irrigation cooperatives.")

	idx := retrieval.New(filepath.Join(t.TempDir(), "index"))
	in := New(idx, zerolog.Nop())
	var messages []string
	in.Notify = func(_ context.Context, message string, _ map[string]any) {
		messages = append(messages, message)
	}

	stats, err := in.Run(context.Background(), assets, "", []string{upload, "/does/not/exist.md"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.InternalChunks)
	assert.Equal(t, 1, stats.UserChunks)
	assert.Contains(t, messages, "Skipped KB file (unsupported or failed parse)")
	assert.Contains(t, messages, "Upload path missing (skipped)")

	hits, err := idx.Search("irrigation", 5, ScopeProject)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, retrieval.SourceUser, hits[0].Chunk.Source)
	assert.Equal(t, "notes.txt", hits[0].Chunk.Filename)

	hits, err = idx.Search("irrigation", 5, "government")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "agent_kb:government:plan.md", hits[0].Chunk.DocID)
}

func TestIngestorRunEmptyIndex(t *testing.T) {
	t.Parallel()

	idx := retrieval.New(filepath.Join(t.TempDir(), "index"))
	_, err := New(idx, zerolog.Nop()).Run(context.Background(), t.TempDir(), "", nil)
	assert.ErrorIs(t, err, retrieval.ErrEmptyIndex)
}
