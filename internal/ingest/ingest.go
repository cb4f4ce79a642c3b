package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/metalagman/quorum/internal/retrieval"
	"github.com/rs/zerolog"
)

// Asset directory layout.
const (
	InternalMaterialsDir = "internal_materials"
	AgentKBDir           = "agent_kb"
)

// ScopeProject tags chunks from user uploads.
const ScopeProject = "project"

// kbScopes maps agent knowledge-base folders to the scopes of their chunks.
var kbScopes = []struct {
	folder string
	scopes []string
}{
	{"public", []string{"public", "historical_cosop"}},
	{"government", []string{"government"}},
	{"gov_mof", []string{"government"}},
	{"gov_moa", []string{"government"}},
	{"cd", []string{"ifad"}},
	{"cdt_econ", []string{"ifad", "technical"}},
	{"cdt_tech", []string{"technical"}},
	{"ren", []string{"compliance"}},
	{"ode", []string{"compliance"}},
}

// Source is a group of files ingested with the same origin and scopes.
type Source struct {
	Label     string
	Paths     []string
	Origin    string
	Scopes    []string
	DocPrefix string
}

// KnowledgeSources lists the internal materials and agent knowledge-base folders
// under assetsDir. Missing directories yield empty sources.
func KnowledgeSources(assetsDir string) ([]Source, error) {
	internal, err := listFiles(filepath.Join(assetsDir, InternalMaterialsDir))
	if err != nil {
		return nil, err
	}
	sources := []Source{{
		Label:     InternalMaterialsDir,
		Paths:     internal,
		Origin:    retrieval.SourceInternal,
		Scopes:    []string{"ifad"},
		DocPrefix: "internal",
	}}
	for _, kb := range kbScopes {
		paths, err := listFiles(filepath.Join(assetsDir, AgentKBDir, kb.folder))
		if err != nil {
			return nil, err
		}
		sources = append(sources, Source{
			Label:     "agent_kb:" + kb.folder,
			Paths:     paths,
			Origin:    retrieval.SourceInternal,
			Scopes:    kb.scopes,
			DocPrefix: "agent_kb:" + kb.folder,
		})
	}
	return sources, nil
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// Notifier receives ingestion progress messages.
type Notifier func(ctx context.Context, message string, extra map[string]any)

// Stats counts the chunks added per origin.
type Stats struct {
	InternalChunks int `json:"internal_chunks"`
	UserChunks     int `json:"user_chunks"`
}

// Ingestor chunks files into a retrieval index.
type Ingestor struct {
	Index      *retrieval.Index
	Segmenters Segmenters
	Notify     Notifier
	Logger     zerolog.Logger
}

// New creates an ingestor with the default segmenters.
func New(index *retrieval.Index, logger zerolog.Logger) *Ingestor {
	return &Ingestor{Index: index, Segmenters: DefaultSegmenters(), Logger: logger}
}

// ChunkFile extracts and chunks one file. An empty docID gets a random one.
func (in *Ingestor) ChunkFile(path, origin, docID string, scopes []string) ([]retrieval.Chunk, error) {
	segments, err := in.Segmenters.Extract(path)
	if err != nil {
		return nil, err
	}
	if docID == "" {
		docID = uuid.NewString()
	}
	var out []retrieval.Chunk
	for _, seg := range segments {
		for _, text := range ChunkText(seg.Text, DefaultChunkSize, DefaultOverlap) {
			out = append(out, retrieval.Chunk{
				ID:       uuid.NewString(),
				DocID:    docID,
				Source:   origin,
				Filename: filepath.Base(path),
				Page:     seg.Page,
				Text:     text,
				Scopes:   append([]string(nil), scopes...),
			})
		}
	}
	return out, nil
}

// AddSource ingests every file of src. Files that fail to parse are reported and skipped.
func (in *Ingestor) AddSource(ctx context.Context, src Source) (int, error) {
	in.notify(ctx, "Found KB source", map[string]any{"label": src.Label, "count": len(src.Paths)})
	total := 0
	for _, p := range src.Paths {
		docID := src.DocPrefix + ":" + filepath.Base(p)
		n, err := in.addFile(ctx, p, src.Origin, docID, src.Scopes)
		if err != nil {
			if isIndexError(err) {
				return total, err
			}
			in.notify(ctx, "Skipped KB file (unsupported or failed parse)", map[string]any{"file": filepath.Base(p), "error": err.Error()})
			continue
		}
		total += n
		in.notify(ctx, "Chunked KB file", map[string]any{"file": filepath.Base(p), "chunks": n})
	}
	return total, nil
}

// AddTemplate ingests the document template under the ifad scope.
func (in *Ingestor) AddTemplate(ctx context.Context, path string) (int, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, nil
	}
	n, err := in.addFile(ctx, path, retrieval.SourceInternal, "internal:"+filepath.Base(path), []string{"ifad"})
	if err != nil {
		return 0, err
	}
	in.notify(ctx, "Added template to KB", map[string]any{"template": filepath.Base(path)})
	return n, nil
}

// AddUploads ingests user-provided files under the project scope.
func (in *Ingestor) AddUploads(ctx context.Context, paths []string) (int, error) {
	in.notify(ctx, "Found user uploads", map[string]any{"count": len(paths)})
	total := 0
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			in.notify(ctx, "Upload path missing (skipped)", map[string]any{"path": p})
			continue
		}
		n, err := in.addFile(ctx, p, retrieval.SourceUser, "", []string{ScopeProject})
		if err != nil {
			if isIndexError(err) {
				return total, err
			}
			in.notify(ctx, "Skipped user file (unsupported or failed parse)", map[string]any{"file": filepath.Base(p), "error": err.Error()})
			continue
		}
		total += n
		in.notify(ctx, "Chunked user file", map[string]any{"file": filepath.Base(p), "chunks": n})
	}
	return total, nil
}

// Run resets the index, ingests the knowledge base under assetsDir, the template
// and the uploads, then builds the index.
func (in *Ingestor) Run(ctx context.Context, assetsDir, templatePath string, uploads []string) (Stats, error) {
	var stats Stats
	if err := in.Index.Reset(); err != nil {
		return stats, err
	}
	in.notify(ctx, "Vector store reset", map[string]any{"vector_store_dir": in.Index.Dir()})

	sources, err := KnowledgeSources(assetsDir)
	if err != nil {
		return stats, err
	}
	for _, src := range sources {
		n, err := in.AddSource(ctx, src)
		if err != nil {
			return stats, err
		}
		stats.InternalChunks += n
	}
	if templatePath != "" {
		n, err := in.AddTemplate(ctx, templatePath)
		if err != nil {
			return stats, err
		}
		stats.InternalChunks += n
	}
	n, err := in.AddUploads(ctx, uploads)
	if err != nil {
		return stats, err
	}
	stats.UserChunks = n

	if err := in.Index.Build(); err != nil {
		return stats, fmt.Errorf("build index: %w", err)
	}
	in.notify(ctx, "Vector store build complete", map[string]any{
		"vector_store_dir": in.Index.Dir(),
		"internal_chunks":  stats.InternalChunks,
		"user_chunks":      stats.UserChunks,
	})
	return stats, nil
}

type indexError struct{ err error }

func (e indexError) Error() string { return e.err.Error() }
func (e indexError) Unwrap() error { return e.err }

func isIndexError(err error) bool {
	var ie indexError
	return errors.As(err, &ie)
}

func (in *Ingestor) addFile(ctx context.Context, path, origin, docID string, scopes []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, indexError{err}
	}
	chunks, err := in.ChunkFile(path, origin, docID, scopes)
	if err != nil {
		return 0, err
	}
	if err := in.Index.AddChunks(chunks); err != nil {
		return 0, indexError{err}
	}
	return len(chunks), nil
}

func (in *Ingestor) notify(ctx context.Context, message string, extra map[string]any) {
	in.Logger.Debug().Fields(extra).Msg(message)
	if in.Notify != nil {
		in.Notify(ctx, message, extra)
	}
}
