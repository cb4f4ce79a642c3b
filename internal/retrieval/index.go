package retrieval

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ErrEmptyIndex is returned when an index is built or searched without chunks.
var ErrEmptyIndex = errors.New("empty index")

// OversampleFactor bounds how many raw matches are considered before scope filtering.
// Scope-restricted results may come back short when most of the top matches are out of scope.
const OversampleFactor = 3

const (
	chunksFile     = "chunks.jsonl"
	vectorizerFile = "vectorizer.json"
	matrixFile     = "matrix.json"
)

// Hit is a scored search result.
type Hit struct {
	Score float64 `json:"score"`
	Chunk Chunk   `json:"chunk"`
}

// Index is a persisted TF-IDF index over chunks stored in a directory.
type Index struct {
	dir string

	mu         sync.RWMutex
	vectorizer *Vectorizer
	rows       []SparseVector
	chunks     []Chunk
}

// New returns an index rooted at dir. Nothing is read until the first search.
func New(dir string) *Index {
	return &Index{dir: dir}
}

// Dir returns the index directory.
func (x *Index) Dir() string {
	return x.dir
}

// Reset discards all chunks and persisted artifacts.
func (x *Index) Reset() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.clear()
	for _, name := range []string{chunksFile, vectorizerFile, matrixFile} {
		if err := os.Remove(filepath.Join(x.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("reset index: %w", err)
		}
	}
	return nil
}

// AddChunks appends chunks to the chunk log. They become searchable after Build.
func (x *Index) AddChunks(chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for i := range chunks {
		if err := chunks[i].Validate(); err != nil {
			return fmt.Errorf("chunk %q: %w", chunks[i].ID, err)
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if err := os.MkdirAll(x.dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(x.dir, chunksFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open chunk log: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, c := range chunks {
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("write chunk: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush chunk log: %w", err)
	}
	return nil
}

// Build fits the vectorizer over every added chunk and persists the result.
func (x *Index) Build() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	chunks, err := readChunks(filepath.Join(x.dir, chunksFile))
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return ErrEmptyIndex
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vec, rows := Fit(texts, MaxFeatures)
	if len(vec.Vocabulary) == 0 {
		return fmt.Errorf("%w: chunks hold only stop words", ErrEmptyIndex)
	}

	if err := writeJSON(filepath.Join(x.dir, vectorizerFile), vec); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(x.dir, matrixFile), rows); err != nil {
		return err
	}
	x.vectorizer, x.rows, x.chunks = vec, rows, chunks
	return nil
}

// Load reads the persisted index into memory.
func (x *Index) Load() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.load()
}

func (x *Index) load() error {
	chunks, err := readChunks(filepath.Join(x.dir, chunksFile))
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return ErrEmptyIndex
	}

	var vec Vectorizer
	if err := readJSON(filepath.Join(x.dir, vectorizerFile), &vec); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrEmptyIndex
		}
		return err
	}
	var rows []SparseVector
	if err := readJSON(filepath.Join(x.dir, matrixFile), &rows); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrEmptyIndex
		}
		return err
	}
	// Chunks added after the last build are not part of the matrix.
	if len(rows) > len(chunks) {
		return fmt.Errorf("index matrix has %d rows for %d chunks", len(rows), len(chunks))
	}
	x.vectorizer, x.rows, x.chunks = &vec, rows, chunks[:len(rows)]
	return nil
}

// Search ranks chunks by cosine similarity to query and returns at most topK hits
// whose scopes intersect scopes. With no scopes only public chunks match.
func (x *Index) Search(query string, topK int, scopes ...string) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}
	if err := x.ensureLoaded(); err != nil {
		return nil, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	q := x.vectorizer.Transform(query)
	order := make([]int, len(x.rows))
	sims := make([]float64, len(x.rows))
	for i, row := range x.rows {
		order[i] = i
		sims[i] = q.Dot(row)
	}
	sort.SliceStable(order, func(a, b int) bool {
		return sims[order[a]] > sims[order[b]]
	})

	limit := max(topK*OversampleFactor, topK)
	if limit > len(order) {
		limit = len(order)
	}
	hits := make([]Hit, 0, topK)
	for _, i := range order[:limit] {
		if !x.chunks[i].InScope(scopes) {
			continue
		}
		hits = append(hits, Hit{Score: sims[i], Chunk: x.chunks[i]})
		if len(hits) == topK {
			break
		}
	}
	return hits, nil
}

func (x *Index) ensureLoaded() error {
	x.mu.RLock()
	loaded := x.vectorizer != nil
	x.mu.RUnlock()
	if loaded {
		return nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.vectorizer != nil {
		return nil
	}
	return x.load()
}

func (x *Index) clear() {
	x.vectorizer = nil
	x.rows = nil
	x.chunks = nil
}

func readChunks(path string) ([]Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open chunk log: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []Chunk
	dec := json.NewDecoder(f)
	for dec.More() {
		var c Chunk
		if err := dec.Decode(&c); err != nil {
			return nil, fmt.Errorf("decode chunk %d: %w", len(out)+1, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
