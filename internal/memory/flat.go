package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/felixgeelhaar/mnemo/internal/embedding"
	"github.com/felixgeelhaar/mnemo/internal/fsutil"
	"github.com/felixgeelhaar/mnemo/internal/observe"
	"github.com/felixgeelhaar/mnemo/internal/summarize"
)

// Flat is an exact (brute force) L2 index per session, persisted as a
// binary vector file plus a parallel JSON list of summaries:
//
//	<dir>/<session>.index
//	<dir>/<session>_texts.json
//
// Loaded sessions stay cached for the lifetime of the Flat.
type Flat struct {
	dir        string
	embedder   embedding.Embedder
	summarizer summarize.Summarizer
	obs        *observe.Observer
	metrics    *observe.Metrics

	mu       sync.Mutex
	sessions map[string]*flatSession
}

type flatSession struct {
	mu      sync.Mutex
	loaded  bool
	dim     int
	vectors [][]float32
	texts   []string
}

func NewFlat(dir string, e embedding.Embedder, s summarize.Summarizer, obs *observe.Observer, metrics *observe.Metrics) (*Flat, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create vector dir: %w", err)
	}
	if s == nil {
		s = summarize.Passthrough
	}
	if obs == nil {
		obs = observe.Discard()
	}
	return &Flat{
		dir:        dir,
		embedder:   e,
		summarizer: s,
		obs:        obs,
		metrics:    metrics,
		sessions:   make(map[string]*flatSession),
	}, nil
}

func (f *Flat) IndexPath(sessionID string) string {
	return filepath.Join(f.dir, sessionID+".index")
}

func (f *Flat) TextsPath(sessionID string) string {
	return filepath.Join(f.dir, sessionID+"_texts.json")
}

// session returns the locked, loaded state for sessionID. Callers must unlock.
func (f *Flat) session(sessionID string) (*flatSession, error) {
	f.mu.Lock()
	s, ok := f.sessions[sessionID]
	if !ok {
		s = &flatSession{}
		f.sessions[sessionID] = s
	}
	f.mu.Unlock()

	s.mu.Lock()
	if s.loaded {
		return s, nil
	}
	if err := f.loadInto(sessionID, s); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.loaded = true
	return s, nil
}

func (f *Flat) loadInto(sessionID string, s *flatSession) error {
	dim, vectors, err := f.readIndex(sessionID)
	if err != nil {
		return err
	}
	texts, err := f.readTexts(sessionID)
	if err != nil {
		return err
	}

	if len(vectors) > 0 && dim != f.embedder.Dims() {
		return fmt.Errorf("session %s index has %d dimensions, embedder has %d: %w",
			sessionID, dim, f.embedder.Dims(), ErrDimension)
	}

	if len(vectors) != len(texts) {
		n := min(len(vectors), len(texts))
		f.obs.Log().Warn().
			Str("session", sessionID).
			Int("vectors", len(vectors)).
			Int("texts", len(texts)).
			Int("kept", n).
			Msg("Vector index and texts disagree, truncating")
		f.metrics.IndexRepair()
		vectors, texts = vectors[:n], texts[:n]
	}

	s.dim = f.embedder.Dims()
	s.vectors = vectors
	s.texts = texts
	return nil
}

func (f *Flat) readIndex(sessionID string) (int, [][]float32, error) {
	data, err := os.ReadFile(f.IndexPath(sessionID))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read index for %s: %w", sessionID, err)
	}
	dim, vectors, err := decodeIndex(data)
	if err != nil {
		return 0, nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	return dim, vectors, nil
}

func (f *Flat) readTexts(sessionID string) ([]string, error) {
	data, err := os.ReadFile(f.TextsPath(sessionID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read texts for %s: %w", sessionID, err)
	}
	var texts []string
	if err := json.Unmarshal(data, &texts); err != nil {
		return nil, fmt.Errorf("failed to decode texts for %s: %w", sessionID, err)
	}
	return texts, nil
}

// persist writes the index before the texts. A crash in between leaves one
// extra vector, which the next load truncates away.
func (f *Flat) persist(sessionID string, s *flatSession) error {
	idx, err := encodeIndex(s.dim, s.vectors)
	if err != nil {
		return err
	}
	texts, err := json.MarshalIndent(s.texts, "", "  ")
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(f.IndexPath(sessionID), idx); err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(f.TextsPath(sessionID), texts)
}

func (f *Flat) Load(ctx context.Context, sessionID string) error {
	s, err := f.session(sessionID)
	if err != nil {
		return err
	}
	s.mu.Unlock()
	return nil
}

func (f *Flat) Insert(ctx context.Context, sessionID, text string) (string, error) {
	ctx, span := f.obs.StartSpan(ctx, "memory.insert")
	summary, err := f.insert(ctx, sessionID, text)
	observe.EndSpan(span, err)
	return summary, err
}

func (f *Flat) insert(ctx context.Context, sessionID, text string) (string, error) {
	summary := f.summarizer.Summarize(ctx, text, sessionID)

	vec, err := f.embedder.Embed(ctx, summary)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEmbed, err)
	}
	if len(vec) != f.embedder.Dims() {
		return "", fmt.Errorf("embedder returned %d dimensions, want %d: %w", len(vec), f.embedder.Dims(), ErrDimension)
	}

	s, err := f.session(sessionID)
	if err != nil {
		return "", err
	}
	defer s.mu.Unlock()

	s.vectors = append(s.vectors, vec)
	s.texts = append(s.texts, summary)

	if err := f.persist(sessionID, s); err != nil {
		n := len(s.vectors) - 1
		s.vectors, s.texts = s.vectors[:n], s.texts[:n]
		return "", fmt.Errorf("failed to persist index for %s: %w", sessionID, err)
	}

	f.metrics.IndexInsert()
	f.obs.Log().Debug().
		Str("session", sessionID).
		Int("size", len(s.texts)).
		Msg("Summary indexed")
	return summary, nil
}

func (f *Flat) Search(ctx context.Context, sessionID, query string, topK int) ([]string, error) {
	ctx, span := f.obs.StartSpan(ctx, "memory.search")
	results, err := f.search(ctx, sessionID, query, topK)
	observe.EndSpan(span, err)
	return results, err
}

func (f *Flat) search(ctx context.Context, sessionID, query string, topK int) ([]string, error) {
	if topK <= 0 {
		return []string{}, nil
	}

	s, err := f.session(sessionID)
	if err != nil {
		return nil, err
	}
	if len(s.vectors) == 0 {
		s.mu.Unlock()
		return []string{}, nil
	}
	// Snapshot so the embedding call runs without holding the session.
	vectors, texts := s.vectors, s.texts
	s.mu.Unlock()

	q, err := f.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbed, err)
	}
	if len(q) != f.embedder.Dims() {
		return nil, fmt.Errorf("query has %d dimensions, want %d: %w", len(q), f.embedder.Dims(), ErrDimension)
	}

	hits := make([]hit, len(vectors))
	for i, v := range vectors {
		hits[i] = hit{text: texts[i], dist: squaredL2(q, v), seq: i}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })

	n := min(topK, len(hits))
	out := make([]string, n)
	for i := range out {
		out[i] = hits[i].text
	}
	return out, nil
}

func (f *Flat) Count(ctx context.Context, sessionID string) (int, error) {
	s, err := f.session(sessionID)
	if err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	return len(s.texts), nil
}

func (f *Flat) Summaries(ctx context.Context, sessionID string) ([]string, error) {
	s, err := f.session(sessionID)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	out := make([]string, len(s.texts))
	copy(out, s.texts)
	return out, nil
}

// Clear deletes both files. A corrupt index can still be cleared.
func (f *Flat) Clear(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	s, ok := f.sessions[sessionID]
	if !ok {
		s = &flatSession{}
		f.sessions[sessionID] = s
	}
	f.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fsutil.RemoveIfExists(f.IndexPath(sessionID)); err != nil {
		return fmt.Errorf("failed to remove index for %s: %w", sessionID, err)
	}
	if err := fsutil.RemoveIfExists(f.TextsPath(sessionID)); err != nil {
		return fmt.Errorf("failed to remove texts for %s: %w", sessionID, err)
	}

	s.loaded = true
	s.dim = f.embedder.Dims()
	s.vectors = nil
	s.texts = nil
	return nil
}
