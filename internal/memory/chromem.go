package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/felixgeelhaar/mnemo/internal/embedding"
	"github.com/felixgeelhaar/mnemo/internal/observe"
	"github.com/felixgeelhaar/mnemo/internal/summarize"
)

// Chromem stores each session as a collection in a persistent chromem-go
// database. Document ids are insertion sequence numbers.
//
// chromem ranks by cosine similarity. For unit-length embeddings (every
// bundled embedder normalizes) that is the same order as L2 distance.
// Equal distances resolve by insertion order.
type Chromem struct {
	db         *chromem.DB
	embedder   embedding.Embedder
	summarizer summarize.Summarizer
	obs        *observe.Observer
	metrics    *observe.Metrics

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewChromem(dir string, e embedding.Embedder, s summarize.Summarizer, obs *observe.Observer, metrics *observe.Metrics) (*Chromem, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open chromem db: %w", err)
	}
	if s == nil {
		s = summarize.Passthrough
	}
	if obs == nil {
		obs = observe.Discard()
	}
	return &Chromem{
		db:         db,
		embedder:   e,
		summarizer: s,
		obs:        obs,
		metrics:    metrics,
		locks:      make(map[string]*sync.Mutex),
	}, nil
}

func collectionName(sessionID string) string {
	return "session_" + sessionID
}

func (c *Chromem) lock(sessionID string) func() {
	c.mu.Lock()
	l, ok := c.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[sessionID] = l
	}
	c.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (c *Chromem) embedFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return c.embedder.Embed(ctx, text)
	}
}

func (c *Chromem) Load(ctx context.Context, sessionID string) error {
	return nil
}

func (c *Chromem) Insert(ctx context.Context, sessionID, text string) (string, error) {
	ctx, span := c.obs.StartSpan(ctx, "memory.insert")
	summary, err := c.insert(ctx, sessionID, text)
	observe.EndSpan(span, err)
	return summary, err
}

func (c *Chromem) insert(ctx context.Context, sessionID, text string) (string, error) {
	summary := c.summarizer.Summarize(ctx, text, sessionID)

	vec, err := c.embedder.Embed(ctx, summary)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEmbed, err)
	}
	if len(vec) != c.embedder.Dims() {
		return "", fmt.Errorf("embedder returned %d dimensions, want %d: %w", len(vec), c.embedder.Dims(), ErrDimension)
	}

	defer c.lock(sessionID)()

	col, err := c.db.GetOrCreateCollection(collectionName(sessionID), nil, c.embedFunc())
	if err != nil {
		return "", fmt.Errorf("failed to open collection for %s: %w", sessionID, err)
	}

	seq := col.Count()
	doc := chromem.Document{
		ID:        strconv.Itoa(seq),
		Metadata:  map[string]string{"session": sessionID},
		Embedding: vec,
		Content:   summary,
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return "", fmt.Errorf("failed to persist summary for %s: %w", sessionID, err)
	}

	c.metrics.IndexInsert()
	return summary, nil
}

func (c *Chromem) Search(ctx context.Context, sessionID, query string, topK int) ([]string, error) {
	ctx, span := c.obs.StartSpan(ctx, "memory.search")
	results, err := c.search(ctx, sessionID, query, topK)
	observe.EndSpan(span, err)
	return results, err
}

func (c *Chromem) search(ctx context.Context, sessionID, query string, topK int) ([]string, error) {
	if topK <= 0 {
		return []string{}, nil
	}

	defer c.lock(sessionID)()

	col := c.db.GetCollection(collectionName(sessionID), c.embedFunc())
	if col == nil || col.Count() == 0 {
		return []string{}, nil
	}

	q, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbed, err)
	}

	// Ties at the topK boundary must resolve by insertion order, which
	// chromem's own cut does not guarantee, so rank the whole collection.
	results, err := col.QueryEmbedding(ctx, q, col.Count(), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query for %s: %w", sessionID, err)
	}

	hits := make([]hit, 0, len(results))
	for _, r := range results {
		seq, err := strconv.Atoi(r.ID)
		if err != nil {
			continue
		}
		hits = append(hits, hit{text: r.Content, dist: 1 - r.Similarity, seq: seq})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return hits[i].seq < hits[j].seq
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.text
	}
	return out, nil
}

func (c *Chromem) Count(ctx context.Context, sessionID string) (int, error) {
	col := c.db.GetCollection(collectionName(sessionID), c.embedFunc())
	if col == nil {
		return 0, nil
	}
	return col.Count(), nil
}

func (c *Chromem) Summaries(ctx context.Context, sessionID string) ([]string, error) {
	col := c.db.GetCollection(collectionName(sessionID), c.embedFunc())
	if col == nil {
		return []string{}, nil
	}

	n := col.Count()
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		doc, err := col.GetByID(ctx, strconv.Itoa(i))
		if err != nil {
			return nil, fmt.Errorf("chromem get %d for %s: %w", i, sessionID, err)
		}
		out = append(out, doc.Content)
	}
	return out, nil
}

func (c *Chromem) Clear(ctx context.Context, sessionID string) error {
	defer c.lock(sessionID)()

	if c.db.GetCollection(collectionName(sessionID), nil) == nil {
		return nil
	}
	if err := c.db.DeleteCollection(collectionName(sessionID)); err != nil {
		return fmt.Errorf("failed to delete collection for %s: %w", sessionID, err)
	}
	return nil
}
