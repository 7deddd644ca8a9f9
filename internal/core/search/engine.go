package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temiloluwa-oss/arkiva/internal/core"
	"github.com/temiloluwa-oss/arkiva/internal/logger"
	"github.com/temiloluwa-oss/arkiva/internal/metrics"
)

// Mode selects which retrieval paths a query runs.
type Mode string

const (
	ModeKeyword  Mode = "keyword"
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeKeyword, ModeSemantic, ModeHybrid:
		return true
	}
	return false
}

const (
	defaultLimit  = 10
	maxLimit      = 100
	defaultWeight = 0.5
	// Each path over-fetches so fusion has a real union to rank, not just
	// the first page of one side.
	candidateFactor = 4
	snippetRunes    = 160
)

// Options tunes one search call. Zero values fall back to defaults.
type Options struct {
	Mode Mode
	// SemanticWeight is the hybrid mix in [0,1]. 1 ranks purely by vector
	// similarity, 0 purely by keyword rank. It is honored only when
	// WeightSet is true, so an explicit 0 is distinguishable from unset.
	SemanticWeight float64
	WeightSet      bool
	Limit          int
}

// Result is one ranked chunk.
type Result struct {
	ChunkID       string    `json:"chunk_id"`
	ItemID        string    `json:"item_id"`
	ItemName      string    `json:"item_name"`
	Ordinal       int       `json:"ordinal"`
	Snippet       string    `json:"snippet"`
	Score         float64   `json:"score"`
	KeywordScore  float64   `json:"keyword_score"`
	SemanticScore float64   `json:"semantic_score"`
	ItemCreatedAt time.Time `json:"item_created_at"`
}

// Response carries the ranked results plus what actually ran: a hybrid or
// semantic query degrades to keyword-only when the embedding provider is
// down, and Degraded tells the caller that happened.
type Response struct {
	Mode     Mode     `json:"mode"`
	Degraded bool     `json:"degraded,omitempty"`
	Results  []Result `json:"results"`
}

// QueryEmbedder is the single-text slice of the embedding generator.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Engine runs keyword, semantic and hybrid retrieval over a repository's
// chunks.
type Engine struct {
	db       core.DbClient
	embedder QueryEmbedder
	log      *zap.Logger
}

func NewEngine(db core.DbClient, embedder QueryEmbedder) *Engine {
	return &Engine{db: db, embedder: embedder, log: logger.Named("search")}
}

// candidate accumulates both paths' evidence for one chunk before fusion.
type candidate struct {
	result      Result
	rawSemantic float64
	hasSemantic bool
}

// Search executes the query and returns results ranked by the fused score.
// Ordering is fully deterministic: fused score desc, then raw semantic
// similarity desc, then chunk ordinal asc, then item creation time asc, then
// chunk id asc.
func (e *Engine) Search(ctx context.Context, repositoryID, query string, opts Options) (*Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeHybrid
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown search mode %q", opts.Mode)
	}
	weight := defaultWeight
	if opts.WeightSet {
		weight = opts.SemanticWeight
	}
	if weight < 0 || weight > 1 {
		return nil, fmt.Errorf("semantic weight %v out of range [0,1]", weight)
	}
	// A hybrid query pinned to either end of the mix is exactly the pure
	// mode. Running it as one keeps the ordering identical: no union with
	// zero-scored chunks from the other path, no tie-breaks on it either.
	if mode == ModeHybrid {
		switch weight {
		case 0:
			mode = ModeKeyword
		case 1:
			mode = ModeSemantic
		}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	start := time.Now()
	resp, err := e.run(ctx, repositoryID, query, mode, weight, limit)
	if err == nil {
		metrics.ObserveSearch(string(resp.Mode), time.Since(start))
	}
	return resp, err
}

func (e *Engine) run(ctx context.Context, repositoryID, query string, mode Mode, weight float64, limit int) (*Response, error) {
	fetch := limit * candidateFactor

	// Both paths run concurrently. A semantic failure is captured instead of
	// returned so it cannot cancel the keyword leg: keyword retrieval still
	// works without the provider, and a partial answer beats a hard failure.
	var (
		kwHits  []core.KeywordHit
		semHits []core.SemanticHit
		semErr  error
	)
	g, gctx := errgroup.WithContext(ctx)
	if mode == ModeSemantic || mode == ModeHybrid {
		g.Go(func() error {
			semHits, semErr = e.semanticHits(gctx, repositoryID, query, fetch)
			return nil
		})
	}
	if mode == ModeKeyword || mode == ModeHybrid || mode == ModeSemantic {
		// Semantic-only queries fetch keyword candidates too: they are the
		// fallback when the provider turns out to be down.
		g.Go(func() error {
			hits, err := e.db.KeywordSearch(gctx, repositoryID, query, fetch)
			if err != nil {
				return fmt.Errorf("keyword search: %w", err)
			}
			kwHits = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	degraded := false
	if (mode == ModeSemantic || mode == ModeHybrid) && semErr != nil {
		e.log.Warn("semantic path unavailable, degrading to keyword",
			zap.String("repository_id", repositoryID), zap.Error(semErr))
		mode = ModeKeyword
		degraded = true
	}

	byChunk := make(map[string]*candidate)
	if mode == ModeSemantic || mode == ModeHybrid {
		for _, h := range semHits {
			c := &candidate{
				result: Result{
					ChunkID:       h.Chunk.ID,
					ItemID:        h.Chunk.ItemID,
					ItemName:      h.ItemName,
					Ordinal:       h.Chunk.Ordinal,
					Snippet:       leadingSnippet(h.Chunk.Content),
					ItemCreatedAt: h.ItemCreatedAt,
				},
				rawSemantic: 2 - h.Distance,
				hasSemantic: true,
			}
			// Cosine distance lives in [0,2]; fold it into [0,1].
			c.result.SemanticScore = clamp01(1 - h.Distance/2)
			byChunk[h.Chunk.ID] = c
		}
	}

	if mode == ModeKeyword || mode == ModeHybrid {
		for _, h := range kwHits {
			c, ok := byChunk[h.Chunk.ID]
			if !ok {
				c = &candidate{
					result: Result{
						ChunkID:       h.Chunk.ID,
						ItemID:        h.Chunk.ItemID,
						ItemName:      h.ItemName,
						Ordinal:       h.Chunk.Ordinal,
						ItemCreatedAt: h.ItemCreatedAt,
					},
				}
				byChunk[h.Chunk.ID] = c
			}
			c.result.KeywordScore = clamp01(h.Rank)
			c.result.Snippet = matchSnippet(h.Chunk.Content, query)
		}
	}

	// Effective mix: a keyword-only run scores purely lexically, a
	// semantic-only run purely by vector, so each pure mode's order is the
	// fused order with the weight pinned.
	w := weight
	switch mode {
	case ModeKeyword:
		w = 0
	case ModeSemantic:
		w = 1
	}

	ranked := make([]*candidate, 0, len(byChunk))
	for _, c := range byChunk {
		c.result.Score = w*c.result.SemanticScore + (1-w)*c.result.KeywordScore
		ranked = append(ranked, c)
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.result.Score != b.result.Score {
			return a.result.Score > b.result.Score
		}
		if a.rawSemantic != b.rawSemantic {
			return a.rawSemantic > b.rawSemantic
		}
		if a.result.Ordinal != b.result.Ordinal {
			return a.result.Ordinal < b.result.Ordinal
		}
		if !a.result.ItemCreatedAt.Equal(b.result.ItemCreatedAt) {
			return a.result.ItemCreatedAt.Before(b.result.ItemCreatedAt)
		}
		return a.result.ChunkID < b.result.ChunkID
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	results := make([]Result, len(ranked))
	for i, c := range ranked {
		results[i] = c.result
	}
	return &Response{Mode: mode, Degraded: degraded, Results: results}, nil
}

func (e *Engine) semanticHits(ctx context.Context, repositoryID, query string, limit int) ([]core.SemanticHit, error) {
	vec, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := e.db.SemanticSearch(ctx, repositoryID, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return hits, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// matchSnippet centers a window on the first case-insensitive occurrence of
// the query, falling back to the leading window when nothing matches (the
// hit may come from the item name or from stemmed full-text terms).
func matchSnippet(content, query string) string {
	runes := []rune(content)
	matchStart := foldIndex(runes, []rune(query))
	if matchStart < 0 {
		return leadingSnippet(content)
	}

	start := matchStart - snippetRunes/4
	if start < 0 {
		start = 0
	}
	end := start + snippetRunes
	if end > len(runes) {
		end = len(runes)
	}

	out := string(runes[start:end])
	if start > 0 {
		out = "…" + out
	}
	if end < len(runes) {
		out += "…"
	}
	return out
}

// foldIndex finds the first case-insensitive occurrence of needle in
// haystack. Comparing rune by rune keeps the returned offset valid for the
// original text even when lowercasing changes a rune's byte length.
func foldIndex(haystack, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j, r := range needle {
			if unicode.ToLower(haystack[i+j]) != unicode.ToLower(r) {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func leadingSnippet(content string) string {
	runes := []rune(content)
	if len(runes) <= snippetRunes {
		return content
	}
	return string(runes[:snippetRunes]) + "…"
}
