package llm

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/temiloluwa-oss/arkiva/internal/core"
	"github.com/temiloluwa-oss/arkiva/internal/logger"
	"github.com/temiloluwa-oss/arkiva/internal/metrics"
)

// Generator wraps an embedding provider with rate limiting, batching, and
// per-chunk failure isolation. A failed batch degrades to per-text calls so
// a single bad input never swallows the outcome of its batch mates: every
// input gets an individually observable vector or error.
type Generator struct {
	provider  core.EmbeddingProvider
	limiter   *rate.Limiter
	batchSize int
}

func NewGenerator(provider core.EmbeddingProvider, batchSize int, rps float64, burst int) *Generator {
	if batchSize <= 0 {
		batchSize = 16
	}
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 1
	}
	return &Generator{
		provider:  provider,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		batchSize: batchSize,
	}
}

func (g *Generator) Model() string  { return g.provider.Model() }
func (g *Generator) Dimension() int { return g.provider.Dimension() }

// EmbedQuery embeds a single search query.
func (g *Generator) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	outcomes := g.EmbedChunks(ctx, []string{text})
	if outcomes[0].Err != nil {
		return nil, outcomes[0].Err
	}
	return outcomes[0].Vector, nil
}

// EmbedChunks embeds all texts and returns one outcome per input, in input
// order. The slice always has len(texts) entries.
func (g *Generator) EmbedChunks(ctx context.Context, texts []string) []core.EmbedOutcome {
	outcomes := make([]core.EmbedOutcome, len(texts))

	for start := 0; start < len(texts); start += g.batchSize {
		end := start + g.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.embedBatch(ctx, texts[start:end], outcomes[start:end])
	}
	return outcomes
}

func (g *Generator) embedBatch(ctx context.Context, texts []string, outcomes []core.EmbedOutcome) {
	if err := g.limiter.Wait(ctx); err != nil {
		for i := range outcomes {
			outcomes[i].Err = err
		}
		return
	}

	start := time.Now()
	vecs, err := g.provider.EmbedTexts(ctx, texts)
	metrics.ObserveEmbedBatch(time.Since(start))

	if err == nil && len(vecs) == len(texts) {
		for i, v := range vecs {
			outcomes[i] = g.validated(v)
		}
		return
	}

	if err != nil {
		logger.Named("embed").Warn("batch call failed, degrading to per-text calls")
	}

	// Per-text fallback: each input gets its own outcome.
	for i, t := range texts {
		if werr := g.limiter.Wait(ctx); werr != nil {
			outcomes[i].Err = werr
			continue
		}
		single, serr := g.provider.EmbedTexts(ctx, []string{t})
		if serr != nil {
			outcomes[i].Err = serr
			continue
		}
		if len(single) != 1 {
			outcomes[i].Err = errors.New("provider returned no vector")
			continue
		}
		outcomes[i] = g.validated(single[0])
	}
}

// validated rejects vectors whose size does not match the configured model,
// which would mix incompatible embedding spaces in one repository.
func (g *Generator) validated(vec []float32) core.EmbedOutcome {
	if want := g.provider.Dimension(); want > 0 && len(vec) != want {
		return core.EmbedOutcome{Err: &core.DimensionError{Want: want, Got: len(vec)}}
	}
	return core.EmbedOutcome{Vector: vec}
}
