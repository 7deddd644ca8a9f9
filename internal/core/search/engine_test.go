package search

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temiloluwa-oss/arkiva/internal/core"
	"github.com/temiloluwa-oss/arkiva/internal/models"
)

// fakeSearchDB overrides only the two retrieval calls; everything else on the
// embedded interface is unused by the engine.
type fakeSearchDB struct {
	core.DbClient
	kw     []core.KeywordHit
	kwErr  error
	sem    []core.SemanticHit
	semErr error

	kwLimit  int
	semLimit int
}

func (f *fakeSearchDB) KeywordSearch(_ context.Context, _, _ string, limit int) ([]core.KeywordHit, error) {
	f.kwLimit = limit
	return f.kw, f.kwErr
}

func (f *fakeSearchDB) SemanticSearch(_ context.Context, _ string, _ []float32, limit int) ([]core.SemanticHit, error) {
	f.semLimit = limit
	return f.sem, f.semErr
}

type fakeQueryEmbedder struct {
	vec []float32
	err error
}

func (f *fakeQueryEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return f.vec, f.err
}

func chunk(id string, ordinal int, content string) models.Chunk {
	return models.Chunk{ID: id, ItemID: "item-1", Ordinal: ordinal, Content: content}
}

var fixtureTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func kwHit(id string, ordinal int, rank float64, content string) core.KeywordHit {
	return core.KeywordHit{Chunk: chunk(id, ordinal, content), ItemName: "notes", ItemCreatedAt: fixtureTime, Rank: rank}
}

func semHit(id string, ordinal int, distance float64, content string) core.SemanticHit {
	return core.SemanticHit{Chunk: chunk(id, ordinal, content), ItemName: "notes", ItemCreatedAt: fixtureTime, Distance: distance}
}

func TestKeywordModeRanksByRank(t *testing.T) {
	db := &fakeSearchDB{kw: []core.KeywordHit{
		kwHit("c-low", 0, 0.2, "barely relevant"),
		kwHit("c-high", 1, 0.9, "exactly the query terms"),
	}}
	eng := NewEngine(db, &fakeQueryEmbedder{})

	resp, err := eng.Search(context.Background(), "repo-1", "query terms", Options{Mode: ModeKeyword})
	require.NoError(t, err)

	assert.Equal(t, ModeKeyword, resp.Mode)
	assert.False(t, resp.Degraded)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "c-high", resp.Results[0].ChunkID)
	assert.Equal(t, 0.9, resp.Results[0].Score)
	assert.Equal(t, "c-low", resp.Results[1].ChunkID)
}

func TestSemanticModeNormalizesDistance(t *testing.T) {
	db := &fakeSearchDB{sem: []core.SemanticHit{
		semHit("c-near", 0, 0.0, "identical meaning"),
		semHit("c-mid", 1, 1.0, "unrelated"),
		semHit("c-far", 2, 2.0, "opposite meaning"),
	}}
	eng := NewEngine(db, &fakeQueryEmbedder{vec: []float32{1, 0}})

	resp, err := eng.Search(context.Background(), "repo-1", "meaning", Options{Mode: ModeSemantic})
	require.NoError(t, err)

	require.Len(t, resp.Results, 3)
	assert.Equal(t, []string{"c-near", "c-mid", "c-far"},
		[]string{resp.Results[0].ChunkID, resp.Results[1].ChunkID, resp.Results[2].ChunkID})
	assert.Equal(t, 1.0, resp.Results[0].SemanticScore)
	assert.Equal(t, 0.5, resp.Results[1].SemanticScore)
	assert.Equal(t, 0.0, resp.Results[2].SemanticScore)
}

func TestHybridFusesUnionOfBothPaths(t *testing.T) {
	// c-both appears on both paths, c-kw only lexically, c-sem only by vector.
	db := &fakeSearchDB{
		kw: []core.KeywordHit{
			kwHit("c-both", 0, 0.6, "shared hit"),
			kwHit("c-kw", 1, 0.8, "lexical only"),
		},
		sem: []core.SemanticHit{
			semHit("c-both", 0, 0.4, "shared hit"),
			semHit("c-sem", 2, 0.2, "vector only"),
		},
	}
	eng := NewEngine(db, &fakeQueryEmbedder{vec: []float32{1, 0}})

	resp, err := eng.Search(context.Background(), "repo-1", "shared", Options{Mode: ModeHybrid, SemanticWeight: 0.5, WeightSet: true})
	require.NoError(t, err)

	require.Len(t, resp.Results, 3)
	byID := map[string]Result{}
	for _, r := range resp.Results {
		byID[r.ChunkID] = r
	}
	assert.InDelta(t, 0.5*0.8+0.5*0.6, byID["c-both"].Score, 1e-9)
	assert.InDelta(t, 0.5*0.8, byID["c-kw"].Score, 1e-9)
	assert.InDelta(t, 0.5*0.9, byID["c-sem"].Score, 1e-9)
	assert.Equal(t, "c-both", resp.Results[0].ChunkID)
}

func TestHybridDegradesToKeywordWhenEmbeddingFails(t *testing.T) {
	db := &fakeSearchDB{kw: []core.KeywordHit{
		kwHit("c-1", 0, 0.7, "still findable"),
	}}
	eng := NewEngine(db, &fakeQueryEmbedder{err: errors.New("provider down")})

	resp, err := eng.Search(context.Background(), "repo-1", "findable", Options{Mode: ModeHybrid})
	require.NoError(t, err)

	assert.Equal(t, ModeKeyword, resp.Mode)
	assert.True(t, resp.Degraded)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 0.7, resp.Results[0].Score, "degraded run scores purely lexically")
}

func TestSemanticModeAlsoDegrades(t *testing.T) {
	db := &fakeSearchDB{kw: []core.KeywordHit{kwHit("c-1", 0, 0.5, "fallback")}}
	eng := NewEngine(db, &fakeQueryEmbedder{err: errors.New("provider down")})

	resp, err := eng.Search(context.Background(), "repo-1", "fallback", Options{Mode: ModeSemantic})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Equal(t, ModeKeyword, resp.Mode)
}

func TestTieBreakOrdinalThenChunkID(t *testing.T) {
	db := &fakeSearchDB{kw: []core.KeywordHit{
		kwHit("c-b", 3, 0.5, "same score later"),
		kwHit("c-a", 1, 0.5, "same score earlier"),
		kwHit("c-z", 1, 0.5, "same everything, bigger id"),
	}}
	eng := NewEngine(db, &fakeQueryEmbedder{})

	resp, err := eng.Search(context.Background(), "repo-1", "same", Options{Mode: ModeKeyword})
	require.NoError(t, err)

	require.Len(t, resp.Results, 3)
	assert.Equal(t, "c-a", resp.Results[0].ChunkID)
	assert.Equal(t, "c-z", resp.Results[1].ChunkID)
	assert.Equal(t, "c-b", resp.Results[2].ChunkID)
}

func TestLimitTruncatesAndOverFetches(t *testing.T) {
	var hits []core.KeywordHit
	for i := 0; i < 30; i++ {
		hits = append(hits, kwHit(strings.Repeat("c", i+1), i, 1.0-float64(i)/100, "filler"))
	}
	db := &fakeSearchDB{kw: hits}
	eng := NewEngine(db, &fakeQueryEmbedder{})

	resp, err := eng.Search(context.Background(), "repo-1", "filler", Options{Mode: ModeKeyword, Limit: 5})
	require.NoError(t, err)

	assert.Len(t, resp.Results, 5)
	assert.Equal(t, 20, db.kwLimit, "candidate fetch is wider than the page")
}

func TestSearchValidation(t *testing.T) {
	eng := NewEngine(&fakeSearchDB{}, &fakeQueryEmbedder{})

	_, err := eng.Search(context.Background(), "repo-1", "   ", Options{})
	assert.Error(t, err)

	_, err = eng.Search(context.Background(), "repo-1", "q", Options{Mode: "fuzzy"})
	assert.Error(t, err)

	_, err = eng.Search(context.Background(), "repo-1", "q", Options{Mode: ModeHybrid, SemanticWeight: 1.5, WeightSet: true})
	assert.Error(t, err)
}

func TestHybridWeightZeroMatchesKeywordOrdering(t *testing.T) {
	db := &fakeSearchDB{
		kw: []core.KeywordHit{
			kwHit("c-kw", 0, 0.8, "lexical hit"),
			kwHit("c-both", 1, 0.3, "shared hit"),
		},
		sem: []core.SemanticHit{
			semHit("c-sem", 2, 0.0, "vector only"),
			semHit("c-both", 1, 0.4, "shared hit"),
		},
	}
	eng := NewEngine(db, &fakeQueryEmbedder{vec: []float32{1, 0}})

	hybrid, err := eng.Search(context.Background(), "repo-1", "hit", Options{Mode: ModeHybrid, SemanticWeight: 0, WeightSet: true})
	require.NoError(t, err)
	keyword, err := eng.Search(context.Background(), "repo-1", "hit", Options{Mode: ModeKeyword})
	require.NoError(t, err)

	require.Equal(t, len(keyword.Results), len(hybrid.Results))
	for i := range keyword.Results {
		assert.Equal(t, keyword.Results[i].ChunkID, hybrid.Results[i].ChunkID)
		assert.Equal(t, keyword.Results[i].Score, hybrid.Results[i].Score)
	}
	// The vector-only chunk must not appear at all, let alone outrank a
	// lexical hit.
	assert.Equal(t, "c-kw", hybrid.Results[0].ChunkID)
	for _, r := range hybrid.Results {
		assert.NotEqual(t, "c-sem", r.ChunkID)
	}
}

func TestHybridWeightOneMatchesSemanticOrdering(t *testing.T) {
	db := &fakeSearchDB{
		kw: []core.KeywordHit{
			kwHit("c-kw", 0, 0.9, "lexical only"),
			kwHit("c-both", 1, 0.3, "shared hit"),
		},
		sem: []core.SemanticHit{
			semHit("c-both", 1, 0.4, "shared hit"),
			semHit("c-sem", 2, 1.2, "vector only"),
		},
	}
	eng := NewEngine(db, &fakeQueryEmbedder{vec: []float32{1, 0}})

	hybrid, err := eng.Search(context.Background(), "repo-1", "hit", Options{Mode: ModeHybrid, SemanticWeight: 1, WeightSet: true})
	require.NoError(t, err)
	semantic, err := eng.Search(context.Background(), "repo-1", "hit", Options{Mode: ModeSemantic})
	require.NoError(t, err)

	require.Equal(t, len(semantic.Results), len(hybrid.Results))
	for i := range semantic.Results {
		assert.Equal(t, semantic.Results[i].ChunkID, hybrid.Results[i].ChunkID)
		assert.Equal(t, semantic.Results[i].Score, hybrid.Results[i].Score)
	}
	for _, r := range hybrid.Results {
		assert.NotEqual(t, "c-kw", r.ChunkID, "lexical-only chunk leaked into a pure vector ranking")
	}
}

func TestUnsetWeightStillDefaultsToEvenMix(t *testing.T) {
	db := &fakeSearchDB{
		kw:  []core.KeywordHit{kwHit("c-1", 0, 0.8, "hit")},
		sem: []core.SemanticHit{semHit("c-1", 0, 1.0, "hit")},
	}
	eng := NewEngine(db, &fakeQueryEmbedder{vec: []float32{1, 0}})

	resp, err := eng.Search(context.Background(), "repo-1", "hit", Options{Mode: ModeHybrid})
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.InDelta(t, 0.5*0.5+0.5*0.8, resp.Results[0].Score, 1e-9)
}

func TestMatchSnippetCentersOnMatch(t *testing.T) {
	long := strings.Repeat("padding before the interesting part. ", 10) +
		"Here is the needle we searched for." +
		strings.Repeat(" trailing filler text goes on and on.", 10)

	s := matchSnippet(long, "needle")
	assert.Contains(t, s, "needle")
	assert.True(t, strings.HasPrefix(s, "…"))
	assert.True(t, strings.HasSuffix(s, "…"))
	assert.LessOrEqual(t, len([]rune(s)), snippetRunes+2)

	short := "The needle sits in a short text."
	assert.Equal(t, short, matchSnippet(short, "needle"))

	noMatch := matchSnippet(long, "zzz-absent")
	assert.True(t, strings.HasSuffix(noMatch, "…"))
}

func TestMatchSnippetSurvivesCaseFoldingThatResizesRunes(t *testing.T) {
	// U+0130 changes byte length under lowercasing, so a byte offset taken
	// from the lowered string would land mid-rune in the original.
	long := strings.Repeat("İstanbul İzmir İçel ", 20) +
		"the needle sits here" +
		strings.Repeat(" more trailing text", 20)

	s := matchSnippet(long, "NEEDLE")
	assert.Contains(t, s, "needle")
	assert.True(t, utf8.ValidString(s))

	assert.Equal(t, 1, foldIndex([]rune("İzmir"), []rune("ZM")))
	assert.Equal(t, -1, foldIndex([]rune("short"), []rune("longer-needle")))
}
