package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk_WholeTextFitsInOneChunk(t *testing.T) {
	c := New(400, 40, 8000)

	pieces := c.Chunk("The quick brown fox. The fox ran far.")

	require.Len(t, pieces, 1)
	assert.Equal(t, "The quick brown fox. The fox ran far.", pieces[0].Text)
	assert.Positive(t, pieces[0].Tokens)
}

func TestChunk_EmptyAndWhitespaceInput(t *testing.T) {
	c := New(400, 40, 8000)

	assert.Nil(t, c.Chunk(""))
	assert.Nil(t, c.Chunk("   \n\n  \t "))
}

func TestChunk_Deterministic(t *testing.T) {
	c := New(20, 5, 8000)
	text := strings.Repeat("One sentence here. Another sentence follows. ", 30)

	first := c.Chunk(text)
	second := c.Chunk(text)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Text, second[i].Text, "chunk %d differs between runs", i)
		assert.Equal(t, first[i].Tokens, second[i].Tokens)
	}
}

func TestChunk_SplitsLongTextIntoMultipleChunks(t *testing.T) {
	c := New(20, 0, 8000)
	text := strings.Repeat("This is a full sentence with several words in it. ", 20)

	pieces := c.Chunk(text)

	require.Greater(t, len(pieces), 1)
	for i, p := range pieces {
		assert.NotEmpty(t, p.Text, "chunk %d empty", i)
	}
}

func TestChunk_OverlapCarriesTailSentence(t *testing.T) {
	// Small target forces a flush per sentence; the overlap must reappear at
	// the start of the following chunk.
	c := New(10, 5, 8000)
	pieces := c.Chunk("Alpha bravo charlie delta echo foxtrot golf. Hotel india juliett kilo lima mike november.")

	require.GreaterOrEqual(t, len(pieces), 2)
	firstTail := lastSentence(pieces[0].Text)
	assert.True(t, strings.HasPrefix(pieces[1].Text, firstTail),
		"chunk 1 %q should start with overlap %q", pieces[1].Text, firstTail)
}

func TestChunk_KeepsTrailingClauseWithoutTerminator(t *testing.T) {
	c := New(400, 40, 8000)

	pieces := c.Chunk("First sentence ends here. this trailing clause has no terminator")

	require.Len(t, pieces, 1)
	assert.Contains(t, pieces[0].Text, "First sentence ends here.")
	assert.Contains(t, pieces[0].Text, "this trailing clause has no terminator")

	// Same guarantee inside a multi-paragraph input.
	pieces = c.Chunk("Closed paragraph.\n\nOpen one. still going")
	require.Len(t, pieces, 1)
	assert.Contains(t, pieces[0].Text, "still going")
}

func TestChunk_HardCutoffBoundsPathologicalRuns(t *testing.T) {
	hardMax := 100
	c := New(10, 0, hardMax)
	// One giant "sentence" with no boundaries at all.
	text := strings.Repeat("x", 950)

	pieces := c.Chunk(text)

	require.NotEmpty(t, pieces)
	for i, p := range pieces {
		assert.LessOrEqual(t, len([]rune(p.Text)), hardMax, "chunk %d exceeds hard cutoff", i)
	}

	// No content lost to the cutoff.
	var rebuilt strings.Builder
	for _, p := range pieces {
		rebuilt.WriteString(strings.ReplaceAll(p.Text, " ", ""))
	}
	assert.Equal(t, text, rebuilt.String())
}

func TestChunk_ParagraphBoundariesPreserveOrder(t *testing.T) {
	c := New(1000, 0, 8000)
	pieces := c.Chunk("First paragraph sentence.\n\nSecond paragraph sentence.")

	require.Len(t, pieces, 1)
	first := strings.Index(pieces[0].Text, "First")
	second := strings.Index(pieces[0].Text, "Second")
	assert.Less(t, first, second)
}

func TestChunk_NoTrailingOverlapOnlyChunk(t *testing.T) {
	c := New(10, 5, 8000)
	pieces := c.Chunk("Alpha bravo charlie delta echo foxtrot golf hotel.")

	// Exactly one sentence: the leftover buffer after the flush is pure
	// overlap and must not be emitted again.
	require.Len(t, pieces, 1)
}

func lastSentence(s string) string {
	idx := strings.LastIndex(strings.TrimRight(s, ". "), ". ")
	if idx < 0 {
		return s
	}
	return strings.TrimSpace(s[idx+1:])
}
