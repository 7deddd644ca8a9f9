package chunker

import (
	"regexp"
	"strings"
)

// Piece is one chunk of text plus its token estimate. Ordinals are implied by
// slice order: the pipeline persists pieces exactly as produced.
type Piece struct {
	Text   string
	Tokens int
}

// Chunker splits raw text into bounded, overlapping segments. The split is a
// pure function of (text, parameters): no clock, no randomness, so
// re-ingesting identical content yields byte-identical chunks.
type Chunker struct {
	targetTokens  int
	overlapTokens int
	hardMaxRunes  int
}

var sentenceRe = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?]+)`)

func New(targetTokens, overlapTokens, hardMaxRunes int) *Chunker {
	if targetTokens <= 0 {
		targetTokens = 400
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}
	if overlapTokens >= targetTokens {
		overlapTokens = targetTokens / 2
	}
	if hardMaxRunes <= 0 {
		hardMaxRunes = 8000
	}
	return &Chunker{
		targetTokens:  targetTokens,
		overlapTokens: overlapTokens,
		hardMaxRunes:  hardMaxRunes,
	}
}

// Chunk splits text on paragraph and sentence boundaries, falling back to a
// hard rune cutoff for pathologically long runs, and accumulates fragments
// into chunks of roughly targetTokens with overlapTokens carried across
// consecutive chunks.
func (c *Chunker) Chunk(text string) []Piece {
	frags := c.fragments(text)
	if len(frags) == 0 {
		return nil
	}

	var (
		out    []Piece
		buf    []string
		tokSum int
	)

	flush := func() {
		if tokSum == 0 {
			return
		}
		out = append(out, Piece{Text: strings.Join(buf, " "), Tokens: tokSum})

		// Keep a tail whose token sum is roughly the overlap as the seed of
		// the next chunk.
		if c.overlapTokens > 0 {
			var keep []string
			remain := c.overlapTokens
			for j := len(buf) - 1; j >= 0 && remain > 0; j-- {
				keep = append([]string{buf[j]}, keep...)
				remain -= approxTokens(buf[j])
			}
			buf = keep
			tokSum = 0
			for _, s := range buf {
				tokSum += approxTokens(s)
			}
		} else {
			buf = buf[:0]
			tokSum = 0
		}
	}

	for _, frag := range frags {
		buf = append(buf, frag)
		tokSum += approxTokens(frag)
		if tokSum >= c.targetTokens {
			flush()
		}
	}
	// The leftover buffer is all overlap when it alone did not grow past the
	// carried tail, so only emit it if it holds unseen content.
	if len(out) == 0 || tailHasNewContent(out[len(out)-1].Text, buf) {
		flush()
	}

	return out
}

// fragments splits text into sentence-sized parts, paragraph order preserved.
// Any single fragment longer than hardMaxRunes is sliced at rune boundaries
// so no chunk can exceed the embedding provider's input limit.
func (c *Chunker) fragments(text string) []string {
	var out []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		for _, s := range splitSentences(para) {
			out = append(out, c.hardSplit(s)...)
		}
	}
	return out
}

// splitSentences cuts a paragraph at sentence terminators. Anything after the
// last terminator is kept as one final sentence, so an unterminated trailing
// clause still reaches the chunks.
func splitSentences(para string) []string {
	var out []string
	last := 0
	for _, m := range sentenceRe.FindAllStringIndex(para, -1) {
		if s := strings.TrimSpace(para[m[0]:m[1]]); s != "" {
			out = append(out, s)
		}
		last = m[1]
	}
	if tail := strings.TrimSpace(para[last:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

func (c *Chunker) hardSplit(s string) []string {
	runes := []rune(s)
	if len(runes) <= c.hardMaxRunes {
		return []string{s}
	}
	var out []string
	for len(runes) > c.hardMaxRunes {
		out = append(out, string(runes[:c.hardMaxRunes]))
		runes = runes[c.hardMaxRunes:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}

// tailHasNewContent reports whether the remaining buffer carries anything
// beyond the overlap already emitted at the end of the previous chunk.
func tailHasNewContent(lastChunk string, buf []string) bool {
	if len(buf) == 0 {
		return false
	}
	return !strings.HasSuffix(lastChunk, strings.Join(buf, " "))
}

// approxTokens is a cheap token estimator (~4 chars ≈ 1 token).
func approxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
