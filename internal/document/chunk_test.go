package document

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_ShortText(t *testing.T) {
	chunks := Split("Ibuprofen is an NSAID.", DefaultChunkSize, DefaultChunkOverlap)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Ibuprofen is an NSAID.", chunks[0])
}

func TestSplit_Empty(t *testing.T) {
	assert.Nil(t, Split("", DefaultChunkSize, DefaultChunkOverlap))
	assert.Nil(t, Split("   \n\t  ", DefaultChunkSize, DefaultChunkOverlap))
}

func TestSplit_SentenceBoundary(t *testing.T) {
	// Two sentences, with the size cutting into the second. The chunk
	// should end at the period rather than mid-sentence.
	first := strings.Repeat("a", 440) + "."
	second := " " + strings.Repeat("b", 200) + "."
	chunks := Split(first+second, 500, 100)

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, first, chunks[0])
}

func TestSplit_Overlap(t *testing.T) {
	// No sentence boundaries anywhere: chunks cut at the size limit and
	// each chunk starts overlap bytes before the previous end.
	text := strings.Repeat("x", 1200)
	chunks := Split(text, 500, 100)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 500)
	// second chunk starts at 400 (500 - overlap 100)
	assert.Len(t, chunks[1], 500)
	// third chunk starts at 800 and runs to the end
	assert.Len(t, chunks[2], 400)
}

func TestSplit_CoversAllContent(t *testing.T) {
	text := strings.Repeat("The patient should take the medication with food. ", 50)
	chunks := Split(text, 500, 100)
	require.NotEmpty(t, chunks)

	// Every chunk is non-empty and within the size bound.
	for _, c := range chunks {
		assert.NotEmpty(t, c)
		assert.LessOrEqual(t, len(c), 500)
	}

	// The final characters of the text appear in the last chunk.
	assert.True(t, strings.HasSuffix(strings.TrimSpace(text), chunks[len(chunks)-1][len(chunks[len(chunks)-1])-20:]))
}

func TestSplit_DoesNotBreakRunes(t *testing.T) {
	text := strings.Repeat("布洛芬是一種非類固醇消炎藥", 60)
	chunks := Split(text, 500, 100)
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.True(t, utf8.ValidString(c), "chunk %d is not valid UTF-8", i)
	}
}

func TestSplit_InvalidParamsFallBackToDefaults(t *testing.T) {
	text := strings.Repeat("y", 1500)

	chunks := Split(text, 0, 0)
	require.NotEmpty(t, chunks)
	assert.LessOrEqual(t, len(chunks[0]), DefaultChunkSize)

	// Overlap >= size would never advance; it must be clamped.
	chunks = Split(text, 200, 500)
	require.NotEmpty(t, chunks)
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	assert.GreaterOrEqual(t, total, 1500)
}
