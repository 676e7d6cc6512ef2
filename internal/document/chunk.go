package document

import "strings"

// Chunking parameters. Sizes are in bytes of the UTF-8 text; boundaries are
// adjusted so multi-byte runes are never split.
const (
	// DefaultChunkSize is the target chunk length.
	DefaultChunkSize = 500

	// DefaultChunkOverlap is how far each chunk reaches back into the
	// previous one.
	DefaultChunkOverlap = 100

	// boundaryWindow is how far back from the cut point Split scans for a
	// sentence boundary before giving up and cutting mid-sentence.
	boundaryWindow = 100
)

// Split breaks text into overlapping chunks of roughly size bytes.
//
// Each cut prefers the last sentence boundary (. ! ? or newline) within the
// trailing boundaryWindow bytes of the chunk, so chunks tend to end on whole
// sentences. Consecutive chunks overlap by overlap bytes to preserve context
// across the cut. Whitespace-only chunks are dropped.
func Split(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = size / 5
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			end = len(text)
		} else {
			if cut := sentenceBoundary(text, start, end); cut > start {
				end = cut
			}
			end = alignRune(text, end)
		}

		chunk := strings.TrimSpace(text[start:end])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(text) {
			break
		}

		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = alignRune(text, next)
	}
	return chunks
}

// sentenceBoundary returns the position just after the last sentence-ending
// byte in text[end-boundaryWindow:end], or -1 if none is found within the
// window or the window would reach before start.
func sentenceBoundary(text string, start, end int) int {
	low := end - boundaryWindow
	if low < start {
		low = start
	}
	for i := end - 1; i >= low; i-- {
		switch text[i] {
		case '.', '!', '?', '\n':
			return i + 1
		}
	}
	return -1
}

// alignRune moves pos forward past any UTF-8 continuation bytes so a slice
// ending there does not split a rune.
func alignRune(text string, pos int) int {
	for pos < len(text) && text[pos]&0xC0 == 0x80 {
		pos++
	}
	return pos
}
