// ABOUTME: Recursive character splitter with priority-ordered separators
// ABOUTME: Guarantees chunks under the size budget with configurable overlap
package ingest

import (
	"strings"
	"unicode/utf8"
)

// Separator priority: paragraph break, line break, sentence punctuation,
// comma, space, then raw characters as a last resort.
var defaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", ", ", " "}

// Splitter cuts text into chunks no longer than chunkSize, with adjacent
// chunks sharing roughly overlap characters. Whenever a candidate piece still
// exceeds the budget the splitter falls back to the next finer separator.
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// NewSplitter creates a splitter. Overlap is clamped below chunkSize.
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: defaultSeparators,
	}
}

// Split cuts text into chunks. Pure: no state survives between calls.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.merge(s.atomize(text, s.separators))
}

// atomize recursively cuts text into pieces, each at most chunkSize long,
// preferring coarser separators. Separators stay attached to the piece they
// terminate so no content is lost.
func (s *Splitter) atomize(text string, seps []string) []string {
	if len(text) <= s.chunkSize {
		return []string{text}
	}
	if len(seps) == 0 {
		return s.hardCut(text)
	}

	parts := splitKeep(text, seps[0])
	if len(parts) == 1 {
		// Separator absent; fall back to the next finer one.
		return s.atomize(text, seps[1:])
	}

	var pieces []string
	for _, part := range parts {
		if len(part) <= s.chunkSize {
			pieces = append(pieces, part)
		} else {
			pieces = append(pieces, s.atomize(part, seps[1:])...)
		}
	}
	return pieces
}

// hardCut slices text into runs of at most chunkSize bytes, never cutting
// inside a multi-byte rune. Only reached when a single unbroken run of
// characters exceeds the budget.
func (s *Splitter) hardCut(text string) []string {
	var out []string
	for len(text) > s.chunkSize {
		cut := s.chunkSize
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == 0 {
			// The budget is narrower than the first rune; keep it whole.
			_, cut = utf8.DecodeRuneInString(text)
		}
		out = append(out, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

// splitKeep splits by sep, keeping the separator attached to the end of each
// piece except the last, and dropping empty pieces.
func splitKeep(text, sep string) []string {
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, part := range parts {
		if i < len(parts)-1 {
			part += sep
		}
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// merge packs pieces into chunks up to chunkSize, carrying an overlap tail
// from each emitted chunk into the next. A chunk holding nothing but the
// carry is never emitted.
func (s *Splitter) merge(pieces []string) []string {
	var chunks []string
	current := ""
	fresh := false // current holds content not yet emitted

	for _, piece := range pieces {
		if fresh && len(current)+len(piece) > s.chunkSize {
			chunks = appendChunk(chunks, current)
			current = s.overlapTail(current)
			fresh = false
		}
		if len(current)+len(piece) > s.chunkSize {
			// Piece alone nearly fills the budget; drop the carry.
			current = ""
		}
		current += piece
		fresh = true
	}
	if fresh {
		chunks = appendChunk(chunks, current)
	}
	return chunks
}

// overlapTail returns the last overlap characters of the chunk, snapped
// forward to a word boundary so the carry never starts mid-word.
func (s *Splitter) overlapTail(chunk string) string {
	if s.overlap == 0 || len(chunk) == 0 {
		return ""
	}
	tail := chunk
	if len(tail) > s.overlap {
		tail = tail[len(tail)-s.overlap:]
		if idx := strings.IndexAny(tail, " \n"); idx >= 0 {
			tail = tail[idx+1:]
		}
	}
	return tail
}

// appendChunk appends the trimmed chunk if it has content.
func appendChunk(chunks []string, chunk string) []string {
	chunk = strings.TrimSpace(chunk)
	if chunk == "" {
		return chunks
	}
	return append(chunks, chunk)
}
