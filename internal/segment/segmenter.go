// ABOUTME: Splits long replies into ordered transport-sized segments
// ABOUTME: Prefers paragraph, then sentence, then word boundaries; pure functions only
package segment

import (
	"strings"
	"unicode/utf8"
)

// DefaultLimit is the transport message size limit.
const DefaultLimit = 2000

// Split segments text so every segment is at most DefaultLimit characters.
func Split(text string) []string {
	return SplitWithLimit(text, DefaultLimit)
}

// SplitWithLimit segments text under an explicit limit. Splitting happens at
// paragraph boundaries first, falling back to sentences, then words; a hard
// cut is used only when a single word exceeds the limit. Concatenating the
// segments with the separators used here (paragraphs joined by a blank line,
// sentences by ". ", words by a space) drops no content.
func SplitWithLimit(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(text) <= limit {
		if text == "" {
			return nil
		}
		return []string{text}
	}
	return pack(splitParagraphs(text), "\n\n", limit, splitSentenceUnits)
}

// pack greedily joins units into segments under the limit, recursing into
// oversized units with the finer splitter.
func pack(units []string, joiner string, limit int, finer func(string, int) []string) []string {
	var segments []string
	current := ""

	flush := func() {
		if current != "" {
			segments = append(segments, current)
			current = ""
		}
	}

	for _, unit := range units {
		if len(unit) > limit {
			flush()
			segments = append(segments, finer(unit, limit)...)
			continue
		}
		switch {
		case current == "":
			current = unit
		case len(current)+len(joiner)+len(unit) <= limit:
			current += joiner + unit
		default:
			flush()
			current = unit
		}
	}
	flush()
	return segments
}

// splitSentenceUnits breaks an oversized paragraph at sentence boundaries.
// Sentences keep their terminating period, so a plain space rejoins them.
func splitSentenceUnits(paragraph string, limit int) []string {
	return pack(splitSentences(paragraph), " ", limit, splitWordUnits)
}

// splitWordUnits breaks an oversized sentence at word boundaries.
func splitWordUnits(sentence string, limit int) []string {
	return pack(strings.Fields(sentence), " ", limit, hardCut)
}

// hardCut slices a single oversized word into runs of at most limit bytes,
// never cutting inside a multi-byte rune.
func hardCut(word string, limit int) []string {
	var out []string
	for len(word) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(word[cut]) {
			cut--
		}
		if cut == 0 {
			// The limit is narrower than the first rune; keep it whole.
			_, cut = utf8.DecodeRuneInString(word)
		}
		out = append(out, word[:cut])
		word = word[cut:]
	}
	if word != "" {
		out = append(out, word)
	}
	return out
}

// splitParagraphs splits text on blank lines.
func splitParagraphs(text string) []string {
	var out []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para != "" {
			out = append(out, para)
		}
	}
	return out
}

// splitSentences splits a paragraph on sentence-ending periods, restoring the
// period on every sentence but the last.
func splitSentences(paragraph string) []string {
	parts := strings.Split(paragraph, ". ")
	var out []string
	for i, sent := range parts {
		sent = strings.TrimSpace(sent)
		if sent == "" {
			continue
		}
		if i < len(parts)-1 && !strings.HasSuffix(sent, ".") {
			sent += "."
		}
		out = append(out, sent)
	}
	return out
}
