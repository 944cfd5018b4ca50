// Package textseg splits raw input text into speech-ready chunks. Chunks are
// sized for independent synthesis: sentence boundaries are respected, long
// sentences are bisected near natural pauses, and dangling conjunctions are
// pushed onto the following chunk so no chunk ends mid-thought.
package textseg

import (
	"regexp"
	"strings"
)

// DefaultTargetWords is the chunk size the splitter aims for when the caller
// has no preference.
const DefaultTargetWords = 10

// centerBreakMinWords is the word count at which a first-pass chunk becomes a
// candidate for midpoint bisection.
const centerBreakMinWords = 12

// maxCenterDepth bounds the bisection recursion so splitting always
// terminates.
const maxCenterDepth = 3

// numberedListRe matches enumeration markers such as "1.", "(4)," or "2):"
// which end a clause the same way sentence punctuation does.
var numberedListRe = regexp.MustCompile(`^\(?[0-9]+[.):],?$`)

// breakWords are connectives that mark an acceptable pause inside a long
// sentence.
var breakWords = map[string]struct{}{
	"and":      {},
	"or":       {},
	"but":      {},
	"because":  {},
	"if":       {},
	"since":    {},
	"though":   {},
	"although": {},
	"however":  {},
	"which":    {},
	"&":        {},
}

// Split breaks text into ordered, speech-ready chunks of roughly targetWords
// words. It is a pure function: the same input always yields the same chunks.
// Empty or whitespace-only input yields no chunks.
func Split(text string, targetWords int) []string {
	if targetWords <= 0 {
		targetWords = DefaultTargetWords
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	if !strings.ContainsAny(text, ".!?:;") {
		return splitEveryN(words, targetWords)
	}

	first := sentencePass(words, targetWords)
	chunks := centerPass(first)
	migrateBreakWords(chunks)
	return chunks
}

// sentencePass walks the words once, forcing a boundary on sentence-ending
// punctuation and numbered-list markers, and breaking on a trailing comma only
// once the running count has reached the target.
func sentencePass(words []string, targetWords int) []string {
	var chunks []string
	var current []string

	flush := func() {
		chunks = append(chunks, strings.Join(current, " "))
		current = current[:0]
	}

	for _, word := range words {
		current = append(current, word)
		switch {
		case endsHard(word) || numberedListRe.MatchString(word):
			flush()
		case strings.HasSuffix(word, ",") && len(current) >= targetWords:
			flush()
		}
	}
	if len(current) > 0 {
		flush()
	}
	return chunks
}

func endsHard(word string) bool {
	if word == "" {
		return false
	}
	switch word[len(word)-1] {
	case '.', '!', '?', ':', ';':
		return true
	}
	return false
}

// centerPass bisects long first-pass chunks near their midpoint. Commas are
// preferred split points while fewer than two chunks have been produced
// overall, since early chunks gate time-to-first-audio; afterwards only
// connective break words qualify.
func centerPass(first []string) []string {
	var out []string
	for _, chunk := range first {
		words := strings.Fields(chunk)
		if len(words) == 0 {
			// First-pass chunks are joined from non-empty words, but an
			// empty chunk is harmless downstream, so keep it rather than
			// guessing.
			out = append(out, chunk)
			continue
		}
		allowComma := len(out) < 2
		out = append(out, centerSplit(words, 0, allowComma)...)
	}
	return out
}

func centerSplit(words []string, depth int, allowComma bool) []string {
	if len(words) < centerBreakMinWords || depth >= maxCenterDepth {
		return []string{strings.Join(words, " ")}
	}

	mid := len(words) / 2
	window := len(words) / 3
	if window < 1 {
		window = 1
	}

	split := -1
	if allowComma {
		split = closestSplit(words, mid, window, func(prev, _ string) bool {
			return strings.HasSuffix(prev, ",")
		})
	}
	if split < 0 {
		split = closestSplit(words, mid, window, func(prev, _ string) bool {
			_, ok := breakWords[strings.ToLower(prev)]
			return ok
		})
	}
	if split < 0 {
		// No natural pause near the center; a long chunk reads better than
		// an arbitrary cut.
		return []string{strings.Join(words, " ")}
	}

	head := centerSplit(words[:split], depth+1, allowComma)
	tail := centerSplit(words[split:], depth+1, allowComma)
	return append(head, tail...)
}

// closestSplit returns the split position p (head = words[:p]) nearest to mid
// for which accept(words[p-1], words[p]) holds, or -1 when no position within
// the window qualifies.
func closestSplit(words []string, mid, window int, accept func(prev, next string) bool) int {
	best := -1
	for p := 1; p < len(words); p++ {
		if !accept(words[p-1], words[p]) {
			continue
		}
		if abs(p-mid) > window {
			continue
		}
		if best < 0 || abs(p-mid) < abs(best-mid) {
			best = p
		}
	}
	return best
}

// migrateBreakWords moves a connective left dangling at the end of a chunk to
// the front of the next one. A chunk-final "and" synthesized in isolation
// sounds like a stall; leading the next chunk it reads naturally.
func migrateBreakWords(chunks []string) {
	for i := 0; i < len(chunks)-1; i++ {
		words := strings.Fields(chunks[i])
		if len(words) < 2 {
			continue
		}
		last := words[len(words)-1]
		if _, ok := breakWords[strings.ToLower(last)]; !ok {
			continue
		}
		chunks[i] = strings.Join(words[:len(words)-1], " ")
		chunks[i+1] = last + " " + chunks[i+1]
	}
}

// splitEveryN is the fallback for text with no sentence punctuation at all:
// a boundary every n words.
func splitEveryN(words []string, n int) []string {
	var chunks []string
	for start := 0; start < len(words); start += n {
		end := start + n
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}
	return chunks
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
