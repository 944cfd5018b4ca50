package textseg

import (
	"reflect"
	"strings"
	"testing"
)

func TestSplitEmptyInput(t *testing.T) {
	if got := Split("", 10); got != nil {
		t.Fatalf("expected no chunks for empty input, got %v", got)
	}
	if got := Split("   \n\t ", 10); got != nil {
		t.Fatalf("expected no chunks for whitespace input, got %v", got)
	}
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	got := Split("hello there friend", 10)
	if len(got) != 1 || got[0] != "hello there friend" {
		t.Fatalf("expected one chunk, got %v", got)
	}
}

func TestSplitAtSentenceBoundary(t *testing.T) {
	got := Split("Hello world. This is a test, and it continues, because reasons.", 10)
	if len(got) < 2 {
		t.Fatalf("expected at least two chunks, got %v", got)
	}
	if got[0] != "Hello world." {
		t.Fatalf("expected split after the period, got first chunk %q", got[0])
	}
}

func TestSplitMigratesDanglingConnective(t *testing.T) {
	got := Split("The quick brown fox jumps over the lazy dog and then runs far away home.", 10)
	want := []string{
		"The quick brown fox jumps over the lazy dog",
		"and then runs far away home.",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestSplitPrefersCommaForEarlyChunks(t *testing.T) {
	got := Split("One two three four five six, seven eight and nine ten eleven twelve.", 10)
	want := []string{
		"One two three four five six,",
		"seven eight and nine ten eleven twelve.",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestSplitSoftCommaBoundary(t *testing.T) {
	got := Split("one two three, four five.", 3)
	want := []string{"one two three,", "four five."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestSplitCommaBelowTargetDoesNotBreak(t *testing.T) {
	got := Split("alpha, beta gamma.", 10)
	if len(got) != 1 {
		t.Fatalf("expected one chunk, got %v", got)
	}
}

func TestSplitNumberedListMarker(t *testing.T) {
	got := Split("1. First item 2. Second item", 10)
	if got[0] != "1." {
		t.Fatalf("expected list marker to force a boundary, got %v", got)
	}
}

func TestSplitNoPunctuationFallback(t *testing.T) {
	words := make([]string, 25)
	for i := range words {
		words[i] = "word"
	}
	got := Split(strings.Join(words, " "), 10)
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks of at most 10 words, got %d: %v", len(got), got)
	}
	for i, chunk := range got[:2] {
		if n := len(strings.Fields(chunk)); n != 10 {
			t.Fatalf("chunk %d: expected 10 words, got %d", i, n)
		}
	}
	if n := len(strings.Fields(got[2])); n != 5 {
		t.Fatalf("last chunk: expected 5 words, got %d", n)
	}
}

func TestSplitDeterministic(t *testing.T) {
	text := "Testing determinism here, because every call must agree. Short tail."
	a := Split(text, 6)
	b := Split(text, 6)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("split is not deterministic: %v vs %v", a, b)
	}
}

func TestSplitLongChunkWithoutBreakPointStaysWhole(t *testing.T) {
	// Fourteen words, no commas, no connectives: nothing usable near center.
	got := Split("alpha beta gamma delta epsilon zeta eta theta iota kappa lambda mu nu xi.", 10)
	if len(got) != 1 {
		t.Fatalf("expected unsplittable chunk to stay whole, got %v", got)
	}
}
