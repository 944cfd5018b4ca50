package phoneme

import (
	"context"
	"strings"
)

type mockPhonemizer struct{}

// NewMockPhonemizer returns a deterministic converter for tests and
// development: the text itself, lowercased, stands in for phonemes. Every
// rune that survives tokenization is a plain letter, so token sequences stay
// stable across runs.
func NewMockPhonemizer() Phonemizer {
	return mockPhonemizer{}
}

func (mockPhonemizer) Phonemize(_ context.Context, text, _ string) (string, error) {
	return strings.ToLower(text), nil
}
