// Package phoneme converts text into the model's phoneme token sequences.
// The conversion backend (an espeak-style subprocess) keeps global state and
// is not safe to call concurrently from anywhere in the process, so every
// call goes through a single process-wide gate.
package phoneme

import (
	"context"
	"sync"
)

// Phonemizer converts text in a given language to a phoneme string.
type Phonemizer interface {
	Phonemize(ctx context.Context, text, language string) (string, error)
}

// phonemizeGate serializes all phonemizer calls process-wide. It is held only
// for the duration of the conversion call, never across inference.
var phonemizeGate sync.Mutex

type gated struct {
	inner Phonemizer
}

// Gated wraps a Phonemizer so that at most one call is in flight across the
// whole process, regardless of how many inference workers exist.
func Gated(p Phonemizer) Phonemizer {
	return &gated{inner: p}
}

func (g *gated) Phonemize(ctx context.Context, text, language string) (string, error) {
	phonemizeGate.Lock()
	defer phonemizeGate.Unlock()
	return g.inner.Phonemize(ctx, text, language)
}
