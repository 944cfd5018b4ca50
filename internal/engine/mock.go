package engine

import (
	"context"
	"math"
)

const mockSamplesPerToken = 240

type mockEngine struct{}

// NewMockEngine returns a deterministic engine for tests and development. It
// emits a short tone per token so output length tracks token count and speed
// the way the real model's does.
func NewMockEngine() Engine {
	return mockEngine{}
}

func (mockEngine) Infer(ctx context.Context, tokens []int64, styles [][]float32, speed float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if speed <= 0 {
		speed = 1.0
	}
	perToken := int(float32(mockSamplesPerToken) / speed)
	if perToken < 1 {
		perToken = 1
	}
	samples := make([]float32, 0, len(tokens)*perToken)
	for _, tok := range tokens {
		freq := 110.0 + float64(tok)*7.0
		for i := 0; i < perToken; i++ {
			samples = append(samples, float32(0.1*math.Sin(freq*float64(i)/1000.0)))
		}
	}
	return samples, nil
}
