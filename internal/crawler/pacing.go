package crawler

import (
	"math/rand/v2"
	"time"
)

// RandomPacer draws a whole number of milliseconds uniformly from [min, max].
type RandomPacer struct {
	minMS int
	maxMS int
}

// NewRandomPacer builds a pacer. Negative bounds are clamped to zero.
func NewRandomPacer(minMS, maxMS int) *RandomPacer {
	return &RandomPacer{minMS: max(minMS, 0), maxMS: max(maxMS, 0)}
}

// Delay implements Pacer.
func (p *RandomPacer) Delay() time.Duration {
	ms := p.minMS
	if p.maxMS > p.minMS {
		ms += rand.IntN(p.maxMS - p.minMS + 1)
	}
	return time.Duration(ms) * time.Millisecond
}
