// Package random manages the random number generators used by the
// sampling routines in this module.
//
// Library code draws from the process-wide default generator unless a
// caller supplies its own. SetSeed makes every default-generator draw
// in the process reproducible.
package random

import (
	mathrand "math/rand/v2"
	"sync"
)

// Generator is a seeded source of random variates, safe for
// concurrent use.
type Generator struct {
	mu  sync.Mutex
	src *mathrand.PCG
}

// NewGenerator returns an independent generator seeded with seed.
func NewGenerator(seed uint64) *Generator {
	return &Generator{src: mathrand.NewPCG(seed, seed^0x9e3779b97f4a7c15)}
}

// Uint64 implements math/rand/v2 Source.
func (g *Generator) Uint64() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.src.Uint64()
}

// Float64 returns a uniform variate in [0, 1).
func (g *Generator) Float64() float64 {
	// 53-bit mantissa from the high bits of the source.
	return float64(g.Uint64()>>11) / (1 << 53)
}

// NormFloat64 returns a standard normal variate.
func (g *Generator) NormFloat64() float64 {
	return mathrand.New(g).NormFloat64()
}

// IntN returns a uniform variate in [0, n).
func (g *Generator) IntN(n int) int {
	return mathrand.New(g).IntN(n)
}

var (
	defaultMu  sync.RWMutex
	defaultGen = NewGenerator(mathrand.Uint64())
)

// Default returns the process-wide default generator.
func Default() *Generator {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultGen
}

// SetSeed replaces the default generator with one seeded with seed.
// Draws from the default generator after SetSeed are deterministic.
func SetSeed(seed uint64) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultGen = NewGenerator(seed)
}

// Or returns g when non-nil and the default generator otherwise.
// Sampling methods use it to resolve their optional generator argument.
func Or(g *Generator) *Generator {
	if g != nil {
		return g
	}
	return Default()
}
