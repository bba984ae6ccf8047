// Package idgenerator hands out connection identifiers.
package idgenerator

import "sync/atomic"

// IdGenerator produces increasing uint32 ids safely from many goroutines.
// Ids wrap around after math.MaxUint32; connection lifetimes are short enough
// that a wrapped id never collides with a live one in practice.
type IdGenerator struct {
	id atomic.Uint32
}

// NewIdGenerator returns a generator whose first Next call yields
// startValue+1.
func NewIdGenerator(startValue uint32) *IdGenerator {
	gen := &IdGenerator{}
	gen.id.Store(startValue)
	return gen
}

// Next returns the next id.
func (g *IdGenerator) Next() uint32 {
	return g.id.Add(1)
}
