package wamp

import "sync/atomic"

// idGenerator issues session scoped request IDs, starting at 1.
type idGenerator struct {
	last atomic.Uint64
}

func (g *idGenerator) next() uint64 {
	return g.last.Add(1)
}
