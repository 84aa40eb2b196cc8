package memgov

import (
	"sync"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"

	"github.com/rony4d/go-alligator/inter"
)

// Chain is a manually driven clock. Tests and devnets move it forward
// explicitly instead of waiting for blocks.
type Chain struct {
	mu    sync.RWMutex
	block idx.Block
	time  inter.Timestamp
}

// NewChain creates a clock positioned at block and time.
func NewChain(block idx.Block, time inter.Timestamp) *Chain {
	return &Chain{block: block, time: time}
}

func (c *Chain) BlockNumber() idx.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.block
}

func (c *Chain) Timestamp() inter.Timestamp {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.time
}

// Set moves the clock to an absolute position.
func (c *Chain) Set(block idx.Block, time inter.Timestamp) {
	c.mu.Lock()
	c.block, c.time = block, time
	c.mu.Unlock()
}

// Advance moves the clock forward by the given number of blocks and seconds.
func (c *Chain) Advance(blocks idx.Block, seconds uint64) {
	c.mu.Lock()
	c.block += blocks
	c.time += inter.Timestamp(seconds)
	c.mu.Unlock()
}
