// Package entropy supplies the randomness collaborator: a seed plus a
// monotonic per-block call index.
package entropy

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"sync/atomic"
)

// SeedLength is the width of seeds produced by Crypto.
const SeedLength = 32

// Block hands out call indices within one block.
type Block struct {
	n atomic.Uint32
}

// Next returns the current index and advances it.
func (b *Block) Next() uint32 { return b.n.Add(1) - 1 }

// Reset starts a new block.
func (b *Block) Reset() { b.n.Store(0) }

// Fixed returns the same seed forever. Call indices still advance, so
// successive draws differ.
type Fixed struct {
	seed  []byte
	block Block
}

// NewFixed builds a deterministic source for tests and replay.
func NewFixed(seed []byte) *Fixed {
	return &Fixed{seed: append([]byte(nil), seed...)}
}

// Seed returns the fixed seed.
func (f *Fixed) Seed(context.Context) ([]byte, error) {
	return append([]byte(nil), f.seed...), nil
}

// CallIndex returns the next index.
func (f *Fixed) CallIndex() uint32 { return f.block.Next() }

// Crypto draws a fresh seed from crypto/rand every callsPerBlock calls.
type Crypto struct {
	mu            sync.Mutex
	seed          []byte
	callsPerBlock uint32
	block         Block
	read          func([]byte) (int, error)
}

// NewCrypto builds a source whose seed rotates after callsPerBlock indices.
// Zero means the seed never rotates.
func NewCrypto(callsPerBlock uint32) *Crypto {
	return &Crypto{callsPerBlock: callsPerBlock, read: rand.Read}
}

// Seed returns the seed of the current block, drawing one if needed.
func (c *Crypto) Seed(context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seed == nil {
		seed := make([]byte, SeedLength)
		if _, err := c.read(seed); err != nil {
			return nil, fmt.Errorf("read seed: %w", err)
		}
		c.seed = seed
	}
	return append([]byte(nil), c.seed...), nil
}

// CallIndex returns the next index and rotates the block when it fills.
func (c *Crypto) CallIndex() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.block.Next()
	if c.callsPerBlock > 0 && idx+1 >= c.callsPerBlock {
		c.block.Reset()
		c.seed = nil
	}
	return idx
}
