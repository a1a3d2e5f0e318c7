// Package chain implements the grow-only segmented buffer that each
// input parser appends records to while reading a single source, and
// the flatten operation that turns it into a contiguous array for
// merge and the counter engine.
package chain

import "github.com/dellard/firecracker/pkt"

// PktsPerChunk is the capacity of a single chunk in a Chain. It
// matches the original firecracker PKTS_PER_CHUNK constant, chosen so
// that a chunk allocation is a reasonably large, cache-friendly unit
// without growing unboundedly for small inputs.
const PktsPerChunk = 256 * 1024

type chunk struct {
	pkts [PktsPerChunk]pkt.Record
	cnt  int
	next *chunk
}

// Chain is a singly linked list of fixed-capacity chunks. A Chain owns
// all of its chunks; once flattened, it can be discarded (or Reset and
// reused) and the chunks become ordinary garbage.
type Chain struct {
	first *chunk
	curr  *chunk
	count int
}

// Count returns the number of records appended to the chain so far.
func (c *Chain) Count() int {
	return c.count
}

// Extend ensures there is room for one more record, allocating a new
// chunk and linking it in if the tail chunk is full or the chain is
// still empty. It returns a pointer to the slot the caller should
// populate; the caller must then call Commit to make the slot count
// toward the chain (or leave it uncommitted, e.g. because a filter
// rejected the record).
func (c *Chain) Extend() *pkt.Record {
	if c.first == nil {
		c.first = &chunk{}
		c.curr = c.first
	} else if c.curr.cnt == PktsPerChunk {
		next := &chunk{}
		c.curr.next = next
		c.curr = next
	}
	return &c.curr.pkts[c.curr.cnt]
}

// Commit records that the slot most recently returned by Extend holds
// a real record, advancing the chunk and chain counts. Callers that
// decide (e.g. via a filter) not to keep the record simply don't call
// Commit, and the next Extend call reuses the same slot.
func (c *Chain) Commit() {
	c.curr.cnt++
	c.count++
}

// Reset discards all chunks, returning the chain to its initial empty
// state so it can be reused for another input source.
func (c *Chain) Reset() {
	c.first = nil
	c.curr = nil
	c.count = 0
}

// Flatten copies every record in the chain, in append order, into a
// single contiguous slice.
func Flatten(c *Chain) []pkt.Record {
	out := make([]pkt.Record, c.count)
	copied := 0
	for cur := c.first; cur != nil; cur = cur.next {
		copied += copy(out[copied:], cur.pkts[:cur.cnt])
	}
	return out
}
