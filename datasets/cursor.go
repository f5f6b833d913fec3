package datasets

import "math/rand"

// Variant selects how a Handler walks its Store.
type Variant int

const (
	// Train serves a reshuffled permutation, one index at a time.
	Train Variant = iota
	// Eval serves slices of a permutation shuffled once, padding the last
	// batch of a pass with the head of the permutation.
	Eval
	// FinalEval serves the store in order, each sample followed by its mirror.
	FinalEval
)

func (v Variant) String() string {
	switch v {
	case Train:
		return "train"
	case Eval:
		return "eval"
	case FinalEval:
		return "final"
	}
	return "unknown"
}

// cursor yields the store indices of successive batches. Cursors are not
// safe for concurrent use; a Handler only touches its cursor from the single
// worker in flight, or after joining it.
type cursor interface {
	next() []int
	reset()
}

// trainCursor walks perm one element at a time and reshuffles when it wraps.
type trainCursor struct {
	perm      []int
	pos       int
	batchSize int
	rng       *rand.Rand
}

func newTrainCursor(n, batchSize int, rng *rand.Rand) *trainCursor {
	c := &trainCursor{
		perm:      arange(n),
		batchSize: batchSize,
		rng:       rng,
	}
	c.shuffle()
	return c
}

func (c *trainCursor) shuffle() {
	c.rng.Shuffle(len(c.perm), func(i, j int) {
		c.perm[i], c.perm[j] = c.perm[j], c.perm[i]
	})
}

func (c *trainCursor) next() []int {
	indices := make([]int, c.batchSize)
	for i := range indices {
		indices[i] = c.perm[c.pos]
		c.pos++
		if c.pos == len(c.perm) {
			c.pos = 0
			c.shuffle()
		}
	}
	return indices
}

func (c *trainCursor) reset() {
	c.pos = 0
	c.shuffle()
}

// evalCursor serves contiguous slices of a permutation that is shuffled
// once and then kept for the lifetime of the cursor.
type evalCursor struct {
	perm      []int
	pos       int
	batchSize int
}

// newEvalCursor requires batchSize <= n.
func newEvalCursor(n, batchSize int, rng *rand.Rand) *evalCursor {
	perm := arange(n)
	rng.Shuffle(n, func(i, j int) {
		perm[i], perm[j] = perm[j], perm[i]
	})
	return &evalCursor{perm: perm, batchSize: batchSize}
}

func (c *evalCursor) next() []int {
	n := len(c.perm)
	indices := make([]int, 0, c.batchSize)
	if c.pos+c.batchSize > n {
		// Pad with the head of the same permutation.
		indices = append(indices, c.perm[c.pos:]...)
		needed := c.batchSize - (n - c.pos)
		indices = append(indices, c.perm[:needed]...)
		c.pos = needed
	} else {
		indices = append(indices, c.perm[c.pos:c.pos+c.batchSize]...)
		c.pos += c.batchSize
	}
	if c.pos == n {
		c.pos = 0
	}
	return indices
}

func (c *evalCursor) reset() {
	c.pos = 0
}

// sequentialCursor walks [0, n) in order. When batchSize does not divide n
// the indices wrap modulo n.
type sequentialCursor struct {
	n         int
	pos       int
	batchSize int
}

func newSequentialCursor(n, batchSize int) *sequentialCursor {
	return &sequentialCursor{n: n, batchSize: batchSize}
}

func (c *sequentialCursor) next() []int {
	indices := make([]int, c.batchSize)
	for i := range indices {
		indices[i] = (c.pos + i) % c.n
	}
	c.pos = (c.pos + c.batchSize) % c.n
	return indices
}

func (c *sequentialCursor) reset() {
	c.pos = 0
}
