package datasets

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// shapeSize returns the number of elements described by shape.
func shapeSize(shape []int) int {
	size := 1
	for _, d := range shape {
		size *= d
	}
	return size
}

// arange returns [0, 1, ..., n-1].
func arange(n int) []int {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return indices
}

func validateShape(shape []int) error {
	if len(shape) == 0 {
		return fmt.Errorf("sample shape must have at least one dimension")
	}
	for i, d := range shape {
		if d <= 0 {
			return fmt.Errorf("sample shape %v: dimension %d must be positive, got %d", shape, i, d)
		}
	}
	return nil
}

// newRand returns a generator private to one cursor, seeded from rng (or
// from the clock when rng is nil). Workers shuffle on their own goroutine,
// so a caller's *rand.Rand is only read here, on the constructing goroutine.
func newRand(rng *rand.Rand) *rand.Rand {
	if rng != nil {
		return rand.New(rand.NewSource(rng.Int63()))
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// ParseVariant parses the names accepted on the command line ("train",
// "eval", "final").
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "train", "training":
		return Train, nil
	case "eval", "test", "evaluation":
		return Eval, nil
	case "final", "finaltest", "final-eval", "final_eval":
		return FinalEval, nil
	}
	return 0, fmt.Errorf("unknown handler variant %q", s)
}
