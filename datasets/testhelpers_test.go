package datasets

import (
	"math/rand"
	"testing"
)

// newTestStore builds a store of n samples where every value of sample i is
// derived from i (i*1000 + position) and the label of sample i is i, so a
// copied row can be traced back to its source.
func newTestStore(t *testing.T, n int, shape ...int) *Store {
	t.Helper()
	size := shapeSize(shape)
	images := make([]float32, n*size)
	labels := make([]int32, n)
	for i := range n {
		for j := range size {
			images[i*size+j] = float32(i*1000 + j)
		}
		labels[i] = int32(i)
	}
	s, err := NewStore(images, labels, shape...)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return s
}

func seeded(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// mustPanic fails the test unless fn panics.
func mustPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("%s: expected panic, got none", name)
		}
	}()
	fn()
}
