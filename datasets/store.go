package datasets

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// Store is an immutable in-memory dataset: a flat, sample-major image buffer
// and a parallel label slice. It is safe for concurrent readers, which is how
// handler workers use it.
type Store struct {
	images     []float32
	labels     []int32
	shape      []int
	sampleSize int
}

// NewStore wraps images and labels without copying them. The caller must not
// modify either slice afterwards.
func NewStore(images []float32, labels []int32, shape ...int) (*Store, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	sampleSize := shapeSize(shape)
	if len(images) != len(labels)*sampleSize {
		return nil, fmt.Errorf("images hold %d values, want %d labels x %d per sample = %d",
			len(images), len(labels), sampleSize, len(labels)*sampleSize)
	}
	return &Store{
		images:     images,
		labels:     labels,
		shape:      slices.Clone(shape),
		sampleSize: sampleSize,
	}, nil
}

// Len returns the number of samples.
func (s *Store) Len() int {
	return len(s.labels)
}

// Shape returns a copy of the per-sample shape.
func (s *Store) Shape() []int {
	return slices.Clone(s.shape)
}

// SampleSize returns the number of values in one sample.
func (s *Store) SampleSize() int {
	return s.sampleSize
}

// Sample returns a read-only view of sample i.
func (s *Store) Sample(i int) []float32 {
	return s.images[i*s.sampleSize : (i+1)*s.sampleSize : (i+1)*s.sampleSize]
}

// Label returns the label of sample i.
func (s *Store) Label(i int) int32 {
	return s.labels[i]
}

// Reshape returns a Store sharing the same data with a different per-sample
// shape, e.g. [784, 1] to feed images to a sequence model pixel by pixel.
func (s *Store) Reshape(shape ...int) (*Store, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	if shapeSize(shape) != s.sampleSize {
		return nil, fmt.Errorf("cannot reshape samples of shape %v into %v", s.shape, shape)
	}
	return &Store{
		images:     s.images,
		labels:     s.labels,
		shape:      slices.Clone(shape),
		sampleSize: s.sampleSize,
	}, nil
}

// PixelStats returns the mean and standard deviation over every value in
// the store. Samples are processed one at a time so the float64 working set
// stays small.
func (s *Store) PixelStats() (mean, std float64) {
	n := s.Len()
	if n == 0 {
		return 0, 0
	}
	buf := make([]float64, s.sampleSize)
	means := make([]float64, n)
	secondMoments := make([]float64, n)
	for i := range n {
		for j, v := range s.Sample(i) {
			buf[j] = float64(v)
		}
		m, v := stat.PopMeanVariance(buf, nil)
		means[i] = m
		secondMoments[i] = v + m*m
	}
	// All samples have the same size, so the global moments are plain
	// averages of the per-sample ones.
	mean = stat.Mean(means, nil)
	variance := stat.Mean(secondMoments, nil) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}
