package datasets

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Batch stores one minibatch in flat contiguous buffers. Each Batch is freshly
// allocated by a worker and owned by the caller of GetBatch once returned.
type Batch struct {
	// Data holds Len() samples back to back.
	Data []float32

	// Labels holds one label per sample.
	Labels []int32

	// Shape is [Len(), sample dims...].
	Shape []int

	// Indices are the Store indices the samples were copied from. Mirrored
	// samples repeat the index of their original.
	Indices []int
}

// Len returns the number of samples in the batch.
func (b *Batch) Len() int {
	return len(b.Labels)
}

// SampleSize returns the number of values per sample.
func (b *Batch) SampleSize() int {
	if len(b.Shape) < 2 {
		return 0
	}
	return shapeSize(b.Shape[1:])
}

// Sample returns a view of sample i.
func (b *Batch) Sample(i int) []float32 {
	size := b.SampleSize()
	return b.Data[i*size : (i+1)*size]
}

func newBatch(s *Store, n int) *Batch {
	shape := make([]int, 0, 1+len(s.shape))
	shape = append(shape, n)
	shape = append(shape, s.shape...)
	return &Batch{
		Data:    make([]float32, n*s.sampleSize),
		Labels:  make([]int32, n),
		Shape:   shape,
		Indices: make([]int, n),
	}
}

// assemble copies the selected rows of s into a new Batch.
func assemble(s *Store, indices []int) *Batch {
	b := newBatch(s, len(indices))
	for i, idx := range indices {
		copy(b.Data[i*s.sampleSize:], s.Sample(idx))
		b.Labels[i] = s.labels[idx]
		b.Indices[i] = idx
	}
	return b
}

// assembleMirrored returns 2*len(indices) samples: even positions hold the
// selected sample, odd positions the same sample reversed along its last
// axis. Both carry the same label.
func assembleMirrored(s *Store, indices []int) *Batch {
	b := newBatch(s, 2*len(indices))
	width := s.shape[len(s.shape)-1]
	for i, idx := range indices {
		src := s.Sample(idx)
		even := b.Data[2*i*s.sampleSize : (2*i+1)*s.sampleSize]
		odd := b.Data[(2*i+1)*s.sampleSize : (2*i+2)*s.sampleSize]
		copy(even, src)
		mirrorRows(odd, src, width)
		b.Labels[2*i], b.Labels[2*i+1] = s.labels[idx], s.labels[idx]
		b.Indices[2*i], b.Indices[2*i+1] = idx, idx
	}
	return b
}

// mirrorRows writes src into dst with every run of width values reversed.
func mirrorRows(dst, src []float32, width int) {
	for row := 0; row < len(src); row += width {
		for x := range width {
			dst[row+x] = src[row+width-1-x]
		}
	}
}

// ToGomlxTensors converts the batch to gomlx tensors: data shaped Shape
// (float32) and labels shaped [Len()] (int32).
func (b *Batch) ToGomlxTensors() (*tensors.Tensor, *tensors.Tensor, error) {
	if b.Len() == 0 {
		return nil, nil, fmt.Errorf("cannot convert an empty batch")
	}
	if len(b.Data) != shapeSize(b.Shape) {
		return nil, nil, fmt.Errorf("batch data has %d values, shape %v needs %d",
			len(b.Data), b.Shape, shapeSize(b.Shape))
	}
	if b.Shape[0] != b.Len() {
		return nil, nil, fmt.Errorf("batch shape %v does not match %d labels", b.Shape, b.Len())
	}
	dataT := tensors.FromFlatDataAndDimensions(b.Data, b.Shape...)
	labelsT := tensors.FromFlatDataAndDimensions(b.Labels, b.Len())
	return dataT, labelsT, nil
}
