package datasets

import "github.com/gomlx/gomlx/pkg/core/tensors"

// This file describes the batch-serving side of the loader.
//
// A Store holds a fully decoded dataset in memory. Handlers own one index
// cursor each and prepare the next batch on a background goroutine while the
// caller trains on the current one:
//
// Train handler
//   - Walks a shuffled permutation one index at a time, reshuffling whenever
//     the permutation is exhausted (a batch may straddle two shuffles).
//
// Eval handler
//   - Shuffles once at construction and serves contiguous slices of that
//     permutation. A batch that overruns the end is padded with the head of
//     the same permutation.
//
// FinalEval handler
//   - Walks the store sequentially and serves every sample next to its
//     horizontally mirrored copy (2 x batch size outputs per call).
//
// Handlers implement gomlx's train.Dataset, so they can be passed straight to
// a gomlx training loop. Use Epoch to stop after a single pass.
type Source interface {
	GetBatch() *Batch
	DatasetSizeInBatches() int

	// To implement gomlx's train.Dataset interface
	Name() string
	Yield() (any, []*tensors.Tensor, []*tensors.Tensor, error)
	Reset()
}
