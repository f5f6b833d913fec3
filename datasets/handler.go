package datasets

import (
	"fmt"
	"io"
	"math/rand"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
)

// Handler serves batches from a Store while the next batch is prepared on a
// background goroutine. At most one worker is in flight at any time.
//
// A Handler is meant for a single consumer (the training loop); its methods
// must not be called concurrently.
type Handler struct {
	store     *Store
	variant   Variant
	batchSize int

	cursor   cursor
	assemble func(*Store, []int) *Batch

	// pending is the result channel of the worker in flight, nil when idle.
	pending chan *Batch
	// slot holds the last joined result until GetBatch hands it out.
	slot   *Batch
	closed bool
}

var (
	_ Source        = (*Handler)(nil)
	_ train.Dataset = (*Handler)(nil)
	_ train.Dataset = (*EpochDataset)(nil)
)

// NewHandler builds a handler of the given variant and primes it: the first
// batch is prepared before NewHandler returns. rng seeds shuffling for the
// Train and Eval variants; if nil a time-seeded generator is used. The
// handler never keeps rng, so one generator may seed several handlers.
func NewHandler(store *Store, variant Variant, batchSize int, rng *rand.Rand) (*Handler, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	n := store.Len()
	if n == 0 {
		return nil, fmt.Errorf("store has no samples")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be > 0, got %d", batchSize)
	}

	h := &Handler{
		store:     store,
		variant:   variant,
		batchSize: batchSize,
		assemble:  assemble,
	}
	switch variant {
	case Train:
		h.cursor = newTrainCursor(n, batchSize, newRand(rng))
	case Eval:
		if batchSize > n {
			return nil, fmt.Errorf("eval batch size %d exceeds dataset size %d", batchSize, n)
		}
		h.cursor = newEvalCursor(n, batchSize, newRand(rng))
	case FinalEval:
		h.cursor = newSequentialCursor(n, batchSize)
		h.assemble = assembleMirrored
	default:
		return nil, fmt.Errorf("unknown handler variant %d", variant)
	}

	h.dispatch()
	h.join()
	return h, nil
}

// NewTrainHandler returns a Train handler over store.
func NewTrainHandler(store *Store, batchSize int, rng *rand.Rand) (*Handler, error) {
	return NewHandler(store, Train, batchSize, rng)
}

// NewEvalHandler returns an Eval handler over store.
func NewEvalHandler(store *Store, batchSize int, rng *rand.Rand) (*Handler, error) {
	return NewHandler(store, Eval, batchSize, rng)
}

// NewFinalEvalHandler returns a FinalEval handler over store. Its batches
// hold 2*batchSize samples.
func NewFinalEvalHandler(store *Store, batchSize int) (*Handler, error) {
	return NewHandler(store, FinalEval, batchSize, nil)
}

// dispatch starts a worker preparing the next batch.
func (h *Handler) dispatch() {
	if h.pending != nil {
		panic("datasets: dispatch called while a worker is outstanding")
	}
	result := make(chan *Batch, 1)
	h.pending = result
	store, cur, assembleFn := h.store, h.cursor, h.assemble
	go func() {
		result <- assembleFn(store, cur.next())
	}()
}

// join blocks until the outstanding worker finishes and stores its batch in
// the result slot.
func (h *Handler) join() {
	if h.pending == nil {
		panic("datasets: join called with no outstanding worker")
	}
	h.slot = <-h.pending
	h.pending = nil
}

// GetBatch returns the prepared batch and starts preparing the following
// one. It blocks while the previous worker is still copying. The returned
// Batch is never written to again by the handler.
func (h *Handler) GetBatch() *Batch {
	if h.closed {
		panic("datasets: GetBatch called on a closed handler")
	}
	if h.pending != nil {
		h.join()
	}
	b := h.slot
	h.slot = nil
	h.dispatch()
	return b
}

// DatasetSizeInBatches returns how many batches make up one pass over the
// store (integer division, so a partial trailing batch is not counted).
func (h *Handler) DatasetSizeInBatches() int {
	return h.store.Len() / h.batchSize
}

// BatchSize returns the number of store samples drawn per batch. FinalEval
// batches hold twice as many outputs.
func (h *Handler) BatchSize() int {
	return h.batchSize
}

// Variant returns the handler variant.
func (h *Handler) Variant() Variant {
	return h.variant
}

// Close waits for the outstanding worker, if any. The handler cannot serve
// batches afterwards.
func (h *Handler) Close() {
	if h.pending != nil {
		h.join()
	}
	h.slot = nil
	h.closed = true
}

// Name implements train.Dataset.
func (h *Handler) Name() string {
	return fmt.Sprintf("mnist-%s [batch %d]", h.variant, h.batchSize)
}

// Yield implements train.Dataset. It never returns io.EOF; wrap the handler
// with Epoch for a finite pass.
func (h *Handler) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	data, lab, err := h.GetBatch().ToGomlxTensors()
	if err != nil {
		return nil, nil, nil, err
	}
	return nil, []*tensors.Tensor{data}, []*tensors.Tensor{lab}, nil
}

// Reset implements train.Dataset. The outstanding batch is discarded, the
// cursor goes back to the start of a pass (Train also reshuffles) and the
// handler is primed again.
func (h *Handler) Reset() {
	if h.closed {
		panic("datasets: Reset called on a closed handler")
	}
	if h.pending != nil {
		h.join()
	}
	h.slot = nil
	h.cursor.reset()
	h.dispatch()
	h.join()
}

// EpochDataset yields exactly one pass (DatasetSizeInBatches batches) of a
// Handler and then io.EOF until Reset.
type EpochDataset struct {
	h     *Handler
	count int
}

// Epoch wraps h so gomlx evaluation loops terminate after one pass.
func Epoch(h *Handler) *EpochDataset {
	return &EpochDataset{h: h}
}

// Name implements train.Dataset.
func (e *EpochDataset) Name() string {
	return fmt.Sprintf("%s [epoch]", e.h.Name())
}

// Yield implements train.Dataset.
func (e *EpochDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if e.count >= e.h.DatasetSizeInBatches() {
		return nil, nil, nil, io.EOF
	}
	e.count++
	return e.h.Yield()
}

// Reset implements train.Dataset.
func (e *EpochDataset) Reset() {
	e.h.Reset()
	e.count = 0
}
