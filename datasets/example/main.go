package main

// Example command that loads MNIST from a local cache (downloading what is
// missing), builds the three handler variants over the explicit stores and
// converts one batch of each into gomlx tensors.
//
// Usage:
//   go run ./datasets/example
//
// The archives are cached under ../data/mnist. Delete them to force a new
// download.

import (
	"context"
	"fmt"
	"log"
	"math/rand"

	"github.com/Noofbiz/mnistfeed/datasets"
	"github.com/Noofbiz/mnistfeed/mnist"
)

func main() {
	cfg := mnist.DefaultConfig()
	cfg.Dir = "../data/mnist"
	trainStore, testStore, err := mnist.Load(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to load MNIST: %v", err)
	}
	fmt.Printf("Training samples: %d, test samples: %d, sample shape: %v\n",
		trainStore.Len(), testStore.Len(), trainStore.Shape())

	// The training handler feeds a sequence model pixel by pixel.
	seqStore, err := trainStore.Reshape(mnist.Rows*mnist.Cols, 1)
	if err != nil {
		log.Fatalf("failed to reshape training set: %v", err)
	}

	rng := rand.New(rand.NewSource(42))
	trainH, err := datasets.NewTrainHandler(seqStore, 64, rng)
	if err != nil {
		log.Fatalf("failed to create train handler: %v", err)
	}
	defer trainH.Close()

	evalH, err := datasets.NewEvalHandler(testStore, 64, rng)
	if err != nil {
		log.Fatalf("failed to create eval handler: %v", err)
	}
	defer evalH.Close()

	finalH, err := datasets.NewFinalEvalHandler(testStore, 32)
	if err != nil {
		log.Fatalf("failed to create final eval handler: %v", err)
	}
	defer finalH.Close()

	for _, src := range []datasets.Source{trainH, evalH, finalH} {
		b := src.GetBatch()
		dataT, labelsT, err := b.ToGomlxTensors()
		if err != nil {
			log.Fatalf("failed to convert %s batch to gomlx tensors: %v", src.Name(), err)
		}
		fmt.Printf("%s: %d batches per pass\n", src.Name(), src.DatasetSizeInBatches())
		fmt.Printf("  Batch shape: %v, first labels: %v\n", b.Shape, b.Labels[:min(8, b.Len())])
		fmt.Printf("  Tensors: data=%s labels=%s\n", dataT.Shape(), labelsT.Shape())
	}

	// One finite pass over the eval handler, as a gomlx evaluation loop would
	// consume it.
	epoch := datasets.Epoch(evalH)
	epoch.Reset()
	n := 0
	for {
		_, _, _, err := epoch.Yield()
		if err != nil {
			break
		}
		n++
	}
	fmt.Printf("%s yielded %d batches\n", epoch.Name(), n)
}
