package main

// batchfeed loads MNIST, drives one prefetching handler the way a training
// loop would and reports how long each GetBatch call waited for its worker.
//
// Usage:
//   go run ./cmd/batchfeed -variant train -batch-size 128 -steps 200 -step-delay 5ms
//
// A JSON file passed with -config may set any of the options below; flags
// given explicitly on the command line take precedence over the file.

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"k8s.io/klog/v2"

	"github.com/Noofbiz/mnistfeed/datasets"
	"github.com/Noofbiz/mnistfeed/mnist"
)

// runConfig is the effective configuration, merged from -config and flags.
type runConfig struct {
	BaseURL   string `json:"base_url"`
	Dir       string `json:"dir"`
	Variant   string `json:"variant"`
	BatchSize int    `json:"batch_size"`
	Steps     int    `json:"steps"`
	Seed      int64  `json:"seed"`
	StepDelay string `json:"step_delay"`
	Sequence  bool   `json:"sequence"`
	Plot      string `json:"plot"`
	LogEvery  int    `json:"log_every"`
}

func main() {
	cfg := runConfig{}
	flag.StringVar(&cfg.BaseURL, "base-url", mnist.DefaultBaseURL, "base URL the MNIST archives are downloaded from")
	flag.StringVar(&cfg.Dir, "dir", "data/mnist", "directory the archives are cached in")
	flag.StringVar(&cfg.Variant, "variant", "train", "handler variant: train, eval or final")
	flag.IntVar(&cfg.BatchSize, "batch-size", 128, "samples drawn per batch (final doubles the output)")
	flag.IntVar(&cfg.Steps, "steps", 0, "number of batches to fetch (0 = one pass)")
	flag.Int64Var(&cfg.Seed, "seed", time.Now().UnixNano(), "random seed for shuffling")
	flag.StringVar(&cfg.StepDelay, "step-delay", "0s", "simulated training time per step (e.g. 5ms)")
	flag.BoolVar(&cfg.Sequence, "sequence", false, "reshape images to [784, 1] pixel sequences")
	flag.StringVar(&cfg.Plot, "plot", "plots/labels.png", "write a histogram of served labels to this PNG (empty to skip)")
	flag.IntVar(&cfg.LogEvery, "log-every", 50, "log wait statistics every N steps")
	configPath := flag.String("config", "", "optional JSON file with the options above")
	printEffectiveConfig := flag.Bool("print-effective-config", false, "print the effective (JSON+CLI merged) configuration and exit")
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	if *configPath != "" {
		if err := applyConfigFile(&cfg, *configPath); err != nil {
			log.Fatalf("failed to load config %s: %v", *configPath, err)
		}
		log.Printf("Loaded config from %s", *configPath)
	}
	if *printEffectiveConfig {
		out, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			log.Fatalf("failed to encode config: %v", err)
		}
		fmt.Println(string(out))
		return
	}

	variant, err := datasets.ParseVariant(cfg.Variant)
	if err != nil {
		log.Fatalf("invalid -variant: %v", err)
	}
	stepDelay, err := time.ParseDuration(cfg.StepDelay)
	if err != nil {
		log.Fatalf("invalid -step-delay: %v", err)
	}

	mcfg := mnist.DefaultConfig()
	mcfg.BaseURL = cfg.BaseURL
	mcfg.Dir = cfg.Dir
	start := time.Now()
	trainStore, testStore, err := mnist.Load(context.Background(), mcfg)
	if err != nil {
		log.Fatalf("failed to load MNIST: %v", err)
	}
	log.Printf("Loaded MNIST in %s: train=%s test=%s samples",
		time.Since(start).Round(time.Millisecond),
		humanize.Comma(int64(trainStore.Len())), humanize.Comma(int64(testStore.Len())))

	store := testStore
	if variant == datasets.Train {
		store = trainStore
	}
	if cfg.Sequence {
		if store, err = store.Reshape(mnist.Channels*mnist.Rows*mnist.Cols, 1); err != nil {
			log.Fatalf("failed to reshape samples: %v", err)
		}
	}
	mean, std := store.PixelStats()
	log.Printf("Pixel stats: mean=%.4f std=%.4f shape=%v", mean, std, store.Shape())

	h, err := datasets.NewHandler(store, variant, cfg.BatchSize, rand.New(rand.NewSource(cfg.Seed)))
	if err != nil {
		log.Fatalf("failed to create %s handler: %v", variant, err)
	}
	defer h.Close()

	steps, err := resolveSteps(cfg.Steps, h.DatasetSizeInBatches())
	if err != nil {
		log.Fatalf("nothing to serve: %v", err)
	}
	log.Printf("Serving %d %s batches (%d per pass)", steps, variant, h.DatasetSizeInBatches())

	counts, totalWait := serve(h, steps, stepDelay, cfg.LogEvery)
	log.Printf("Done: %d steps, total wait %s, avg wait %s",
		steps, totalWait.Round(time.Microsecond), (totalWait / time.Duration(steps)).Round(time.Microsecond))

	if cfg.Plot != "" {
		if err := plotLabels(cfg.Plot, counts, variant); err != nil {
			log.Fatalf("failed to write label plot: %v", err)
		}
		log.Printf("Wrote label histogram to %s", cfg.Plot)
	}
}

// resolveSteps returns the number of batches to fetch: requested when
// positive, otherwise one pass. A pass of zero batches (a final-evaluation
// store smaller than the batch size) is an error.
func resolveSteps(requested, perPass int) (int, error) {
	steps := requested
	if steps <= 0 {
		steps = perPass
	}
	if steps <= 0 {
		return 0, fmt.Errorf("one pass is %d batches; pass -steps or lower -batch-size", perPass)
	}
	return steps, nil
}

// serve fetches steps batches from src the way a training loop would,
// sleeping stepDelay after each one, and returns the label histogram and the
// total time spent waiting in GetBatch.
func serve(src datasets.Source, steps int, stepDelay time.Duration, logEvery int) (counts [10]float64, totalWait time.Duration) {
	var windowWait time.Duration
	for step := 1; step <= steps; step++ {
		t0 := time.Now()
		b := src.GetBatch()
		wait := time.Since(t0)
		totalWait += wait
		windowWait += wait

		for _, l := range b.Labels {
			if l >= 0 && int(l) < len(counts) {
				counts[l]++
			}
		}
		if stepDelay > 0 {
			time.Sleep(stepDelay)
		}
		if logEvery > 0 && step%logEvery == 0 {
			log.Printf("[batchfeed] %s step %d/%d: avg wait %s over last %d steps",
				src.Name(), step, steps, (windowWait / time.Duration(logEvery)).Round(time.Microsecond), logEvery)
			windowWait = 0
		}
	}
	return counts, totalWait
}

// applyConfigFile overlays the JSON file onto cfg for every option that was
// not set explicitly on the command line.
func applyConfigFile(cfg *runConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	fileCfg := *cfg
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	explicit := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	if !explicit["base-url"] {
		cfg.BaseURL = fileCfg.BaseURL
	}
	if !explicit["dir"] {
		cfg.Dir = fileCfg.Dir
	}
	if !explicit["variant"] {
		cfg.Variant = fileCfg.Variant
	}
	if !explicit["batch-size"] {
		cfg.BatchSize = fileCfg.BatchSize
	}
	if !explicit["steps"] {
		cfg.Steps = fileCfg.Steps
	}
	if !explicit["seed"] {
		cfg.Seed = fileCfg.Seed
	}
	if !explicit["step-delay"] {
		cfg.StepDelay = fileCfg.StepDelay
	}
	if !explicit["sequence"] {
		cfg.Sequence = fileCfg.Sequence
	}
	if !explicit["plot"] {
		cfg.Plot = fileCfg.Plot
	}
	if !explicit["log-every"] {
		cfg.LogEvery = fileCfg.LogEvery
	}
	return nil
}

// plotLabels writes a bar chart with the number of times each digit was served.
func plotLabels(outPath string, counts [10]float64, variant datasets.Variant) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Labels served by the %s handler", variant)
	p.X.Label.Text = "digit"
	p.Y.Label.Text = "count"

	bars, err := plotter.NewBarChart(plotter.Values(counts[:]), vg.Points(18))
	if err != nil {
		return err
	}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.Add(plotter.NewGrid())

	names := make([]string, len(counts))
	for i := range names {
		names[i] = strconv.Itoa(i)
	}
	p.NominalX(names...)

	if err := ensureDir(filepath.Dir(outPath)); err != nil {
		return err
	}
	return p.Save(6*vg.Inch, 4*vg.Inch, outPath)
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
