// Package mnist downloads and decodes the four MNIST idx archives into
// normalized in-memory datasets.Store values.
//
// Files are cached by name in Config.Dir; a file already present is never
// fetched again. Pixels are rescaled from bytes to (b/256 - 0.5) * 2, so they
// lie in [-1, 1-2/256].
package mnist

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/Noofbiz/mnistfeed/datasets"
)

// DefaultBaseURL is where the archives are fetched from unless Config.BaseURL
// is set.
const DefaultBaseURL = "http://yann.lecun.com/exdb/mnist/"

// Fixed archive names.
const (
	TrainImagesFile = "train-images-idx3-ubyte.gz"
	TrainLabelsFile = "train-labels-idx1-ubyte.gz"
	TestImagesFile  = "t10k-images-idx3-ubyte.gz"
	TestLabelsFile  = "t10k-labels-idx1-ubyte.gz"
)

// Files lists the archives in download order.
var Files = []string{TrainImagesFile, TrainLabelsFile, TestImagesFile, TestLabelsFile}

// Image geometry. Samples are shaped [Channels, Rows, Cols].
const (
	Channels = 1
	Rows     = 28
	Cols     = 28

	imageHeaderSize = 16
	labelHeaderSize = 8
)

// Config controls where archives come from and where they are cached.
type Config struct {
	// BaseURL is prefixed to each file name. Defaults to DefaultBaseURL.
	BaseURL string

	// Dir is the local cache directory. Defaults to the working directory.
	Dir string

	// HTTPClient is used for downloads. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// DefaultConfig returns a Config with every field set to its default.
func DefaultConfig() Config {
	return Config{
		BaseURL:    DefaultBaseURL,
		Dir:        ".",
		HTTPClient: http.DefaultClient,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = def.BaseURL
	}
	if c.Dir == "" {
		c.Dir = def.Dir
	}
	if c.HTTPClient == nil {
		c.HTTPClient = def.HTTPClient
	}
	return c
}

func (c Config) path(name string) string {
	return filepath.Join(c.Dir, name)
}

// Load downloads any missing archive and decodes the training and test sets.
func Load(ctx context.Context, cfg Config) (train, test *datasets.Store, err error) {
	cfg = cfg.withDefaults()
	if err := Download(ctx, cfg); err != nil {
		return nil, nil, err
	}
	train, err = LoadStore(cfg.path(TrainImagesFile), cfg.path(TrainLabelsFile))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load training set: %w", err)
	}
	test, err = LoadStore(cfg.path(TestImagesFile), cfg.path(TestLabelsFile))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load test set: %w", err)
	}
	return train, test, nil
}

// LoadStore decodes one images/labels archive pair from local files.
func LoadStore(imagesPath, labelsPath string) (*datasets.Store, error) {
	images, err := readGzipFile(imagesPath, ReadImages)
	if err != nil {
		return nil, err
	}
	labels, err := readGzipFile(labelsPath, ReadLabels)
	if err != nil {
		return nil, err
	}
	store, err := datasets.NewStore(images, labels, Channels, Rows, Cols)
	if err != nil {
		return nil, fmt.Errorf("%s and %s do not match: %w", imagesPath, labelsPath, err)
	}
	return store, nil
}
