package mnist

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
)

const sampleSize = Channels * Rows * Cols

// idxBytes returns a header of headerSize zero bytes followed by payload.
func idxBytes(headerSize int, payload []byte) []byte {
	return append(make([]byte, headerSize), payload...)
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("gzip write failed: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close failed: %v", err)
	}
	return buf.Bytes()
}

// fixtureArchives builds gzipped archives for n training and n test images.
// Pixel values of image i are all byte(i); label i is i%10.
func fixtureArchives(t *testing.T, n int) map[string][]byte {
	t.Helper()
	pixels := make([]byte, 0, n*sampleSize)
	labels := make([]byte, n)
	for i := range n {
		pixels = append(pixels, bytes.Repeat([]byte{byte(i)}, sampleSize)...)
		labels[i] = byte(i % 10)
	}
	images := gzipBytes(t, idxBytes(imageHeaderSize, pixels))
	labs := gzipBytes(t, idxBytes(labelHeaderSize, labels))
	return map[string][]byte{
		TrainImagesFile: images,
		TrainLabelsFile: labs,
		TestImagesFile:  images,
		TestLabelsFile:  labs,
	}
}

// newArchiveServer serves archives by base name and counts requests.
func newArchiveServer(t *testing.T, archives map[string][]byte) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		data, ok := archives[strings.TrimPrefix(r.URL.Path, "/mnist/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestReadImages_Normalizes(t *testing.T) {
	payload := make([]byte, sampleSize)
	payload[0], payload[1], payload[2] = 0, 128, 255
	images, err := ReadImages(bytes.NewReader(idxBytes(imageHeaderSize, payload)))
	if err != nil {
		t.Fatalf("ReadImages error: %v", err)
	}
	if len(images) != sampleSize {
		t.Fatalf("expected %d values, got %d", sampleSize, len(images))
	}
	want := []float32{-1, 0, 0.9921875}
	if !slices.Equal(images[:3], want) {
		t.Fatalf("normalized values = %v, want %v", images[:3], want)
	}
}

func TestReadImages_Truncated(t *testing.T) {
	if _, err := ReadImages(bytes.NewReader(make([]byte, 10))); err == nil {
		t.Fatalf("expected error for data shorter than the header")
	}
	short := idxBytes(imageHeaderSize, make([]byte, sampleSize+5))
	if _, err := ReadImages(bytes.NewReader(short)); err == nil {
		t.Fatalf("expected error for a partial image")
	}
}

func TestReadLabels(t *testing.T) {
	labels, err := ReadLabels(bytes.NewReader(idxBytes(labelHeaderSize, []byte{3, 1, 4, 1, 5})))
	if err != nil {
		t.Fatalf("ReadLabels error: %v", err)
	}
	if !slices.Equal(labels, []int32{3, 1, 4, 1, 5}) {
		t.Fatalf("labels = %v", labels)
	}
	if _, err := ReadLabels(bytes.NewReader([]byte{1, 2})); err == nil {
		t.Fatalf("expected error for truncated label header")
	}
}

// TestLoad_DownloadsOnce verifies the first Load fetches the four archives
// and a second Load served from the cache makes no request at all.
func TestLoad_DownloadsOnce(t *testing.T) {
	srv, requests := newArchiveServer(t, fixtureArchives(t, 3))
	cfg := Config{BaseURL: srv.URL + "/mnist/", Dir: t.TempDir(), HTTPClient: srv.Client()}

	train, test, err := Load(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := requests.Load(); got != 4 {
		t.Fatalf("expected 4 requests, got %d", got)
	}
	if train.Len() != 3 || test.Len() != 3 {
		t.Fatalf("unexpected sizes: train=%d test=%d", train.Len(), test.Len())
	}
	if !slices.Equal(train.Shape(), []int{1, 28, 28}) {
		t.Fatalf("unexpected sample shape %v", train.Shape())
	}
	if train.Label(2) != 2 || train.Sample(2)[0] != normalize(2) {
		t.Fatalf("sample 2 decoded incorrectly: label=%d first=%v", train.Label(2), train.Sample(2)[0])
	}
	for _, name := range Files {
		if _, err := os.Stat(filepath.Join(cfg.Dir, name)); err != nil {
			t.Fatalf("archive %s not cached: %v", name, err)
		}
	}

	if _, _, err := Load(context.Background(), cfg); err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if got := requests.Load(); got != 4 {
		t.Fatalf("second Load made %d extra requests", got-4)
	}
}

func TestDownload_HTTPError(t *testing.T) {
	archives := fixtureArchives(t, 1)
	delete(archives, TestLabelsFile)
	srv, _ := newArchiveServer(t, archives)
	dir := t.TempDir()
	cfg := Config{BaseURL: srv.URL + "/mnist/", Dir: dir, HTTPClient: srv.Client()}

	err := Download(context.Background(), cfg)
	if err == nil {
		t.Fatalf("expected error for a missing archive")
	}
	if _, statErr := os.Stat(filepath.Join(dir, TestLabelsFile)); !os.IsNotExist(statErr) {
		t.Fatalf("failed download left %s behind", TestLabelsFile)
	}
}

func TestLoad_MismatchedArchives(t *testing.T) {
	archives := fixtureArchives(t, 2)
	archives[TrainLabelsFile] = gzipBytes(t, idxBytes(labelHeaderSize, []byte{1, 2, 3}))
	srv, _ := newArchiveServer(t, archives)
	cfg := Config{BaseURL: srv.URL + "/mnist/", Dir: t.TempDir(), HTTPClient: srv.Client()}

	if _, _, err := Load(context.Background(), cfg); err == nil {
		t.Fatalf("expected error when image and label counts differ")
	}
}

func TestLoadStore_NotGzip(t *testing.T) {
	dir := t.TempDir()
	images := filepath.Join(dir, "images.gz")
	labels := filepath.Join(dir, "labels.gz")
	if err := os.WriteFile(images, []byte("not gzip"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := os.WriteFile(labels, gzipBytes(t, idxBytes(labelHeaderSize, nil)), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := LoadStore(images, labels); err == nil {
		t.Fatalf("expected error for a non-gzip archive")
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.BaseURL != DefaultBaseURL || cfg.Dir != "." || cfg.HTTPClient == nil {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}
