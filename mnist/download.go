package mnist

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"
)

// Download fetches every archive in Files that is not already in cfg.Dir.
// Nothing is retried; the first failure is returned.
func Download(ctx context.Context, cfg Config) error {
	cfg = cfg.withDefaults()
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir %s: %w", cfg.Dir, err)
	}
	for _, name := range Files {
		path := cfg.path(name)
		if _, err := os.Stat(path); err == nil {
			klog.V(1).Infof("Using cached %s", path)
			continue
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if err := downloadFile(ctx, cfg.HTTPClient, cfg.BaseURL+name, path); err != nil {
			return err
		}
	}
	return nil
}

// downloadFile writes url to path through a temporary file, so an
// interrupted transfer never leaves a partial archive under the final name.
func downloadFile(ctx context.Context, client *http.Client, url, path string) error {
	klog.Infof("Downloading %s", filepath.Base(path))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("failed to download %s: %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move download into %s: %w", path, err)
	}
	klog.V(1).Infof("Saved %s (%s)", path, humanize.Bytes(uint64(n)))
	return nil
}
