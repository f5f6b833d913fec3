package mnist

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
)

// ReadImages decodes an uncompressed idx3 image stream: a 16 byte header
// followed by one unsigned byte per pixel. The header is skipped without
// validation. Values are normalized to (b/256 - 0.5) * 2.
func ReadImages(r io.Reader) ([]float32, error) {
	payload, err := readPayload(r, imageHeaderSize)
	if err != nil {
		return nil, err
	}
	const sampleSize = Channels * Rows * Cols
	if len(payload)%sampleSize != 0 {
		return nil, fmt.Errorf("image payload of %d bytes is not a multiple of %d", len(payload), sampleSize)
	}
	images := make([]float32, len(payload))
	for i, b := range payload {
		images[i] = normalize(b)
	}
	return images, nil
}

// ReadLabels decodes an uncompressed idx1 label stream: an 8 byte header
// followed by one unsigned byte per label.
func ReadLabels(r io.Reader) ([]int32, error) {
	payload, err := readPayload(r, labelHeaderSize)
	if err != nil {
		return nil, err
	}
	labels := make([]int32, len(payload))
	for i, b := range payload {
		labels[i] = int32(b)
	}
	return labels, nil
}

func normalize(b byte) float32 {
	return (float32(b)/256 - 0.5) * 2
}

func readPayload(r io.Reader, headerSize int) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read idx data: %w", err)
	}
	if len(data) < headerSize {
		return nil, fmt.Errorf("idx data truncated: %d bytes, header needs %d", len(data), headerSize)
	}
	return data[headerSize:], nil
}

// readGzipFile opens a gzip file and hands the decompressed stream to decode.
func readGzipFile[T any](path string, decode func(io.Reader) ([]T, error)) ([]T, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	zr, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s: %w", path, err)
	}
	defer zr.Close()

	values, err := decode(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return values, nil
}
