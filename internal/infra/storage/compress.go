package storage

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"

	"firmadoc/internal/domain"
)

const (
	AlgorithmNone   = "none"
	AlgorithmBrotli = "brotli"
	AlgorithmGzip   = "gzip"

	// DefaultThreshold is the size below which content is stored as-is.
	// Compressing tiny documents costs CPU for nothing.
	DefaultThreshold = 100 * 1024
)

type CompressionResult struct {
	Compressed []byte
	Info       domain.CompressionInfo
}

type Compressor struct {
	Threshold int
}

func NewCompressor(threshold int) *Compressor {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Compressor{Threshold: threshold}
}

// Compress applies the requested algorithm when content exceeds the
// threshold. Below it the content passes through with algorithm "none".
func (c *Compressor) Compress(content []byte, algorithm string) (*CompressionResult, error) {
	originalSize := int64(len(content))
	if len(content) < c.Threshold {
		return &CompressionResult{
			Compressed: content,
			Info: domain.CompressionInfo{
				Algorithm:      AlgorithmNone,
				OriginalSize:   originalSize,
				CompressedSize: originalSize,
				Ratio:          1.0,
			},
		}, nil
	}

	var buf bytes.Buffer
	switch algorithm {
	case AlgorithmBrotli:
		w := brotli.NewWriterLevel(&buf, brotli.BestCompression)
		if _, err := w.Write(content); err != nil {
			return nil, fmt.Errorf("brotli compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("brotli close: %w", err)
		}
	case AlgorithmGzip:
		w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
		if err != nil {
			return nil, fmt.Errorf("gzip init: %w", err)
		}
		if _, err := w.Write(content); err != nil {
			return nil, fmt.Errorf("gzip compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("gzip close: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported compression algorithm %q", domain.ErrValidation, algorithm)
	}

	compressed := buf.Bytes()
	return &CompressionResult{
		Compressed: compressed,
		Info: domain.CompressionInfo{
			Algorithm:      algorithm,
			OriginalSize:   originalSize,
			CompressedSize: int64(len(compressed)),
			Ratio:          float64(originalSize) / float64(len(compressed)),
		},
	}, nil
}

// Decompress reverses Compress using the algorithm recorded at store
// time.
func (c *Compressor) Decompress(content []byte, algorithm string) ([]byte, error) {
	switch algorithm {
	case AlgorithmNone, "":
		return content, nil
	case AlgorithmBrotli:
		out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(content)))
		if err != nil {
			return nil, fmt.Errorf("brotli decompress: %w", err)
		}
		return out, nil
	case AlgorithmGzip:
		r, err := gzip.NewReader(bytes.NewReader(content))
		if err != nil {
			return nil, fmt.Errorf("gzip decompress: %w", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("gzip decompress: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported compression algorithm %q", domain.ErrValidation, algorithm)
	}
}
