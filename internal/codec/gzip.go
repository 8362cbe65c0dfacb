package codec

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/gzip"
)

// Gzip compresses request bodies with gzip.
type Gzip struct {
	// Level is a gzip compression level; zero means gzip.DefaultCompression.
	Level int
}

func (Gzip) Encoding() string { return "gzip" }

func (g Gzip) Compress(body []byte) ([]byte, error) {
	level := g.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := zw.Write(body); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}
