package ports

import "github.com/bft-labs/logship/internal/domain"

// BatchEncoder encodes an ordered batch into a request body.
// Implementations must preserve message order.
type BatchEncoder interface {
	// ContentType is sent as the Content-Type header.
	ContentType() string

	// Encode returns the body for batch.
	Encode(batch domain.Batch) ([]byte, error)
}

// BodyCompressor applies a content encoding to an encoded body.
type BodyCompressor interface {
	// Encoding is sent as the Content-Encoding header.
	Encoding() string

	// Compress returns the compressed form of body.
	Compress(body []byte) ([]byte, error)
}
