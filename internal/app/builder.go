package app

import (
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/bft-labs/logship/internal/domain"
	"github.com/bft-labs/logship/internal/ports"
)

// BuilderConfig holds the fixed inputs of every request.
type BuilderConfig struct {
	URL        string
	APIKey     string
	UserAgent  string
	Encoder    ports.BatchEncoder
	Compressor ports.BodyCompressor
}

// RequestBuilder turns batches into delivery requests.
// It has no side effects and is safe for concurrent use.
type RequestBuilder struct {
	url           string
	authorization string
	userAgent     string
	encoder       ports.BatchEncoder
	compressor    ports.BodyCompressor
	newID         func() string
}

// NewRequestBuilder creates a builder. The authorization header is computed once.
func NewRequestBuilder(cfg BuilderConfig) *RequestBuilder {
	return &RequestBuilder{
		url:           cfg.URL,
		authorization: "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.APIKey)),
		userAgent:     cfg.UserAgent,
		encoder:       cfg.Encoder,
		compressor:    cfg.Compressor,
		newID:         uuid.NewString,
	}
}

// Build returns nil for an empty batch, otherwise a POST request whose body
// is the encoded batch.
func (b *RequestBuilder) Build(batch domain.Batch) (*domain.Request, error) {
	if batch.Empty() {
		return nil, nil
	}

	body, err := b.encoder.Encode(batch)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}

	header := make(http.Header, 7)
	header.Set("Authorization", b.authorization)
	header.Set("Content-Type", b.encoder.ContentType())
	header.Set("Accept", "application/json")
	header.Set("User-Agent", b.userAgent)

	if b.compressor != nil {
		body, err = b.compressor.Compress(body)
		if err != nil {
			return nil, fmt.Errorf("compress batch: %w", err)
		}
		header.Set("Content-Encoding", b.compressor.Encoding())
	}

	id := b.newID()
	header.Set("X-Request-Id", id)

	return &domain.Request{
		ID:       id,
		Method:   http.MethodPost,
		URL:      b.url,
		Header:   header,
		Body:     body,
		Messages: batch.Len(),
	}, nil
}
