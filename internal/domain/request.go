package domain

import "net/http"

// Request is an encoded batch ready for delivery.
// A Request is immutable once built, except for Attempts, which is only
// touched by the delivery worker that currently owns it.
type Request struct {
	// ID identifies the request across retries.
	ID string

	// Method is the HTTP method, always POST for batches.
	Method string

	// URL is the collector endpoint.
	URL string

	// Header carries authorization, content type, and user agent.
	Header http.Header

	// Body is the encoded (and possibly compressed) batch.
	Body []byte

	// Messages is the number of messages encoded in Body.
	Messages int

	// Attempts counts failed delivery attempts so far.
	Attempts int
}
