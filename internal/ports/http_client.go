package ports

import "net/http"

// HTTPClient sends one prepared request. *http.Client satisfies it; tests
// inject fakes or an httptest server's client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

var _ HTTPClient = (*http.Client)(nil)
