package unsub

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// fetchTimeout caps a single unsubscribe GET.
const fetchTimeout = 30 * time.Second

// HTTPFetcher issues real unsubscribe GETs with a fixed timeout.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a fetcher with the standard timeout.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{Timeout: fetchTimeout},
	}
}

// Fetch GETs url and returns the response status code. The body is
// drained and discarded so connections can be reused.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("building request for %s: %w", url, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	return resp.StatusCode, nil
}
