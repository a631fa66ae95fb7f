package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// UpstreamError means a dump could not be fetched or is not a valid
// container. Any upstream failure aborts the whole import.
type UpstreamError struct {
	URL    string
	Reason string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream dump %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("upstream dump %s: %s", e.URL, e.Reason)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Fetcher downloads raw measurement dumps. Transient failures (network
// errors, 5xx) are retried with exponential back-off; the struct is safe
// for concurrent use since its fields are immutable after construction.
type Fetcher struct {
	http       *http.Client
	maxRetries int
	baseDelay  time.Duration
}

// NewFetcher creates a Fetcher with the given per-request timeout and retry
// budget.
func NewFetcher(timeout time.Duration, maxRetries int) *Fetcher {
	return &Fetcher{
		http: &http.Client{
			Timeout: timeout,
		},
		maxRetries: maxRetries,
		baseDelay:  500 * time.Millisecond,
	}
}

// FetchDump downloads one dump and returns its raw records. The container
// must be a JSON object whose "data" field holds an array; anything else is
// an UpstreamError.
func (f *Fetcher) FetchDump(ctx context.Context, url string) ([]json.RawMessage, error) {
	body, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var container struct {
		Data *[]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &container); err != nil {
		return nil, &UpstreamError{URL: url, Reason: "container is not valid JSON", Err: err}
	}
	if container.Data == nil {
		return nil, &UpstreamError{URL: url, Reason: "container has no data array"}
	}
	return *container.Data, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &UpstreamError{URL: url, Reason: "building request", Err: err}
	}

	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			delay := f.baseDelay * (1 << uint(attempt-1))
			select {
			case <-ctx.Done():
				return nil, &UpstreamError{URL: url, Reason: "fetch cancelled", Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		resp, err := f.http.Do(req.Clone(ctx))
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			// Drain so the connection can be reused by the retry.
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &UpstreamError{URL: url, Reason: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
		}
		return body, nil
	}

	return nil, &UpstreamError{URL: url, Reason: fmt.Sprintf("all %d attempts failed", f.maxRetries+1), Err: lastErr}
}
