package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// FetchCause classifies why an asset retrieval failed.
type FetchCause string

const (
	FetchTransport  FetchCause = "transport"
	FetchHTTPStatus FetchCause = "http-status"
	FetchIO         FetchCause = "io"
)

// FetchError reports a failed asset retrieval. It carries the source URL,
// never the local destination path.
type FetchError struct {
	URL        string
	Cause      FetchCause
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Cause {
	case FetchHTTPStatus:
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	case FetchIO:
		// Filesystem errors embed the destination path; surface only the
		// error class.
		return fmt.Sprintf("fetch %s: io: %s", e.URL, osErrClass(e.Err))
	default:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Cause, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// osErrClass reduces a filesystem error to its class, keeping workspace
// paths out of caller-facing messages.
func osErrClass(err error) string {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err.Error()
	}
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		return linkErr.Err.Error()
	}
	return err.Error()
}

// FetchService retrieves remote assets into job workspaces.
type FetchService struct {
	httpClient *http.Client
}

// NewFetchService creates a fetch service with the given per-request timeout.
func NewFetchService(timeout time.Duration) *FetchService {
	return &FetchService{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Fetch performs one blocking retrieval of url and writes the full response
// body to dest, overwriting any existing file. No retry happens at this
// layer; retry policy belongs to the caller.
func (fs *FetchService) Fetch(ctx context.Context, url, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return &FetchError{URL: url, Cause: FetchIO, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &FetchError{URL: url, Cause: FetchTransport, Err: err}
	}

	resp, err := fs.httpClient.Do(req)
	if err != nil {
		return &FetchError{URL: url, Cause: FetchTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &FetchError{URL: url, Cause: FetchHTTPStatus, StatusCode: resp.StatusCode}
	}

	out, err := os.Create(dest)
	if err != nil {
		return &FetchError{URL: url, Cause: FetchIO, Err: err}
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return &FetchError{URL: url, Cause: FetchIO, Err: err}
	}

	if err := out.Close(); err != nil {
		return &FetchError{URL: url, Cause: FetchIO, Err: err}
	}

	return nil
}
