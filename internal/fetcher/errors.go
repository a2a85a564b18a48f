package fetcher

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/circuitbreaker"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/retry"
)

// ErrBodyTooLarge is returned when a response exceeds Config.MaxBodyBytes.
var ErrBodyTooLarge = errors.New("response body too large")

// ClientError is a 4xx response. It is never retried: the request itself
// or the source configuration is wrong.
type ClientError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("GET %s: client error %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// ServerError is a 5xx response. It is retried.
type ServerError struct {
	URL        string
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("GET %s: server error %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// FetchError is the final failure after every attempt was used.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsClientError reports whether err is, or wraps, a ClientError.
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

// isTransient classifies an attempt error for retrying within one fetch.
// 5xx responses, timeouts, refused and reset connections are transient. An
// open circuit ends the fetch but is left to the job queue to retry.
func isTransient(err error) bool {
	switch {
	case err == nil, retry.IsPermanent(err), IsClientError(err),
		errors.Is(err, ErrBodyTooLarge), errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return false
	default:
		return true
	}
}
