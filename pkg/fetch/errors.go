package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies why a fetch failed. Every kind is recoverable: the URL is
// left for a later attempt.
type Kind int

const (
	KindConnection Kind = iota
	KindTimeout
	KindHTTPStatus
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindHTTPStatus:
		return "http_status"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "connection"
	}
}

// FetchError is returned by Fetcher.Fetch for any non-2xx outcome.
type FetchError struct {
	Kind   Kind
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindHTTPStatus, KindRateLimited:
		return fmt.Sprintf("fetch %s: %s (status %d)", e.URL, e.Kind, e.Status)
	default:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err is an HTTP 429 from the remote server.
func IsRateLimited(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == KindRateLimited
}

func classifyTransport(url string, err error) *FetchError {
	kind := KindConnection
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &FetchError{Kind: kind, URL: url, Err: err}
}

func classifyStatus(url string, status int) *FetchError {
	kind := KindHTTPStatus
	if status == http.StatusTooManyRequests {
		kind = KindRateLimited
	}
	return &FetchError{Kind: kind, URL: url, Status: status}
}
