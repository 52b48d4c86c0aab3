package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// FetchKind classifies a failed portal request.
type FetchKind string

const (
	FetchTimeout          FetchKind = "timeout"
	FetchHTTPStatus       FetchKind = "http_status"
	FetchBlocked          FetchKind = "blocked"
	FetchRetriesExhausted FetchKind = "retries_exhausted"
	FetchTransport        FetchKind = "transport"
)

// FetchError is a structured error for a portal request.
type FetchError struct {
	Kind       FetchKind
	URL        string
	StatusCode int
	Attempts   int
	Elapsed    time.Duration
	Cause      error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchHTTPStatus:
		return fmt.Sprintf("%s: %s returned HTTP %d", e.Kind, e.URL, e.StatusCode)
	case FetchBlocked:
		return fmt.Sprintf("%s: %s answered with a captcha challenge", e.Kind, e.URL)
	case FetchRetriesExhausted:
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s failed after %d attempts: %v", e.Kind, e.URL, e.Attempts, e.Cause)
		}
		return fmt.Sprintf("%s: %s failed after %d attempts", e.Kind, e.URL, e.Attempts)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.URL, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.URL)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// ClassifyTransport turns a transport-level error from a single attempt into
// a FetchError of kind FetchTimeout or FetchTransport.
func ClassifyTransport(err error, url string) *FetchError {
	if err == nil {
		return nil
	}
	fe := &FetchError{Kind: FetchTransport, URL: url, Cause: err}
	if errors.Is(err, context.DeadlineExceeded) {
		fe.Kind = FetchTimeout
		return fe
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		fe.Kind = FetchTimeout
	}
	return fe
}

// IsBlocked reports whether err is (or wraps) a captcha block.
func IsBlocked(err error) bool {
	var fe *FetchError
	for errors.As(err, &fe) {
		if fe.Kind == FetchBlocked {
			return true
		}
		err = fe.Cause
		fe = nil
	}
	return false
}

// IsTimeout reports whether the outermost FetchError in err's chain is a timeout.
func IsTimeout(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind == FetchTimeout
	}
	return false
}

// IsFetchRetryable reports whether another attempt could succeed, using the
// code registry.
func IsFetchRetryable(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return IsRetryable(fe.Kind)
	}
	return false
}
