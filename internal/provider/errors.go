package provider

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// ErrNoData marks a structurally valid provider response with zero usable
// rows. It is an outcome, not a failure: the orchestrator advances to the
// next provider without retrying.
var ErrNoData = errors.New("provider returned no data")

// Error is a classified provider failure. Transient errors (429/5xx/network)
// are retry-eligible; everything else skips straight to the next provider in
// the fallback chain.
type Error struct {
	Provider   string
	Status     int
	Transient  bool
	RetryAfter time.Duration
	Msg        string
	Err        error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// NewHTTPError classifies a non-2xx response. 429 and 5xx are transient; the
// Retry-After header, when parseable, becomes a retry hint.
func NewHTTPError(providerName string, resp *http.Response, body []byte) *Error {
	e := &Error{
		Provider:  providerName,
		Status:    resp.StatusCode,
		Transient: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		Msg:       truncate(string(body), 200),
	}
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			e.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return e
}

// NewTransportError wraps a request-level failure (dial, reset, timeout).
// All transport failures are transient.
func NewTransportError(providerName string, err error) *Error {
	return &Error{Provider: providerName, Transient: true, Err: err}
}

// NewDecodeError wraps an unexpected payload shape. Malformed payloads are
// permanent: retrying the same request will not fix the provider's schema.
func NewDecodeError(providerName string, err error) *Error {
	return &Error{Provider: providerName, Err: err, Msg: "unexpected payload shape"}
}

// IsTransient reports whether err is retry-eligible. Raw network errors that
// were not wrapped by an adapter still count as transient.
func IsTransient(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Transient
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// RetryAfterHint extracts the provider-supplied retry delay, if any.
func RetryAfterHint(err error) time.Duration {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
