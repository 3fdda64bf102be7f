package lexware

import (
	"errors"
	"fmt"
	"net/http"

	"invoicesync/internal/models"
)

var (
	// ErrMissingCredentials is returned before any request when no API key is configured.
	ErrMissingCredentials = errors.New("lexware api key is not configured")

	// ErrNotAvailable means the invoice document has not been rendered yet.
	ErrNotAvailable = errors.New("invoice document is not available yet")
)

// TransportError wraps network and timeout failures.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("lexware %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError is a non-2xx answer from the accounting API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lexware api error %d: %s", e.Status, e.Message)
}

// Temporary reports statuses that usually resolve on their own.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// ErrorKind classifies failures for reporting.
type ErrorKind string

const (
	KindNone          ErrorKind = ""
	KindConfiguration ErrorKind = "configuration"
	KindTransport     ErrorKind = "transport"
	KindAPI           ErrorKind = "api"
	KindNotAvailable  ErrorKind = "not_available"
	KindPrecondition  ErrorKind = "precondition"
	KindInternal      ErrorKind = "internal"
)

// KindOf maps an error returned by this package or the processor to its kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var (
		apiErr       *APIError
		transportErr *TransportError
	)
	switch {
	case errors.Is(err, ErrMissingCredentials):
		return KindConfiguration
	case errors.Is(err, ErrNotAvailable):
		return KindNotAvailable
	case errors.As(err, &apiErr):
		return KindAPI
	case errors.As(err, &transportErr):
		return KindTransport
	case errors.Is(err, models.ErrNoInvoice), errors.Is(err, models.ErrOrderNotFound):
		return KindPrecondition
	default:
		return KindInternal
	}
}

// IsTemporary reports failures that usually clear up by the next attempt:
// transport errors, rate limiting and server-side API errors.
func IsTemporary(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}

// IsNotFound reports a 404 from the accounting API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
