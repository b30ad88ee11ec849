package messaging

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Machine-readable transport error codes, provider-agnostic.
const (
	CodeMalformedContact = "malformed_contact"
	CodeRateLimited      = "rate_limited"
	CodeTimeout          = "timeout"
	CodeNetwork          = "network"
	CodeProvider         = "provider"
)

// TransportError is a failure at the channel boundary. Code and HTTPStatus
// are optional; classification falls back to the wrapped cause.
type TransportError struct {
	Code       string
	HTTPStatus int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("messaging: %s (code=%s http=%d)", e.Message, e.Code, e.HTTPStatus)
	}
	return fmt.Sprintf("messaging: transport error (code=%s http=%d)", e.Code, e.HTTPStatus)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsRetryable classifies a send/status error for the retry policy:
// contact-format errors are permanent; everything else, including errors
// the classifier does not recognize, is retryable. A transient provider
// hiccup must never turn into a permanent failure on the first attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		switch te.Code {
		case CodeMalformedContact:
			return false
		case CodeRateLimited, CodeTimeout, CodeNetwork:
			return true
		}
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return true
}
