package connectivity

import (
	"fmt"
	"time"
)

// ErrCallTimeout is returned when a call exceeds the Timeout middleware's
// budget.
type ErrCallTimeout struct {
	Service string
	After   time.Duration
	Cause   error
}

func (e *ErrCallTimeout) Error() string {
	return fmt.Sprintf("connectivity: call timeout after %s: %s", e.After, e.Service)
}

func (e *ErrCallTimeout) Unwrap() error { return e.Cause }

// ErrCircuitOpen is returned when the circuit breaker for a service is open,
// rejecting the call without attempting the remote handler.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("connectivity: circuit open: %s", e.Service)
}

// ErrPanic wraps a recovered panic value as an error.
type ErrPanic struct {
	Value any
}

func (e *ErrPanic) Error() string {
	return fmt.Sprintf("connectivity: handler panicked: %v", e.Value)
}

// StatusError is returned by HTTPClient for non-2xx responses.
type StatusError struct {
	URL  string
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256]
	}
	return fmt.Sprintf("connectivity/http: %s: status %d: %s", e.URL, e.Code, body)
}
