package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/hazyhaar/originality/connectivity"
)

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	KindAuth      ErrorKind = "auth"
	KindNetwork   ErrorKind = "network"
	KindTimeout   ErrorKind = "timeout"
	KindMalformed ErrorKind = "malformed"
	KindStatus    ErrorKind = "status"
)

// ProviderError is returned by external providers. The engine absorbs it by
// falling back to the local heuristic.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("scoring: %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ErrMissingCredential is wrapped in a KindAuth ProviderError when an external
// provider is configured without an API key.
var ErrMissingCredential = errors.New("missing API credential")

// ErrScanNotFound is returned by ScanTracker for unknown scan IDs.
var ErrScanNotFound = errors.New("scoring: scan not found")

// classify wraps a transport error into a ProviderError of the right kind.
func classify(provider string, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	kind := KindNetwork
	var se *connectivity.StatusError
	var syn *json.SyntaxError
	var typ *json.UnmarshalTypeError
	switch {
	case errors.As(err, &se):
		kind = KindStatus
		if se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden {
			kind = KindAuth
		}
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &syn), errors.As(err, &typ):
		kind = KindMalformed
	}
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

func malformed(provider, format string, args ...any) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindMalformed, Err: fmt.Errorf(format, args...)}
}
