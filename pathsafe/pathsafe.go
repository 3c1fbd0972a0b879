// Package pathsafe turns untrusted names into safe path components and guards
// relative paths against traversal. It also carries the bounded read helper used when
// consuming responses from third-party services.
package pathsafe

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// MaxResponseBody is the default cap for provider response bodies (1 MiB).
const MaxResponseBody int64 = 1 << 20

// ErrPathTraversal is returned when a user-supplied path escapes its base.
var ErrPathTraversal = errors.New("pathsafe: path traversal detected")

// Sanitize replaces every rune outside [A-Za-z0-9._-] with '_'.
//
// The replacement is one-for-one: a non-empty input never collapses to an
// empty string and the rune count is preserved. Sanitize(Sanitize(x)) equals
// Sanitize(x).
func Sanitize(name string) string {
	var sb strings.Builder
	sb.Grow(len(name))
	for _, r := range name {
		if isSafeRune(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// Component sanitizes name for use as a single directory or file component.
// On top of Sanitize, every dot directly followed by another dot becomes '_'
// and a lone "." becomes "_", so a component can never contain "..". The
// mapping stays one-for-one and idempotent.
func Component(name string) string {
	b := []byte(Sanitize(name))
	for i := 0; i+1 < len(b); i++ {
		if b[i] == '.' && b[i+1] == '.' {
			b[i] = '_'
		}
	}
	if len(b) == 1 && b[0] == '.' {
		b[0] = '_'
	}
	return string(b)
}

// RelPath normalizes a slash-separated path relative to a storage root.
// Backslashes count as separators; leading and repeated slashes and "."
// segments are dropped. Any ".." segment fails with ErrPathTraversal.
func RelPath(rel string) (string, error) {
	parts := strings.Split(strings.ReplaceAll(rel, `\`, "/"), "/")
	out := parts[:0]
	for _, seg := range parts {
		switch seg {
		case "", ".":
			continue
		case "..":
			return "", ErrPathTraversal
		}
		out = append(out, seg)
	}
	return strings.Join(out, "/"), nil
}

// ValidateIdentifier rejects identifiers containing characters outside
// [A-Za-z0-9._-].
func ValidateIdentifier(s string) error {
	if s == "" {
		return fmt.Errorf("pathsafe: identifier must not be empty")
	}
	if len(s) > 256 {
		return fmt.Errorf("pathsafe: identifier too long (max 256)")
	}
	for _, r := range s {
		if !isSafeRune(r) {
			return fmt.Errorf("pathsafe: invalid character %q in identifier", r)
		}
	}
	return nil
}

// LimitedReadAll reads at most maxBytes from r and fails if the limit is exceeded.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	lr := io.LimitReader(r, maxBytes+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("pathsafe: response exceeds %d bytes", maxBytes)
	}
	return data, nil
}

func isSafeRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
}
