// Package idgen provides pluggable ID generation.
//
// Components that name things (artifact store, scan tracker, orchestrator)
// accept a Generator so tests can pin identifiers while production uses
// crypto-random tokens or UUIDv7.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// HexToken returns a Generator producing nBytes of crypto/rand entropy,
// hex-encoded (2*nBytes characters).
func HexToken(nBytes int) Generator {
	return func() string {
		buf := make([]byte, nBytes)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		return hex.EncodeToString(buf)
	}
}

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Sequence returns a deterministic Generator yielding ids in order, then
// falling back to "<last>-<n>" once exhausted. Meant for tests.
func Sequence(ids ...string) Generator {
	i := 0
	return func() string {
		if i < len(ids) {
			id := ids[i]
			i++
			return id
		}
		i++
		last := "id"
		if len(ids) > 0 {
			last = ids[len(ids)-1]
		}
		return fmt.Sprintf("%s-%d", last, i)
	}
}

// Default is UUIDv7: time-sortable, globally unique.
var Default Generator = UUIDv7()
