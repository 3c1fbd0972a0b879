package artifact

import (
	"errors"
	"fmt"

	"github.com/hazyhaar/originality/docpipe"
)

// ErrUnsupportedFormat is docpipe's sentinel: the store accepts exactly the
// extensions the extractor can read.
var ErrUnsupportedFormat = docpipe.ErrUnsupportedFormat

// ErrNotFound is returned by Retrieve for a path with no stored artifact.
var ErrNotFound = errors.New("artifact: not found")

// IOError reports a failed backend operation.
type IOError struct {
	Op   string // "mkdir", "write", "rename", "read", "put", "get"
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("artifact: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
