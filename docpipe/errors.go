package docpipe

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is the sentinel matched by errors.Is for any file whose
// extension is not in the supported set.
var ErrUnsupportedFormat = errors.New("unsupported format")

// UnsupportedFormatError carries the rejected extension.
type UnsupportedFormatError struct {
	Ext string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("docpipe: unsupported format %q (supported: %v)", e.Ext, SupportedExtensions())
}

func (e *UnsupportedFormatError) Unwrap() error { return ErrUnsupportedFormat }

// CorruptError is returned when a format parser cannot read the input:
// truncated archive, malformed stream, unreadable binary structure, or a
// parser panic.
type CorruptError struct {
	Format Format
	Detail string
	Err    error
}

func (e *CorruptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("docpipe: corrupt %s: %s: %v", e.Format, e.Detail, e.Err)
	}
	return fmt.Sprintf("docpipe: corrupt %s: %s", e.Format, e.Detail)
}

func (e *CorruptError) Unwrap() error { return e.Err }

func corrupt(format Format, detail string, err error) error {
	return &CorruptError{Format: format, Detail: detail, Err: err}
}
