package docpipe

import (
	"errors"
	"io"
	"strings"
)

var (
	errTextTooLarge = errors.New("extracted text too large")
	errPartTooLarge = errors.New("decompressed part too large")
)

// limits bounds what a small hostile upload can expand into.
type limits struct {
	text  int64
	unzip int64
}

// textBuffer is a byte buffer that refuses to grow past max bytes.
type textBuffer struct {
	b   []byte
	max int64
}

func newTextBuffer(lim limits) *textBuffer { return &textBuffer{max: lim.text} }

func (b *textBuffer) WriteString(s string) error {
	if int64(len(b.b))+int64(len(s)) > b.max {
		return errTextTooLarge
	}
	b.b = append(b.b, s...)
	return nil
}

func (b *textBuffer) WriteByte(c byte) error {
	if int64(len(b.b))+1 > b.max {
		return errTextTooLarge
	}
	b.b = append(b.b, c)
	return nil
}

func (b *textBuffer) Len() int       { return len(b.b) }
func (b *textBuffer) String() string { return string(b.b) }

// truncate drops everything written after the first n bytes.
func (b *textBuffer) truncate(n int) { b.b = b.b[:n] }

// partReader fails with errPartTooLarge once more than max bytes were read.
type partReader struct {
	r    io.Reader
	left int64
}

func newPartReader(r io.Reader, max int64) *partReader {
	return &partReader{r: io.LimitReader(r, max+1), left: max}
}

func (p *partReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.left -= int64(n)
	if p.left < 0 {
		return 0, errPartTooLarge
	}
	return n, err
}

// limitErr reports a limit overrun with a fixed detail, anything else as
// detail wrapping err.
func limitErr(format Format, detail string, err error) error {
	switch {
	case errors.Is(err, errPartTooLarge):
		return corrupt(format, errPartTooLarge.Error(), nil)
	case errors.Is(err, errTextTooLarge):
		return corrupt(format, errTextTooLarge.Error(), nil)
	}
	return corrupt(format, detail, err)
}

// writeRow appends the non-blank cells of one spreadsheet row, tab-separated
// and newline-terminated. Rows without content write nothing.
func writeRow(buf *textBuffer, cells []string) error {
	wrote := false
	for _, c := range cells {
		if strings.TrimSpace(c) == "" {
			continue
		}
		if wrote {
			if err := buf.WriteByte('\t'); err != nil {
				return err
			}
		}
		if err := buf.WriteString(c); err != nil {
			return err
		}
		wrote = true
	}
	if !wrote {
		return nil
	}
	return buf.WriteByte('\n')
}
