package docpipe

import (
	"strings"
	"unicode"
)

// scanPrintableRuns collects runs of at least minLen printable ASCII bytes.
// It is the last-resort reader for legacy binaries whose structure could not
// be followed.
func scanPrintableRuns(data []byte, minLen int) string {
	var sb strings.Builder
	start := -1
	flush := func(end int) {
		if start >= 0 && end-start >= minLen {
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.Write(data[start:end])
		}
		start = -1
	}
	for i, b := range data {
		if b >= 0x20 && b < 0x7f {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(data))
	return sb.String()
}

// collapseSpaces folds runs of whitespace into a single space.
func collapseSpaces(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		sb.WriteRune(r)
		prevSpace = false
	}
	return strings.TrimSpace(sb.String())
}
