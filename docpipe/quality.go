package docpipe

import "unicode"

// ExtractionQuality describes how much of a PDF's content came out as text.
type ExtractionQuality struct {
	PageCount       int     `json:"page_count"`
	CharsPerPage    float64 `json:"chars_per_page"`
	PrintableRatio  float64 `json:"printable_ratio"`
	HasImageStreams bool    `json:"has_image_streams"`
}

// NeedsOCR reports a PDF whose pages are mostly images or whose text layer is
// garbage. Such documents score as near-empty and callers may want to flag
// them to the student.
func (q *ExtractionQuality) NeedsOCR() bool {
	if q == nil {
		return false
	}
	return (q.CharsPerPage < 50 && q.HasImageStreams) || q.PrintableRatio < 0.85
}

// computePrintableRatio returns the share of runes that are printable.
// Private use, U+FFFD and control characters other than whitespace count as
// garbage. Empty text is fully printable.
func computePrintableRatio(text string) float64 {
	total, printable := 0, 0
	for _, r := range text {
		total++
		if isGarbageRune(r) {
			continue
		}
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			printable++
		}
	}
	if total == 0 {
		return 1.0
	}
	return float64(printable) / float64(total)
}

func isGarbageRune(r rune) bool {
	switch {
	case r >= 0xE000 && r <= 0xF8FF:
		return true
	case r == 0xFFFD:
		return true
	case r < 0x20 && r != '\n' && r != '\r' && r != '\t':
		return true
	}
	return false
}
