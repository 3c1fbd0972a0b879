package docpipe

import "testing"

func TestPrintableRatio_Normal(t *testing.T) {
	ratio := computePrintableRatio("This is a normal sentence with standard characters.")
	if ratio < 0.95 {
		t.Errorf("printable ratio = %f, want > 0.95", ratio)
	}
}

func TestPrintableRatio_Garbage(t *testing.T) {
	// WHAT: PUA and control chars produce low printable ratio.
	// WHY: CID fonts without ToUnicode maps extract as garbage.
	garbage := "abcdefghi\x01\x02\x03\x04\x05"
	if ratio := computePrintableRatio(garbage); ratio >= 0.85 {
		t.Errorf("printable ratio = %f, want < 0.85", ratio)
	}
}

func TestPrintableRatio_Empty(t *testing.T) {
	if ratio := computePrintableRatio(""); ratio != 1.0 {
		t.Errorf("printable ratio = %f, want 1", ratio)
	}
}

func TestNeedsOCR(t *testing.T) {
	tests := []struct {
		name string
		q    *ExtractionQuality
		want bool
	}{
		{"scanned", &ExtractionQuality{CharsPerPage: 30, HasImageStreams: true, PrintableRatio: 1}, true},
		{"garbled", &ExtractionQuality{CharsPerPage: 900, PrintableRatio: 0.5}, true},
		{"short but no images", &ExtractionQuality{CharsPerPage: 30, PrintableRatio: 1}, false},
		{"normal", &ExtractionQuality{CharsPerPage: 1800, HasImageStreams: true, PrintableRatio: 0.99}, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		if got := tt.q.NeedsOCR(); got != tt.want {
			t.Errorf("%s: NeedsOCR = %v, want %v", tt.name, got, tt.want)
		}
	}
}
