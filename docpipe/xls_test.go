package docpipe

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"
)

func biffRec(typ uint16, body []byte) []byte {
	b := make([]byte, 4, 4+len(body))
	binary.LittleEndian.PutUint16(b, typ)
	binary.LittleEndian.PutUint16(b[2:], uint16(len(body)))
	return append(b, body...)
}

func biffBOFRec(dt uint16) []byte {
	body := make([]byte, 16)
	binary.LittleEndian.PutUint16(body, 0x0600)
	binary.LittleEndian.PutUint16(body[2:], dt)
	return biffRec(biffBOF, body)
}

func cellHeader(row, col uint16) []byte {
	b := make([]byte, 6)
	binary.LittleEndian.PutUint16(b, row)
	binary.LittleEndian.PutUint16(b[2:], col)
	return b
}

func xlString(s string) []byte {
	b := binary.LittleEndian.AppendUint16(nil, uint16(len(s)))
	b = append(b, 0x00)
	return append(b, s...)
}

func sstString(s string) []byte {
	return xlString(s)
}

func labelSST(row, col uint16, idx uint32) []byte {
	return biffRec(biffLabelSST, binary.LittleEndian.AppendUint32(cellHeader(row, col), idx))
}

// buildSparseXLS writes one worksheet with rows cells at column 0 and at the
// last BIFF8 column, all pointing at shared string "x".
func buildSparseXLS(t *testing.T, rows int) []byte {
	t.Helper()
	sst := binary.LittleEndian.AppendUint32(nil, 1)
	sst = binary.LittleEndian.AppendUint32(sst, 1)
	sst = append(sst, sstString("x")...)

	bs := binary.LittleEndian.AppendUint32(nil, 0)
	bs = append(bs, 0x00, 0x00, 1, 0x00, 'S')
	globals := concat(
		biffBOFRec(biffDTGlobals),
		biffRec(biffBoundSheet, bs),
		biffRec(biffSST, sst),
		biffRec(biffEOF, nil),
	)
	sheet := [][]byte{biffBOFRec(biffDTWorksheet)}
	for r := 0; r < rows; r++ {
		sheet = append(sheet, labelSST(uint16(r), 0, 0), labelSST(uint16(r), 0xFFFF, 0))
	}
	sheet = append(sheet, biffRec(biffEOF, nil))
	return buildCFB(t, cfbStream{name: "Workbook", data: concat(globals, concat(sheet...))})
}

func buildXLS(t *testing.T) []byte {
	t.Helper()

	// "Alice Wonderland" is split across SST and CONTINUE; the continuation
	// switches to 16-bit characters.
	sst := binary.LittleEndian.AppendUint32(nil, 3)
	sst = binary.LittleEndian.AppendUint32(sst, 3)
	sst = append(sst, sstString("Name")...)
	sst = append(sst, sstString("Score")...)
	sst = binary.LittleEndian.AppendUint16(sst, 16)
	sst = append(sst, 0x00)
	sst = append(sst, "Alice "...)
	cont := append([]byte{0x01}, utf16le("Wonderland")...)

	globals := func(sheetPos uint32) []byte {
		bs := binary.LittleEndian.AppendUint32(nil, sheetPos)
		bs = append(bs, 0x00, 0x00, 6, 0x00)
		bs = append(bs, "Grades"...)
		return concat(
			biffBOFRec(biffDTGlobals),
			biffRec(biffBoundSheet, bs),
			biffRec(biffSST, sst),
			biffRec(biffContinue, cont),
			biffRec(biffEOF, nil),
		)
	}
	g := globals(0)
	g = globals(uint32(len(g)))

	rk := func(row, col uint16, v uint32) []byte {
		return biffRec(biffRK, binary.LittleEndian.AppendUint32(cellHeader(row, col), v))
	}
	number := func(row, col uint16, v float64) []byte {
		return biffRec(biffNumber, binary.LittleEndian.AppendUint64(cellHeader(row, col), math.Float64bits(v)))
	}

	mulrk := cellHeader(3, 0)[:4]
	for _, v := range []uint32{7<<2 | 2, 8<<2 | 2} {
		mulrk = binary.LittleEndian.AppendUint16(mulrk, 0)
		mulrk = binary.LittleEndian.AppendUint32(mulrk, v)
	}
	mulrk = binary.LittleEndian.AppendUint16(mulrk, 1)

	formulaStr := cellHeader(4, 0)
	formulaStr = append(formulaStr, 0x00, 0, 0, 0, 0, 0, 0xFF, 0xFF)
	formulaStr = append(formulaStr, make([]byte, 8)...)
	formulaNum := binary.LittleEndian.AppendUint64(cellHeader(4, 1), math.Float64bits(92.5))
	formulaNum = append(formulaNum, make([]byte, 8)...)

	sheet := concat(
		biffBOFRec(biffDTWorksheet),
		labelSST(0, 0, 0),
		labelSST(0, 1, 1),
		labelSST(1, 0, 2),
		rk(1, 1, 42<<2|2),
		biffRec(biffLabel, append(cellHeader(2, 0), xlString("Bob")...)),
		number(2, 1, 3.5),
		biffRec(biffMulRK, mulrk),
		biffRec(biffFormula, formulaStr),
		biffRec(biffString, xlString("Total")),
		biffRec(biffFormula, formulaNum),
		biffRec(biffEOF, nil),
	)

	return buildCFB(t, cfbStream{name: "Workbook", data: concat(g, sheet)})
}

func TestExtractXLS(t *testing.T) {
	doc, err := New(Config{}).Extract(context.Background(), "grades.xls", buildXLS(t))
	if err != nil {
		t.Fatal(err)
	}
	want := "Name\tScore\nAlice Wonderland\t42\nBob\t3.5\n7\t8\nTotal\t92.5"
	if doc.Text != want {
		t.Fatalf("text = %q, want %q", doc.Text, want)
	}
	if doc.Parts != 1 {
		t.Fatalf("parts = %d, want 1", doc.Parts)
	}
}

func TestExtractXLS_SparseColumns(t *testing.T) {
	// WHAT: Cells at column 0 and 65535 come out as two tab-separated values.
	// WHY: A handful of far-right cells must not expand into a dense grid of
	// empty columns; a 23 KB upload used to produce ~100 MB of tabs.
	const rows = 200
	doc, err := New(Config{}).Extract(context.Background(), "sparse.xls", buildSparseXLS(t, rows))
	if err != nil {
		t.Fatal(err)
	}
	want := strings.TrimSuffix(strings.Repeat("x\tx\n", rows), "\n")
	if doc.Text != want {
		t.Fatalf("text has %d bytes, want %d", len(doc.Text), len(want))
	}
}

func TestExtractXLS_TextLimit(t *testing.T) {
	// WHAT: Extracted text beyond MaxTextSize is a CorruptError.
	_, err := New(Config{MaxTextSize: 64}).Extract(context.Background(), "sparse.xls", buildSparseXLS(t, 100))
	var ce *CorruptError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CorruptError, got %v", err)
	}
	if ce.Format != FormatXLS || ce.Detail != "extracted text too large" {
		t.Fatalf("got %s / %q", ce.Format, ce.Detail)
	}
}

func TestExtractXLS_BIFF5(t *testing.T) {
	raw := buildCFB(t, cfbStream{name: "Book", data: []byte{0x09, 0x08}})
	_, err := New(Config{}).Extract(context.Background(), "old.xls", raw)
	if err == nil {
		t.Fatal("expected error for BIFF5 workbook")
	}
}

func TestDecodeRK(t *testing.T) {
	tests := []struct {
		rk   uint32
		want float64
	}{
		{42<<2 | 2, 42},
		{1234<<2 | 3, 12.34},
		{0x3FF80000, 1.5},
		{0x3FF80000 | 1, 0.015},
		{0xFFFFFFEE, -5},
	}
	for _, tt := range tests {
		if got := decodeRK(tt.rk); got != tt.want {
			t.Errorf("decodeRK(%#x) = %v, want %v", tt.rk, got, tt.want)
		}
	}
}
