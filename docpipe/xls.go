package docpipe

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// BIFF8 record types read by the .xls extractor.
const (
	biffBOF        = 0x0809
	biffEOF        = 0x000A
	biffFilePass   = 0x002F
	biffBoundSheet = 0x0085
	biffContinue   = 0x003C
	biffSST        = 0x00FC
	biffLabelSST   = 0x00FD
	biffLabel      = 0x0204
	biffNumber     = 0x0203
	biffRK         = 0x027E
	biffMulRK      = 0x00BD
	biffFormula    = 0x0006
	biffString     = 0x0207
	biffBoolErr    = 0x0205

	biffDTGlobals   = 0x0005
	biffDTWorksheet = 0x0010
)

type biffRecord struct {
	offset int
	typ    uint16
	data   []byte
	// breaks holds the offsets in data where a CONTINUE record was joined.
	breaks []int
}

// extractXLS reads cell text from the BIFF8 "Workbook" stream of an .xls file.
// Sheets come out in stream order, rows and populated cells in ascending order.
func extractXLS(data []byte, lim limits) (*Document, error) {
	streams, err := readOLEStreams(FormatXLS, data)
	if err != nil {
		return nil, err
	}
	stream, ok := streams["Workbook"]
	if !ok {
		if _, biff5 := streams["Book"]; biff5 {
			return nil, corrupt(FormatXLS, "BIFF5 workbooks are not supported", nil)
		}
		return nil, corrupt(FormatXLS, "Workbook stream not found", nil)
	}

	records, err := readBIFFRecords(stream)
	if err != nil {
		return nil, corrupt(FormatXLS, "read records", err)
	}

	var (
		sst        []string
		sheetNames = make(map[int]string)
		sheet      *xlsSheet
		pendingStr *xlsCell
		buf        = newTextBuffer(lim)
		sheets     int
	)
	for _, rec := range records {
		switch rec.typ {
		case biffFilePass:
			return nil, corrupt(FormatXLS, "workbook is encrypted", nil)
		case biffBoundSheet:
			if len(rec.data) >= 8 {
				pos := int(binary.LittleEndian.Uint32(rec.data))
				name, _ := readShortXLString(rec.data[6:])
				sheetNames[pos] = name
			}
		case biffSST:
			sst, err = readSST(rec)
			if err != nil {
				return nil, corrupt(FormatXLS, "read shared strings", err)
			}
		case biffBOF:
			if len(rec.data) >= 4 && binary.LittleEndian.Uint16(rec.data[2:]) == biffDTWorksheet {
				sheet = &xlsSheet{name: sheetNames[rec.offset], cells: make(map[int]map[int]string)}
			}
		case biffEOF:
			if sheet != nil {
				if err := sheet.write(buf); err != nil {
					return nil, limitErr(FormatXLS, "write sheet", err)
				}
				sheets++
				sheet = nil
			}
			pendingStr = nil
		}
		if sheet == nil {
			continue
		}

		d := rec.data
		switch rec.typ {
		case biffLabelSST:
			if len(d) >= 10 {
				idx := int(binary.LittleEndian.Uint32(d[6:]))
				if idx < len(sst) {
					sheet.set(d, sst[idx])
				}
			}
		case biffLabel:
			if len(d) >= 9 {
				s, _ := readXLString(d[6:])
				sheet.set(d, s)
			}
		case biffNumber:
			if len(d) >= 14 {
				sheet.set(d, formatXLSNumber(math.Float64frombits(binary.LittleEndian.Uint64(d[6:]))))
			}
		case biffRK:
			if len(d) >= 10 {
				sheet.set(d, formatXLSNumber(decodeRK(binary.LittleEndian.Uint32(d[6:]))))
			}
		case biffMulRK:
			if len(d) >= 6 {
				row := int(binary.LittleEndian.Uint16(d))
				col := int(binary.LittleEndian.Uint16(d[2:]))
				for off := 4; off+6 <= len(d)-2; off += 6 {
					sheet.put(row, col, formatXLSNumber(decodeRK(binary.LittleEndian.Uint32(d[off+2:]))))
					col++
				}
			}
		case biffBoolErr:
			if len(d) >= 8 && d[7] == 0 {
				v := "FALSE"
				if d[6] != 0 {
					v = "TRUE"
				}
				sheet.set(d, v)
			}
		case biffFormula:
			if len(d) < 14 {
				continue
			}
			if binary.LittleEndian.Uint16(d[12:]) != 0xFFFF {
				sheet.set(d, formatXLSNumber(math.Float64frombits(binary.LittleEndian.Uint64(d[6:]))))
				continue
			}
			switch d[6] {
			case 0x00:
				pendingStr = &xlsCell{row: int(binary.LittleEndian.Uint16(d)), col: int(binary.LittleEndian.Uint16(d[2:]))}
			case 0x01:
				v := "FALSE"
				if d[8] != 0 {
					v = "TRUE"
				}
				sheet.set(d, v)
			}
		case biffString:
			if pendingStr != nil {
				s, _ := readXLString(d)
				sheet.put(pendingStr.row, pendingStr.col, s)
				pendingStr = nil
			}
		}
	}
	return &Document{Text: buf.String(), Parts: sheets}, nil
}

type xlsCell struct{ row, col int }

type xlsSheet struct {
	name  string
	cells map[int]map[int]string
}

// set stores v at the row/col carried in the first four bytes of a cell record.
func (s *xlsSheet) set(rec []byte, v string) {
	s.put(int(binary.LittleEndian.Uint16(rec)), int(binary.LittleEndian.Uint16(rec[2:])), v)
}

func (s *xlsSheet) put(row, col int, v string) {
	if v == "" {
		return
	}
	r, ok := s.cells[row]
	if !ok {
		r = make(map[int]string)
		s.cells[row] = r
	}
	r[col] = v
}

// write emits the sheet row by row, populated cells only, followed by a
// blank line.
func (s *xlsSheet) write(buf *textBuffer) error {
	rowIdx := make([]int, 0, len(s.cells))
	for r := range s.cells {
		rowIdx = append(rowIdx, r)
	}
	sort.Ints(rowIdx)

	for _, r := range rowIdx {
		cols := make([]int, 0, len(s.cells[r]))
		for c := range s.cells[r] {
			cols = append(cols, c)
		}
		sort.Ints(cols)
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = s.cells[r][c]
		}
		if err := writeRow(buf, row); err != nil {
			return err
		}
	}
	return buf.WriteByte('\n')
}

// readBIFFRecords splits a BIFF8 stream into records, folding CONTINUE
// records into the record they extend.
func readBIFFRecords(stream []byte) ([]biffRecord, error) {
	var records []biffRecord
	off := 0
	for off+4 <= len(stream) {
		typ := binary.LittleEndian.Uint16(stream[off:])
		size := int(binary.LittleEndian.Uint16(stream[off+2:]))
		start := off + 4
		end := start + size
		if end > len(stream) {
			return records, fmt.Errorf("record 0x%04x at %d overruns stream", typ, off)
		}
		body := stream[start:end]
		if typ == biffContinue && len(records) > 0 {
			last := &records[len(records)-1]
			last.breaks = append(last.breaks, len(last.data))
			last.data = append(last.data, body...)
		} else {
			records = append(records, biffRecord{offset: off, typ: typ, data: append([]byte(nil), body...)})
		}
		off = end
		if typ == biffEOF && off+4 > len(stream) {
			break
		}
	}
	return records, nil
}

// readSST decodes the shared string table. Character data split by a
// CONTINUE boundary resumes with a fresh option byte selecting the width.
func readSST(rec biffRecord) ([]string, error) {
	d := rec.data
	if len(d) < 8 {
		return nil, fmt.Errorf("short SST record")
	}
	unique := int(binary.LittleEndian.Uint32(d[4:]))
	pos := 8
	nextBreak := func() int {
		for _, b := range rec.breaks {
			if b > pos {
				return b
			}
		}
		return len(d)
	}

	out := make([]string, 0, min(unique, 1<<16))
	for i := 0; i < unique; i++ {
		if pos+3 > len(d) {
			return out, nil
		}
		cch := int(binary.LittleEndian.Uint16(d[pos:]))
		flags := d[pos+2]
		pos += 3
		var cRun, cbExt int
		if flags&0x08 != 0 {
			if pos+2 > len(d) {
				return out, fmt.Errorf("string %d: truncated run count", i)
			}
			cRun = int(binary.LittleEndian.Uint16(d[pos:]))
			pos += 2
		}
		if flags&0x04 != 0 {
			if pos+4 > len(d) {
				return out, fmt.Errorf("string %d: truncated ext size", i)
			}
			cbExt = int(int32(binary.LittleEndian.Uint32(d[pos:])))
			pos += 4
		}

		wide := flags&0x01 != 0
		var sb strings.Builder
		for n := 0; n < cch; {
			end := nextBreak()
			width := 1
			if wide {
				width = 2
			}
			take := min((end-pos)/width, cch-n)
			if take > 0 {
				chunk := d[pos : pos+take*width]
				if wide {
					sb.WriteString(decodeUTF16LE(chunk))
				} else {
					sb.WriteString(decodeLatin1(chunk))
				}
				pos += take * width
				n += take
			}
			if n < cch {
				if pos != end || pos >= len(d) {
					return out, fmt.Errorf("string %d: truncated character data", i)
				}
				wide = d[pos]&0x01 != 0
				pos++
			}
		}
		pos += 4*cRun + max(cbExt, 0)
		out = append(out, sb.String())
	}
	return out, nil
}

// readXLString reads an XLUnicodeString (16-bit length).
func readXLString(d []byte) (string, int) {
	if len(d) < 3 {
		return "", len(d)
	}
	return readChars(d[3:], int(binary.LittleEndian.Uint16(d)), d[2]&0x01 != 0, 3)
}

// readShortXLString reads a ShortXLUnicodeString (8-bit length).
func readShortXLString(d []byte) (string, int) {
	if len(d) < 2 {
		return "", len(d)
	}
	return readChars(d[2:], int(d[0]), d[1]&0x01 != 0, 2)
}

func readChars(d []byte, cch int, wide bool, hdr int) (string, int) {
	n := cch
	if wide {
		n *= 2
	}
	if n > len(d) {
		n = len(d)
	}
	if wide {
		return decodeUTF16LE(d[:n]), hdr + n
	}
	return decodeLatin1(d[:n]), hdr + n
}

// decodeLatin1 widens the compressed (high byte zero) form of BIFF strings.
func decodeLatin1(b []byte) string {
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}

// decodeRK unpacks the RK number encoding: bit 1 selects a 30-bit integer
// over the top 30 bits of an IEEE double, bit 0 divides by 100.
func decodeRK(rk uint32) float64 {
	var v float64
	if rk&0x02 != 0 {
		v = float64(int32(rk) >> 2)
	} else {
		v = math.Float64frombits(uint64(rk&^0x03) << 32)
	}
	if rk&0x01 != 0 {
		v /= 100
	}
	return v
}

func formatXLSNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
