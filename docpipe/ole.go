package docpipe

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/richardlehane/mscfb"
	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
)

// readOLEStreams returns the root-level streams of an OLE2 compound file keyed
// by name.
func readOLEStreams(format Format, data []byte) (map[string][]byte, error) {
	doc, err := mscfb.New(bytes.NewReader(data))
	if err != nil {
		return nil, corrupt(format, "open compound file", err)
	}
	streams := make(map[string][]byte)
	for {
		entry, err := doc.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, corrupt(format, "walk compound file", err)
		}
		if len(entry.Path) > 0 || entry.Size == 0 {
			continue
		}
		if _, seen := streams[entry.Name]; seen {
			continue
		}
		buf, err := io.ReadAll(entry)
		if err != nil {
			return nil, corrupt(format, fmt.Sprintf("read stream %q", entry.Name), err)
		}
		streams[entry.Name] = buf
	}
	return streams, nil
}

// extractLegacyOffice is the shared path for the pre-2007 binary formats
// carried in OLE2 containers (.doc and .ppt).
func extractLegacyOffice(format Format, data []byte) (*Document, error) {
	streams, err := readOLEStreams(format, data)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatPPT:
		stream, ok := streams["PowerPoint Document"]
		if !ok {
			return nil, corrupt(format, "PowerPoint Document stream not found", nil)
		}
		text, slides := pptText(stream)
		return &Document{Text: text, Parts: slides}, nil
	case FormatDoc:
		stream, ok := streams["WordDocument"]
		if !ok {
			return nil, corrupt(format, "WordDocument stream not found", nil)
		}
		text, err := wordText(stream, streams)
		if errors.Is(err, errNotWord) || errors.Is(err, errEncrypted) {
			return nil, corrupt(format, "read FIB", err)
		}
		if err != nil {
			// Piece table unreadable; keep whatever plain runs the stream holds.
			text = scanPrintableRuns(stream, 8)
		}
		return &Document{Text: text}, nil
	default:
		return nil, corrupt(format, "not a legacy office format", nil)
	}
}

// --- PowerPoint 97-2003 ---

const (
	pptRecSlide          = 0x03EE
	pptRecMainMaster     = 0x03F8
	pptRecTextCharsAtom  = 0x0FA0
	pptRecTextBytesAtom  = 0x0FA8
	pptMaxContainerDepth = 32
)

// pptText walks the record tree of the "PowerPoint Document" stream and
// collects text atoms in stream order. Master slides are skipped so template
// placeholder text does not leak into the result. Identical atoms are kept
// once (outline text is often repeated in the slide drawing).
func pptText(stream []byte) (string, int) {
	var sb strings.Builder
	seen := make(map[string]bool)
	slides := 0

	var walk func(data []byte, depth int)
	walk = func(data []byte, depth int) {
		off := 0
		for off+8 <= len(data) {
			verInst := binary.LittleEndian.Uint16(data[off:])
			recType := binary.LittleEndian.Uint16(data[off+2:])
			recLen := int(binary.LittleEndian.Uint32(data[off+4:]))
			start := off + 8
			end := start + recLen
			if recLen < 0 || end > len(data) {
				end = len(data)
			}
			body := data[start:end]

			switch {
			case recType == pptRecMainMaster:
			case verInst&0x000F == 0x000F:
				if recType == pptRecSlide {
					slides++
				}
				if depth < pptMaxContainerDepth {
					walk(body, depth+1)
				}
			case recType == pptRecTextCharsAtom:
				appendAtom(&sb, seen, decodeUTF16LE(body))
			case recType == pptRecTextBytesAtom:
				appendAtom(&sb, seen, decodeCP1252(body))
			}
			off = end
		}
	}
	walk(stream, 0)
	return sb.String(), slides
}

func appendAtom(sb *strings.Builder, seen map[string]bool, text string) {
	text = strings.NewReplacer("\r", "\n", "\v", "\n").Replace(text)
	text = strings.TrimSpace(text)
	if text == "" || seen[text] {
		return
	}
	seen[text] = true
	sb.WriteString(text)
	sb.WriteByte('\n')
}

// --- Word 97-2003 ---

var (
	errNotWord   = errors.New("not a Word 97-2003 document")
	errEncrypted = errors.New("document is encrypted")
)

const (
	fibMinSize       = 0x01AA
	fibFlagEncrypted = 0x0100
	fibFlagTable1    = 0x0200
	fibOffCcpText    = 0x004C
	fibOffFcClx      = 0x01A2
	fibOffLcbClx     = 0x01A6
	pcdCompressed    = 0x40000000
)

// wordText reads the main document story through the piece table (Clx) that
// the FIB points to in the 0Table/1Table stream.
func wordText(wd []byte, streams map[string][]byte) (string, error) {
	if len(wd) < fibMinSize || binary.LittleEndian.Uint16(wd) != 0xA5EC {
		return "", errNotWord
	}
	flags := binary.LittleEndian.Uint16(wd[0x0A:])
	if flags&fibFlagEncrypted != 0 {
		return "", errEncrypted
	}
	tableName := "0Table"
	if flags&fibFlagTable1 != 0 {
		tableName = "1Table"
	}
	table, ok := streams[tableName]
	if !ok {
		return "", fmt.Errorf("%s stream not found", tableName)
	}

	ccpText := binary.LittleEndian.Uint32(wd[fibOffCcpText:])
	fcClx := binary.LittleEndian.Uint32(wd[fibOffFcClx:])
	lcbClx := binary.LittleEndian.Uint32(wd[fibOffLcbClx:])
	if uint64(fcClx)+uint64(lcbClx) > uint64(len(table)) || lcbClx == 0 {
		return "", fmt.Errorf("clx out of range (fc=%d lcb=%d table=%d)", fcClx, lcbClx, len(table))
	}
	plc, err := pieceTable(table[fcClx : fcClx+lcbClx])
	if err != nil {
		return "", err
	}

	n := (len(plc) - 4) / 12
	var raw strings.Builder
	for k := 0; k < n; k++ {
		cpStart := binary.LittleEndian.Uint32(plc[4*k:])
		cpEnd := binary.LittleEndian.Uint32(plc[4*(k+1):])
		if ccpText > 0 {
			if cpStart >= ccpText {
				break
			}
			if cpEnd > ccpText {
				cpEnd = ccpText
			}
		}
		if cpEnd <= cpStart {
			continue
		}
		count := int(cpEnd - cpStart)
		pcd := plc[4*(n+1)+8*k:]
		fc := binary.LittleEndian.Uint32(pcd[2:])

		if fc&pcdCompressed != 0 {
			off := int((fc &^ pcdCompressed) / 2)
			if off < 0 || off+count > len(wd) {
				return "", fmt.Errorf("piece %d out of range", k)
			}
			raw.WriteString(decodeCP1252(wd[off : off+count]))
		} else {
			off := int(fc)
			if off < 0 || off+2*count > len(wd) {
				return "", fmt.Errorf("piece %d out of range", k)
			}
			raw.WriteString(decodeUTF16LE(wd[off : off+2*count]))
		}
	}
	return cleanWordText(raw.String()), nil
}

// pieceTable skips the Prc entries of a Clx and returns the PlcPcd bytes.
func pieceTable(clx []byte) ([]byte, error) {
	i := 0
	for i < len(clx) {
		switch clx[i] {
		case 0x01:
			if i+3 > len(clx) {
				return nil, fmt.Errorf("truncated Prc")
			}
			i += 3 + int(binary.LittleEndian.Uint16(clx[i+1:]))
		case 0x02:
			if i+5 > len(clx) {
				return nil, fmt.Errorf("truncated Pcdt")
			}
			lcb := int(binary.LittleEndian.Uint32(clx[i+1:]))
			if lcb < 16 || i+5+lcb > len(clx) || (lcb-4)%12 != 0 {
				return nil, fmt.Errorf("bad PlcPcd size %d", lcb)
			}
			return clx[i+5 : i+5+lcb], nil
		default:
			return nil, fmt.Errorf("unexpected clx tag 0x%02x", clx[i])
		}
	}
	return nil, fmt.Errorf("no Pcdt in clx")
}

// cleanWordText maps Word's in-band control characters to plain text and
// drops field instructions (between 0x13 and 0x14), keeping field results.
func cleanWordText(s string) string {
	var sb strings.Builder
	fieldDepth := 0
	inCode := 0
	for _, r := range s {
		switch r {
		case 0x13:
			fieldDepth++
			inCode++
			continue
		case 0x14:
			if inCode > 0 {
				inCode--
			}
			continue
		case 0x15:
			if fieldDepth > 0 {
				fieldDepth--
			}
			if inCode > fieldDepth {
				inCode = fieldDepth
			}
			continue
		}
		if inCode > 0 {
			continue
		}
		switch {
		case r == '\r' || r == 0x0B || r == 0x0C:
			sb.WriteByte('\n')
		case r == 0x07:
			sb.WriteByte('\t')
		case r == '\t':
			sb.WriteRune(r)
		case r < 0x20:
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// --- shared decoding ---

func decodeCP1252(b []byte) string {
	out, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return string(bytes.ToValidUTF8(b, nil))
	}
	return string(out)
}

func decodeUTF16LE(b []byte) string {
	if len(b)%2 == 1 {
		b = b[:len(b)-1]
	}
	out, err := xunicode.UTF16(xunicode.LittleEndian, xunicode.IgnoreBOM).NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return string(out)
}
