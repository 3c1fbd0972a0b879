package docpipe

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"

	ledongpdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// extractPDF reads page content streams with pdfcpu. When pdfcpu finds no
// text operators (or cannot parse the file) the ledongthuc reader, which
// understands font encodings, gets a second try. A PDF that parses but has no
// text layer yields an empty document; one neither reader can open is
// corrupt.
func extractPDF(data []byte) (*Document, error) {
	text, quality, cpuErr := pdfcpuText(data)
	if cpuErr == nil && text != "" {
		return &Document{Text: text, Parts: quality.PageCount, Quality: quality}, nil
	}

	plain, pages, plainErr := plainPDFText(data)
	switch {
	case plainErr == nil:
		if quality == nil {
			quality = &ExtractionQuality{PageCount: pages}
		}
		fillQuality(quality, plain)
		return &Document{Text: plain, Parts: quality.PageCount, Quality: quality}, nil
	case cpuErr == nil:
		// Parsed fine, just no text layer (scanned pages).
		return &Document{Parts: quality.PageCount, Quality: quality}, nil
	default:
		return nil, corrupt(FormatPDF, "unreadable by both PDF readers", fmt.Errorf("pdfcpu: %w; fallback: %v", cpuErr, plainErr))
	}
}

func pdfcpuText(data []byte) (string, *ExtractionQuality, error) {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return "", nil, fmt.Errorf("pdfcpu read: %w", err)
	}

	var pages []string
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		if t := extractPageText(ctx, pageNr); t != "" {
			pages = append(pages, t)
		}
	}
	text := strings.Join(pages, "\n\n")

	quality := &ExtractionQuality{
		PageCount:       ctx.PageCount,
		HasImageStreams: detectImageStreams(ctx),
	}
	fillQuality(quality, text)
	return text, quality, nil
}

// plainPDFText runs the ledongthuc reader, which panics on some malformed
// inputs; those come back as errors.
func plainPDFText(data []byte) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()
	r, err := ledongpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, err
	}
	rd, err := r.GetPlainText()
	if err != nil {
		return "", 0, err
	}
	b, err := io.ReadAll(rd)
	if err != nil {
		return "", 0, err
	}
	return strings.TrimSpace(string(b)), r.NumPage(), nil
}

func fillQuality(q *ExtractionQuality, text string) {
	chars := len([]rune(text))
	if q.PageCount > 0 {
		q.CharsPerPage = float64(chars) / float64(q.PageCount)
	}
	q.PrintableRatio = computePrintableRatio(text)
}

// extractPageText extracts text from a single PDF page via pdfcpu content stream.
func extractPageText(ctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil || r == nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return extractTextFromStream(data)
}

// detectImageStreams checks if the PDF contains image XObjects.
func detectImageStreams(ctx *model.Context) bool {
	if ctx.Optimize != nil {
		for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
			if len(pdfcpu.ImageObjNrs(ctx, pageNr)) > 0 {
				return true
			}
		}
	}
	for _, entry := range ctx.Table {
		if entry == nil || entry.Free || entry.Compressed {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if subtype, found := sd.Find("Subtype"); found {
			if name, isName := subtype.(types.Name); isName && name == "Image" {
				return true
			}
		}
	}
	return false
}

// pdfStringRe matches PDF string literals in parentheses: (text here)
var pdfStringRe = regexp.MustCompile(`\(([^)]*)\)`)

// extractTextFromStream picks the string operands of text-showing operators
// (Tj, TJ, ') out of a decoded content stream.
func extractTextFromStream(data []byte) string {
	var sb strings.Builder

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		switch {
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteString(decodePDFString(m[1]))
			}
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteByte('\n')
				sb.WriteString(decodePDFString(m[1]))
			}
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")):
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		case bytes.Equal(line, []byte("T*")):
			sb.WriteByte('\n')
		}
	}

	return cleanPDFText(sb.String())
}

// decodePDFString handles the escape sequences of PDF literal strings.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch c := raw[i]; c {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(c)
		default:
			if c < '0' || c > '7' {
				sb.WriteByte(c)
				continue
			}
			val := int(c - '0')
			for k := 0; k < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; k++ {
				i++
				val = val*8 + int(raw[i]-'0')
			}
			sb.WriteByte(byte(val))
		}
	}
	return sb.String()
}

// cleanPDFText drops non-printable runes and folds whitespace.
func cleanPDFText(text string) string {
	var sb strings.Builder
	for _, r := range text {
		if unicode.IsSpace(r) || unicode.IsPrint(r) {
			sb.WriteRune(r)
		}
	}
	return collapseSpaces(sb.String())
}
