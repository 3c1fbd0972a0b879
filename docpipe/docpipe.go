// Package docpipe extracts plain text from uploaded office documents.
//
// Supported formats:
//   - .txt   — UTF-8 passthrough
//   - .docx  — Microsoft Word (archive/zip → word/document.xml)
//   - .pdf   — pdfcpu content streams, ledongthuc/pdf as second reader
//   - .xlsx  — excelize, every sheet row-major
//   - .xls   — BIFF8 workbook inside an OLE2 compound file
//   - .pptx  — slide XML parts in slide order
//   - .ppt, .doc — legacy OLE2 binaries (PowerPoint records, Word piece table)
//
// Dispatch is on the lowercased file extension only; content is not sniffed.
// Parser failures never escape as panics: they come back as *CorruptError.
//
// Usage:
//
//	pipe := docpipe.New(docpipe.Config{})
//	doc, err := pipe.Extract(ctx, "essay.docx", data)
package docpipe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Pipeline is the document extraction engine.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Pipeline with the given configuration.
func New(cfg Config) *Pipeline {
	cfg.defaults()
	return &Pipeline{
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// Detect returns the document format based on the filename's extension.
func (p *Pipeline) Detect(filename string) (Format, error) {
	ext := Ext(filename)
	if f, ok := extFormats[ext]; ok {
		return f, nil
	}
	return "", &UnsupportedFormatError{Ext: ext}
}

// ExtractFile reads path from disk and extracts it.
func (p *Pipeline) ExtractFile(ctx context.Context, path string) (*Document, error) {
	if _, err := p.Detect(path); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > p.cfg.MaxFileSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), p.cfg.MaxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return p.Extract(ctx, filepath.Base(path), data)
}

// Extract converts data to plain text according to filename's extension.
// An unsupported extension fails with ErrUnsupportedFormat before the bytes
// are looked at. Parser failures return *CorruptError.
func (p *Pipeline) Extract(ctx context.Context, filename string, data []byte) (*Document, error) {
	format, err := p.Detect(filename)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if int64(len(data)) > p.cfg.MaxFileSize {
		return nil, corrupt(format, fmt.Sprintf("file too large: %d bytes (max %d)", len(data), p.cfg.MaxFileSize), nil)
	}

	p.logger.DebugContext(ctx, "extracting document", "filename", filename, "format", format, "bytes", len(data))

	doc, err := p.parse(format, data)
	if err != nil {
		p.logger.WarnContext(ctx, "extraction failed", "filename", filename, "format", format, "error", err)
		return nil, err
	}
	if int64(len(doc.Text)) > p.cfg.MaxTextSize {
		err := corrupt(format, errTextTooLarge.Error(), nil)
		p.logger.WarnContext(ctx, "extraction failed", "filename", filename, "format", format, "error", err)
		return nil, err
	}
	doc.Filename = filename
	doc.Format = format
	if format == FormatTXT {
		doc.Text = normalizeUTF8(doc.Text)
	} else {
		doc.Text = tidy(doc.Text)
	}
	return doc, nil
}

// parse runs the format-specific extractor, converting panics into CorruptError.
func (p *Pipeline) parse(format Format, data []byte) (doc *Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = corrupt(format, "parser panic", fmt.Errorf("%v", r))
		}
	}()

	lim := p.cfg.limits()
	switch format {
	case FormatTXT:
		return &Document{Text: string(data)}, nil
	case FormatDocx:
		return extractDocx(data, lim)
	case FormatPDF:
		return extractPDF(data)
	case FormatXLSX:
		return extractXLSX(data, lim)
	case FormatXLS:
		return extractXLS(data, lim)
	case FormatPPTX:
		return extractPPTX(data, lim)
	case FormatPPT, FormatDoc:
		return extractLegacyOffice(format, data)
	default:
		return nil, &UnsupportedFormatError{Ext: "." + string(format)}
	}
}

// normalizeUTF8 strips NUL bytes and replaces invalid UTF-8 sequences.
// Valid input without NULs is returned unchanged.
func normalizeUTF8(s string) string {
	if strings.IndexByte(s, 0) >= 0 {
		s = strings.ReplaceAll(s, "\x00", "")
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	return s
}

// tidy normalizes text produced by structured parsers: valid UTF-8, no NULs,
// CRLF folded, trailing spaces dropped, at most one blank line in a row.
func tidy(s string) string {
	s = normalizeUTF8(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	out := lines[:0]
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
