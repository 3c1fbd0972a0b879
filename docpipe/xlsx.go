package docpipe

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// extractXLSX serializes every sheet in workbook order: populated cells
// tab-separated, one row per line, a newline after each sheet. Rows are read
// through the streaming iterator so a far-right cell does not materialize a
// dense grid for the whole sheet.
func extractXLSX(data []byte, lim limits) (*Document, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data), excelize.Options{
		UnzipSizeLimit:    lim.unzip,
		UnzipXMLSizeLimit: lim.unzip,
	})
	if err != nil {
		return nil, corrupt(FormatXLSX, "open workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	buf := newTextBuffer(lim)
	for _, name := range sheets {
		if err := writeSheet(f, name, buf); err != nil {
			return nil, limitErr(FormatXLSX, fmt.Sprintf("read sheet %q", name), err)
		}
		if err := buf.WriteByte('\n'); err != nil {
			return nil, limitErr(FormatXLSX, "", err)
		}
	}
	return &Document{Text: buf.String(), Parts: len(sheets)}, nil
}

func writeSheet(f *excelize.File, name string, buf *textBuffer) error {
	rows, err := f.Rows(name)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return err
		}
		if err := writeRow(buf, cols); err != nil {
			return err
		}
	}
	return rows.Error()
}
