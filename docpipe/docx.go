package docpipe

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// extractDocx reads word/document.xml from the OOXML container and joins the
// w:t runs of every paragraph in document order, one paragraph per line.
func extractDocx(data []byte, lim limits) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, corrupt(FormatDocx, "open zip", err)
	}

	docFile := findZipFile(zr, "word/document.xml")
	if docFile == nil {
		return nil, corrupt(FormatDocx, "word/document.xml not found in archive", nil)
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, corrupt(FormatDocx, "open document.xml", err)
	}
	defer rc.Close()

	buf := newTextBuffer(lim)
	paragraphs, err := ooxmlText(newPartReader(rc, lim.unzip), buf, "p", "t")
	if err != nil {
		return nil, limitErr(FormatDocx, "parse document.xml", err)
	}
	text := buf.String()
	return &Document{Text: text, Parts: paragraphs}, nil
}

// ooxmlText streams an OOXML part into buf: the character data found in
// textElem elements, with a newline at the end of each paraElem. Tabs and
// breaks inside a paragraph become whitespace. Returns the paragraph count.
func ooxmlText(r io.Reader, buf *textBuffer, paraElem, textElem string) (int, error) {
	decoder := xml.NewDecoder(r)
	var para strings.Builder
	inText := false
	paragraphs := 0

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("xml token: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case textElem:
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				if int64(buf.Len()+para.Len()+len(t)) > buf.max {
					return 0, errTextTooLarge
				}
				para.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case textElem:
				inText = false
			case paraElem:
				line := strings.TrimSpace(para.String())
				para.Reset()
				if line == "" {
					continue
				}
				if err := buf.WriteString(line + "\n"); err != nil {
					return 0, err
				}
				paragraphs++
			}
		}
	}
	if rest := strings.TrimSpace(para.String()); rest != "" {
		if err := buf.WriteString(rest); err != nil {
			return 0, err
		}
		paragraphs++
	}
	return paragraphs, nil
}

func findZipFile(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}
