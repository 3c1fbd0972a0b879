package docpipe

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

var slidePartRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

type slidePart struct {
	num  int
	file *zip.File
}

// extractPPTX reads ppt/slides/slideN.xml parts ordered by N and joins their
// a:t runs, one paragraph per line, slides separated by a blank line.
func extractPPTX(data []byte, lim limits) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, corrupt(FormatPPTX, "open zip", err)
	}

	var slides []slidePart
	for _, f := range zr.File {
		m := slidePartRe.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		slides = append(slides, slidePart{num: n, file: f})
	}
	if len(slides) == 0 && findZipFile(zr, "ppt/presentation.xml") == nil {
		return nil, corrupt(FormatPPTX, "no presentation parts in archive", nil)
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	buf := newTextBuffer(lim)
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			return nil, corrupt(FormatPPTX, fmt.Sprintf("open slide %d", s.num), err)
		}
		// Slides are separated by a blank line; the previous slide already
		// ended with a newline.
		mark := buf.Len()
		if mark > 0 {
			if err := buf.WriteByte('\n'); err != nil {
				rc.Close()
				return nil, limitErr(FormatPPTX, "", err)
			}
		}
		n, err := ooxmlText(newPartReader(rc, lim.unzip), buf, "p", "t")
		rc.Close()
		if err != nil {
			return nil, limitErr(FormatPPTX, fmt.Sprintf("parse slide %d", s.num), err)
		}
		if n == 0 {
			buf.truncate(mark)
		}
	}
	return &Document{Text: buf.String(), Parts: len(slides)}, nil
}
