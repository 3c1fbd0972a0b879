package docpipe

// Format identifies a document type by its canonical extension (no dot).
type Format string

const (
	FormatTXT  Format = "txt"
	FormatDoc  Format = "doc"
	FormatDocx Format = "docx"
	FormatXLS  Format = "xls"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
	FormatPPT  Format = "ppt"
	FormatPPTX Format = "pptx"
)

// Document is the plain-text rendering of one uploaded file.
type Document struct {
	Filename string             `json:"filename"`
	Format   Format             `json:"format"`
	Text     string             `json:"text"`
	Parts    int                `json:"parts"`             // pages, sheets or slides; 0 when not applicable
	Quality  *ExtractionQuality `json:"quality,omitempty"` // PDF only
}
