package docpipe

import (
	"path/filepath"
	"strings"
)

var extFormats = map[string]Format{
	".txt":  FormatTXT,
	".doc":  FormatDoc,
	".docx": FormatDocx,
	".xls":  FormatXLS,
	".xlsx": FormatXLSX,
	".pdf":  FormatPDF,
	".ppt":  FormatPPT,
	".pptx": FormatPPTX,
}

var mimeTypes = map[string]string{
	".txt":  "text/plain",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pdf":  "application/pdf",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
}

// SupportedExtensions returns the accepted upload extensions in display order.
func SupportedExtensions() []string {
	return []string{".txt", ".doc", ".docx", ".xls", ".xlsx", ".pdf", ".ppt", ".pptx"}
}

// Ext returns the lowercased extension of filename, including the dot.
func Ext(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// IsSupported reports whether filename has one of the supported extensions.
func IsSupported(filename string) bool {
	_, ok := extFormats[Ext(filename)]
	return ok
}

// MimeType maps filename's extension to its MIME type, defaulting to
// application/octet-stream.
func MimeType(filename string) string {
	if m, ok := mimeTypes[Ext(filename)]; ok {
		return m
	}
	return "application/octet-stream"
}
