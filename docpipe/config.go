package docpipe

import "log/slog"

// Config configures the extraction pipeline.
type Config struct {
	// MaxFileSize is the maximum input size to parse (default: 100 MB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// MaxTextSize caps the extracted text of one document (default: 16 MB).
	MaxTextSize int64 `json:"max_text_size" yaml:"max_text_size"`

	// MaxUnzipSize caps decompressed archive content: each docx or pptx part,
	// and the whole package of an xlsx workbook (default: 256 MB).
	MaxUnzipSize int64 `json:"max_unzip_size" yaml:"max_unzip_size"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 100 * 1024 * 1024
	}
	if c.MaxTextSize <= 0 {
		c.MaxTextSize = 16 * 1024 * 1024
	}
	if c.MaxUnzipSize <= 0 {
		c.MaxUnzipSize = 256 * 1024 * 1024
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func (c *Config) limits() limits {
	return limits{text: c.MaxTextSize, unzip: c.MaxUnzipSize}
}
