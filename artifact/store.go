// Package artifact stores uploaded originals and rendered reports under a
// course/assignment layout:
//
//	<base>/<course>/<assignment>/<32 hex><ext>
//	<base>/<course>/<assignment>/<stem>-report.txt
//
// Every path component derived from user input goes through
// pathsafe.Component, so relative paths never contain "..".
package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/originality/docpipe"
	"github.com/hazyhaar/originality/idgen"
	"github.com/hazyhaar/originality/pathsafe"
)

// Backend persists artifact bytes.
type Backend interface {
	// Resolve maps a relative artifact path to the backend's absolute form.
	Resolve(rel string) string
	// Write stores data at rel atomically, creating parents as needed.
	Write(ctx context.Context, rel string, data []byte) error
	// Read returns the bytes at a resolved path, or ErrNotFound.
	Read(ctx context.Context, resolved string) ([]byte, error)
}

// Artifact is a stored byte stream.
type Artifact struct {
	RelPath string `json:"rel_path"`
	Size    int    `json:"size"`
}

// Config selects the backend.
type Config struct {
	// Backend is "fs" (default) or "s3".
	Backend string   `yaml:"backend"`
	BaseDir string   `yaml:"base_dir"`
	S3      S3Config `yaml:"s3"`

	Logger *slog.Logger    `yaml:"-"`
	Names  idgen.Generator `yaml:"-"`
}

func (c *Config) defaults() {
	if c.Backend == "" {
		c.Backend = "fs"
	}
	if c.BaseDir == "" {
		c.BaseDir = "uploads"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Names == nil {
		c.Names = idgen.HexToken(16)
	}
}

// Store places artifacts on a Backend.
type Store struct {
	backend Backend
	names   idgen.Generator
	logger  *slog.Logger
}

// New builds the backend named in cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()
	var b Backend
	switch cfg.Backend {
	case "fs":
		b = NewFSBackend(cfg.BaseDir)
	case "s3":
		s3b, err := NewS3Backend(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		b = s3b
	default:
		return nil, fmt.Errorf("artifact: unknown backend %q", cfg.Backend)
	}
	return NewWithBackend(b, cfg), nil
}

// NewWithBackend wraps an existing backend. cfg.Backend and cfg.BaseDir are
// ignored.
func NewWithBackend(b Backend, cfg Config) *Store {
	cfg.defaults()
	return &Store{backend: b, names: cfg.Names, logger: cfg.Logger}
}

func dir(course, assignment string) string {
	return pathsafe.Component(course) + "/" + pathsafe.Component(assignment)
}

// StoreOriginal writes an uploaded file under a fresh random name that keeps
// the original extension (lowercased). Unsupported extensions are rejected
// before any I/O.
func (s *Store) StoreOriginal(ctx context.Context, course, assignment, filename string, data []byte) (*Artifact, error) {
	ext := docpipe.Ext(filename)
	if !docpipe.IsSupported(filename) {
		return nil, &docpipe.UnsupportedFormatError{Ext: ext}
	}
	rel := dir(course, assignment) + "/" + s.names() + ext
	if err := s.backend.Write(ctx, rel, data); err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "artifact stored", "rel_path", rel, "bytes", len(data))
	return &Artifact{RelPath: rel, Size: len(data)}, nil
}

// ReportName is the report filename for an original upload name.
func ReportName(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == "/" {
		stem = "submission"
	}
	return pathsafe.Component(stem) + "-report.txt"
}

// StoreReport writes a rendered report next to the originals. Two
// submissions with the same filename stem share a report path; the last
// write wins.
func (s *Store) StoreReport(ctx context.Context, course, assignment, filename, text string) (*Artifact, error) {
	rel := dir(course, assignment) + "/" + ReportName(filename)
	if err := s.backend.Write(ctx, rel, []byte(text)); err != nil {
		return nil, err
	}
	return &Artifact{RelPath: rel, Size: len(text)}, nil
}

// Resolve maps a relative artifact path to the backend location.
func (s *Store) Resolve(rel string) string {
	return s.backend.Resolve(path.Clean("/" + rel)[1:])
}

// Retrieve reads a resolved artifact path.
func (s *Store) Retrieve(ctx context.Context, resolved string) ([]byte, error) {
	return s.backend.Read(ctx, resolved)
}
