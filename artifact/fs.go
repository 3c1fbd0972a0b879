package artifact

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// FSBackend stores artifacts below a base directory on the local filesystem.
type FSBackend struct {
	base string
}

// NewFSBackend returns a backend rooted at base.
func NewFSBackend(base string) *FSBackend {
	return &FSBackend{base: filepath.Clean(base)}
}

func (b *FSBackend) Resolve(rel string) string {
	return filepath.Join(b.base, filepath.FromSlash(rel))
}

// Write creates missing directories and writes data through a temp file in
// the target directory followed by a rename, so readers never observe a
// partial artifact.
func (b *FSBackend) Write(ctx context.Context, rel string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := b.Resolve(rel)
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &IOError{Op: "mkdir", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return &IOError{Op: "write", Path: dst, Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return &IOError{Op: "write", Path: dst, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return &IOError{Op: "write", Path: dst, Err: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return &IOError{Op: "write", Path: dst, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return &IOError{Op: "write", Path: dst, Err: err}
	}
	if err := os.Rename(tmpName, dst); err != nil {
		cleanup()
		return &IOError{Op: "rename", Path: dst, Err: err}
	}
	return nil
}

func (b *FSBackend) Read(ctx context.Context, resolved string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(resolved)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &IOError{Op: "read", Path: resolved, Err: err}
	}
	return data, nil
}
