package serializer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// AtomicFile buffers output in a temporary file next to the destination and
// renames it into place on Commit.
type AtomicFile struct {
	f    *os.File
	path string
	done bool
}

func CreateAtomic(path string) (*AtomicFile, error) {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to open destination %s: %w", path, err)
	}
	return &AtomicFile{f: f, path: path}, nil
}

func (a *AtomicFile) Write(p []byte) (int, error) {
	return a.f.Write(p)
}

func (a *AtomicFile) Path() string {
	return a.path
}

func (a *AtomicFile) Commit() error {
	if a.done {
		return errors.New("atomic file already closed")
	}
	a.done = true

	tmp := a.f.Name()
	if err := a.f.Sync(); err != nil {
		_ = a.f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to sync %s: %w", a.path, err)
	}
	if err := a.f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close %s: %w", a.path, err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to chmod %s: %w", a.path, err)
	}
	if err := os.Rename(tmp, a.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}

// Abort discards everything written. Calling it after Commit is a no-op.
func (a *AtomicFile) Abort() error {
	if a.done {
		return nil
	}
	a.done = true

	tmp := a.f.Name()
	closeErr := a.f.Close()
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return closeErr
}
