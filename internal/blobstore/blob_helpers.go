package blobstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ErrUnsafePath is returned for paths that climb out of their root.
var ErrUnsafePath = errors.New("unsafe path")

// AtomicWriteFile writes data to path via temp file + fsync + rename, so readers
// see either the old content or the complete new content.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) (err error) {
	if err := validatePath(path); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	// same directory, or the rename is not atomic
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", tmp.Name(), err)
	}
	if err = tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publishing %s: %w", path, err)
	}
	return nil
}

func validatePath(path string) error {
	parts := strings.Split(filepath.Clean(path), string(os.PathSeparator))
	if slices.Contains(parts, "..") {
		return fmt.Errorf("%w: %q", ErrUnsafePath, path)
	}
	return nil
}
