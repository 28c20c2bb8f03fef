// Package blobstore is the durable tier of the result cache: a content-addressed
// blob store on the filesystem plus a keyed object layer on top of it.
package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrBlobNotFound is returned by Get/GetReader for unknown ids.
var ErrBlobNotFound = errors.New("blob not found")

// Blobstore stores blobs under dir using the SHA-256 hex of the content as the
// filename. The first two characters of the hash form a subdirectory.
type Blobstore struct {
	dir string
}

// New creates a Blobstore rooted at dir, creating it if needed.
func New(dir string) (*Blobstore, error) {
	if dir == "" {
		return nil, errors.New("blobstore: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blobs directory: %w", err)
	}
	return &Blobstore{dir: dir}, nil
}

// Put stores data and returns its id. Existing content is not rewritten.
func (bs *Blobstore) Put(data []byte) (string, error) {
	id := hashHex(data)
	p := bs.blobPath(id)
	if _, err := os.Stat(p); err == nil {
		return id, nil
	}
	if err := AtomicWriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	return id, nil
}

// Get returns the blob content after verifying its hash.
func (bs *Blobstore) Get(id string) ([]byte, error) {
	data, err := os.ReadFile(bs.blobPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, id)
		}
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	if got := hashHex(data); got != id {
		return nil, fmt.Errorf("blob integrity check failed: expected %s, got %s", id, got)
	}
	return data, nil
}

// GetReader opens a blob for streaming reads. No integrity check is done.
func (bs *Blobstore) GetReader(id string) (io.ReadCloser, error) {
	f, err := os.Open(bs.blobPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, id)
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return f, nil
}

func (bs *Blobstore) Exists(id string) bool {
	_, err := os.Stat(bs.blobPath(id))
	return err == nil
}

// Delete removes a blob. Deleting a missing blob is not an error.
func (bs *Blobstore) Delete(id string) error {
	if err := os.Remove(bs.blobPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// blobPath returns dir/{first2}/{id}. Short ids map to a directory that can never
// hold a real blob.
func (bs *Blobstore) blobPath(id string) string {
	if len(id) < 2 {
		return filepath.Join(bs.dir, "__invalid__", id)
	}
	return filepath.Join(bs.dir, id[:2], id)
}

func hashHex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
