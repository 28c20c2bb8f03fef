package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/raysh454/a11yscan/internal/cache"
	"github.com/raysh454/a11yscan/internal/model"
)

// ref is the small keyed record pointing at the payload blob.
type ref struct {
	Key       string    `json:"key"`
	BlobID    string    `json:"blob_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ObjectStore keeps cache entries as refs (one JSON file per key, named by the
// key's hash) pointing at content-addressed payload blobs. Identical payloads
// share one blob.
//
// Layout:
//
//	root/
//	  refs/<h[:2]>/<h>.json
//	  blobs/<id[:2]>/<id>
type ObjectStore struct {
	refsDir string
	blobs   *Blobstore
}

var _ cache.DurableTier = (*ObjectStore)(nil)

// NewObjectStore creates the refs and blobs directories under root.
func NewObjectStore(root string) (*ObjectStore, error) {
	if root == "" {
		return nil, errors.New("blobstore: empty root")
	}
	refsDir := filepath.Join(root, "refs")
	if err := os.MkdirAll(refsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create refs dir: %w", err)
	}
	bs, err := New(filepath.Join(root, "blobs"))
	if err != nil {
		return nil, err
	}
	return &ObjectStore{refsDir: refsDir, blobs: bs}, nil
}

func (o *ObjectStore) refPath(key string) string {
	h := hashHex([]byte(key))
	return filepath.Join(o.refsDir, h[:2], h+".json")
}

// Get returns the entry for key or cache.ErrNotFound.
func (o *ObjectStore) Get(ctx context.Context, key string) (*cache.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(o.refPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", cache.ErrNotFound, key)
		}
		return nil, fmt.Errorf("read ref: %w", err)
	}
	var r ref
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode ref %s: %w", key, err)
	}
	// hash collisions on the ref filename are not expected, but never serve another key's payload
	if r.Key != key {
		return nil, fmt.Errorf("%w: %s", cache.ErrNotFound, key)
	}

	data, err := o.blobs.Get(r.BlobID)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, fmt.Errorf("%w: dangling ref for %s", cache.ErrNotFound, key)
		}
		return nil, err
	}
	var payload model.ReportResult
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode payload %s: %w", r.BlobID, err)
	}
	return &cache.Entry{
		Key:       r.Key,
		Payload:   &payload,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

// Put writes the payload blob and then atomically replaces the ref.
func (o *ObjectStore) Put(ctx context.Context, key string, e *cache.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e == nil || e.Payload == nil {
		return errors.New("blobstore: nil entry")
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	blobID, err := o.blobs.Put(data)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(ref{Key: key, BlobID: blobID, CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt})
	if err != nil {
		return fmt.Errorf("encode ref: %w", err)
	}
	return AtomicWriteFile(o.refPath(key), raw, 0o644)
}

// Delete removes the ref for key. Blobs are left for a later prune since other
// refs may share them.
func (o *ObjectStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(o.refPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete ref: %w", err)
	}
	return nil
}
