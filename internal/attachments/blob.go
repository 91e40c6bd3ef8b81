package attachments

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// ReadStatus tags the outcome of a blob read so callers branch on a
// domain kind instead of transport error codes.
type ReadStatus int

const (
	ReadOK ReadStatus = iota
	ReadNotFound
	ReadPermissionDenied
	ReadFailed
)

// ReadResult is the tagged result of BlobStore.Open. Body is non-nil
// only when Status is ReadOK; Err carries the underlying cause for
// ReadFailed and is for server-side logging only.
type ReadResult struct {
	Status ReadStatus
	Body   io.ReadCloser
	Err    error
}

// BlobStore is the collaborator holding encrypted attachment bytes.
// This core only persists and queries keys; the bytes are opaque.
type BlobStore interface {
	Store(ctx context.Context, key string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) ReadResult
	Delete(ctx context.Context, key string) error
}

// DiskStore is a filesystem-backed BlobStore for single-node use.
type DiskStore struct {
	root string
}

// NewDiskStore creates the root directory if needed.
func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &DiskStore{root: root}, nil
}

func (s *DiskStore) path(key string) string {
	// Keys are server-generated UUIDs; Base strips anything else.
	return filepath.Join(s.root, filepath.Base(key))
}

func (s *DiskStore) Store(ctx context.Context, key string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(s.path(key), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(s.path(key))
		return 0, err
	}
	return n, nil
}

func (s *DiskStore) Open(ctx context.Context, key string) ReadResult {
	f, err := os.Open(s.path(key))
	switch {
	case err == nil:
		return ReadResult{Status: ReadOK, Body: f}
	case errors.Is(err, fs.ErrNotExist):
		return ReadResult{Status: ReadNotFound}
	case errors.Is(err, fs.ErrPermission):
		return ReadResult{Status: ReadPermissionDenied}
	default:
		log.Error().Err(err).Str("key", key).Msg("blob open failed")
		return ReadResult{Status: ReadFailed, Err: err}
	}
}

func (s *DiskStore) Delete(ctx context.Context, key string) error {
	err := os.Remove(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
