package blobstore

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const casAlgorithmPrefix = "blake2b"

// LocalCAS stores blob bytes in a local content-addressed tree. Blob ids are
// the unpadded base64url encoding of the BLAKE2b-256 digest of the content.
type LocalCAS struct {
	root string
}

var _ BlobStore = (*LocalCAS)(nil)

// NewLocalCAS creates a local CAS rooted at root.
func NewLocalCAS(root string) (*LocalCAS, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("local cas root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, "tmp"), 0o755); err != nil {
		return nil, err
	}
	return &LocalCAS{root: abs}, nil
}

// BlobID returns the id content would be stored under.
func BlobID(data []byte) string {
	sum := blake2b.Sum256(data)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Put streams bytes, hashes them, and stores content by digest.
// Storing identical content twice is a no-op returning the same id.
func (c *LocalCAS) Put(ctx context.Context, r io.Reader) (PutResult, error) {
	var zero PutResult
	if c == nil {
		return zero, fmt.Errorf("blob store is not configured")
	}
	if r == nil {
		return zero, fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	tmp, err := os.CreateTemp(filepath.Join(c.root, "tmp"), "put-*")
	if err != nil {
		return zero, err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	h, err := blake2b.New256(nil)
	if err != nil {
		cleanup()
		return zero, err
	}
	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		cleanup()
		return zero, err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return zero, err
	}

	sum := h.Sum(nil)
	result := PutResult{
		BlobID:    base64.RawURLEncoding.EncodeToString(sum),
		Digest:    hex.EncodeToString(sum),
		SizeBytes: n,
	}
	result.Key = casKeyFromDigest(result.Digest)
	if err := c.commit(tmpPath, filepath.Join(c.root, filepath.FromSlash(result.Key))); err != nil {
		cleanup()
		return zero, err
	}
	return result, nil
}

// commit moves a finished temp file into place. An existing destination
// already holds identical bytes, so the temp file is dropped instead.
func (c *LocalCAS) commit(tmpPath, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(dst); err == nil {
		return os.Remove(tmpPath)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		if _, statErr := os.Stat(dst); statErr == nil {
			return os.Remove(tmpPath)
		}
		return err
	}
	return nil
}

// Open returns a reader for the blob's content.
func (c *LocalCAS) Open(ctx context.Context, blobID string) (io.ReadCloser, error) {
	if c == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := c.pathFromBlobID(blobID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, blobID)
	}
	return f, err
}

// Delete removes a blob. Missing blobs are ignored.
func (c *LocalCAS) Delete(ctx context.Context, blobID string) error {
	if c == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := c.pathFromBlobID(blobID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func casKeyFromDigest(digest string) string {
	return fmt.Sprintf("%s/%s/%s/%s", casAlgorithmPrefix, digest[0:2], digest[2:4], digest)
}

func (c *LocalCAS) pathFromBlobID(blobID string) (string, error) {
	blobID = strings.TrimSpace(blobID)
	if blobID == "" {
		return "", fmt.Errorf("blob id is required")
	}
	sum, err := base64.RawURLEncoding.DecodeString(blobID)
	if err != nil || len(sum) != blake2b.Size256 {
		return "", fmt.Errorf("invalid blob id %q", blobID)
	}
	key := casKeyFromDigest(hex.EncodeToString(sum))
	return filepath.Join(c.root, filepath.FromSlash(key)), nil
}
