package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

func TestLocalCASPutOpenDelete(t *testing.T) {
	cas, err := NewLocalCAS(t.TempDir())
	if err != nil {
		t.Fatalf("new local cas: %v", err)
	}

	first, err := cas.Put(context.Background(), bytes.NewBufferString("hello"))
	if err != nil {
		t.Fatalf("put first: %v", err)
	}
	if first.BlobID == "" || first.Key == "" || first.SizeBytes != 5 {
		t.Fatalf("unexpected put result: %#v", first)
	}
	if first.BlobID != BlobID([]byte("hello")) {
		t.Fatalf("expected blob id %s, got %s", BlobID([]byte("hello")), first.BlobID)
	}

	second, err := cas.Put(context.Background(), bytes.NewBufferString("hello"))
	if err != nil {
		t.Fatalf("put second: %v", err)
	}
	if first != second {
		t.Fatalf("expected dedupe results to match: first=%#v second=%#v", first, second)
	}

	rc, err := cas.Open(context.Background(), first.BlobID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("expected hello, got %q", string(data))
	}

	if err := cas.Delete(context.Background(), first.BlobID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := cas.Delete(context.Background(), first.BlobID); err != nil {
		t.Fatalf("delete missing should be noop: %v", err)
	}
	if _, err := cas.Open(context.Background(), first.BlobID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestLocalCASRejectsInvalidIDs(t *testing.T) {
	cas, err := NewLocalCAS(t.TempDir())
	if err != nil {
		t.Fatalf("new local cas: %v", err)
	}
	for _, id := range []string{"", "../etc/passwd", "short", "!!!!"} {
		if _, err := cas.Open(context.Background(), id); err == nil {
			t.Fatalf("expected error for blob id %q", id)
		}
	}
}
