package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileStoreUploadAndRemove(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "/media")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	url, err := store.Upload(ctx, UploadParams{
		Reader:      strings.NewReader("fake-png-bytes"),
		Size:        int64(len("fake-png-bytes")),
		ContentType: "image/png",
		Kind:        "avatars",
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !strings.HasPrefix(url, "/media/avatars/") || !strings.HasSuffix(url, ".png") {
		t.Fatalf("unexpected URL shape: %q", url)
	}

	onDisk := filepath.Join(dir, strings.TrimPrefix(url, "/media/"))
	data, err := os.ReadFile(onDisk)
	if err != nil {
		t.Fatalf("read uploaded file: %v", err)
	}
	if string(data) != "fake-png-bytes" {
		t.Fatalf("content mismatch: %q", data)
	}

	if err := store.Remove(ctx, url); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(onDisk); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("file still present after Remove")
	}

	// Removing an already-absent object is not an error.
	if err := store.Remove(ctx, url); err != nil {
		t.Fatalf("repeat Remove: %v", err)
	}
}

func TestFileStoreRejectsUnsupportedType(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "/media")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	_, err = store.Upload(context.Background(), UploadParams{
		Reader:      strings.NewReader("#!/bin/sh"),
		Size:        9,
		ContentType: "application/x-sh",
		Kind:        "avatars",
	})
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestFileStoreRemoveRejectsForeignAndTraversalURLs(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "/media")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	if err := store.Remove(ctx, "https://elsewhere.example.com/a.png"); err == nil {
		t.Fatal("foreign URL must be rejected")
	}
	if err := store.Remove(ctx, "/media/../../etc/passwd"); err == nil {
		t.Fatal("traversal URL must be rejected")
	}
}
