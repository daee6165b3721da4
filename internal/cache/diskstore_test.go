package cache

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDiskStoreWriteThenOpenRoundTrip(t *testing.T) {
	s := NewDiskStore(t.TempDir())
	if err := s.Write("example.com/digest1", []byte("hello")); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	rc, mtime, err := s.Open("example.com/digest1", 0)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll() failed: %v", err)
	}
	if string(body) != "hello" {
		t.Errorf("Open() body = %q, want %q", body, "hello")
	}
	if mtime.IsZero() {
		t.Errorf("Open() returned a zero mtime")
	}
}

func TestDiskStoreOpenMissingIsNotFound(t *testing.T) {
	s := NewDiskStore(t.TempDir())
	_, _, err := s.Open("example.com/nope", 0)
	if err != ErrNotFound {
		t.Errorf("Open() of missing key = %v, want ErrNotFound", err)
	}
}

func TestDiskStoreOpenRespectsExpiry(t *testing.T) {
	dir := t.TempDir()
	s := NewDiskStore(dir)
	if err := s.Write("example.com/digest1", []byte("hello")); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	path := filepath.Join(dir, "example.com", "digest1")
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("Chtimes() failed: %v", err)
	}

	if _, _, err := s.Open("example.com/digest1", time.Minute); err != ErrNotFound {
		t.Errorf("Open() with a stale mtime = %v, want ErrNotFound", err)
	}
	if _, _, err := s.Open("example.com/digest1", 0); err != nil {
		t.Errorf("Open() with expire=0 (no freshness check) should succeed, got %v", err)
	}
}

func TestDiskStoreLayoutMatchesSpec(t *testing.T) {
	dir := t.TempDir()
	s := NewDiskStore(dir)
	if err := s.Write("example.com/digest1", []byte("x")); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "example.com", "digest1")); err != nil {
		t.Errorf("expected file at queue_name/<digest>, got: %v", err)
	}
}

func TestDiskStoreNonRegularFileIsError(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "example.com", "digest1"), 0o755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	s := NewDiskStore(dir)
	_, _, err := s.Open("example.com/digest1", 0)
	if _, ok := err.(*NotRegularFileError); !ok {
		t.Errorf("Open() of a directory entry = %v, want *NotRegularFileError", err)
	}
}
