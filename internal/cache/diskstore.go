package cache

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterbourgon/diskv"
)

// DiskStore is the default cache.Store backend: a filesystem tree keyed
// by cache key, exactly as spec §3 requires — a file at
// queue_name/<digest> whose mtime is the authoritative freshness
// timestamp. It drives diskv the same way the teacher's NewDiskCache
// drives it (diskv.New + AdvancedTransform), but the transform is the
// identity split on "/" instead of diskv's usual flattening, because the
// spec pins the on-disk layout and DiskStore also needs to stat the
// exact path diskv would otherwise hide behind its own Read API.
type DiskStore struct {
	baseDir string
	dv      *diskv.Diskv
}

// NewDiskStore creates a DiskStore rooted at baseDir.
func NewDiskStore(baseDir string) *DiskStore {
	transform := func(key string) *diskv.PathKey {
		dir, file := splitKey(key)
		return &diskv.PathKey{Path: []string{dir}, FileName: file}
	}
	inverse := func(pk *diskv.PathKey) string {
		if len(pk.Path) == 0 {
			return pk.FileName
		}
		return pk.Path[0] + "/" + pk.FileName
	}
	dv := diskv.New(diskv.Options{
		BasePath:          baseDir,
		AdvancedTransform: transform,
		InverseTransform:  inverse,
		CacheSizeMax:      0,
	})
	return &DiskStore{baseDir: baseDir, dv: dv}
}

func splitKey(key string) (dir, file string) {
	idx := strings.IndexByte(key, '/')
	if idx < 0 {
		return "", key
	}
	return key[:idx], key[idx+1:]
}

func (s *DiskStore) path(key string) string {
	dir, file := splitKey(key)
	return filepath.Join(s.baseDir, dir, file)
}

// Open implements Store.
func (s *DiskStore) Open(key string, expire time.Duration) (io.ReadCloser, time.Time, error) {
	info, err := os.Stat(s.path(key))
	if os.IsNotExist(err) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	if !info.Mode().IsRegular() {
		return nil, time.Time{}, &NotRegularFileError{Path: s.path(key)}
	}
	if expire > 0 && time.Since(info.ModTime()) > expire {
		return nil, time.Time{}, ErrNotFound
	}
	rc, err := s.dv.ReadStream(key, false)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, time.Time{}, ErrNotFound
		}
		return nil, time.Time{}, err
	}
	return rc, info.ModTime(), nil
}

// Write implements Store.
func (s *DiskStore) Write(key string, body []byte) error {
	return s.dv.Write(key, body)
}

// NotRegularFileError is returned when a cache entry's path exists but
// is not a regular file, which spec §4.2 calls out as a 500, not a miss.
type NotRegularFileError struct {
	Path string
}

func (e *NotRegularFileError) Error() string {
	return "cache: entry at " + e.Path + " is not a regular file"
}
