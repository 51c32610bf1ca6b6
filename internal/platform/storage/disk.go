package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/peterbourgon/diskv/v3"
)

// Disk persists each key as one file under a base directory using diskv.
// Keys are base64url encoded so that endpoint paths such as
// "cache_user/grades" map to flat, portable file names.
type Disk struct {
	d *diskv.Diskv
}

var _ Store = (*Disk)(nil)

// NewDisk creates a diskv-backed store rooted at basePath.
func NewDisk(basePath string) (*Disk, error) {
	if basePath == "" {
		return nil, errors.New("storage: disk driver requires a path")
	}
	if err := os.MkdirAll(basePath, 0o700); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Disk{d: diskv.New(diskv.Options{
		BasePath:          basePath,
		AdvancedTransform: keyToPath,
		InverseTransform:  pathToKey,
		CacheSizeMax:      1024 * 1024, // 1MB
		FilePerm:          0o600,
		PathPerm:          0o700,
	})}, nil
}

func keyToPath(key string) *diskv.PathKey {
	return &diskv.PathKey{FileName: base64.RawURLEncoding.EncodeToString([]byte(key))}
}

func pathToKey(pk *diskv.PathKey) string {
	raw, err := base64.RawURLEncoding.DecodeString(pk.FileName)
	if err != nil {
		return pk.FileName
	}
	return string(raw)
}

func (s *Disk) Get(key string) ([]byte, error) {
	v, err := s.d.Read(key)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", key, err)
	}
	return v, nil
}

func (s *Disk) Set(key string, value []byte) error {
	if err := s.d.Write(key, value); err != nil {
		return fmt.Errorf("write %q: %w", key, err)
	}
	return nil
}

func (s *Disk) Delete(key string) error {
	if err := s.d.Erase(key); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("erase %q: %w", key, err)
	}
	return nil
}

func (s *Disk) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	for k := range s.d.Keys(ctx.Done()) {
		keys = append(keys, k)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Disk) Close() error { return nil }
