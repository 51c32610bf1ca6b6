// Package storage provides client-local persisted key/value storage. It plays
// the role browser localStorage plays for a web client: small opaque blobs
// (the obfuscated token, per-model caches) that survive restarts.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/phrazzld/portal-client/internal/config"
)

// ErrNotFound is returned by Get when a key holds no value.
var ErrNotFound = errors.New("storage: key not found")

// Store is a flat key/value store. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// Open builds the backend selected by cfg.Driver.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(), nil
	case "disk":
		return NewDisk(cfg.Path)
	case "sqlite":
		path := cfg.Path
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, "portal.db")
		}
		return NewSQLite(path)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}
