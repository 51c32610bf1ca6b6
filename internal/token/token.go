// Package token owns the bearer credential. It persists the token in an
// obfuscated form under a single storage key, decodes it lazily on first use
// and treats expired tokens as absent.
//
// The encoding is not a security boundary; it only keeps the raw token out of
// casual inspection of the storage directory.
package token

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/phrazzld/portal-client/internal/platform/storage"
)

const (
	// StorageKey is the storage entry holding the encoded token.
	StorageKey = "token"

	// DefaultLifetime applies when no explicit expiry is given.
	DefaultLifetime = 7 * 24 * time.Hour
)

// Store holds the current token in memory, backed by persistent storage.
type Store struct {
	mu      sync.Mutex
	storage storage.Store
	logger  *slog.Logger
	now     func() time.Time

	loaded bool
	token  string
	expiry time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store over st. Nothing is read until the first Get.
func New(st storage.Store, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		storage: st,
		logger:  logger.With("component", "token_store"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the current token. An expired or unreadable token is reported
// as absent and removed from storage.
func (s *Store) Get() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		s.loaded = true
		s.loadLocked()
	}
	if s.token == "" {
		return "", false
	}
	if !s.expiry.After(s.now()) {
		s.logger.Info("stored token expired", "expiry", s.expiry)
		s.clearLocked()
		return "", false
	}
	return s.token, true
}

func (s *Store) loadLocked() {
	raw, err := s.storage.Get(StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		s.logger.Warn("failed to read stored token", "error", err)
		return
	}
	tok, exp, err := Decode(string(raw))
	if err != nil {
		s.logger.Warn("discarding undecodable stored token", "error", err)
		s.clearLocked()
		return
	}
	s.token, s.expiry = tok, exp
}

// Present reports whether a valid token is available.
func (s *Store) Present() bool {
	_, ok := s.Get()
	return ok
}

// Expiry returns the expiry of the current token.
func (s *Store) Expiry() (time.Time, bool) {
	if _, ok := s.Get(); !ok {
		return time.Time{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiry, true
}

// Set stores token with the default lifetime. An empty token clears the
// store.
func (s *Store) Set(token string) error {
	return s.SetWithExpiry(token, time.Time{})
}

// SetWithExpiry stores token until expiry. A zero expiry means
// DefaultLifetime from now.
func (s *Store) SetWithExpiry(token string, expiry time.Time) error {
	if token == "" {
		return s.Clear()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if expiry.IsZero() {
		expiry = s.now().Add(DefaultLifetime)
	}
	if err := s.storage.Set(StorageKey, []byte(Encode(token, expiry))); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	s.loaded = true
	s.token, s.expiry = token, expiry
	return nil
}

// Clear forgets the token in memory and in storage.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = true
	return s.clearLocked()
}

func (s *Store) clearLocked() error {
	s.token, s.expiry = "", time.Time{}
	if err := s.storage.Delete(StorageKey); err != nil {
		s.logger.Warn("failed to delete stored token", "error", err)
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

// ExpiryFromJWT reads the exp claim of a JWT without verifying its
// signature. ok is false when token is not a JWT or carries no exp.
func ExpiryFromJWT(token string) (expiry time.Time, ok bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
