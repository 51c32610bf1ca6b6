package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/phrazzld/portal-client/internal/api"
	"github.com/phrazzld/portal-client/internal/domain"
)

// UserFetcher fetches public user profiles. *api.Client satisfies it.
type UserFetcher interface {
	UserByID(ctx context.Context, id string) api.Response
}

// Users is a directory of user records seen so far, fed by records
// embedded in other payloads and by explicit fetches.
type Users struct {
	fetcher UserFetcher
	classes domain.Lookup[domain.Class]
	grades  domain.Lookup[domain.Grade]
	logger  *slog.Logger

	mu    sync.RWMutex
	users map[string]domain.User
}

// NewUsers creates an empty directory. classes and grades resolve profiles.
func NewUsers(fetcher UserFetcher, classes domain.Lookup[domain.Class], grades domain.Lookup[domain.Grade], logger *slog.Logger) *Users {
	return &Users{
		fetcher: fetcher,
		classes: classes,
		grades:  grades,
		logger:  logger.With("component", "users"),
		users:   make(map[string]domain.User),
	}
}

// Put records u, replacing any earlier record with the same id.
func (d *Users) Put(u domain.User) {
	if u.ID == "" {
		return
	}
	d.mu.Lock()
	d.users[string(u.ID)] = u
	d.mu.Unlock()
}

// SetRaw decodes and records a raw user payload.
func (d *Users) SetRaw(raw json.RawMessage) (domain.User, error) {
	u, err := domain.ParseUser(raw)
	if err != nil {
		return domain.User{}, err
	}
	d.Put(u)
	return u, nil
}

// Get returns a known user without contacting the server.
func (d *Users) Get(id string) (domain.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	return u, ok
}

// Find implements domain.Lookup.
func (d *Users) Find(id string) (domain.User, bool) { return d.Get(id) }

// Len returns the number of known users.
func (d *Users) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}

// Profile resolves a known user's class and grade.
func (d *Users) Profile(id string) (domain.Profile, bool) {
	u, ok := d.Get(id)
	if !ok {
		return domain.Profile{}, false
	}
	return domain.ResolveProfile(u, d.classes, d.grades), true
}

// Fetch loads a user from the server and records it. A user the caller may
// not see yields ok == false and no error.
func (d *Users) Fetch(ctx context.Context, id string) (u domain.User, ok bool, err error) {
	resp := d.fetcher.UserByID(ctx, id)
	switch {
	case resp.Status == http.StatusUnauthorized || resp.Status == http.StatusForbidden:
		d.logger.Warn("not allowed to fetch user details", "user_id", id, "status", resp.Status)
		return domain.User{}, false, nil
	case !resp.OK():
		return domain.User{}, false, fmt.Errorf("fetch user %s: %w", id, resp.Err())
	}
	u, err = d.SetRaw(resp.Data)
	if err != nil {
		return domain.User{}, false, fmt.Errorf("fetch user %s: %w", id, err)
	}
	return u, true, nil
}
