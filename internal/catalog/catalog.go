// Package catalog instantiates the portal's data models and wires their
// dependencies, caching and cross-model hooks.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/phrazzld/portal-client/internal/api"
	"github.com/phrazzld/portal-client/internal/domain"
	"github.com/phrazzld/portal-client/internal/events"
	"github.com/phrazzld/portal-client/internal/model"
	"github.com/phrazzld/portal-client/internal/platform/metrics"
	"github.com/phrazzld/portal-client/internal/platform/storage"
	"golang.org/x/sync/errgroup"
)

// Endpoint paths.
const (
	PathGrades      = "user/grades"
	PathClasses     = "user/classes"
	PathCategories  = "disciplines/categories"
	PathTags        = "posts/tags"
	PathDisciplines = "disciplines"
	PathPosts       = "posts"
	PathCiphers     = "ciphers"
	PathAlerts      = "data/alerts"
	PathCalendar    = "calendar/auto.json"
)

// hydrateLimit bounds concurrent follow-up requests issued by fetch hooks.
const hydrateLimit = 4

// Client is the part of the gateway the catalog uses. *api.Client
// satisfies it.
type Client interface {
	model.Fetcher
	UserFetcher
	CipherSubmissions(ctx context.Context, cipherID string) api.Response
}

// Options configures a Catalog. Client and Storage are required.
type Options struct {
	Client    Client
	Storage   storage.Store
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Reconnect model.ReconnectNotifier
	Clock     func() time.Time
}

// Loadable is the lifecycle every catalog model shares.
type Loadable interface {
	Path() string
	Cached() bool
	Start(ctx context.Context)
	Wait(ctx context.Context) error
	Load(ctx context.Context, force bool) error
	Reload(ctx context.Context) error
	State() model.State
	Len() int
	LastError() error
}

// Catalog owns one instance of every portal model.
type Catalog struct {
	Grades      *model.Model[domain.Grade]
	Classes     *model.Model[domain.Class]
	Categories  *model.Model[domain.Category]
	Tags        *model.Model[domain.Tag]
	Disciplines *model.PartialModel[domain.Discipline]
	Posts       *model.PartialModel[domain.Post]
	Ciphers     *model.Model[domain.Cipher]
	Alerts      *model.Model[domain.Alert]
	Calendar    *model.Model[domain.Calendar]

	Users *Users

	client    Client
	logger    *slog.Logger
	now       func() time.Time
	reloading atomic.Bool
}

// New builds the catalog. Nothing is fetched until Start.
func New(opts Options) (*Catalog, error) {
	if opts.Client == nil || opts.Storage == nil {
		return nil, errors.New("catalog: client and storage are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	c := &Catalog{
		client: opts.Client,
		logger: opts.Logger.With("component", "catalog"),
		now:    opts.Clock,
	}
	base := func(path string) model.Options {
		return model.Options{
			Path:    path,
			Fetcher: opts.Client,
			Storage: opts.Storage,
			Logger:  opts.Logger,
			Metrics: opts.Metrics,
			Clock:   opts.Clock,
		}
	}

	var err error
	gradesOpts := base(PathGrades)
	gradesOpts.Cache = true
	if c.Grades, err = model.New(gradesOpts, domain.ParseGrade); err != nil {
		return nil, err
	}

	classesOpts := base(PathClasses)
	classesOpts.Cache = true
	classesOpts.Dependencies = []model.Dependency{c.Grades}
	if c.Classes, err = model.New(classesOpts, domain.ParseClass); err != nil {
		return nil, err
	}

	categoriesOpts := base(PathCategories)
	categoriesOpts.Cache = true
	if c.Categories, err = model.New(categoriesOpts, domain.ParseCategory); err != nil {
		return nil, err
	}

	tagsOpts := base(PathTags)
	tagsOpts.Cache = true
	if c.Tags, err = model.New(tagsOpts, domain.ParseTag); err != nil {
		return nil, err
	}

	c.Users = NewUsers(opts.Client, c.Classes, c.Grades, opts.Logger)

	disciplinesOpts := base(PathDisciplines)
	disciplinesOpts.Shape = model.ShapePartial
	disciplinesOpts.Cache = true
	disciplinesOpts.Auth = true
	disciplinesOpts.Dependencies = []model.Dependency{c.Tags, c.Categories, c.Grades}
	disciplinesOpts.ShouldCache = domain.ShouldCacheDiscipline
	if c.Disciplines, err = model.NewPartial(disciplinesOpts, c.parseDiscipline); err != nil {
		return nil, err
	}

	postsOpts := base(PathPosts)
	postsOpts.Shape = model.ShapePartial
	postsOpts.Cache = true
	postsOpts.Dependencies = []model.Dependency{c.Tags, c.Categories, c.Grades, c.Classes}
	if c.Posts, err = model.NewPartial(postsOpts, domain.ParsePost); err != nil {
		return nil, err
	}
	c.Posts.OnFetched(c.hydratePostDisciplines)

	ciphersOpts := base(PathCiphers)
	ciphersOpts.Auth = true
	ciphersOpts.Mutable = true
	ciphersOpts.Dependencies = []model.Dependency{c.Classes, c.Grades}
	if c.Ciphers, err = model.New(ciphersOpts, domain.ParseCipher); err != nil {
		return nil, err
	}
	c.Ciphers.OnFetched(c.loadSubmissions)

	if c.Alerts, err = model.New(base(PathAlerts), domain.ParseAlert); err != nil {
		return nil, err
	}

	calendarOpts := base(PathCalendar)
	calendarOpts.Shape = model.ShapeSingle
	calendarOpts.Cache = true
	calendarOpts.Auth = true
	calendarOpts.Dependencies = []model.Dependency{c.Grades, c.Categories}
	if c.Calendar, err = model.New(calendarOpts, domain.ParseCalendar); err != nil {
		return nil, err
	}

	if opts.Reconnect != nil {
		opts.Reconnect.AddReconnectListener(events.HandlerFunc(c.onReconnect))
	}
	return c, nil
}

// onReconnect reloads the started models in the background, dependencies
// first. A reconnect during a running reload is dropped.
func (c *Catalog) onReconnect(ctx context.Context, _ events.Event) error {
	if !c.reloading.CompareAndSwap(false, true) {
		c.logger.Debug("reload after reconnect already running")
		return nil
	}
	go func() {
		defer c.reloading.Store(false)
		c.reloadStarted(context.WithoutCancel(ctx))
	}()
	return nil
}

func (c *Catalog) reloadStarted(ctx context.Context) {
	c.logger.Debug("connection re-established, reloading models")
	for _, m := range c.All() {
		switch m.State() {
		case model.StateUninitialized, model.StateWaitingForDependencies:
			continue
		}
		_ = m.Reload(ctx)
		if err := m.LastError(); err != nil {
			c.logger.Warn("reload after reconnect failed", "path", m.Path(), "error", err)
		}
	}
}

// parseDiscipline records the organisers and supervisors embedded in a
// discipline in the user directory.
func (c *Catalog) parseDiscipline(raw json.RawMessage) (domain.Discipline, error) {
	d, users, err := domain.DecodeDiscipline(raw)
	if err != nil {
		return domain.Discipline{}, err
	}
	for _, u := range users {
		c.Users.Put(u)
	}
	return d, nil
}

// hydratePostDisciplines makes sure the disciplines related to fetched posts
// are present, then republishes the posts so views resolve them.
func (c *Catalog) hydratePostDisciplines(ctx context.Context, posts []domain.Post) {
	var ids []string
	for _, p := range posts {
		for _, id := range p.RelatedDisciplines {
			if !slices.Contains(ids, string(id)) {
				ids = append(ids, string(id))
			}
		}
	}
	if len(ids) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(hydrateLimit)
	for _, id := range ids {
		g.Go(func() error {
			if _, err := c.Disciplines.LoadSingle(ctx, id, true); err != nil && !errors.Is(err, model.ErrNotFound) {
				c.logger.Debug("related discipline not loaded", "discipline_id", id, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	c.Posts.NotifyUpdated()
}

// loadSubmissions attaches the user's submissions to every started cipher.
func (c *Catalog) loadSubmissions(ctx context.Context, ciphers []domain.Cipher) {
	var g errgroup.Group
	g.SetLimit(hydrateLimit)
	for _, cipher := range ciphers {
		if !cipher.Started {
			continue
		}
		g.Go(func() error {
			id := string(cipher.ID)
			resp := c.client.CipherSubmissions(ctx, id)
			if !resp.OK() {
				c.logger.Error("failed to load cipher submissions", "cipher_id", id, "status", resp.Status, "error", resp.Err())
				return nil
			}
			subs, err := domain.ParseSubmissions(resp.Data)
			if err != nil {
				c.logger.Error("invalid cipher submissions", "cipher_id", id, "error", err)
				return nil
			}
			stored, err := c.Ciphers.Update(id, func(current domain.Cipher, ok bool) (domain.Cipher, bool) {
				if !ok || !current.Started {
					return current, false
				}
				current.Submissions = subs
				return current, true
			})
			if err != nil {
				c.logger.Error("failed to store cipher submissions", "cipher_id", id, "error", err)
			} else if !stored {
				c.logger.Debug("cipher changed while its submissions loaded", "cipher_id", id)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// All returns every model in dependency order.
func (c *Catalog) All() []Loadable {
	return []Loadable{
		c.Grades, c.Classes, c.Categories, c.Tags,
		c.Disciplines, c.Posts, c.Ciphers, c.Alerts, c.Calendar,
	}
}

// UserScoped returns the models whose content depends on who is logged in.
// The session reloads them when the user changes.
func (c *Catalog) UserScoped() []Loadable {
	return []Loadable{c.Disciplines, c.Ciphers, c.Calendar}
}

// Start starts every model.
func (c *Catalog) Start(ctx context.Context) {
	for _, m := range c.All() {
		m.Start(ctx)
	}
}

// Wait blocks until every model has loaded or failed and joins the
// failures.
func (c *Catalog) Wait(ctx context.Context) error {
	models := c.All()
	errs := make([]error, len(models))
	var g errgroup.Group
	for i, m := range models {
		g.Go(func() error {
			if err := m.Wait(ctx); err != nil {
				errs[i] = fmt.Errorf("%s: %w", m.Path(), err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Refresh force-reloads every model, dependencies first. Forced loads keep
// existing data on failure; the failures are still reported.
func (c *Catalog) Refresh(ctx context.Context) error {
	var errs []error
	for _, m := range c.All() {
		_ = m.Reload(ctx)
		if err := m.LastError(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PostList returns the loaded posts, newest first.
func (c *Catalog) PostList() []domain.Post {
	posts := c.Posts.Values()
	domain.SortPostsNewestFirst(posts)
	return posts
}

// ActiveAlerts returns the alerts to show now, newest first.
func (c *Catalog) ActiveAlerts() []domain.Alert {
	return domain.ActiveAlerts(c.Alerts.Values(), c.now())
}

// CurrentCalendar returns the loaded calendar.
func (c *Catalog) CurrentCalendar() (domain.Calendar, bool) {
	return c.Calendar.Find(model.SingleKey)
}
