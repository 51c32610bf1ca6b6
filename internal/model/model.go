package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/portal-client/internal/events"
	"golang.org/x/sync/errgroup"
)

// State is the load state of a model.
type State int

const (
	StateUninitialized State = iota
	StateWaitingForDependencies
	StateLoadingFromCache
	StateFetching
	StateLoaded
	StateLoadError
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateWaitingForDependencies:
		return "waiting_for_dependencies"
	case StateLoadingFromCache:
		return "loading_from_cache"
	case StateFetching:
		return "fetching"
	case StateLoaded:
		return "loaded"
	case StateLoadError:
		return "load_error"
	default:
		return "unknown"
	}
}

// Entry is a record plus its provenance: FromServer is false for records
// reconstructed from the local cache and true once confirmed by the network.
type Entry[T any] struct {
	Value      T
	FromServer bool
}

// flight is a shared non-forced load.
type flight struct {
	done      chan struct{}
	err       error
	settledAt time.Time
}

// Model is a loadable model. It is safe for concurrent use; listeners are
// never called with internal locks held.
type Model[T any] struct {
	opts   Options
	parse  Parser[T]
	logger *slog.Logger
	now    func() time.Time
	window time.Duration

	mu         sync.RWMutex
	state      State
	data       map[string]Entry[T]
	loaded     bool
	lastErr    error
	ready      chan struct{}
	readyErr   error
	readyOnce  sync.Once
	flight     *flight
	gen        uint64
	appliedGen uint64
	tombstones map[string]uint64

	listenerSeq uint64
	onLoaded    []listener[func()]
	onLoadError []listener[func(error)]
	onUpdated   []listener[func()]
	onFetched   []listener[func(context.Context, []T)]
	subscribers []listener[func(map[string]Entry[T])]

	// notifyMu is held from taking a snapshot until every subscriber has
	// received it, so the last delivery is always the newest state.
	// Listeners must not mutate the model they listen to.
	notifyMu sync.Mutex

	cacheMu   sync.Mutex
	startOnce sync.Once
}

type listener[F any] struct {
	id uint64
	fn F
}

func fns[F any](ls []listener[F]) []F {
	out := make([]F, len(ls))
	for i, l := range ls {
		out[i] = l.fn
	}
	return out
}

func without[F any](ls []listener[F], id uint64) []listener[F] {
	for i, l := range ls {
		if l.id == id {
			return append(ls[:i:i], ls[i+1:]...)
		}
	}
	return ls
}

// New validates opts and creates a model. Nothing is loaded until Start or
// Load is called.
func New[T any](opts Options, parse Parser[T]) (*Model[T], error) {
	if opts.Path == "" {
		return nil, errors.New("model: path is required")
	}
	if parse == nil {
		return nil, errors.New("model: parser is required")
	}
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("model %s: fetcher is required", opts.Path)
	}
	if opts.Cache {
		if opts.Storage == nil {
			return nil, fmt.Errorf("model %s: cache requires storage", opts.Path)
		}
		for _, dep := range opts.Dependencies {
			if !dep.Cached() {
				return nil, fmt.Errorf("%w: %s depends on %s", ErrCacheDependency, opts.Path, dep.Path())
			}
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	window := opts.CoalesceWindow
	if window <= 0 {
		window = DefaultCoalesceWindow
	}

	return &Model[T]{
		opts:       opts,
		parse:      parse,
		logger:     opts.Logger.With("component", "model", "path", opts.Path),
		now:        opts.Clock,
		window:     window,
		data:       make(map[string]Entry[T]),
		ready:      make(chan struct{}),
		tombstones: make(map[string]uint64),
	}, nil
}

// Path returns the endpoint locator.
func (m *Model[T]) Path() string { return m.opts.Path }

// Cached reports whether the model persists its payloads.
func (m *Model[T]) Cached() bool { return m.opts.Cache }

// Shape returns the model's shape.
func (m *Model[T]) Shape() Shape { return m.opts.Shape }

// State returns the current load state.
func (m *Model[T]) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Loaded reports whether the model has completed its first load, from cache
// or network.
func (m *Model[T]) Loaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}

// LastError returns the error of the most recent failed load, including
// swallowed background failures. A successful load clears it.
func (m *Model[T]) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

func (m *Model[T]) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Start runs the load protocol. A model without dependencies whose cache is
// populated is hydrated before Start returns; everything else happens in
// the background. Start is idempotent.
func (m *Model[T]) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		if m.opts.Reconnect != nil {
			m.opts.Reconnect.AddReconnectListener(events.HandlerFunc(func(ctx context.Context, _ events.Event) error {
				m.logger.Debug("connection re-established, reloading")
				go func() { _ = m.Reload(context.WithoutCancel(ctx)) }()
				return nil
			}))
		}

		if len(m.opts.Dependencies) == 0 {
			if m.opts.Cache && m.hydrate() {
				go func() { _ = m.Load(context.WithoutCancel(ctx), true) }()
				return
			}
			go func() { _ = m.Load(ctx, false) }()
			return
		}

		m.setState(StateWaitingForDependencies)
		go func() {
			if err := m.waitForDependencies(ctx); err != nil {
				m.failDependencies(err)
				return
			}
			if m.opts.Cache && m.hydrate() {
				_ = m.Load(context.WithoutCancel(ctx), true)
				return
			}
			_ = m.Load(ctx, false)
		}()
	})
}

func (m *Model[T]) waitForDependencies(ctx context.Context) error {
	m.logger.Debug("waiting for dependencies", "count", len(m.opts.Dependencies))
	g, gctx := errgroup.WithContext(ctx)
	for _, dep := range m.opts.Dependencies {
		g.Go(func() error {
			if err := dep.Wait(gctx); err != nil {
				return fmt.Errorf("%s: %w", dep.Path(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (m *Model[T]) failDependencies(cause error) {
	err := &LoadError{Path: m.opts.Path, Err: fmt.Errorf("%w: %w", ErrDependencyFailed, cause)}
	m.logger.Error("dependency failed, model not loaded", "error", cause)
	m.mu.Lock()
	m.state = StateLoadError
	m.lastErr = err
	m.mu.Unlock()
	m.settleReady(err)
	m.fireLoadError(err)
}

// settleReady releases Wait callers once. err is nil on success.
func (m *Model[T]) settleReady(err error) {
	m.readyOnce.Do(func() {
		m.mu.Lock()
		m.readyErr = err
		m.mu.Unlock()
		close(m.ready)
	})
}

// Wait blocks until the model has loaded or its initial load has failed.
func (m *Model[T]) Wait(ctx context.Context) error {
	m.mu.RLock()
	loaded := m.loaded
	m.mu.RUnlock()
	if loaded {
		return nil
	}

	select {
	case <-m.ready:
		m.mu.RLock()
		defer m.mu.RUnlock()
		if m.loaded {
			return nil
		}
		return m.readyErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Load fetches the model from the network.
//
// Non-forced calls share one in-flight request; its result is reused for the
// coalesce window after it settles. A caller whose ctx ends stops waiting
// without cancelling the request for the others. A failure is returned, moves the model
// to StateLoadError and fires load-error listeners.
//
// Forced calls always fetch. Their failures are logged and reported through
// LastError only, and a success fires updated listeners rather than loaded
// ones unless the model had never loaded.
func (m *Model[T]) Load(ctx context.Context, force bool) error {
	if force {
		return m.fetch(ctx, true)
	}

	m.mu.Lock()
	if f := m.flight; f != nil {
		select {
		case <-f.done:
			if m.now().Sub(f.settledAt) < m.window {
				m.mu.Unlock()
				return f.err
			}
		default:
			m.mu.Unlock()
			select {
			case <-f.done:
				return f.err
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	f := &flight{done: make(chan struct{})}
	m.flight = f
	m.mu.Unlock()

	// The flight is shared, so it outlives the caller that started it.
	go func() {
		err := m.fetch(context.WithoutCancel(ctx), false)
		m.mu.Lock()
		f.err = err
		f.settledAt = m.now()
		m.mu.Unlock()
		close(f.done)
	}()

	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reload is a forced Load.
func (m *Model[T]) Reload(ctx context.Context) error {
	return m.Load(ctx, true)
}

func (m *Model[T]) fetch(ctx context.Context, force bool) error {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	if !m.loaded {
		m.state = StateFetching
	}
	m.mu.Unlock()

	m.logger.Debug("fetching", "force", force, "generation", gen)
	resp := m.opts.Fetcher.Get(ctx, m.opts.Path, m.opts.Auth)
	if resp.Error {
		return m.fail(&LoadError{Path: m.opts.Path, Status: resp.Status, Err: resp.Err()}, force)
	}

	items, full, err := m.decodeCollection(resp.Data)
	if err != nil {
		return m.fail(&LoadError{Path: m.opts.Path, Status: resp.Status, Err: fmt.Errorf("%w: %w", ErrDecode, err)}, force)
	}

	first, applied := m.apply(gen, items, full)
	if !applied {
		m.logger.Debug("discarding stale response", "generation", gen)
		return nil
	}
	if m.opts.Cache {
		if full {
			m.cacheReplace(items)
		} else {
			m.cacheMerge(items)
		}
	}
	m.opts.Metrics.ObserveModelLoad(m.opts.Path, "network", m.Len())
	m.logger.Debug("loaded", "entries", len(items), "full", full, "force", force)

	m.published(first)
	m.fireFetched(ctx, items)
	return nil
}

func (m *Model[T]) fail(err *LoadError, force bool) error {
	m.opts.Metrics.ObserveModelLoad(m.opts.Path, "error", m.Len())

	m.mu.Lock()
	m.lastErr = err
	if force {
		m.mu.Unlock()
		m.logger.Warn("background refresh failed", "error", err, "status", err.Status)
		return nil
	}
	m.state = StateLoadError
	m.mu.Unlock()

	m.logger.Error("load failed", "error", err, "status", err.Status)
	m.settleReady(err)
	m.fireLoadError(err)
	return err
}

// apply installs parsed items unless a newer response has already been
// applied. Tombstoned ids are skipped for requests issued before the
// tombstone.
func (m *Model[T]) apply(gen uint64, items []item[T], full bool) (first, applied bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen < m.appliedGen {
		return false, false
	}
	m.appliedGen = gen

	next := m.data
	if full {
		next = make(map[string]Entry[T], len(items))
	}
	for _, it := range items {
		if t, ok := m.tombstones[it.id]; ok && t >= gen {
			continue
		}
		next[it.id] = Entry[T]{Value: it.value, FromServer: true}
	}
	m.data = next

	if gen == m.gen {
		for id, t := range m.tombstones {
			if t < gen {
				delete(m.tombstones, id)
			}
		}
	}

	first = !m.loaded
	m.loaded = true
	m.state = StateLoaded
	m.lastErr = nil
	return first, true
}

// published notifies listeners after a change that came from cache or
// network.
func (m *Model[T]) published(first bool) {
	if first {
		m.settleReady(nil)
		m.mu.RLock()
		loaded := fns(m.onLoaded)
		m.mu.RUnlock()
		for _, fn := range loaded {
			fn()
		}
	}
	m.notifyUpdated()
}

// NotifyUpdated republishes the current snapshot to subscribers and updated
// listeners. Records that resolve references through other models use it
// when those models change.
func (m *Model[T]) NotifyUpdated() {
	m.notifyUpdated()
}

func (m *Model[T]) notifyUpdated() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.RLock()
	updated := fns(m.onUpdated)
	subs := fns(m.subscribers)
	snapshot := m.snapshotLocked()
	m.mu.RUnlock()

	for _, fn := range updated {
		fn()
	}
	for _, fn := range subs {
		fn(snapshot)
	}
}

func (m *Model[T]) fireLoadError(err error) {
	m.mu.RLock()
	listeners := fns(m.onLoadError)
	m.mu.RUnlock()
	for _, fn := range listeners {
		fn(err)
	}
}

func (m *Model[T]) fireFetched(ctx context.Context, items []item[T]) {
	m.mu.RLock()
	listeners := fns(m.onFetched)
	m.mu.RUnlock()
	if len(listeners) == 0 || len(items) == 0 {
		return
	}
	values := make([]T, len(items))
	for i, it := range items {
		values[i] = it.value
	}
	for _, fn := range listeners {
		fn(ctx, values)
	}
}

// Get returns the entry for id. Single-shape models ignore id.
func (m *Model[T]) Get(id string) (Entry[T], bool) {
	if m.opts.Shape == ShapeSingle {
		id = SingleKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.data[id]
	return e, ok
}

// Find returns the value for id.
func (m *Model[T]) Find(id string) (T, bool) {
	e, ok := m.Get(id)
	return e.Value, ok
}

// GetAll returns a snapshot of every entry.
func (m *Model[T]) GetAll() map[string]Entry[T] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// Values returns the current values in no particular order.
func (m *Model[T]) Values() []T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]T, 0, len(m.data))
	for _, e := range m.data {
		out = append(out, e.Value)
	}
	return out
}

func (m *Model[T]) snapshotLocked() map[string]Entry[T] {
	out := make(map[string]Entry[T], len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out
}

// Len returns the number of entries.
func (m *Model[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Set upserts a record locally and notifies subscribers before returning.
// It fails with ErrImmutable unless the model is mutable.
func (m *Model[T]) Set(id string, value T, fromServer bool) error {
	if !m.opts.Mutable {
		return fmt.Errorf("%w: %s", ErrImmutable, m.opts.Path)
	}
	if m.opts.Shape == ShapeSingle {
		id = SingleKey
	}
	m.mu.Lock()
	m.data[id] = Entry[T]{Value: value, FromServer: fromServer}
	m.mu.Unlock()

	m.notifyUpdated()
	return nil
}

// Update replaces the record under id with the result of fn, which sees
// the current value (ok is false when id is absent) and reports whether to
// store. fn runs with the model locked and must not call back into it.
// Like Set it requires a mutable model.
func (m *Model[T]) Update(id string, fn func(current T, ok bool) (T, bool)) (bool, error) {
	if !m.opts.Mutable {
		return false, fmt.Errorf("%w: %s", ErrImmutable, m.opts.Path)
	}
	if m.opts.Shape == ShapeSingle {
		id = SingleKey
	}
	m.mu.Lock()
	cur, ok := m.data[id]
	next, store := fn(cur.Value, ok)
	if store {
		m.data[id] = Entry[T]{Value: next, FromServer: cur.FromServer}
	}
	m.mu.Unlock()

	if store {
		m.notifyUpdated()
	}
	return store, nil
}

// Subscribe delivers the current snapshot immediately and then after every
// change. The returned function unsubscribes.
func (m *Model[T]) Subscribe(fn func(map[string]Entry[T])) (unsubscribe func()) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	m.listenerSeq++
	id := m.listenerSeq
	m.subscribers = append(m.subscribers, listener[func(map[string]Entry[T])]{id: id, fn: fn})
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	fn(snapshot)

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.subscribers = without(m.subscribers, id)
	}
}

// OnLoaded registers fn for the first completed load. It runs immediately
// when the model is already loaded.
func (m *Model[T]) OnLoaded(fn func()) {
	m.mu.Lock()
	m.listenerSeq++
	m.onLoaded = append(m.onLoaded, listener[func()]{id: m.listenerSeq, fn: fn})
	loaded := m.loaded
	m.mu.Unlock()
	if loaded {
		fn()
	}
}

// OnLoadError registers fn for unrecoverable load failures.
func (m *Model[T]) OnLoadError(fn func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listenerSeq++
	m.onLoadError = append(m.onLoadError, listener[func(error)]{id: m.listenerSeq, fn: fn})
}

// OnUpdated registers fn for every change, including the first load.
func (m *Model[T]) OnUpdated(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listenerSeq++
	m.onUpdated = append(m.onUpdated, listener[func()]{id: m.listenerSeq, fn: fn})
}

// OnFetched registers fn to run with the records of every applied network
// response, before the triggering Load or LoadSingle returns. It is not
// called for cache hydration or Set.
func (m *Model[T]) OnFetched(fn func(ctx context.Context, fetched []T)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listenerSeq++
	m.onFetched = append(m.onFetched, listener[func(context.Context, []T)]{id: m.listenerSeq, fn: fn})
}
