package model

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/sync/singleflight"
)

// PartialModel is a list model whose endpoint may return pages and whose
// records can be fetched one at a time.
type PartialModel[T any] struct {
	*Model[T]
	singles singleflight.Group
}

// NewPartial creates a partial-shape model.
func NewPartial[T any](opts Options, parse Parser[T]) (*PartialModel[T], error) {
	opts.Shape = ShapePartial
	m, err := New(opts, parse)
	if err != nil {
		return nil, err
	}
	return &PartialModel[T]{Model: m}, nil
}

func (p *PartialModel[T]) singlePath(id string) string {
	return strings.TrimRight(p.opts.Path, "/") + "/" + id
}

// LoadSingle fetches one record by id and upserts it. A 404 removes the
// record from memory and cache and returns ErrNotFound; no response issued
// before the removal can bring it back. Concurrent calls for the same id
// share one request. A soft load returns a record already present without
// asking the server, and logs failures at debug level.
func (p *PartialModel[T]) LoadSingle(ctx context.Context, id string, soft bool) (T, error) {
	if soft {
		if e, ok := p.Get(id); ok {
			return e.Value, nil
		}
	}
	v, err, _ := p.singles.Do(id, func() (any, error) {
		return p.loadSingle(ctx, id, soft)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (p *PartialModel[T]) loadSingle(ctx context.Context, id string, soft bool) (T, error) {
	var zero T

	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.mu.Unlock()

	resp := p.opts.Fetcher.Get(ctx, p.singlePath(id), p.opts.Auth)
	if resp.Status == http.StatusNotFound {
		p.remove(id)
		return zero, fmt.Errorf("%w: %s/%s", ErrNotFound, p.opts.Path, id)
	}
	if resp.Error {
		err := &LoadError{Path: p.singlePath(id), Status: resp.Status, Err: resp.Err()}
		if soft {
			p.logger.Debug("single load failed", "id", id, "error", err)
		} else {
			p.logger.Error("single load failed", "id", id, "error", err)
		}
		return zero, err
	}

	value, err := p.parse(resp.Data)
	if err != nil {
		return zero, &LoadError{Path: p.singlePath(id), Status: resp.Status, Err: fmt.Errorf("%w: %w", ErrDecode, err)}
	}
	it := item[T]{id: id, raw: resp.Data, value: value}

	p.mu.Lock()
	if t, ok := p.tombstones[id]; ok && t >= gen {
		p.mu.Unlock()
		return zero, fmt.Errorf("%w: %s/%s", ErrNotFound, p.opts.Path, id)
	}
	p.data[id] = Entry[T]{Value: it.value, FromServer: true}
	p.mu.Unlock()

	if p.opts.Cache {
		p.cacheMerge([]item[T]{it})
	}
	p.notifyUpdated()
	p.fireFetched(ctx, []item[T]{it})
	return it.value, nil
}

// remove drops id from memory and cache and tombstones it against every
// request issued so far.
func (p *PartialModel[T]) remove(id string) {
	p.mu.Lock()
	_, had := p.data[id]
	delete(p.data, id)
	p.tombstones[id] = p.gen
	p.mu.Unlock()

	if p.opts.Cache {
		p.cacheRemove(id)
	}
	p.logger.Debug("record gone from server", "id", id)
	if had {
		p.notifyUpdated()
	}
}

// SetRaw parses a raw record pushed from elsewhere, such as a submission
// response, and stores it as if it had been fetched.
func (p *PartialModel[T]) SetRaw(ctx context.Context, id string, raw json.RawMessage, fromServer bool) (T, error) {
	var zero T
	value, err := p.parse(raw)
	if err != nil {
		return zero, fmt.Errorf("%w: %s/%s: %w", ErrDecode, p.opts.Path, id, err)
	}

	p.mu.Lock()
	delete(p.tombstones, id)
	p.data[id] = Entry[T]{Value: value, FromServer: fromServer}
	p.mu.Unlock()

	it := item[T]{id: id, raw: raw, value: value}
	if p.opts.Cache {
		p.cacheMerge([]item[T]{it})
	}
	p.notifyUpdated()
	p.fireFetched(ctx, []item[T]{it})
	return value, nil
}
