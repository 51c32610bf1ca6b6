package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/phrazzld/portal-client/internal/platform/storage"
)

// item is one parsed record together with its raw payload, which is what
// gets persisted.
type item[T any] struct {
	id    string
	raw   json.RawMessage
	value T
}

type page struct {
	Results  []json.RawMessage `json:"results"`
	Next     json.RawMessage   `json:"next"`
	Previous json.RawMessage   `json:"previous"`
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// decodeCollection splits a response body into records. full reports whether
// the body is a complete snapshot of the collection.
func (m *Model[T]) decodeCollection(data json.RawMessage) (items []item[T], full bool, err error) {
	switch m.opts.Shape {
	case ShapeSingle:
		it, err := m.parseSingle(data)
		if err != nil {
			return nil, false, err
		}
		return []item[T]{it}, true, nil

	case ShapePartial:
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			items, err := m.parseArray(trimmed)
			return items, true, err
		}
		var p page
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return nil, false, fmt.Errorf("expected a page object: %w", err)
		}
		if p.Results == nil {
			return nil, false, errors.New("page has no results")
		}
		items, err := m.parseRaw(p.Results)
		return items, isNull(p.Next) && isNull(p.Previous), err

	default:
		items, err := m.parseArray(data)
		return items, true, err
	}
}

func (m *Model[T]) parseArray(data json.RawMessage) ([]item[T], error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("expected an array: %w", err)
	}
	return m.parseRaw(raws)
}

func (m *Model[T]) parseRaw(raws []json.RawMessage) ([]item[T], error) {
	items := make([]item[T], 0, len(raws))
	for i, raw := range raws {
		id, err := itemID(raw)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		value, err := m.parse(raw)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", id, err)
		}
		items = append(items, item[T]{id: id, raw: raw, value: value})
	}
	return items, nil
}

func (m *Model[T]) parseSingle(data json.RawMessage) (item[T], error) {
	if isNull(data) {
		return item[T]{}, errors.New("empty body")
	}
	value, err := m.parse(data)
	if err != nil {
		return item[T]{}, err
	}
	return item[T]{id: SingleKey, raw: data, value: value}, nil
}

// itemID reads the "id" field of a record, which may be a string or a number.
func itemID(raw json.RawMessage) (string, error) {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return "", fmt.Errorf("expected an object: %w", err)
	}
	if isNull(probe.ID) {
		return "", errors.New("missing id")
	}
	var s string
	if err := json.Unmarshal(probe.ID, &s); err == nil {
		if s == "" {
			return "", errors.New("empty id")
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(probe.ID, &n); err == nil {
		if _, err := strconv.ParseFloat(n.String(), 64); err == nil {
			return n.String(), nil
		}
	}
	return "", fmt.Errorf("unsupported id %s", probe.ID)
}

func (m *Model[T]) cacheKey() string { return CacheKeyPrefix + m.opts.Path }

func (m *Model[T]) cacheable(raw json.RawMessage) bool {
	return m.opts.ShouldCache == nil || m.opts.ShouldCache(raw)
}

// hydrate loads the persisted payload into memory. It reports a hit only
// when the cache held a payload that parsed cleanly; anything else deletes
// the entry and reports a miss.
func (m *Model[T]) hydrate() bool {
	m.setState(StateLoadingFromCache)

	m.cacheMu.Lock()
	raw, err := m.opts.Storage.Get(m.cacheKey())
	m.cacheMu.Unlock()
	if errors.Is(err, storage.ErrNotFound) {
		m.logger.Debug("no cached payload")
		return false
	}
	if err != nil {
		m.logger.Warn("reading cache failed", "error", err)
		return false
	}

	var items []item[T]
	if m.opts.Shape == ShapeSingle {
		var it item[T]
		it, err = m.parseSingle(raw)
		items = []item[T]{it}
	} else {
		items, err = m.parseArray(raw)
	}
	if err != nil {
		m.logger.Warn("discarding corrupt cache", "error", err)
		m.cacheDelete()
		return false
	}

	m.mu.Lock()
	for _, it := range items {
		m.data[it.id] = Entry[T]{Value: it.value}
	}
	first := !m.loaded
	m.loaded = true
	m.state = StateLoaded
	m.mu.Unlock()

	m.opts.Metrics.ObserveModelLoad(m.opts.Path, "cache", len(items))
	m.logger.Debug("hydrated from cache", "entries", len(items))
	m.published(first)
	return true
}

// cacheReplace persists a full snapshot.
func (m *Model[T]) cacheReplace(items []item[T]) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	if m.opts.Shape == ShapeSingle {
		if len(items) == 1 && m.cacheable(items[0].raw) {
			m.write(items[0].raw)
		} else {
			m.deleteLocked()
		}
		return
	}

	raws := make([]json.RawMessage, 0, len(items))
	for _, it := range items {
		if m.cacheable(it.raw) {
			raws = append(raws, it.raw)
		}
	}
	m.writeArray(raws)
}

// cacheMerge upserts items into the persisted array by id.
func (m *Model[T]) cacheMerge(items []item[T]) {
	if m.opts.Shape == ShapeSingle {
		m.cacheReplace(items)
		return
	}

	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	existing := m.readArrayLocked()
	index := make(map[string]int, len(existing))
	for i, raw := range existing {
		if id, err := itemID(raw); err == nil {
			index[id] = i
		}
	}
	var drop map[int]bool
	for _, it := range items {
		i, seen := index[it.id]
		switch {
		case !m.cacheable(it.raw) && seen:
			if drop == nil {
				drop = make(map[int]bool)
			}
			drop[i] = true
		case !m.cacheable(it.raw):
		case seen:
			existing[i] = it.raw
		default:
			index[it.id] = len(existing)
			existing = append(existing, it.raw)
		}
	}
	if len(drop) > 0 {
		kept := existing[:0]
		for i, raw := range existing {
			if !drop[i] {
				kept = append(kept, raw)
			}
		}
		existing = kept
	}
	m.writeArray(existing)
}

// cacheRemove deletes one record from the persisted array.
func (m *Model[T]) cacheRemove(id string) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	existing := m.readArrayLocked()
	kept := existing[:0]
	for _, raw := range existing {
		if rid, err := itemID(raw); err == nil && rid == id {
			continue
		}
		kept = append(kept, raw)
	}
	m.writeArray(kept)
}

func (m *Model[T]) cacheDelete() {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	m.deleteLocked()
}

func (m *Model[T]) deleteLocked() {
	if err := m.opts.Storage.Delete(m.cacheKey()); err != nil {
		m.logger.Warn("deleting cache failed", "error", err)
	}
}

func (m *Model[T]) readArrayLocked() []json.RawMessage {
	raw, err := m.opts.Storage.Get(m.cacheKey())
	if err != nil {
		return nil
	}
	var existing []json.RawMessage
	if err := json.Unmarshal(raw, &existing); err != nil {
		m.logger.Warn("overwriting corrupt cache", "error", err)
		return nil
	}
	return existing
}

func (m *Model[T]) writeArray(raws []json.RawMessage) {
	if raws == nil {
		raws = []json.RawMessage{}
	}
	body, err := json.Marshal(raws)
	if err != nil {
		m.logger.Warn("encoding cache failed", "error", err)
		return
	}
	m.write(body)
}

func (m *Model[T]) write(body []byte) {
	if err := m.opts.Storage.Set(m.cacheKey(), body); err != nil {
		m.logger.Warn("writing cache failed", "error", err)
	}
}
