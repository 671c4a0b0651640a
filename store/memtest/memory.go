/*
Package memtest provides an in-memory store.Store implementation for
unit tests, adapted from the teacher's generic/store/memory.go: a
mutex-guarded map plus snapshot/restore for atomic batch semantics,
generalized from a fixed entity+policy key to an arbitrary document
path.
*/
package memtest

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/condomx/billing-core/coreerr"
	"github.com/condomx/billing-core/store"
)

// Memory is an in-memory, JSON-round-tripping document store.
type Memory struct {
	mu   sync.RWMutex
	docs map[store.Path][]byte
	pool *store.Pool
}

// New creates an empty in-memory store with the given pool limit
// (default 100, matching spec §5).
func New(poolLimit int) *Memory {
	if poolLimit <= 0 {
		poolLimit = 100
	}
	return &Memory{
		docs: make(map[store.Path][]byte),
		pool: store.NewPool(poolLimit),
	}
}

func (m *Memory) ScopedHandle(ctx context.Context) (store.Handle, error) {
	return m.pool.Acquire(ctx)
}

func (m *Memory) Get(_ context.Context, path store.Path, out store.Doc) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, ok := m.docs[path]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, coreerr.Wrap(coreerr.Permanent, "memtest: unmarshal failed", err)
	}
	return true, nil
}

func (m *Memory) Set(_ context.Context, path store.Path, doc store.Doc, opts store.SetOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setLocked(path, doc, opts)
}

func (m *Memory) setLocked(path store.Path, doc store.Doc, opts store.SetOptions) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return coreerr.Wrap(coreerr.Permanent, "memtest: marshal failed", err)
	}
	if opts.Merge {
		existing, ok := m.docs[path]
		if ok {
			merged, err := mergeJSON(existing, raw)
			if err != nil {
				return coreerr.Wrap(coreerr.Permanent, "memtest: merge failed", err)
			}
			raw = merged
		}
	}
	m.docs[path] = raw
	return nil
}

func (m *Memory) Update(_ context.Context, path store.Path, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(path, fields)
}

func (m *Memory) updateLocked(path store.Path, fields map[string]any) error {
	existing, ok := m.docs[path]
	if !ok {
		return store.NotFoundError(path)
	}
	var base map[string]any
	if err := json.Unmarshal(existing, &base); err != nil {
		return coreerr.Wrap(coreerr.Permanent, "memtest: unmarshal failed", err)
	}
	applyFields(base, fields)
	raw, err := json.Marshal(base)
	if err != nil {
		return coreerr.Wrap(coreerr.Permanent, "memtest: marshal failed", err)
	}
	m.docs[path] = raw
	return nil
}

func (m *Memory) Delete(_ context.Context, path store.Path) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, path)
	return nil
}

func (m *Memory) List(_ context.Context, path store.Path, opts store.ListOptions) (store.ListResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := string(path)
	if opts.Prefix != "" {
		prefix = string(path) + "/" + opts.Prefix
	}
	var paths []string
	for p := range m.docs {
		if strings.HasPrefix(string(p), prefix) {
			paths = append(paths, string(p))
		}
	}
	sort.Strings(paths)

	start := 0
	if opts.Cursor != "" {
		for i, p := range paths {
			if p > opts.Cursor {
				start = i
				break
			}
		}
	}
	end := len(paths)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}

	result := store.ListResult{}
	for _, p := range paths[start:end] {
		result.Paths = append(result.Paths, store.Path(p))
	}
	if end < len(paths) {
		result.NextCursor = paths[end-1]
	}
	return result, nil
}

// Query loads every document under collection and filters/orders/
// limits it in memory, then unmarshals the survivors into out (which
// must be a pointer to a slice of the target struct type).
func (m *Memory) Query(_ context.Context, collection store.Path, wheres []store.Where, opts store.QueryOptions, out any) error {
	m.mu.RLock()
	type candidate struct {
		path store.Path
		data map[string]any
		raw  []byte
	}
	var candidates []candidate
	prefix := string(collection)
	for p, raw := range m.docs {
		if !strings.HasPrefix(string(p), prefix) {
			continue
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			m.mu.RUnlock()
			return coreerr.Wrap(coreerr.Permanent, "memtest: unmarshal failed", err)
		}
		if matchesAll(fields, wheres) {
			candidates = append(candidates, candidate{path: p, data: fields, raw: raw})
		}
	}
	m.mu.RUnlock()

	if opts.OrderBy != "" {
		sort.Slice(candidates, func(i, j int) bool {
			less := compareField(candidates[i].data[opts.OrderBy], candidates[j].data[opts.OrderBy])
			if opts.Descending {
				return !less
			}
			return less
		})
	}
	if opts.Limit > 0 && len(candidates) > opts.Limit {
		candidates = candidates[:opts.Limit]
	}

	rawArray := make([]json.RawMessage, len(candidates))
	for i, c := range candidates {
		rawArray[i] = c.raw
	}
	combined, err := json.Marshal(rawArray)
	if err != nil {
		return coreerr.Wrap(coreerr.Permanent, "memtest: marshal failed", err)
	}
	return json.Unmarshal(combined, out)
}

func matchesAll(fields map[string]any, wheres []store.Where) bool {
	for _, w := range wheres {
		v, ok := fields[w.Field]
		if !ok {
			return false
		}
		if !matchesOne(v, w) {
			return false
		}
	}
	return true
}

func matchesOne(v any, w store.Where) bool {
	switch w.Op {
	case store.OpEqual:
		return toComparable(v) == toComparable(w.Value)
	case store.OpLessThan:
		return compareAny(v, w.Value) < 0
	case store.OpLessEqual:
		return compareAny(v, w.Value) <= 0
	case store.OpGreaterThan:
		return compareAny(v, w.Value) > 0
	case store.OpGreaterEqual:
		return compareAny(v, w.Value) >= 0
	default:
		return false
	}
}

func toComparable(v any) any {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		return t
	default:
		return v
	}
}

func compareAny(a, b any) int {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs)
	}
	af, aok2 := toFloat(a)
	bf, bok2 := toFloat(b)
	if aok2 && bok2 {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func compareField(a, b any) bool {
	return compareAny(a, b) < 0
}

func applyFields(base map[string]any, fields map[string]any) {
	for k, v := range fields {
		base[k] = v
	}
}

func mergeJSON(existing, incoming []byte) ([]byte, error) {
	var base, patch map[string]any
	if err := json.Unmarshal(existing, &base); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(incoming, &patch); err != nil {
		return nil, err
	}
	for k, v := range patch {
		base[k] = v
	}
	return json.Marshal(base)
}
