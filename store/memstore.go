package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/briangreenhill/csmkit/fault"
)

// MemStore is an in-memory DocumentStore for tests and the demo
// binary. Batch writes apply under one lock, so a multi-op batch is
// atomic the way the remote store's batches are.
type MemStore struct {
	mu   sync.Mutex
	data map[string]map[string]json.RawMessage
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string]map[string]json.RawMessage)}
}

// Seed inserts a document directly, bypassing the write path. Test and
// demo setup only.
func (m *MemStore) Seed(collection, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coll(collection)[id] = raw
	return nil
}

func (m *MemStore) coll(name string) map[string]json.RawMessage {
	c, ok := m.data[name]
	if !ok {
		c = make(map[string]json.RawMessage)
		m.data[name] = c
	}
	return c
}

func (m *MemStore) GetAll(_ context.Context, collection string) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.data[collection]
	docs := make([]Document, 0, len(c))
	for id, raw := range c {
		docs = append(docs, Document{ID: id, Data: append(json.RawMessage(nil), raw...)})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (m *MemStore) GetByID(_ context.Context, collection, id string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[collection][id]
	if !ok {
		return Document{}, fault.NotFound(collection, id)
	}
	return Document{ID: id, Data: append(json.RawMessage(nil), raw...)}, nil
}

func (m *MemStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	docs, err := m.GetAll(ctx, collection)
	if err != nil {
		return nil, err
	}

	type row struct {
		doc    Document
		fields map[string]any
	}
	rows := make([]row, 0, len(docs))
	for _, d := range docs {
		var fields map[string]any
		if err := json.Unmarshal(d.Data, &fields); err != nil {
			return nil, fault.Firestore("memstore.query", err)
		}
		if matchesAll(fields, q.Filters) {
			rows = append(rows, row{doc: d, fields: fields})
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(rows, func(i, j int) bool {
			cmp, ok := compareValues(rows[i].fields[q.OrderBy], rows[j].fields[q.OrderBy])
			if !ok {
				return false
			}
			if q.Desc {
				return cmp > 0
			}
			return cmp < 0
		})
	}

	out := make([]Document, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.doc)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemStore) Update(_ context.Context, collection, id string, patch map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyUpdate(collection, id, patch)
}

// applyUpdate merges a patch into an existing document. Caller holds
// the lock.
func (m *MemStore) applyUpdate(collection, id string, patch map[string]any) error {
	raw, ok := m.data[collection][id]
	if !ok {
		return fault.NotFound(collection, id)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fault.Firestore("memstore.update", err)
	}
	for k, v := range patch {
		doc[k] = v
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return fault.Firestore("memstore.update", err)
	}
	m.data[collection][id] = merged
	return nil
}

// Delete is idempotent: removing an absent document is not an error.
func (m *MemStore) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[collection], id)
	return nil
}

func (m *MemStore) BatchWrite(_ context.Context, ops []WriteOp) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Reject the whole batch up front so a bad op cannot leave it
	// half-applied.
	for _, op := range ops {
		switch op.Kind {
		case OpSet:
			if op.ID == "" || len(op.Doc) == 0 {
				return fault.Validation("set op for %s needs an id and a document", op.Collection)
			}
		case OpUpdate:
			if _, ok := m.data[op.Collection][op.ID]; !ok {
				return fault.NotFound(op.Collection, op.ID)
			}
		case OpDelete:
		default:
			return fault.Validation("unknown batch op kind %q", op.Kind)
		}
	}

	for _, op := range ops {
		switch op.Kind {
		case OpSet:
			m.coll(op.Collection)[op.ID] = append(json.RawMessage(nil), op.Doc...)
		case OpUpdate:
			if err := m.applyUpdate(op.Collection, op.ID, op.Patch); err != nil {
				return err
			}
		case OpDelete:
			delete(m.data[op.Collection], op.ID)
		}
	}
	return nil
}

func matchesAll(fields map[string]any, filters []Filter) bool {
	for _, f := range filters {
		cmp, ok := compareValues(fields[f.Field], f.Value)
		if !ok {
			return false
		}
		if !matchOp(cmp, f.Op) {
			return false
		}
	}
	return true
}

func matchOp(cmp int, op string) bool {
	switch op {
	case "==", "":
		return cmp == 0
	case "!=":
		return cmp != 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	default:
		return false
	}
}

// compareValues orders two JSON-decoded values of the same kind.
// Numeric filter values may be Go ints; they compare against the
// float64 numbers JSON decoding produces.
func compareValues(a, b any) (int, bool) {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case av:
			return 1, true
		default:
			return -1, true
		}
	case nil:
		if b == nil {
			return 0, true
		}
		return 0, false
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
