// Package store defines the document-store boundary: the abstract
// remote store interface, a registry of typed document shapes checked
// at that boundary, an in-memory implementation for tests and demos,
// and the resilient cached decorator production traffic goes through.
package store

import (
	"context"
	"encoding/json"
)

// Document is one stored record: its ID plus the raw JSON payload.
// Typed decoding happens at the edges via the shapes registry.
type Document struct {
	ID   string
	Data json.RawMessage
}

// Decode unmarshals the document payload into out.
func (d Document) Decode(out any) error {
	return json.Unmarshal(d.Data, out)
}

// Filter narrows a query to documents whose field relates to Value.
// Supported ops: ==, !=, >, >=, <, <=.
type Filter struct {
	Field string
	Op    string
	Value any
}

// Query bundles filters with ordering and a result cap.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

// OpKind says what a WriteOp does.
type OpKind string

const (
	OpSet    OpKind = "set"    // create or replace a whole document
	OpUpdate OpKind = "update" // merge a partial patch
	OpDelete OpKind = "delete"
)

// WriteOp is one element of a batch write. It is JSON-serializable so
// the offline journal can persist pending ops verbatim.
type WriteOp struct {
	Kind       OpKind          `json:"kind"`
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	Doc        json.RawMessage `json:"doc,omitempty"`
	Patch      map[string]any  `json:"patch,omitempty"`
}

// DocumentStore is the remote document store consumed by the core. All
// calls are blocking and may fail with network or permission errors.
// A batch is applied atomically: either every op lands or none do.
type DocumentStore interface {
	GetAll(ctx context.Context, collection string) ([]Document, error)
	GetByID(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	Update(ctx context.Context, collection, id string, patch map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	BatchWrite(ctx context.Context, ops []WriteOp) error
}

// Writer is the mutating subset of DocumentStore. The offline sync
// coordinator implements it, so services that only write can stay
// unaware of whether their ops run now or queue for later.
type Writer interface {
	Update(ctx context.Context, collection, id string, patch map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	BatchWrite(ctx context.Context, ops []WriteOp) error
}
