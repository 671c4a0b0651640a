/*
Package store defines the document-store abstraction the billing core
is built on (spec §4.1): a path-keyed record store with get/set/update/
delete/list/query, an atomic Batch primitive, and a bounded connection
pool exposed through scoped handles.

This generalizes the teacher's generic.Store (an append-only ledger
store keyed by entity+policy) into a path-keyed document store, because
the billing core's documents (bill periods, credit balances,
transactions, readings, aggregated views) are heterogeneous shapes
living at heterogeneous paths (spec §6.2), not a single ledger table.
There is no separate transaction-log store: billing transactions are
plain documents under clients/<clientID>/transactions in this same
store.
*/
package store

import (
	"context"

	"github.com/condomx/billing-core/coreerr"
)

// Path identifies a document, e.g.
// "clients/acme/projects/waterBills/bills/2026-00".
type Path string

// Doc is an opaque, store-agnostic document payload. Implementations
// marshal/unmarshal it as JSON; callers pass pointers to typed structs.
type Doc = any

// SetOptions configures Set.
type SetOptions struct {
	// Merge, if true, merges fields into an existing document instead
	// of replacing it wholesale.
	Merge bool
}

// ListOptions configures List.
type ListOptions struct {
	Prefix string
	Cursor string
	Limit  int
}

// ListResult is one page of List.
type ListResult struct {
	Paths      []Path
	NextCursor string
}

// WhereOp is a query comparison operator.
type WhereOp string

const (
	OpEqual        WhereOp = "=="
	OpLessThan     WhereOp = "<"
	OpLessEqual    WhereOp = "<="
	OpGreaterThan  WhereOp = ">"
	OpGreaterEqual WhereOp = ">="
)

// Where is a single equality/range filter.
type Where struct {
	Field string
	Op    WhereOp
	Value any
}

// QueryOptions configures Query: a single ordering key, ascending
// unless Descending is set.
type QueryOptions struct {
	OrderBy    string
	Descending bool
	Limit      int
}

// Store is the document-store interface the billing core depends on.
// Implementations (store/sqlite, store/memtest) must translate their
// native failure modes into *coreerr.CoreError with one of NotFound,
// Conflict, Transient, or Permanent.
type Store interface {
	Get(ctx context.Context, path Path, out Doc) (exists bool, err error)
	Set(ctx context.Context, path Path, doc Doc, opts SetOptions) error
	Update(ctx context.Context, path Path, fields map[string]any) error
	Delete(ctx context.Context, path Path) error
	List(ctx context.Context, path Path, opts ListOptions) (ListResult, error)
	Query(ctx context.Context, collection Path, wheres []Where, opts QueryOptions, out any) error
	Batch() Batch
	ScopedHandle(ctx context.Context) (Handle, error)
}

// Batch accumulates mutations and commits them atomically: either
// every operation lands, or none does. A Batch is not safe for
// concurrent use.
type Batch interface {
	Set(path Path, doc Doc, opts SetOptions)
	Update(path Path, fields map[string]any)
	Delete(path Path)
	// Commit applies every accumulated operation atomically. On
	// success, it returns nil exactly once; a Batch must not be
	// reused after Commit is called (success or failure).
	Commit(ctx context.Context) error
}

// Handle is a scoped connection handle obeying the store's pool limit.
// Callers MUST call Release on every exit path, including panics
// (defer handle.Release()).
type Handle interface {
	Release()
}

// NotFoundError builds the canonical not-found CoreError for a path.
func NotFoundError(path Path) error {
	return coreerr.New(coreerr.NotFound, "document not found: "+string(path))
}

// ConflictError builds the canonical conflict CoreError for a path.
func ConflictError(path Path) error {
	return coreerr.New(coreerr.Conflict, "optimistic concurrency conflict: "+string(path))
}
