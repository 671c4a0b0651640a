package sqlite

import (
	"context"
	"database/sql"

	"github.com/condomx/billing-core/coreerr"
	"github.com/condomx/billing-core/store"
)

type opKind int

const (
	opSet opKind = iota
	opUpdate
	opDelete
)

type pendingOp struct {
	kind   opKind
	path   store.Path
	doc    store.Doc
	opts   store.SetOptions
	fields map[string]any
}

// Batch accumulates mutations and applies them inside a single SQL
// transaction on Commit, giving the same all-or-nothing guarantee as
// memtest.Batch but backed by SQLite's own rollback instead of an
// in-memory snapshot.
type Batch struct {
	store *Store
	ops   []pendingOp
}

func (s *Store) Batch() store.Batch {
	return &Batch{store: s}
}

func (b *Batch) Set(path store.Path, doc store.Doc, opts store.SetOptions) {
	b.ops = append(b.ops, pendingOp{kind: opSet, path: path, doc: doc, opts: opts})
}

func (b *Batch) Update(path store.Path, fields map[string]any) {
	b.ops = append(b.ops, pendingOp{kind: opUpdate, path: path, fields: fields})
}

func (b *Batch) Delete(path store.Path) {
	b.ops = append(b.ops, pendingOp{kind: opDelete, path: path})
}

func (b *Batch) Commit(ctx context.Context) error {
	tx, err := b.store.db.BeginTx(ctx, nil)
	if err != nil {
		return coreerr.Wrap(coreerr.Transient, "sqlite: begin tx", err)
	}

	for _, op := range b.ops {
		var opErr error
		switch op.kind {
		case opSet:
			opErr = b.store.set(ctx, tx, op.path, op.doc, op.opts)
		case opUpdate:
			opErr = b.store.update(ctx, tx, op.path, op.fields)
		case opDelete:
			opErr = b.store.delete(ctx, tx, op.path)
		}
		if opErr != nil {
			tx.Rollback()
			return opErr
		}
	}

	if err := tx.Commit(); err != nil {
		return coreerr.Wrap(coreerr.Transient, "sqlite: commit tx", err)
	}
	return nil
}

var _ execer = (*sql.Tx)(nil)
