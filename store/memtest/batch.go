package memtest

import (
	"context"

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

// Batch accumulates mutations against a Memory store and commits them
// atomically under a single lock, snapshotting first and restoring on
// any failure — the same all-or-nothing pattern the teacher's
// TxMemory.WithTx uses, generalized from "replay a list of
// transactions" to "apply a list of heterogeneous path mutations".
type Batch struct {
	store *Memory
	ops   []pendingOp
}

func (m *Memory) Batch() store.Batch {
	return &Batch{store: m}
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

func (b *Batch) Commit(_ context.Context) error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	snapshot := make(map[store.Path][]byte, len(b.store.docs))
	for k, v := range b.store.docs {
		cp := make([]byte, len(v))
		copy(cp, v)
		snapshot[k] = cp
	}

	for _, op := range b.ops {
		var err error
		switch op.kind {
		case opSet:
			err = b.store.setLocked(op.path, op.doc, op.opts)
		case opUpdate:
			err = b.store.updateLocked(op.path, op.fields)
		case opDelete:
			delete(b.store.docs, op.path)
		}
		if err != nil {
			b.store.docs = snapshot
			return err
		}
	}
	return nil
}
