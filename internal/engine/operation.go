package engine

import (
	"context"
	"sync"

	"github.com/roach88/dbsync/internal/store"
)

// Kind names an operation variant. It labels logs and metrics.
type Kind string

const (
	KindMap    Kind = "map"
	KindDelete Kind = "delete"
	KindPurge  Kind = "purge"
	KindEdit   Kind = "edit"
)

// Action is the body of an operation. It runs on the coordinator goroutine
// against a freshly opened write context; the coordinator commits the
// context when Action returns nil and discards it otherwise. Actions must
// not commit or discard the context themselves.
type Action func(ctx context.Context, w *store.WriteContext) error

// Operation is one unit of store-mutating work with exactly one outcome.
//
// Lifecycle: created -> submitted -> dequeued once -> executed -> completed.
type Operation struct {
	// ID is assigned on Submit unless already set.
	ID string

	// Kind labels the operation variant.
	Kind Kind

	// Entity is the target entity type, when there is one.
	Entity string

	// Seq is the submission sequence, stamped by Submit.
	Seq int64

	action   Action
	complete func(error)
	once     sync.Once
}

// NewOperation creates an operation. complete receives the outcome exactly
// once; a nil complete discards it.
func NewOperation(kind Kind, entity string, action Action, complete func(error)) *Operation {
	return &Operation{
		Kind:     kind,
		Entity:   entity,
		action:   action,
		complete: complete,
	}
}

// finish reports the outcome. Only the first call has any effect.
func (op *Operation) finish(err error) {
	op.once.Do(func() {
		if op.complete != nil {
			op.complete(err)
		}
	})
}
