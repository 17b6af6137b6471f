// Package operation carries the state of one outer content operation: the
// batch of change descriptions, the URL the operation was requested from, and
// the callbacks to run once its main work succeeded.
package operation

import (
	"context"
	"slices"
)

// Callback runs after the main work of an operation.
type Callback func(ctx context.Context) error

// Hooks accepts callbacks to run after the main work of the current
// operation. Higher priorities run first.
type Hooks interface {
	RegisterPostOperation(cb Callback, priority int)
}

type deferred struct {
	cb       Callback
	priority int
}

// Operation is not safe for concurrent use.
type Operation struct {
	referURL string
	batch    *Batch
	deferred []deferred
}

// New returns an operation requested from referURL. The URL may be empty for
// operations without an originating request.
func New(referURL string) *Operation {
	return &Operation{referURL: referURL, batch: newBatch()}
}

func (op *Operation) ReferURL() string {
	return op.referURL
}

func (op *Operation) Batch() *Batch {
	return op.batch
}

func (op *Operation) RegisterPostOperation(cb Callback, priority int) {
	op.deferred = append(op.deferred, deferred{cb: cb, priority: priority})
}

// Run executes fn and, if it succeeds, the callbacks registered during it.
// Callbacks run once each, highest priority first and in registration order
// among equal priorities; the first failing callback stops the rest and its
// error is returned. When fn fails or panics no callback runs. Registered
// callbacks are dropped on every exit path.
func Run(ctx context.Context, op *Operation, fn func(context.Context, *Operation) error) error {
	defer func() {
		op.deferred = nil
	}()

	if err := fn(ctx, op); err != nil {
		return err
	}

	callbacks := slices.Clone(op.deferred)
	op.deferred = nil

	slices.SortStableFunc(callbacks, func(a, b deferred) int {
		return b.priority - a.priority
	})

	for _, d := range callbacks {
		if err := d.cb(ctx); err != nil {
			return err
		}
	}

	return nil
}
