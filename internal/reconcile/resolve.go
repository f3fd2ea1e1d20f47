package reconcile

import (
	"context"
	"errors"
)

// ErrNeedsReview is returned by a Resolver when a deferred record cannot be
// finished automatically.
var ErrNeedsReview = errors.New("needs review")

// Resolver finishes the deferred writes of a drift record. It re-reads what
// the original plan could not and returns a plan with the missing writes.
// A plan that fails again leaves the record pending.
type Resolver interface {
	ResolveDeferred(ctx context.Context, rec Record) (*Plan, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, rec Record) (*Plan, error)

// ResolveDeferred calls f.
func (f ResolverFunc) ResolveDeferred(ctx context.Context, rec Record) (*Plan, error) {
	return f(ctx, rec)
}
