// Package repository defines the storage interfaces the engine depends on.
//
// The contract that matters most here is Mutate: a read-modify-write applied
// atomically to a single record. The callback receives the current state,
// edits it in place, and the store commits the whole record — or nothing —
// retrying internally on transient conflicts. Every cross-field invariant
// (balance vs. inventory, vote map vs. accusation slot) rides on this.
// Returning an error from the callback aborts the transaction and propagates
// the error unchanged, so services can validate against fresh state inside
// the same atomic step that mutates it.
package repository

import (
	"context"
	"time"

	"github.com/sakif/snipetag/internal/model"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)

	// Mutate atomically applies fn to the stored user and persists the
	// result. The returned user reflects the committed state.
	Mutate(ctx context.Context, id string, fn func(*model.User) error) (*model.User, error)
}

type GroupRepository interface {
	Create(ctx context.Context, group *model.Group) error
	GetByID(ctx context.Context, id string) (*model.Group, error)
	GetByInviteCode(ctx context.Context, code string) (*model.Group, error)

	// Mutate atomically applies fn to the stored group and persists the
	// result. The returned group reflects the committed state.
	Mutate(ctx context.Context, id string, fn func(*model.Group) error) (*model.Group, error)
}

type SnipeRepository interface {
	Create(ctx context.Context, snipe *model.Snipe) error
	GetByID(ctx context.Context, id string) (*model.Snipe, error)
	ListPendingForTarget(ctx context.Context, targetID string) ([]model.Snipe, error)

	// ListExpiredPending returns pending snipes created at or before cutoff.
	ListExpiredPending(ctx context.Context, cutoff time.Time) ([]model.Snipe, error)

	// Resolve transitions a pending snipe to the given terminal status.
	// Exactly one concurrent caller wins; the rest get ErrAlreadyResolved.
	Resolve(ctx context.Context, id string, status model.SnipeStatus) error
}
