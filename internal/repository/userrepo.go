// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/whisperchain/whisperchain/internal/model"
)

// UserRepository provides access to accounts, roles and public keys.
type UserRepository interface {
	// Create inserts a new user; a duplicate email yields errs.ErrAlreadyExists.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by uid.
	GetByID(ctx context.Context, uid string) (*model.User, error)
	// GetByEmail loads a user by lower-cased email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// ListPending returns idle users waiting for a requested role.
	ListPending(ctx context.Context) ([]model.User, error)
	// CountByRole counts users currently holding role.
	CountByRole(ctx context.Context, role model.Role) (int, error)
	// UpdateRole sets the role, appends change to the history and clears the requested role.
	UpdateRole(ctx context.Context, uid string, role model.Role, change model.RoleChange) error
	// SetSuspended toggles the suspension flag.
	SetSuspended(ctx context.Context, uid string, suspended bool) error
	// SetPublicKey stores the user's messaging key.
	SetPublicKey(ctx context.Context, uid, key string) error
	// SetModeratorPublicKey stores the key flagged content is re-encrypted for.
	SetModeratorPublicKey(ctx context.Context, uid, key string) error
	// MarkEmailVerified flags the account with email as verified.
	MarkEmailVerified(ctx context.Context, email string, at time.Time) error
}
