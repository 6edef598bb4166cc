package repository

import (
	"context"
	"time"

	"github.com/whisperchain/whisperchain/internal/model"
)

// AuditRepository is the append-only audit log. There is deliberately no way to
// change or remove an entry once written.
type AuditRepository interface {
	// Append writes a new entry.
	Append(ctx context.Context, e model.AuditEntry) error
	// List returns entries matching f, newest first.
	List(ctx context.Context, f model.AuditFilter) ([]model.AuditEntry, error)
}

// VerificationRepository stores hashed email verification codes.
type VerificationRepository interface {
	// Create stores a new code.
	Create(ctx context.Context, c model.VerificationCode) error
	// LatestUnused returns the newest unused code for email created after since.
	LatestUnused(ctx context.Context, email string, since time.Time) (*model.VerificationCode, error)
	// MarkUsed consumes a code; a code already used yields errs.ErrConflict.
	MarkUsed(ctx context.Context, id string) error
}
