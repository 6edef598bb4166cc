package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/whisperchain/whisperchain/internal/errs"
	"github.com/whisperchain/whisperchain/internal/model"
)

// VerificationRepo implements VerificationRepository using PostgreSQL.
type VerificationRepo struct{ db *DB }

// NewVerificationRepo constructs a verification code repository.
func NewVerificationRepo(db *DB) *VerificationRepo { return &VerificationRepo{db: db} }

// Create stores a hashed code.
func (r *VerificationRepo) Create(ctx context.Context, c model.VerificationCode) error {
	const q = `
INSERT INTO verification_codes (id, email, code_hash, salt, created_at)
VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Pool.Exec(ctx, q, c.ID, c.Email, c.CodeHash, c.Salt, c.CreatedAt)
	return err
}

// LatestUnused returns the newest unused code for email created after since.
func (r *VerificationRepo) LatestUnused(ctx context.Context, email string, since time.Time) (*model.VerificationCode, error) {
	const q = `
SELECT id, email, code_hash, salt, created_at, is_used FROM verification_codes
WHERE email=$1 AND NOT is_used AND created_at>$2
ORDER BY created_at DESC LIMIT 1`
	var c model.VerificationCode
	err := r.db.Pool.QueryRow(ctx, q, email, since).Scan(&c.ID, &c.Email, &c.CodeHash, &c.Salt, &c.CreatedAt, &c.IsUsed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// MarkUsed consumes a code exactly once.
func (r *VerificationRepo) MarkUsed(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE verification_codes SET is_used=true WHERE id=$1 AND NOT is_used`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.ErrConflict, "verification code already used")
	}
	return nil
}
