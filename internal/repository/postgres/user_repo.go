package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/whisperchain/whisperchain/internal/errs"
	"github.com/whisperchain/whisperchain/internal/model"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `uid, email, name, role, requested_role, role_history, public_key,
moderator_public_key, is_suspended, is_email_verified, email_verified_at, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u                   model.User
		role, requested     string
		history             []byte
		verifiedAt, created time.Time
	)
	err := row.Scan(&u.UID, &u.Email, &u.Name, &role, &requested, &history, &u.PublicKey,
		&u.ModeratorPublicKey, &u.IsSuspended, &u.IsEmailVerified, &verifiedAt, &created)
	if err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	u.RequestedRole = model.Role(requested)
	u.EmailVerifiedAt = fromEpoch(verifiedAt)
	u.CreatedAt = created
	if len(history) > 0 {
		if err := json.Unmarshal(history, &u.RoleHistory); err != nil {
			return nil, fmt.Errorf("role history: %w", err)
		}
	}
	return &u, nil
}

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (uid, email, name, role, requested_role, public_key, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Pool.Exec(ctx, q, u.UID, u.Email, u.Name, string(u.Role), string(u.RequestedRole), u.PublicKey, u.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

func (r *UserRepo) getOne(ctx context.Context, q string, arg any) (*model.User, error) {
	u, err := scanUser(r.db.Pool.QueryRow(ctx, q, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// GetByID selects a user by uid.
func (r *UserRepo) GetByID(ctx context.Context, uid string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE uid=$1`, uid)
}

// GetByEmail selects a user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email)
}

// ListPending returns idle users with a requested role, oldest first.
func (r *UserRepo) ListPending(ctx context.Context) ([]model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users
WHERE role='idle' AND requested_role<>'' ORDER BY created_at ASC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// CountByRole counts users holding role.
func (r *UserRepo) CountByRole(ctx context.Context, role model.Role) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM users WHERE role=$1`, string(role)).Scan(&n)
	return n, err
}

// UpdateRole sets the role and appends the previous one to the history.
func (r *UserRepo) UpdateRole(ctx context.Context, uid string, role model.Role, change model.RoleChange) error {
	entry, err := json.Marshal([]model.RoleChange{change})
	if err != nil {
		return err
	}
	const q = `
UPDATE users
SET role=$2, requested_role='', role_history = role_history || $3::jsonb
WHERE uid=$1`
	return r.execOne(ctx, q, uid, string(role), entry)
}

// SetSuspended toggles suspension.
func (r *UserRepo) SetSuspended(ctx context.Context, uid string, suspended bool) error {
	return r.execOne(ctx, `UPDATE users SET is_suspended=$2 WHERE uid=$1`, uid, suspended)
}

// SetPublicKey stores the messaging key.
func (r *UserRepo) SetPublicKey(ctx context.Context, uid, key string) error {
	return r.execOne(ctx, `UPDATE users SET public_key=$2 WHERE uid=$1`, uid, key)
}

// SetModeratorPublicKey stores the moderation key.
func (r *UserRepo) SetModeratorPublicKey(ctx context.Context, uid, key string) error {
	return r.execOne(ctx, `UPDATE users SET moderator_public_key=$2 WHERE uid=$1`, uid, key)
}

// MarkEmailVerified flags the account as verified.
func (r *UserRepo) MarkEmailVerified(ctx context.Context, email string, at time.Time) error {
	const q = `UPDATE users SET is_email_verified=true, email_verified_at=$2 WHERE email=$1`
	return r.execOne(ctx, q, email, at)
}

func (r *UserRepo) execOne(ctx context.Context, q string, args ...any) error {
	tag, err := r.db.Pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrUserNotFound
	}
	return nil
}
