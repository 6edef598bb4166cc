package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/whisperchain/whisperchain/internal/errs"
	"github.com/whisperchain/whisperchain/internal/model"
)

// TokenRepo implements TokenRepository using PostgreSQL.
type TokenRepo struct{ db *DB }

// NewTokenRepo constructs a token repository.
func NewTokenRepo(db *DB) *TokenRepo { return &TokenRepo{db: db} }

const tokenColumns = `token, uid, round, issued_at, is_used, used_at, frozen, frozen_at, frozen_by`

func scanToken(row pgx.Row) (*model.AuthToken, error) {
	var (
		t                model.AuthToken
		usedAt, frozenAt time.Time
	)
	if err := row.Scan(&t.Token, &t.UID, &t.Round, &t.IssuedAt, &t.IsUsed, &usedAt,
		&t.Frozen.Status, &frozenAt, &t.Frozen.ModeratorID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrTokenNotFound
		}
		return nil, err
	}
	t.UsedAt = fromEpoch(usedAt)
	t.Frozen.Timestamp = fromEpoch(frozenAt)
	return &t, nil
}

// Get loads a token.
func (r *TokenRepo) Get(ctx context.Context, token string) (*model.AuthToken, error) {
	return scanToken(r.db.Pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM auth_tokens WHERE token=$1`, token))
}

// ForUser loads the token uid holds in round.
func (r *TokenRepo) ForUser(ctx context.Context, uid string, round int64) (*model.AuthToken, error) {
	const q = `SELECT ` + tokenColumns + ` FROM auth_tokens WHERE uid=$1 AND round=$2`
	return scanToken(r.db.Pool.QueryRow(ctx, q, uid, round))
}

// Freeze marks a token frozen under a row lock.
func (r *TokenRepo) Freeze(ctx context.Context, token, moderatorUID string, at time.Time) (out *model.AuthToken, err error) {
	err = r.db.withTx(ctx, func(tx pgx.Tx) error {
		t, err := scanToken(tx.QueryRow(ctx, `SELECT `+tokenColumns+` FROM auth_tokens WHERE token=$1 FOR UPDATE`, token))
		if err != nil {
			return err
		}
		if t.Frozen.Status {
			return errs.ErrTokenFrozen
		}
		const upd = `UPDATE auth_tokens SET frozen=true, frozen_at=$2, frozen_by=$3 WHERE token=$1`
		if _, err := tx.Exec(ctx, upd, token, at, moderatorUID); err != nil {
			return err
		}
		t.Frozen = model.FreezeInfo{Status: true, Timestamp: at, ModeratorID: moderatorUID}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
