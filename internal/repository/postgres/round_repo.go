package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/whisperchain/whisperchain/internal/errs"
	"github.com/whisperchain/whisperchain/internal/model"
	"github.com/whisperchain/whisperchain/internal/rules"
)

// RoundRepo implements RoundRepository using PostgreSQL. The single active round is
// guaranteed by the rounds_single_active partial unique index.
type RoundRepo struct{ db *DB }

// NewRoundRepo constructs a round repository.
func NewRoundRepo(db *DB) *RoundRepo { return &RoundRepo{db: db} }

// Active returns the active round.
func (r *RoundRepo) Active(ctx context.Context) (*model.Round, error) {
	const q = `SELECT number, started_at, created_by FROM rounds WHERE is_active`
	rd := model.Round{IsActive: true}
	if err := r.db.Pool.QueryRow(ctx, q).Scan(&rd.Number, &rd.StartedAt, &rd.CreatedBy); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNoActiveRound
		}
		return nil, err
	}
	return &rd, nil
}

// Start creates the next round and issues tokens in one transaction.
func (r *RoundRepo) Start(
	ctx context.Context, createdBy string, at time.Time, newToken func() (string, error),
) (round model.Round, tokens []model.AuthToken, err error) {
	err = r.db.withTx(ctx, func(tx pgx.Tx) error {
		var active bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rounds WHERE is_active)`).Scan(&active); err != nil {
			return err
		}
		if active {
			return errs.ErrRoundActive
		}

		var last int64
		if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(number), 0) FROM rounds`).Scan(&last); err != nil {
			return err
		}
		round = model.Round{Number: rules.NextRoundNumber(last), IsActive: true, StartedAt: at, CreatedBy: createdBy}

		const ins = `INSERT INTO rounds (number, is_active, started_at, created_by) VALUES ($1, true, $2, $3)`
		if _, err := tx.Exec(ctx, ins, round.Number, at, createdBy); err != nil {
			if isUniqueViolation(err) {
				return errs.ErrRoundActive
			}
			return err
		}

		eligible, err := eligibleUsers(ctx, tx)
		if err != nil {
			return err
		}

		const insTok = `INSERT INTO auth_tokens (token, uid, round, issued_at) VALUES ($1, $2, $3, $4)`
		tokens = make([]model.AuthToken, 0, len(eligible))
		for _, u := range eligible {
			tok, err := newToken()
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, insTok, tok, u.UID, round.Number, at); err != nil {
				return err
			}
			tokens = append(tokens, model.AuthToken{UID: u.UID, Token: tok, Round: round.Number, IssuedAt: at})
		}
		return nil
	})
	if err != nil {
		return model.Round{}, nil, err
	}
	return round, tokens, nil
}

func eligibleUsers(ctx context.Context, tx pgx.Tx) ([]model.User, error) {
	const q = `
SELECT uid, role, is_suspended FROM users
WHERE role IN ('sender', 'recipient') AND NOT is_suspended
ORDER BY uid`
	rows, err := tx.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		var (
			u    model.User
			role string
		)
		if err := rows.Scan(&u.UID, &role, &u.IsSuspended); err != nil {
			return nil, err
		}
		u.Role = model.Role(role)
		if rules.TokenEligible(u) {
			out = append(out, u)
		}
	}
	return out, rows.Err()
}

// End deactivates the active round.
func (r *RoundRepo) End(ctx context.Context, at time.Time) (model.Round, error) {
	const q = `
UPDATE rounds SET is_active=false, ended_at=$1
WHERE is_active
RETURNING number, started_at, created_by`
	rd := model.Round{EndedAt: at}
	if err := r.db.Pool.QueryRow(ctx, q, at).Scan(&rd.Number, &rd.StartedAt, &rd.CreatedBy); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Round{}, errs.ErrNoActiveRound
		}
		return model.Round{}, err
	}
	return rd, nil
}
