package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/whisperchain/whisperchain/internal/errs"
	"github.com/whisperchain/whisperchain/internal/model"
)

// AuditRepo implements AuditRepository using PostgreSQL. The table itself rejects
// UPDATE, DELETE and TRUNCATE through triggers.
type AuditRepo struct{ db *DB }

// NewAuditRepo constructs an audit repository.
func NewAuditRepo(db *DB) *AuditRepo { return &AuditRepo{db: db} }

// Append writes a new entry.
func (r *AuditRepo) Append(ctx context.Context, e model.AuditEntry) error {
	meta := e.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("audit metadata: %w", err)
	}
	const q = `
INSERT INTO audit_log (id, ts, action_type, actor_role, actor_uid, token_id, target_id, round, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = r.db.Pool.Exec(ctx, q, e.ID, e.Timestamp, string(e.ActionType), string(e.ActorRole),
		e.ActorUID, e.TokenID, e.TargetID, e.Round, raw)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// List returns entries matching f, newest first.
func (r *AuditRepo) List(ctx context.Context, f model.AuditFilter) ([]model.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.ActionType != "" {
		add("action_type=$%d", string(f.ActionType))
	}
	if f.Round != 0 {
		add("round=$%d", f.Round)
	}
	if !f.From.IsZero() {
		add("ts>=$%d", f.From)
	}
	if !f.To.IsZero() {
		add("ts<=$%d", f.To)
	}

	q := `SELECT id, ts, action_type, actor_role, actor_uid, token_id, target_id, round, metadata FROM audit_log`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	args = append(args, f.Limit)
	q += fmt.Sprintf(` ORDER BY ts DESC, id LIMIT $%d`, len(args))

	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var (
			e                 model.AuditEntry
			action, actorRole string
			raw               []byte
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &action, &actorRole, &e.ActorUID, &e.TokenID,
			&e.TargetID, &e.Round, &raw); err != nil {
			return nil, err
		}
		e.ActionType = model.ActionType(action)
		e.ActorRole = model.Role(actorRole)
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Metadata); err != nil {
				return nil, fmt.Errorf("audit metadata: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
