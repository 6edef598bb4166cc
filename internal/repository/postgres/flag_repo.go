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

// FlagRepo implements FlagRepository using PostgreSQL.
type FlagRepo struct{ db *DB }

// NewFlagRepo constructs a moderation queue repository.
func NewFlagRepo(db *DB) *FlagRepo { return &FlagRepo{db: db} }

const flaggedColumns = `id, original_message_id, sender_uid, recipient_uid, server_content, envelope,
flagged_by, flagged_at, original_sent_at, moderation_status, moderated_by, moderated_at,
moderation_note, reason, severity, tags`

func scanFlagged(row pgx.Row, extra ...any) (*model.FlaggedMessage, error) {
	var (
		f                     model.FlaggedMessage
		envelope, status, sev string
		moderatedAt           time.Time
	)
	dest := []any{&f.ID, &f.OriginalMessageID, &f.SenderUID, &f.RecipientUID, &f.ServerEncryptedContent,
		&envelope, &f.FlaggedBy, &f.FlaggedAt, &f.OriginalSentAt, &status, &f.ModeratedBy, &moderatedAt,
		&f.Note, &f.Reason, &sev, &f.Tags}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrFlaggedNotFound
		}
		return nil, err
	}
	f.Envelope = model.Envelope(envelope)
	f.Status = model.ModerationStatus(status)
	f.Severity = model.Severity(sev)
	f.ModeratedAt = fromEpoch(moderatedAt)
	return &f, nil
}

func lockMessage(ctx context.Context, tx pgx.Tx, id string) (*model.Message, error) {
	m, err := scanMessage(tx.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, errs.ErrMessageNotFound) {
		return nil, nil
	}
	return m, err
}

// tokenOwner resolves the uid that spent the token of message id; empty when unknown.
func tokenOwner(ctx context.Context, tx pgx.Tx, messageID string) (string, error) {
	const q = `SELECT t.uid FROM messages m JOIN auth_tokens t ON t.token = m.sender_token WHERE m.id=$1`
	var uid string
	if err := tx.QueryRow(ctx, q, messageID).Scan(&uid); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return uid, nil
}

// Flag enqueues a pending entry for a message and sets its flag.
func (r *FlagRepo) Flag(
	ctx context.Context, cmd model.FlagCommand, check func(*model.Message) error,
) (out model.FlaggedMessage, err error) {
	err = r.db.withTx(ctx, func(tx pgx.Tx) error {
		msg, err := lockMessage(ctx, tx, cmd.MessageID)
		if err != nil {
			return err
		}
		if err := check(msg); err != nil {
			return err
		}

		sender, err := tokenOwner(ctx, tx, msg.ID)
		if err != nil {
			return err
		}
		if sender == "" {
			sender = model.UnknownSender
		}

		out = model.FlaggedMessage{
			ID:                     cmd.FlaggedID,
			OriginalMessageID:      msg.ID,
			SenderUID:              sender,
			RecipientUID:           msg.RecipientUID,
			ServerEncryptedContent: cmd.ServerContent,
			Envelope:               cmd.Envelope,
			FlaggedBy:              cmd.ActorUID,
			FlaggedAt:              cmd.FlaggedAt,
			OriginalSentAt:         msg.SentAt,
			Status:                 model.StatusPending,
			Reason:                 cmd.Reason,
			Severity:               cmd.Severity,
			Tags:                   cmd.Tags,
		}
		if out.Tags == nil {
			out.Tags = []string{}
		}

		const ins = `
INSERT INTO flagged_messages (id, original_message_id, sender_uid, recipient_uid, server_content, envelope,
flagged_by, flagged_at, original_sent_at, reason, severity, tags)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
		if _, err := tx.Exec(ctx, ins, out.ID, out.OriginalMessageID, out.SenderUID, out.RecipientUID,
			out.ServerEncryptedContent, string(out.Envelope), out.FlaggedBy, out.FlaggedAt, out.OriginalSentAt,
			out.Reason, string(out.Severity), out.Tags); err != nil {
			if isUniqueViolation(err) {
				return errs.ErrAlreadyFlagged
			}
			return err
		}

		const upd = `UPDATE messages SET flagged=true, flagged_at=$2, flag_moderator='' WHERE id=$1`
		_, err = tx.Exec(ctx, upd, msg.ID, cmd.FlaggedAt)
		return err
	})
	if err != nil {
		return model.FlaggedMessage{}, err
	}
	return out, nil
}

// Unflag dismisses the pending entry of a message and clears its flag.
func (r *FlagRepo) Unflag(
	ctx context.Context, messageID string, check func(*model.Message) error,
) (out model.FlaggedMessage, err error) {
	err = r.db.withTx(ctx, func(tx pgx.Tx) error {
		msg, err := lockMessage(ctx, tx, messageID)
		if err != nil {
			return err
		}
		if err := check(msg); err != nil {
			return err
		}

		const dismiss = `
UPDATE flagged_messages SET moderation_status='dismissed'
WHERE original_message_id=$1 AND moderation_status='pending'
RETURNING ` + flaggedColumns
		f, err := scanFlagged(tx.QueryRow(ctx, dismiss, messageID))
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `UPDATE messages SET flagged=false WHERE id=$1`, messageID); err != nil {
			return err
		}
		out = *f
		return nil
	})
	if err != nil {
		return model.FlaggedMessage{}, err
	}
	return out, nil
}

// List returns queue entries with the sender token of the original message.
func (r *FlagRepo) List(ctx context.Context, f model.FlaggedFilter) ([]model.FlaggedView, error) {
	const q = `
SELECT f.id, f.original_message_id, f.sender_uid, f.recipient_uid, f.server_content, f.envelope,
f.flagged_by, f.flagged_at, f.original_sent_at, f.moderation_status, f.moderated_by, f.moderated_at,
f.moderation_note, f.reason, f.severity, f.tags, COALESCE(m.sender_token, '')
FROM flagged_messages f LEFT JOIN messages m ON m.id = f.original_message_id
WHERE f.moderation_status=$1
ORDER BY f.flagged_at ASC, f.id
LIMIT $2 OFFSET $3`
	rows, err := r.db.Pool.Query(ctx, q, string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.FlaggedView
	for rows.Next() {
		var token string
		fm, err := scanFlagged(rows, &token)
		if err != nil {
			return nil, err
		}
		out = append(out, model.FlaggedView{FlaggedMessage: *fm, SenderToken: token})
	}
	return out, rows.Err()
}

// CountPending counts entries awaiting a decision.
func (r *FlagRepo) CountPending(ctx context.Context) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM flagged_messages WHERE moderation_status='pending'`).Scan(&n)
	return n, err
}

// Moderate applies a decision to the pending entry of messageID.
func (r *FlagRepo) Moderate(
	ctx context.Context, messageID string, decide func(rules.ModerationState) (model.Resolution, error),
) (out model.FlaggedMessage, res model.Resolution, err error) {
	err = r.db.withTx(ctx, func(tx pgx.Tx) error {
		const sel = `SELECT ` + flaggedColumns + ` FROM flagged_messages
WHERE original_message_id=$1 AND moderation_status='pending' FOR UPDATE`
		f, err := scanFlagged(tx.QueryRow(ctx, sel, messageID))
		if err != nil {
			return err
		}

		st := rules.ModerationState{Flagged: *f}
		if f.SenderUID == "" || f.SenderUID == model.UnknownSender {
			if st.TokenOwner, err = tokenOwner(ctx, tx, messageID); err != nil {
				return err
			}
		}

		res, err = decide(st)
		if err != nil {
			return err
		}

		const upd = `
UPDATE flagged_messages
SET moderation_status=$2, moderated_by=$3, moderated_at=$4, moderation_note=$5
WHERE id=$1`
		if _, err := tx.Exec(ctx, upd, f.ID, string(res.Status), res.ModeratedBy, res.ModeratedAt, res.Note); err != nil {
			return err
		}

		if res.ClearFlag {
			_, err = tx.Exec(ctx, `UPDATE messages SET flagged=false, flag_moderator=$2 WHERE id=$1`, messageID, res.ModeratedBy)
		} else {
			_, err = tx.Exec(ctx, `UPDATE messages SET flag_moderator=$2 WHERE id=$1`, messageID, res.ModeratedBy)
		}
		if err != nil {
			return err
		}

		if res.SuspendUID != "" {
			tag, err := tx.Exec(ctx, `UPDATE users SET is_suspended=true WHERE uid=$1`, res.SuspendUID)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return errs.ErrUserNotFound
			}
		}

		f.Status, f.ModeratedBy, f.ModeratedAt, f.Note = res.Status, res.ModeratedBy, res.ModeratedAt, res.Note
		out = *f
		return nil
	})
	if err != nil {
		return model.FlaggedMessage{}, model.Resolution{}, err
	}
	return out, res, nil
}
