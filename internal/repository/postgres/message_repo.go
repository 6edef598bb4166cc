package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/whisperchain/whisperchain/internal/errs"
	"github.com/whisperchain/whisperchain/internal/model"
	"github.com/whisperchain/whisperchain/internal/rules"
)

// MessageRepo implements MessageRepository using PostgreSQL.
type MessageRepo struct{ db *DB }

// NewMessageRepo constructs a message repository.
func NewMessageRepo(db *DB) *MessageRepo { return &MessageRepo{db: db} }

const messageColumns = `id, ciphertext, sender_token, recipient_uid, round, sent_at, is_read,
flagged, flagged_at, flag_moderator`

func scanMessage(row pgx.Row) (*model.Message, error) {
	var (
		m         model.Message
		flaggedAt time.Time
	)
	if err := row.Scan(&m.ID, &m.Ciphertext, &m.SenderToken, &m.RecipientUID, &m.Round, &m.SentAt,
		&m.IsRead, &m.Flag.Status, &flaggedAt, &m.Flag.ModeratorID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrMessageNotFound
		}
		return nil, err
	}
	m.Flag.Timestamp = fromEpoch(flaggedAt)
	return &m, nil
}

// tokenOrNil scans a token, mapping absence to nil.
func tokenOrNil(row pgx.Row) (*model.AuthToken, error) {
	t, err := scanToken(row)
	if errors.Is(err, errs.ErrTokenNotFound) {
		return nil, nil
	}
	return t, err
}

// userOrNil scans a user, mapping absence to nil.
func userOrNil(row pgx.Row) (*model.User, error) {
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// Send validates and stores a message, spending its token, in one transaction.
func (r *MessageRepo) Send(
	ctx context.Context, cmd model.SendCommand, check func(rules.SendState) error,
) (msg model.Message, err error) {
	err = r.db.withTx(ctx, func(tx pgx.Tx) error {
		var st rules.SendState
		var err error

		st.Token, err = tokenOrNil(tx.QueryRow(ctx,
			`SELECT `+tokenColumns+` FROM auth_tokens WHERE token=$1 FOR UPDATE`, cmd.Token))
		if err != nil {
			return err
		}

		rd := model.Round{IsActive: true}
		switch err := tx.QueryRow(ctx, `SELECT number, started_at, created_by FROM rounds WHERE is_active`).
			Scan(&rd.Number, &rd.StartedAt, &rd.CreatedBy); {
		case err == nil:
			st.Active = &rd
		case errors.Is(err, pgx.ErrNoRows):
		default:
			return err
		}

		if st.Token != nil {
			st.Sender, err = userOrNil(tx.QueryRow(ctx,
				`SELECT `+userColumns+` FROM users WHERE uid=$1`, st.Token.UID))
			if err != nil {
				return err
			}
		}
		st.Recipient, err = userOrNil(tx.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE uid=$1`, cmd.RecipientUID))
		if err != nil {
			return err
		}

		if err := check(st); err != nil {
			return err
		}

		msg = model.Message{
			ID:           cmd.MessageID,
			Ciphertext:   cmd.Ciphertext,
			SenderToken:  cmd.Token,
			RecipientUID: cmd.RecipientUID,
			Round:        st.Token.Round,
			SentAt:       cmd.SentAt,
		}
		const ins = `
INSERT INTO messages (id, ciphertext, sender_token, recipient_uid, round, sent_at)
VALUES ($1, $2, $3, $4, $5, $6)`
		if _, err := tx.Exec(ctx, ins, msg.ID, msg.Ciphertext, msg.SenderToken, msg.RecipientUID, msg.Round, msg.SentAt); err != nil {
			return sendConflict(err)
		}

		const spend = `UPDATE auth_tokens SET is_used=true, used_at=$2 WHERE token=$1 AND NOT is_used`
		tag, err := tx.Exec(ctx, spend, cmd.Token, cmd.SentAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errs.ErrTokenUsed
		}

		const box = `INSERT INTO mailbox (uid, message_id, box) VALUES ($1, $3, 'sent'), ($2, $3, 'received')`
		if _, err := tx.Exec(ctx, box, st.Sender.UID, msg.RecipientUID, msg.ID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return model.Message{}, err
	}
	return msg, nil
}

func sendConflict(err error) error {
	var pg *pgconn.PgError
	if !errors.As(err, &pg) || pg.Code != "23505" {
		return err
	}
	if strings.Contains(pg.ConstraintName, "sender_token") {
		return errs.ErrTokenUsed
	}
	return errs.ErrAlreadyExists
}

// Get loads a message.
func (r *MessageRepo) Get(ctx context.Context, id string) (*model.Message, error) {
	return scanMessage(r.db.Pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, id))
}

// ListBox pages through a mailbox, newest first.
func (r *MessageRepo) ListBox(ctx context.Context, uid string, box model.Box, page model.Page) (model.MessagePage, error) {
	var out model.MessagePage
	const cnt = `SELECT count(*) FROM mailbox WHERE uid=$1 AND box=$2`
	if err := r.db.Pool.QueryRow(ctx, cnt, uid, string(box)).Scan(&out.Total); err != nil {
		return model.MessagePage{}, err
	}

	const q = `
SELECT m.id, m.ciphertext, m.sender_token, m.recipient_uid, m.round, m.sent_at, m.is_read,
m.flagged, m.flagged_at, m.flag_moderator
FROM mailbox b JOIN messages m ON m.id = b.message_id
WHERE b.uid=$1 AND b.box=$2
ORDER BY m.sent_at DESC, m.id
LIMIT $3 OFFSET $4`
	rows, err := r.db.Pool.Query(ctx, q, uid, string(box), page.Limit, page.Offset())
	if err != nil {
		return model.MessagePage{}, err
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return model.MessagePage{}, err
		}
		out.Messages = append(out.Messages, *m)
	}
	if err := rows.Err(); err != nil {
		return model.MessagePage{}, err
	}
	out.HasMore = page.Offset()+len(out.Messages) < out.Total
	return out, nil
}

// MarkRead marks every unread message of the recipient as read.
func (r *MessageRepo) MarkRead(ctx context.Context, recipientUID string) (int, error) {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE messages SET is_read=true WHERE recipient_uid=$1 AND NOT is_read`, recipientUID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// UnreadCount counts unread messages of the recipient.
func (r *MessageRepo) UnreadCount(ctx context.Context, recipientUID string) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM messages WHERE recipient_uid=$1 AND NOT is_read`, recipientUID).Scan(&n)
	return n, err
}
