package repository

import (
	"context"

	"github.com/whisperchain/whisperchain/internal/model"
	"github.com/whisperchain/whisperchain/internal/rules"
)

// MessageRepository stores messages and mailboxes.
type MessageRepository interface {
	// Send loads the send state, runs check on it and, when it passes, stores the
	// message, spends the token and fills both mailboxes in one transaction.
	Send(ctx context.Context, cmd model.SendCommand, check func(rules.SendState) error) (model.Message, error)
	// Get loads a message by id.
	Get(ctx context.Context, id string) (*model.Message, error)
	// ListBox returns one page of uid's sent or received messages, newest first.
	ListBox(ctx context.Context, uid string, box model.Box, page model.Page) (model.MessagePage, error)
	// MarkRead marks every unread message of recipientUID as read.
	MarkRead(ctx context.Context, recipientUID string) (int, error)
	// UnreadCount counts unread messages of recipientUID.
	UnreadCount(ctx context.Context, recipientUID string) (int, error)
}

// FlagRepository owns the moderation queue.
type FlagRepository interface {
	// Flag locks the message, runs check and enqueues a pending entry.
	Flag(ctx context.Context, cmd model.FlagCommand, check func(*model.Message) error) (model.FlaggedMessage, error)
	// Unflag clears the message flag and dismisses its pending entry.
	Unflag(ctx context.Context, messageID string, check func(*model.Message) error) (model.FlaggedMessage, error)
	// List returns entries matching f, oldest first, with the original sender token.
	List(ctx context.Context, f model.FlaggedFilter) ([]model.FlaggedView, error)
	// CountPending counts entries awaiting a decision.
	CountPending(ctx context.Context) (int, error)
	// Moderate locks the pending entry for messageID, asks decide for a resolution and
	// applies it (entry, message flag, sender suspension) atomically.
	Moderate(ctx context.Context, messageID string, decide func(rules.ModerationState) (model.Resolution, error)) (model.FlaggedMessage, model.Resolution, error)
}
