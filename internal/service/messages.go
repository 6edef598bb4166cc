package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/whisperchain/whisperchain/internal/errs"
	"github.com/whisperchain/whisperchain/internal/metrics"
	"github.com/whisperchain/whisperchain/internal/model"
	"github.com/whisperchain/whisperchain/internal/repository"
	"github.com/whisperchain/whisperchain/internal/rules"
)

// MessageService sends, lists and flags messages.
type MessageService struct {
	rounds   repository.RoundRepository
	tokens   repository.TokenRepository
	messages repository.MessageRepository
	flags    repository.FlagRepository
	audit    Auditor
	log      *zap.Logger
	Clock    Clock
}

// NewMessageService constructs a MessageService.
func NewMessageService(
	rounds repository.RoundRepository,
	tokens repository.TokenRepository,
	messages repository.MessageRepository,
	flags repository.FlagRepository,
	audit Auditor,
	log *zap.Logger,
) *MessageService {
	return &MessageService{
		rounds:   rounds,
		tokens:   tokens,
		messages: messages,
		flags:    flags,
		audit:    audit,
		log:      log.With(zap.String("component", "messages")),
	}
}

// Send spends token to deliver ciphertext to recipientUID.
func (s *MessageService) Send(ctx context.Context, actor model.Actor, token, recipientUID, ciphertext string) (model.Message, error) {
	if actor.UID == "" {
		return model.Message{}, errs.ErrUnauthorized
	}
	if err := rules.ValidateSendInput(token, recipientUID, ciphertext); err != nil {
		return model.Message{}, err
	}
	id, err := newID()
	if err != nil {
		return model.Message{}, err
	}

	cmd := model.SendCommand{
		MessageID:    id,
		ActorUID:     actor.UID,
		Token:        strings.TrimSpace(token),
		RecipientUID: strings.TrimSpace(recipientUID),
		Ciphertext:   ciphertext,
		SentAt:       s.Clock.now(),
	}
	msg, err := s.messages.Send(ctx, cmd, func(st rules.SendState) error {
		return rules.CheckSend(actor.UID, st)
	})
	if err != nil {
		metrics.SendRejected.WithLabelValues(kindLabel(err)).Inc()
		return model.Message{}, err
	}

	metrics.MessagesSent.Inc()
	// The sender is identified by token only.
	s.audit.Record(ctx, model.AuditEntry{
		ActionType: model.AuditMessageSent,
		ActorRole:  model.RoleSender,
		TokenID:    msg.SenderToken,
		TargetID:   msg.ID,
		Round:      msg.Round,
		Metadata:   map[string]any{"recipientUid": msg.RecipientUID},
	})
	return msg, nil
}

// CurrentToken returns the actor's token for the active round.
func (s *MessageService) CurrentToken(ctx context.Context, actor model.Actor) (*model.AuthToken, error) {
	if actor.UID == "" {
		return nil, errs.ErrUnauthorized
	}
	if actor.Suspended {
		return nil, errs.Forbidden("account suspended")
	}
	rd, err := s.rounds.Active(ctx)
	if err != nil {
		return nil, err
	}
	return s.tokens.ForUser(ctx, actor.UID, rd.Number)
}

// Inbox returns a page of received messages, newest first.
func (s *MessageService) Inbox(ctx context.Context, actor model.Actor, page model.Page) (model.MessagePage, error) {
	if err := rules.Authorize(actor, model.PermReceive); err != nil {
		return model.MessagePage{}, err
	}
	out, err := s.messages.ListBox(ctx, actor.UID, model.BoxReceived, rules.NormalizePage(page))
	if err != nil {
		return model.MessagePage{}, err
	}
	if len(out.Messages) > 0 {
		s.audit.Record(ctx, model.AuditEntry{
			ActionType: model.AuditMessageRead,
			ActorRole:  actor.Role,
			ActorUID:   actor.UID,
			Metadata:   map[string]any{"page": rules.NormalizePage(page).Page, "count": len(out.Messages)},
		})
	}
	return out, nil
}

// Sent returns a page of the actor's sent messages.
func (s *MessageService) Sent(ctx context.Context, actor model.Actor, page model.Page) (model.MessagePage, error) {
	if err := rules.Authorize(actor, model.PermSend); err != nil {
		return model.MessagePage{}, err
	}
	return s.messages.ListBox(ctx, actor.UID, model.BoxSent, rules.NormalizePage(page))
}

// MarkRead marks all received messages as read.
func (s *MessageService) MarkRead(ctx context.Context, actor model.Actor) (int, error) {
	if err := rules.Authorize(actor, model.PermReceive); err != nil {
		return 0, err
	}
	return s.messages.MarkRead(ctx, actor.UID)
}

// UnreadCount counts unread received messages.
func (s *MessageService) UnreadCount(ctx context.Context, actor model.Actor) (int, error) {
	if err := rules.Authorize(actor, model.PermReceive); err != nil {
		return 0, err
	}
	return s.messages.UnreadCount(ctx, actor.UID)
}

// FlagInput is a recipient's report of a message.
type FlagInput struct {
	MessageID     string
	ServerContent string // plaintext re-encrypted by the client under the server key
	Envelope      string // empty means v1
	Reason        string
	Severity      string
	Tags          []string
}

// Flag puts a received message into the moderation queue.
func (s *MessageService) Flag(ctx context.Context, actor model.Actor, in FlagInput) (model.FlaggedMessage, error) {
	if err := rules.Authorize(actor, model.PermReceive); err != nil {
		return model.FlaggedMessage{}, err
	}
	if strings.TrimSpace(in.MessageID) == "" {
		return model.FlaggedMessage{}, errs.Validation("message id is required")
	}
	env, err := model.ParseEnvelope(in.Envelope)
	if err != nil {
		return model.FlaggedMessage{}, err
	}
	sev, err := model.ParseSeverity(in.Severity)
	if err != nil {
		return model.FlaggedMessage{}, err
	}
	id, err := newID()
	if err != nil {
		return model.FlaggedMessage{}, err
	}

	cmd := model.FlagCommand{
		FlaggedID:     id,
		MessageID:     in.MessageID,
		ActorUID:      actor.UID,
		ServerContent: in.ServerContent,
		Envelope:      env,
		Reason:        strings.TrimSpace(in.Reason),
		Severity:      sev,
		Tags:          in.Tags,
		FlaggedAt:     s.Clock.now(),
	}
	f, err := s.flags.Flag(ctx, cmd, func(m *model.Message) error {
		return rules.CheckFlag(actor.UID, m, in.ServerContent)
	})
	if err != nil {
		return model.FlaggedMessage{}, err
	}

	s.audit.Record(ctx, model.AuditEntry{
		ActionType: model.AuditMessageFlagged,
		ActorRole:  actor.Role,
		ActorUID:   actor.UID,
		TargetID:   f.OriginalMessageID,
		Metadata:   map[string]any{"flaggedId": f.ID, "severity": string(f.Severity)},
	})
	return f, nil
}

// Unflag withdraws a pending report.
func (s *MessageService) Unflag(ctx context.Context, actor model.Actor, messageID string) (model.FlaggedMessage, error) {
	if err := rules.Authorize(actor, model.PermReceive); err != nil {
		return model.FlaggedMessage{}, err
	}
	f, err := s.flags.Unflag(ctx, messageID, func(m *model.Message) error {
		return rules.CheckUnflag(actor.UID, m)
	})
	if err != nil {
		return model.FlaggedMessage{}, err
	}
	s.audit.Record(ctx, model.AuditEntry{
		ActionType: model.AuditMessageUnflagged,
		ActorRole:  actor.Role,
		ActorUID:   actor.UID,
		TargetID:   messageID,
		Metadata:   map[string]any{"flaggedId": f.ID},
	})
	return f, nil
}

func kindLabel(err error) string {
	if k := errs.KindOf(err); k != nil {
		return strings.ReplaceAll(k.Error(), " ", "_")
	}
	return "internal"
}
