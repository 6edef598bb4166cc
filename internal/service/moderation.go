package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/whisperchain/whisperchain/internal/crypto/chunked"
	"github.com/whisperchain/whisperchain/internal/errs"
	"github.com/whisperchain/whisperchain/internal/mediation"
	"github.com/whisperchain/whisperchain/internal/metrics"
	"github.com/whisperchain/whisperchain/internal/model"
	"github.com/whisperchain/whisperchain/internal/repository"
	"github.com/whisperchain/whisperchain/internal/rules"
)

// ModerationService runs the moderation queue.
type ModerationService struct {
	users    repository.UserRepository
	tokens   repository.TokenRepository
	flags    repository.FlagRepository
	mediator *mediation.Mediator
	audit    Auditor
	log      *zap.Logger
	Clock    Clock
}

// NewModerationService constructs a ModerationService.
func NewModerationService(
	users repository.UserRepository,
	tokens repository.TokenRepository,
	flags repository.FlagRepository,
	mediator *mediation.Mediator,
	audit Auditor,
	log *zap.Logger,
) *ModerationService {
	return &ModerationService{
		users:    users,
		tokens:   tokens,
		flags:    flags,
		mediator: mediator,
		audit:    audit,
		log:      log.With(zap.String("component", "moderation")),
	}
}

// ServerPublicKey returns the key recipients seal server copies with.
func (s *ModerationService) ServerPublicKey() string { return s.mediator.ServerPublicKey() }

// RegisterModeratorKey stores the key flagged content is re-encrypted for.
func (s *ModerationService) RegisterModeratorKey(ctx context.Context, actor model.Actor, key string) error {
	if err := rules.Authorize(actor, model.PermModerate); err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if _, err := chunked.ParsePublicKey(key); err != nil {
		return err
	}
	return s.users.SetModeratorPublicKey(ctx, actor.UID, key)
}

// ListFlagged returns queue entries with their content re-encrypted for the actor.
// Entries that cannot be mediated are returned with DecryptionFailed set.
func (s *ModerationService) ListFlagged(
	ctx context.Context, actor model.Actor, status string, page model.Page,
) ([]model.FlaggedView, error) {
	if err := rules.Authorize(actor, model.PermModerate); err != nil {
		return nil, err
	}
	st, err := model.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	mod, err := s.users.GetByID(ctx, actor.UID)
	if err != nil {
		return nil, err
	}
	if mod.ModeratorPublicKey == "" {
		return nil, errs.ErrModeratorKeyMissing
	}

	p := rules.NormalizePage(page)
	views, err := s.flags.List(ctx, model.FlaggedFilter{Status: st, Limit: p.Limit, Offset: p.Offset()})
	if err != nil {
		return nil, err
	}
	s.mediator.MediateAll(views, mod.ModeratorPublicKey)
	return views, nil
}

// CountFlagged counts pending entries.
func (s *ModerationService) CountFlagged(ctx context.Context, actor model.Actor) (int, error) {
	if err := rules.Authorize(actor, model.PermModerate); err != nil {
		return 0, err
	}
	return s.flags.CountPending(ctx)
}

// Moderate resolves the pending entry of messageID.
func (s *ModerationService) Moderate(
	ctx context.Context, actor model.Actor, messageID, action, note string,
) (model.FlaggedMessage, error) {
	if err := rules.Authorize(actor, model.PermModerate); err != nil {
		return model.FlaggedMessage{}, err
	}
	act := model.ModerationAction(strings.TrimSpace(action))
	switch act {
	case model.ActionApprove, model.ActionReject, model.ActionSuspendSender:
	default:
		return model.FlaggedMessage{}, errs.ErrInvalidAction
	}

	now := s.Clock.now()
	f, res, err := s.flags.Moderate(ctx, messageID, func(st rules.ModerationState) (model.Resolution, error) {
		return rules.Decide(st, act, actor.UID, note, now)
	})
	if err != nil {
		return model.FlaggedMessage{}, err
	}

	metrics.ModerationActions.WithLabelValues(string(act)).Inc()
	if res.SuspendUID != "" {
		s.log.Info("sender suspended", zap.String("flaggedId", f.ID))
		s.audit.Record(ctx, model.AuditEntry{
			ActionType: model.AuditUserSuspended,
			ActorRole:  actor.Role,
			ActorUID:   actor.UID,
			TargetID:   res.SuspendUID,
			Metadata:   map[string]any{"flaggedId": f.ID, "reason": note},
		})
	}
	s.audit.Record(ctx, model.AuditEntry{
		ActionType: model.AuditMessageModerated,
		ActorRole:  actor.Role,
		ActorUID:   actor.UID,
		TargetID:   f.ID,
		Metadata: map[string]any{
			"action":    string(act),
			"note":      note,
			"moderator": actor.UID,
			"messageId": f.OriginalMessageID,
			"status":    string(f.Status),
		},
	})
	return f, nil
}

// FreezeToken disables a sending token. Freezing is one-way.
func (s *ModerationService) FreezeToken(ctx context.Context, actor model.Actor, token string) (*model.AuthToken, error) {
	if err := rules.Authorize(actor, model.PermModerate); err != nil {
		return nil, err
	}
	if strings.TrimSpace(token) == "" {
		return nil, errs.Validation("token is required")
	}
	t, err := s.tokens.Freeze(ctx, token, actor.UID, s.Clock.now())
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, model.AuditEntry{
		ActionType: model.AuditTokenFrozen,
		ActorRole:  actor.Role,
		ActorUID:   actor.UID,
		TokenID:    t.Token,
		Round:      t.Round,
	})
	return t, nil
}

// SetSuspended suspends (moderators and admins) or reinstates (admins) a user.
func (s *ModerationService) SetSuspended(ctx context.Context, actor model.Actor, uid string, suspended bool) error {
	perm, action := model.PermModerate, model.AuditUserSuspended
	if !suspended {
		perm, action = model.PermManageUsers, model.AuditUserUnsuspended
	}
	if err := rules.Authorize(actor, perm); err != nil {
		return err
	}
	if uid == actor.UID {
		return errs.Validation("cannot change own suspension")
	}
	if err := s.users.SetSuspended(ctx, uid, suspended); err != nil {
		return err
	}
	s.audit.Record(ctx, model.AuditEntry{
		ActionType: action,
		ActorRole:  actor.Role,
		ActorUID:   actor.UID,
		TargetID:   uid,
	})
	return nil
}
