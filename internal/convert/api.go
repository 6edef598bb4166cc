// Package convert maps domain models to wire messages and back.
package convert

import (
	"time"

	"github.com/whisperchain/whisperchain/internal/api"
	"github.com/whisperchain/whisperchain/internal/model"
)

// --- Users ---

// ToAPIUser converts a domain user. The moderator key itself is not exposed.
func ToAPIUser(u model.User) api.User {
	out := api.User{
		UID:             u.UID,
		Email:           u.Email,
		Name:            u.Name,
		Role:            string(u.Role),
		RequestedRole:   string(u.RequestedRole),
		PublicKey:       u.PublicKey,
		HasModeratorKey: u.ModeratorPublicKey != "",
		IsSuspended:     u.IsSuspended,
		IsEmailVerified: u.IsEmailVerified,
		EmailVerifiedAt: u.EmailVerifiedAt,
		CreatedAt:       u.CreatedAt,
	}
	for _, h := range u.RoleHistory {
		out.RoleHistory = append(out.RoleHistory, api.RoleChange{
			Role: string(h.Role), ChangedAt: h.ChangedAt, ChangedBy: h.ChangedBy,
		})
	}
	return out
}

// ToAPIUsers converts a slice of users.
func ToAPIUsers(in []model.User) []api.User {
	out := make([]api.User, 0, len(in))
	for _, u := range in {
		out = append(out, ToAPIUser(u))
	}
	return out
}

// --- Rounds / tokens ---

// ToAPIRound converts a round.
func ToAPIRound(r model.Round) api.Round {
	return api.Round{
		Number:    r.Number,
		IsActive:  r.IsActive,
		StartedAt: r.StartedAt,
		EndedAt:   r.EndedAt,
		CreatedBy: r.CreatedBy,
	}
}

// ToAPIToken converts a sending token.
func ToAPIToken(t model.AuthToken) api.Token {
	return api.Token{
		Token:    t.Token,
		Round:    t.Round,
		IssuedAt: t.IssuedAt,
		IsUsed:   t.IsUsed,
		UsedAt:   t.UsedAt,
		Frozen:   t.Frozen.Status,
		FrozenAt: t.Frozen.Timestamp,
		FrozenBy: t.Frozen.ModeratorID,
	}
}

// --- Messages ---

// ToAPIMessage converts a message.
func ToAPIMessage(m model.Message) api.Message {
	return api.Message{
		ID:            m.ID,
		Ciphertext:    m.Ciphertext,
		SenderToken:   m.SenderToken,
		RecipientUID:  m.RecipientUID,
		Round:         m.Round,
		SentAt:        m.SentAt,
		IsRead:        m.IsRead,
		Flagged:       m.Flag.Status,
		FlaggedAt:     m.Flag.Timestamp,
		FlagModerator: m.Flag.ModeratorID,
	}
}

// ToAPIMessagePage converts a mailbox page.
func ToAPIMessagePage(p model.MessagePage, page int) *api.MessagePageResponse {
	out := &api.MessagePageResponse{
		Messages: make([]api.Message, 0, len(p.Messages)),
		Total:    p.Total,
		Page:     page,
		HasMore:  p.HasMore,
	}
	for _, m := range p.Messages {
		out.Messages = append(out.Messages, ToAPIMessage(m))
	}
	return out
}

// FromAPIPage converts a page request.
func FromAPIPage(p *api.PageRequest) model.Page {
	if p == nil {
		return model.Page{}
	}
	return model.Page{Page: p.Page, Limit: p.Limit}
}

// --- Moderation ---

// ToAPIFlagged converts a queue entry. The server copy never leaves the server.
func ToAPIFlagged(f model.FlaggedMessage) api.FlaggedMessage {
	tags := f.Tags
	if tags == nil {
		tags = []string{}
	}
	return api.FlaggedMessage{
		ID:                f.ID,
		OriginalMessageID: f.OriginalMessageID,
		SenderUID:         f.SenderUID,
		RecipientUID:      f.RecipientUID,
		Envelope:          string(f.Envelope),
		FlaggedBy:         f.FlaggedBy,
		FlaggedAt:         f.FlaggedAt,
		OriginalSentAt:    f.OriginalSentAt,
		Status:            string(f.Status),
		ModeratedBy:       f.ModeratedBy,
		ModeratedAt:       f.ModeratedAt,
		Note:              f.Note,
		Reason:            f.Reason,
		Severity:          string(f.Severity),
		Tags:              tags,
	}
}

// ToAPIFlaggedViews converts moderator listings.
func ToAPIFlaggedViews(in []model.FlaggedView) []api.FlaggedMessage {
	out := make([]api.FlaggedMessage, 0, len(in))
	for _, v := range in {
		f := ToAPIFlagged(v.FlaggedMessage)
		f.SenderToken = v.SenderToken
		f.ModeratorContent = v.ModeratorContent
		f.DecryptionFailed = v.DecryptionFailed
		out = append(out, f)
	}
	return out
}

// --- Audit ---

// ToAPIAudit converts audit entries.
func ToAPIAudit(in []model.AuditEntry) []api.AuditEntry {
	out := make([]api.AuditEntry, 0, len(in))
	for _, e := range in {
		out = append(out, api.AuditEntry{
			ID:         e.ID,
			Timestamp:  e.Timestamp,
			ActionType: string(e.ActionType),
			ActorRole:  string(e.ActorRole),
			ActorUID:   e.ActorUID,
			TokenID:    e.TokenID,
			TargetID:   e.TargetID,
			Round:      e.Round,
			Metadata:   e.Metadata,
		})
	}
	return out
}

// FromAPIAuditFilter converts an audit query. An unknown action type is rejected.
func FromAPIAuditFilter(in *api.ListAuditRequest) (model.AuditFilter, error) {
	f := model.AuditFilter{Round: in.Round, Limit: in.Limit, From: utc(in.From), To: utc(in.To)}
	if in.ActionType != "" {
		at, err := model.ParseActionType(in.ActionType)
		if err != nil {
			return model.AuditFilter{}, err
		}
		f.ActionType = at
	}
	return f, nil
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
