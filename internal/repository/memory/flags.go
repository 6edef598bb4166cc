package memory

import (
	"context"

	"github.com/whisperchain/whisperchain/internal/errs"
	"github.com/whisperchain/whisperchain/internal/model"
	"github.com/whisperchain/whisperchain/internal/rules"
)

type flagRepo struct{ s *Store }

// pending returns the index of the pending entry for messageID or -1; callers hold mu.
func (s *Store) pending(messageID string) int {
	for i, f := range s.flagged {
		if f.OriginalMessageID == messageID && f.Status == model.StatusPending {
			return i
		}
	}
	return -1
}

// message returns a copy of the message or nil; callers hold mu.
func (s *Store) message(id string) *model.Message {
	m, ok := s.messages[id]
	if !ok {
		return nil
	}
	return &m
}

func (r *flagRepo) Flag(
	_ context.Context, cmd model.FlagCommand, check func(*model.Message) error,
) (model.FlaggedMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	msg := r.s.message(cmd.MessageID)
	if err := check(msg); err != nil {
		return model.FlaggedMessage{}, err
	}
	if r.s.pending(msg.ID) >= 0 {
		return model.FlaggedMessage{}, errs.ErrAlreadyFlagged
	}

	sender := r.s.tokenOwner(msg.ID)
	if sender == "" {
		sender = model.UnknownSender
	}
	f := model.FlaggedMessage{
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
	f = cloneFlagged(f)
	r.s.flagged = append(r.s.flagged, f)

	msg.Flag = model.FlagState{Status: true, Timestamp: cmd.FlaggedAt}
	r.s.messages[msg.ID] = *msg
	return cloneFlagged(f), nil
}

func (r *flagRepo) Unflag(
	_ context.Context, messageID string, check func(*model.Message) error,
) (model.FlaggedMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	msg := r.s.message(messageID)
	if err := check(msg); err != nil {
		return model.FlaggedMessage{}, err
	}
	i := r.s.pending(messageID)
	if i < 0 {
		return model.FlaggedMessage{}, errs.ErrFlaggedNotFound
	}
	r.s.flagged[i].Status = model.StatusDismissed
	msg.Flag.Status = false
	r.s.messages[messageID] = *msg
	return cloneFlagged(r.s.flagged[i]), nil
}

func (r *flagRepo) List(_ context.Context, f model.FlaggedFilter) ([]model.FlaggedView, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []model.FlaggedView
	skipped := 0
	for _, fm := range r.s.flagged {
		if fm.Status != f.Status {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
		out = append(out, model.FlaggedView{
			FlaggedMessage: cloneFlagged(fm),
			SenderToken:    r.s.messages[fm.OriginalMessageID].SenderToken,
		})
	}
	return out, nil
}

func (r *flagRepo) CountPending(context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, f := range r.s.flagged {
		if f.Status == model.StatusPending {
			n++
		}
	}
	return n, nil
}

func (r *flagRepo) Moderate(
	_ context.Context, messageID string, decide func(rules.ModerationState) (model.Resolution, error),
) (model.FlaggedMessage, model.Resolution, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	i := r.s.pending(messageID)
	if i < 0 {
		return model.FlaggedMessage{}, model.Resolution{}, errs.ErrFlaggedNotFound
	}
	st := rules.ModerationState{Flagged: cloneFlagged(r.s.flagged[i])}
	if s := st.Flagged.SenderUID; s == "" || s == model.UnknownSender {
		st.TokenOwner = r.s.tokenOwner(messageID)
	}

	res, err := decide(st)
	if err != nil {
		return model.FlaggedMessage{}, model.Resolution{}, err
	}

	// Validate the suspension target before mutating anything.
	if res.SuspendUID != "" {
		if _, ok := r.s.users[res.SuspendUID]; !ok {
			return model.FlaggedMessage{}, model.Resolution{}, errs.ErrUserNotFound
		}
	}

	f := &r.s.flagged[i]
	f.Status, f.ModeratedBy, f.ModeratedAt, f.Note = res.Status, res.ModeratedBy, res.ModeratedAt, res.Note
	if m, ok := r.s.messages[messageID]; ok {
		if res.ClearFlag {
			m.Flag.Status = false
		}
		m.Flag.ModeratorID = res.ModeratedBy
		r.s.messages[messageID] = m
	}
	if res.SuspendUID != "" {
		u := r.s.users[res.SuspendUID]
		u.IsSuspended = true
		r.s.users[res.SuspendUID] = u
	}
	return cloneFlagged(*f), res, nil
}
