package memory

import (
	"context"
	"sort"

	"github.com/whisperchain/whisperchain/internal/errs"
	"github.com/whisperchain/whisperchain/internal/model"
	"github.com/whisperchain/whisperchain/internal/rules"
)

type messageRepo struct{ s *Store }

func (r *messageRepo) Send(
	_ context.Context, cmd model.SendCommand, check func(rules.SendState) error,
) (model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var st rules.SendState
	if t, ok := r.s.tokens[cmd.Token]; ok {
		st.Token = &t
		if u, ok := r.s.users[t.UID]; ok {
			st.Sender = cloneUser(u)
		}
	}
	st.Active = r.s.activeRound()
	if u, ok := r.s.users[cmd.RecipientUID]; ok {
		st.Recipient = cloneUser(u)
	}
	if err := check(st); err != nil {
		return model.Message{}, err
	}
	if _, dup := r.s.messages[cmd.MessageID]; dup {
		return model.Message{}, errs.ErrAlreadyExists
	}

	msg := model.Message{
		ID:           cmd.MessageID,
		Ciphertext:   cmd.Ciphertext,
		SenderToken:  cmd.Token,
		RecipientUID: cmd.RecipientUID,
		Round:        st.Token.Round,
		SentAt:       cmd.SentAt,
	}
	tok := *st.Token
	tok.IsUsed = true
	tok.UsedAt = cmd.SentAt
	r.s.tokens[tok.Token] = tok
	r.s.messages[msg.ID] = msg
	r.s.mailbox[st.Sender.UID] = append(r.s.mailbox[st.Sender.UID], mailboxEntry{msg.ID, model.BoxSent})
	r.s.mailbox[msg.RecipientUID] = append(r.s.mailbox[msg.RecipientUID], mailboxEntry{msg.ID, model.BoxReceived})
	return msg, nil
}

func (r *messageRepo) Get(_ context.Context, id string) (*model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return nil, errs.ErrMessageNotFound
	}
	return &m, nil
}

func (r *messageRepo) ListBox(_ context.Context, uid string, box model.Box, page model.Page) (model.MessagePage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var all []model.Message
	for _, e := range r.s.mailbox[uid] {
		if e.box == box {
			all = append(all, r.s.messages[e.messageID])
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].SentAt.Equal(all[j].SentAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].SentAt.After(all[j].SentAt)
	})

	out := model.MessagePage{Total: len(all)}
	from := min(page.Offset(), len(all))
	to := min(from+page.Limit, len(all))
	out.Messages = append([]model.Message(nil), all[from:to]...)
	out.HasMore = to < len(all)
	return out, nil
}

func (r *messageRepo) MarkRead(_ context.Context, recipientUID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for id, m := range r.s.messages {
		if m.RecipientUID == recipientUID && !m.IsRead {
			m.IsRead = true
			r.s.messages[id] = m
			n++
		}
	}
	return n, nil
}

func (r *messageRepo) UnreadCount(_ context.Context, recipientUID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, m := range r.s.messages {
		if m.RecipientUID == recipientUID && !m.IsRead {
			n++
		}
	}
	return n, nil
}
