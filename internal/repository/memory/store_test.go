package memory

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/whisperchain/whisperchain/internal/errs"
	"github.com/whisperchain/whisperchain/internal/model"
	"github.com/whisperchain/whisperchain/internal/repository"
	"github.com/whisperchain/whisperchain/internal/rules"
)

func seed(t *testing.T, s *Store, users ...model.User) {
	t.Helper()
	for i := range users {
		require.NoError(t, s.Users().Create(context.Background(), &users[i]))
	}
}

func counter() func() (string, error) {
	var n atomic.Int64
	return func() (string, error) { return fmt.Sprintf("tok-%d", n.Add(1)), nil }
}

func TestUsers_CopiesAndUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s, model.User{UID: "u1", Email: "a@b.c", Role: model.RoleSender})

	err := s.Users().Create(ctx, &model.User{UID: "u2", Email: "a@b.c"})
	require.ErrorIs(t, err, errs.ErrAlreadyExists)

	u, err := s.Users().GetByEmail(ctx, "a@b.c")
	require.NoError(t, err)
	u.Role = model.RoleAdmin
	again, _ := s.Users().GetByID(ctx, "u1")
	require.Equal(t, model.RoleSender, again.Role)

	require.NoError(t, s.Users().UpdateRole(ctx, "u1", model.RoleIdle,
		model.RoleChange{Role: model.RoleSender, ChangedBy: "adm"}))
	again, _ = s.Users().GetByID(ctx, "u1")
	require.True(t, again.HadRole(model.RoleSender))
	require.ErrorIs(t, s.Users().SetSuspended(ctx, "ghost", true), errs.ErrUserNotFound)
}

func TestRounds_StartIssuesTokensToEligibleOnly(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s,
		model.User{UID: "s1", Email: "s1", Role: model.RoleSender},
		model.User{UID: "r1", Email: "r1", Role: model.RoleRecipient},
		model.User{UID: "m1", Email: "m1", Role: model.RoleModerator},
		model.User{UID: "s2", Email: "s2", Role: model.RoleSender, IsSuspended: true},
	)

	rd, toks, err := s.Rounds().Start(ctx, "adm", time.Now(), counter())
	require.NoError(t, err)
	require.Equal(t, int64(1), rd.Number)
	require.Len(t, toks, 2)

	_, _, err = s.Rounds().Start(ctx, "adm", time.Now(), counter())
	require.ErrorIs(t, err, errs.ErrRoundActive)

	_, err = s.Rounds().End(ctx, time.Now())
	require.NoError(t, err)
	_, err = s.Rounds().End(ctx, time.Now())
	require.ErrorIs(t, err, errs.ErrNoActiveRound)

	rd, _, err = s.Rounds().Start(ctx, "adm", time.Now(), counter())
	require.NoError(t, err)
	require.Equal(t, int64(2), rd.Number)
}

func TestRounds_ConcurrentStartHasOneWinner(t *testing.T) {
	s := New()
	seed(t, s, model.User{UID: "s1", Email: "s1", Role: model.RoleSender})
	gen := counter()

	var wg sync.WaitGroup
	var ok, conflict atomic.Int32
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.Rounds().Start(context.Background(), "adm", time.Now(), gen)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, errs.ErrRoundActive):
				conflict.Add(1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, ok.Load())
	require.EqualValues(t, 15, conflict.Load())
}

func TestMessages_ConcurrentSendSpendsTokenOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s,
		model.User{UID: "s1", Email: "s1", Role: model.RoleSender},
		model.User{UID: "r1", Email: "r1", Role: model.RoleRecipient},
	)
	_, toks, err := s.Rounds().Start(ctx, "adm", time.Now(), counter())
	require.NoError(t, err)
	var token string
	for _, tk := range toks {
		if tk.UID == "s1" {
			token = tk.Token
		}
	}

	var wg sync.WaitGroup
	var ok, used atomic.Int32
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cmd := model.SendCommand{MessageID: fmt.Sprintf("m%d", i), Token: token, RecipientUID: "r1",
				Ciphertext: "ct", SentAt: time.Now()}
			_, err := s.Messages().Send(ctx, cmd, func(st rules.SendState) error { return rules.CheckSend("s1", st) })
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, errs.ErrConflict):
				used.Add(1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, ok.Load())
	require.EqualValues(t, 7, used.Load())

	tk, err := s.Tokens().Get(ctx, token)
	require.NoError(t, err)
	require.True(t, tk.IsUsed)

	sent, err := s.Messages().ListBox(ctx, "s1", model.BoxSent, model.Page{Page: 1, Limit: 12})
	require.NoError(t, err)
	require.Equal(t, 1, sent.Total)
	n, _ := s.Messages().UnreadCount(ctx, "r1")
	require.Equal(t, 1, n)
}

func TestMessages_ListBoxPaging(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.mu.Lock()
	for i := range 5 {
		id := fmt.Sprintf("m%d", i)
		s.messages[id] = model.Message{ID: id, RecipientUID: "r1", SentAt: base.Add(time.Duration(i) * time.Minute)}
		s.mailbox["r1"] = append(s.mailbox["r1"], mailboxEntry{id, model.BoxReceived})
	}
	s.mu.Unlock()

	p1, err := s.Messages().ListBox(ctx, "r1", model.BoxReceived, model.Page{Page: 1, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"m4", "m3"}, []string{p1.Messages[0].ID, p1.Messages[1].ID})
	require.True(t, p1.HasMore)

	p3, err := s.Messages().ListBox(ctx, "r1", model.BoxReceived, model.Page{Page: 3, Limit: 2})
	require.NoError(t, err)
	require.Len(t, p3.Messages, 1)
	require.False(t, p3.HasMore)

	p9, err := s.Messages().ListBox(ctx, "r1", model.BoxReceived, model.Page{Page: 9, Limit: 2})
	require.NoError(t, err)
	require.Empty(t, p9.Messages)
}

func TestFlags_ModerateAppliesAtomically(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s,
		model.User{UID: "s1", Email: "s1", Role: model.RoleSender},
		model.User{UID: "r1", Email: "r1", Role: model.RoleRecipient},
	)
	_, toks, _ := s.Rounds().Start(ctx, "adm", time.Now(), counter())
	token := toks[1].Token
	require.Equal(t, "s1", toks[1].UID)
	_, err := s.Messages().Send(ctx, model.SendCommand{MessageID: "m1", Token: token, RecipientUID: "r1", Ciphertext: "ct"},
		func(st rules.SendState) error { return rules.CheckSend("s1", st) })
	require.NoError(t, err)

	check := func(m *model.Message) error { return rules.CheckFlag("r1", m, "srv") }
	f, err := s.Flags().Flag(ctx, model.FlagCommand{FlaggedID: "f1", MessageID: "m1", ActorUID: "r1", ServerContent: "srv"}, check)
	require.NoError(t, err)
	require.Equal(t, "s1", f.SenderUID)
	_, err = s.Flags().Flag(ctx, model.FlagCommand{FlaggedID: "f2", MessageID: "m1", ActorUID: "r1", ServerContent: "srv"}, check)
	require.ErrorIs(t, err, errs.ErrAlreadyFlagged)

	// A failed decision changes nothing.
	_, _, err = s.Flags().Moderate(ctx, "m1", func(rules.ModerationState) (model.Resolution, error) {
		return model.Resolution{}, errs.ErrInvalidAction
	})
	require.ErrorIs(t, err, errs.ErrInvalidAction)
	n, _ := s.Flags().CountPending(ctx)
	require.Equal(t, 1, n)

	_, res, err := s.Flags().Moderate(ctx, "m1", func(st rules.ModerationState) (model.Resolution, error) {
		return rules.Decide(st, model.ActionSuspendSender, "mod", "abuse", time.Now())
	})
	require.NoError(t, err)
	require.Equal(t, "s1", res.SuspendUID)
	u, _ := s.Users().GetByID(ctx, "s1")
	require.True(t, u.IsSuspended)
	m, _ := s.Messages().Get(ctx, "m1")
	require.True(t, m.Flag.Status)
	require.Equal(t, "mod", m.Flag.ModeratorID)

	_, _, err = s.Flags().Moderate(ctx, "m1", func(st rules.ModerationState) (model.Resolution, error) {
		return rules.Decide(st, model.ActionApprove, "mod", "", time.Now())
	})
	require.ErrorIs(t, err, errs.ErrFlaggedNotFound)
}

func TestAudit_ReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Audit().Append(ctx, model.AuditEntry{ID: "a1", ActionType: model.AuditRoundStarted,
		Timestamp: time.Now(), Metadata: map[string]any{"k": "v"}}))
	require.ErrorIs(t, s.Audit().Append(ctx, model.AuditEntry{ID: "a1"}), errs.ErrAlreadyExists)

	got, err := s.Audit().List(ctx, model.AuditFilter{})
	require.NoError(t, err)
	got[0].Metadata["k"] = "tampered"
	got[0].ActionType = model.AuditMessageSent

	again, _ := s.Audit().List(ctx, model.AuditFilter{ActionType: model.AuditRoundStarted})
	require.Len(t, again, 1)
	require.Equal(t, "v", again[0].Metadata["k"])
}

func TestAuditRepository_HasNoMutators(t *testing.T) {
	typ := reflect.TypeFor[repository.AuditRepository]()
	var names []string
	for i := range typ.NumMethod() {
		names = append(names, typ.Method(i).Name)
	}
	require.ElementsMatch(t, []string{"Append", "List"}, names)
}

func TestVerification_SingleUse(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, s.Verification().Create(ctx, model.VerificationCode{ID: "v1", Email: "a@b.c", CreatedAt: now}))

	c, err := s.Verification().LatestUnused(ctx, "a@b.c", now.Add(-time.Minute))
	require.NoError(t, err)
	require.NoError(t, s.Verification().MarkUsed(ctx, c.ID))
	require.ErrorIs(t, s.Verification().MarkUsed(ctx, c.ID), errs.ErrConflict)
	_, err = s.Verification().LatestUnused(ctx, "a@b.c", now.Add(-time.Minute))
	require.ErrorIs(t, err, errs.ErrNotFound)
}
