package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/whisperchain/whisperchain/internal/errs"
	"github.com/whisperchain/whisperchain/internal/model"
)

func validSendState() SendState {
	return SendState{
		Token:     &model.AuthToken{UID: "s1", Token: "T", Round: 5},
		Active:    &model.Round{Number: 5, IsActive: true},
		Sender:    &model.User{UID: "s1", Role: model.RoleSender},
		Recipient: &model.User{UID: "r1", Role: model.RoleRecipient},
	}
}

func TestCheckSend_OK(t *testing.T) {
	require.NoError(t, CheckSend("s1", validSendState()))
}

func TestCheckSend_Order(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*SendState)
		want   error
	}{
		{"no token", func(s *SendState) { s.Token = nil; s.Active = nil }, errs.ErrTokenNotFound},
		{"used before frozen", func(s *SendState) { s.Token.IsUsed = true; s.Token.Frozen.Status = true }, errs.ErrTokenUsed},
		{"frozen before no round", func(s *SendState) { s.Token.Frozen.Status = true; s.Active = nil }, errs.ErrTokenFrozen},
		{"no active round", func(s *SendState) { s.Active = nil }, errs.ErrNoActiveRound},
		{"round mismatch", func(s *SendState) { s.Active.Number = 6 }, errs.ErrRoundMismatch},
		{"recipient missing", func(s *SendState) { s.Recipient = nil }, errs.ErrRecipientNotFound},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			st := validSendState()
			c.mutate(&st)
			require.ErrorIs(t, CheckSend("s1", st), c.want)
		})
	}
}

func TestCheckSend_SenderChecks(t *testing.T) {
	st := validSendState()
	require.ErrorIs(t, CheckSend("someone-else", st), errs.ErrForbidden)

	st = validSendState()
	st.Sender.Role = model.RoleRecipient
	st.Recipient = nil
	require.ErrorIs(t, CheckSend("s1", st), errs.ErrForbidden, "role is checked before recipient")

	st = validSendState()
	st.Sender.IsSuspended = true
	require.ErrorIs(t, CheckSend("s1", st), errs.ErrForbidden)
}

func TestValidateSendInput(t *testing.T) {
	require.ErrorIs(t, ValidateSendInput("", "r", "c"), errs.ErrValidation)
	require.ErrorIs(t, ValidateSendInput("t", " ", "c"), errs.ErrValidation)
	require.ErrorIs(t, ValidateSendInput("t", "r", ""), errs.ErrValidation)
	require.NoError(t, ValidateSendInput("t", "r", "c"))
}

func TestNextRoundNumber(t *testing.T) {
	require.Equal(t, int64(1), NextRoundNumber(0))
	require.Equal(t, int64(6), NextRoundNumber(5))
}

func TestTokenEligible(t *testing.T) {
	require.True(t, TokenEligible(model.User{Role: model.RoleSender}))
	require.True(t, TokenEligible(model.User{Role: model.RoleRecipient}))
	require.False(t, TokenEligible(model.User{Role: model.RoleSender, IsSuspended: true}))
	require.False(t, TokenEligible(model.User{Role: model.RoleModerator}))
	require.False(t, TokenEligible(model.User{Role: model.RoleIdle}))
}

func TestAuthorize(t *testing.T) {
	require.ErrorIs(t, Authorize(model.Actor{}, model.PermSend), errs.ErrUnauthorized)
	require.ErrorIs(t, Authorize(model.Actor{UID: "m", Role: model.RoleModerator, Suspended: true}, model.PermModerate), errs.ErrForbidden)
	require.ErrorIs(t, Authorize(model.Actor{UID: "s", Role: model.RoleSender}, model.PermModerate), errs.ErrForbidden)
	require.NoError(t, Authorize(model.Actor{UID: "a", Role: model.RoleAdmin}, model.PermModerate))
}

func pending() ModerationState {
	return ModerationState{Flagged: model.FlaggedMessage{ID: "f1", SenderUID: "s1", Status: model.StatusPending}}
}

func TestDecide_Transitions(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	res, err := Decide(pending(), model.ActionApprove, "m1", "fine", now)
	require.NoError(t, err)
	require.Equal(t, model.StatusApproved, res.Status)
	require.True(t, res.ClearFlag)
	require.Equal(t, "m1", res.ModeratedBy)
	require.Equal(t, now, res.ModeratedAt)
	require.Empty(t, res.SuspendUID)

	res, err = Decide(pending(), model.ActionReject, "m1", "bad", now)
	require.NoError(t, err)
	require.Equal(t, model.StatusRejected, res.Status)
	require.False(t, res.ClearFlag)

	res, err = Decide(pending(), model.ActionSuspendSender, "m1", "abuse", now)
	require.NoError(t, err)
	require.Equal(t, model.StatusApproved, res.Status)
	require.Equal(t, "s1", res.SuspendUID)
	require.Equal(t, "sender suspended: abuse", res.Note)
}

func TestDecide_SuspendResolvesUnknownSender(t *testing.T) {
	st := pending()
	st.Flagged.SenderUID = model.UnknownSender
	st.TokenOwner = "owner-7"
	res, err := Decide(st, model.ActionSuspendSender, "m1", "", time.Now())
	require.NoError(t, err)
	require.Equal(t, "owner-7", res.SuspendUID)

	st.TokenOwner = ""
	_, err = Decide(st, model.ActionSuspendSender, "m1", "", time.Now())
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDecide_Rejections(t *testing.T) {
	_, err := Decide(pending(), model.ModerationAction("escalate"), "m1", "", time.Now())
	require.ErrorIs(t, err, errs.ErrInvalidAction)
	require.ErrorIs(t, err, errs.ErrValidation)

	for _, st := range []model.ModerationStatus{model.StatusApproved, model.StatusRejected, model.StatusDismissed} {
		s := pending()
		s.Flagged.Status = st
		_, err := Decide(s, model.ActionApprove, "m1", "", time.Now())
		require.ErrorIs(t, err, errs.ErrNotFound, st)
	}
}

func TestCheckFlag(t *testing.T) {
	msg := &model.Message{ID: "m", RecipientUID: "r1"}
	require.ErrorIs(t, CheckFlag("r1", nil, "x"), errs.ErrMessageNotFound)
	require.ErrorIs(t, CheckFlag("r2", msg, "x"), errs.ErrForbidden)
	require.ErrorIs(t, CheckFlag("r1", msg, ""), errs.ErrValidation)
	require.NoError(t, CheckFlag("r1", msg, "x"))

	msg.Flag.Status = true
	require.ErrorIs(t, CheckFlag("r1", msg, "x"), errs.ErrAlreadyFlagged)
	require.NoError(t, CheckUnflag("r1", msg))

	msg.Flag.Status = false
	require.ErrorIs(t, CheckUnflag("r1", msg), errs.ErrConflict)
}

func TestNormalize(t *testing.T) {
	p := NormalizePage(model.Page{})
	require.Equal(t, model.Page{Page: 1, Limit: DefaultPageLimit}, p)
	require.Equal(t, MaxPageLimit, NormalizePage(model.Page{Page: 2, Limit: 1000}).Limit)
	require.Equal(t, 12, model.Page{Page: 2, Limit: 12}.Offset())

	require.Equal(t, DefaultAuditLimit, NormalizeAuditFilter(model.AuditFilter{}).Limit)
	require.Equal(t, MaxAuditLimit, NormalizeAuditFilter(model.AuditFilter{Limit: 9999}).Limit)
}
