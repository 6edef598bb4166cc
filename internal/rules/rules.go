// Package rules holds the pure decision functions of the messaging core. They take
// a snapshot of the relevant state and return either an outcome or a domain error;
// the repositories apply the outcome inside a transaction.
package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/whisperchain/whisperchain/internal/errs"
	"github.com/whisperchain/whisperchain/internal/model"
)

// Authorize checks that actor may perform an operation guarded by p.
func Authorize(actor model.Actor, p model.Permission) error {
	if actor.UID == "" {
		return errs.ErrUnauthorized
	}
	if actor.Suspended {
		return errs.Forbidden("account suspended")
	}
	if !actor.Role.Can(p) {
		return errs.Forbidden(fmt.Sprintf("role %q is not allowed to perform this action", actor.Role))
	}
	return nil
}

// SendState is everything the send decision looks at. Nil means "does not exist".
type SendState struct {
	Token     *model.AuthToken
	Active    *model.Round
	Sender    *model.User // token owner
	Recipient *model.User
}

// CheckSend validates a send in a fixed order so that callers always observe the
// same error for the same state.
func CheckSend(actorUID string, st SendState) error {
	switch {
	case st.Token == nil:
		return errs.ErrTokenNotFound
	case st.Token.IsUsed:
		return errs.ErrTokenUsed
	case st.Token.Frozen.Status:
		return errs.ErrTokenFrozen
	case st.Active == nil:
		return errs.ErrNoActiveRound
	case st.Active.Number != st.Token.Round:
		return errs.ErrRoundMismatch
	}

	switch {
	case st.Sender == nil || st.Sender.UID != actorUID:
		return errs.Forbidden("token does not belong to caller")
	case st.Sender.Role != model.RoleSender:
		return errs.Forbidden("only senders can send messages")
	case st.Sender.IsSuspended:
		return errs.Forbidden("account suspended")
	case st.Recipient == nil:
		return errs.ErrRecipientNotFound
	}
	return nil
}

// ValidateSendInput rejects malformed send requests before any state is read.
func ValidateSendInput(token, recipientUID, ciphertext string) error {
	switch {
	case strings.TrimSpace(token) == "":
		return errs.Validation("token is required")
	case strings.TrimSpace(recipientUID) == "":
		return errs.Validation("recipient is required")
	case ciphertext == "":
		return errs.Validation("ciphertext is required")
	}
	return nil
}

// NextRoundNumber returns the number of the round that follows last (0 when none).
func NextRoundNumber(last int64) int64 { return last + 1 }

// TokenEligible reports whether u receives a sending token when a round starts.
func TokenEligible(u model.User) bool {
	return u.Role.TokenEligible() && !u.IsSuspended
}

// ModerationState is the snapshot a moderation decision looks at.
type ModerationState struct {
	Flagged    model.FlaggedMessage
	TokenOwner string // owner of the original message's token; empty when unknown
}

// Decide computes the resolution of a pending flagged message.
func Decide(st ModerationState, action model.ModerationAction, moderatorUID, note string, now time.Time) (model.Resolution, error) {
	if st.Flagged.Status != model.StatusPending {
		return model.Resolution{}, errs.ErrFlaggedNotFound
	}

	res := model.Resolution{ModeratedBy: moderatorUID, ModeratedAt: now, Note: note}
	switch action {
	case model.ActionApprove:
		res.Status = model.StatusApproved
		res.ClearFlag = true
	case model.ActionReject:
		res.Status = model.StatusRejected
	case model.ActionSuspendSender:
		uid := st.Flagged.SenderUID
		if uid == "" || uid == model.UnknownSender {
			uid = st.TokenOwner
		}
		if uid == "" {
			return model.Resolution{}, errs.New(errs.ErrNotFound, "sender could not be resolved")
		}
		res.Status = model.StatusApproved
		res.SuspendUID = uid
		res.Note = "sender suspended: " + note
	default:
		return model.Resolution{}, errs.ErrInvalidAction
	}
	return res, nil
}

// CheckFlag validates a recipient flagging msg.
func CheckFlag(actorUID string, msg *model.Message, serverContent string) error {
	switch {
	case msg == nil:
		return errs.ErrMessageNotFound
	case msg.RecipientUID != actorUID:
		return errs.Forbidden("only the recipient can flag a message")
	case msg.Flag.Status:
		return errs.ErrAlreadyFlagged
	case serverContent == "":
		return errs.Validation("server copy is required")
	}
	return nil
}

// CheckUnflag validates a recipient withdrawing a flag.
func CheckUnflag(actorUID string, msg *model.Message) error {
	switch {
	case msg == nil:
		return errs.ErrMessageNotFound
	case msg.RecipientUID != actorUID:
		return errs.Forbidden("only the recipient can unflag a message")
	case !msg.Flag.Status:
		return errs.New(errs.ErrConflict, "message is not flagged")
	}
	return nil
}

// Paging bounds.
const (
	DefaultPageLimit = 12
	MaxPageLimit     = 100
)

// NormalizePage clamps a listing request.
func NormalizePage(p model.Page) model.Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

// Audit listing bounds.
const (
	DefaultAuditLimit = 100
	MaxAuditLimit     = 500
)

// NormalizeAuditFilter clamps the limit of an audit query.
func NormalizeAuditFilter(f model.AuditFilter) model.AuditFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultAuditLimit
	}
	if f.Limit > MaxAuditLimit {
		f.Limit = MaxAuditLimit
	}
	return f
}
