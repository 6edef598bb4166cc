package model

import (
	"fmt"
	"time"

	"github.com/whisperchain/whisperchain/internal/errs"
)

// ActionType classifies an audit entry.
type ActionType string

// Audit action types.
const (
	AuditUserCreated      ActionType = "USER_CREATED"
	AuditUserRoleChanged  ActionType = "USER_ROLE_CHANGED"
	AuditUserSuspended    ActionType = "USER_SUSPENDED"
	AuditUserUnsuspended  ActionType = "USER_UNSUSPENDED"
	AuditMessageSent      ActionType = "MESSAGE_SENT"
	AuditMessageRead      ActionType = "MESSAGE_READ"
	AuditMessageFlagged   ActionType = "MESSAGE_FLAGGED"
	AuditMessageUnflagged ActionType = "MESSAGE_UNFLAGGED"
	AuditMessageModerated ActionType = "MESSAGE_MODERATED"
	AuditTokenFrozen      ActionType = "TOKEN_FROZEN"
	AuditRoundStarted     ActionType = "ROUND_STARTED"
	AuditRoundEnded       ActionType = "ROUND_ENDED"
)

// ParseActionType validates s against the known action types.
func ParseActionType(s string) (ActionType, error) {
	switch a := ActionType(s); a {
	case AuditUserCreated, AuditUserRoleChanged, AuditUserSuspended, AuditUserUnsuspended,
		AuditMessageSent, AuditMessageRead, AuditMessageFlagged, AuditMessageUnflagged,
		AuditMessageModerated, AuditTokenFrozen, AuditRoundStarted, AuditRoundEnded:
		return a, nil
	default:
		return "", errs.Validation(fmt.Sprintf("unknown action type %q", s))
	}
}

// AuditEntry is an append-only record of a security-relevant action.
type AuditEntry struct {
	ID         string
	Timestamp  time.Time
	ActionType ActionType
	ActorRole  Role
	ActorUID   string
	TokenID    string
	TargetID   string
	Round      int64 // 0 when not bound to a round
	Metadata   map[string]any
}

// Clone returns a deep copy so stored entries cannot be mutated through returned values.
func (e AuditEntry) Clone() AuditEntry {
	if e.Metadata != nil {
		m := make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			m[k] = v
		}
		e.Metadata = m
	}
	return e
}

// AuditFilter narrows an audit listing. Zero values mean no constraint.
type AuditFilter struct {
	ActionType ActionType
	Round      int64
	From       time.Time
	To         time.Time
	Limit      int
}
