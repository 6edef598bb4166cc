package model

import (
	"fmt"

	"github.com/whisperchain/whisperchain/internal/errs"
)

// Role is the closed set of user roles.
type Role string

// Roles.
const (
	RoleIdle      Role = "idle"
	RoleSender    Role = "sender"
	RoleRecipient Role = "recipient"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// ParseRole validates s against the closed role set.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	switch r {
	case RoleIdle, RoleSender, RoleRecipient, RoleModerator, RoleAdmin:
		return r, nil
	default:
		return "", errs.Validation(fmt.Sprintf("unknown role %q", s))
	}
}

// Permission is an operation class guarded by role.
type Permission int

// Permissions.
const (
	PermSend Permission = iota
	PermReceive
	PermModerate
	PermManageRounds
	PermManageUsers
	PermReadAudit
)

// Can reports whether role r grants p.
func (r Role) Can(p Permission) bool {
	switch r {
	case RoleIdle:
		return false
	case RoleSender:
		return p == PermSend
	case RoleRecipient:
		return p == PermReceive
	case RoleModerator:
		return p == PermModerate || p == PermReadAudit
	case RoleAdmin:
		return p == PermModerate || p == PermReadAudit || p == PermManageRounds || p == PermManageUsers
	default:
		return false
	}
}

// TokenEligible reports whether users with role r receive a sending token when a round starts.
func (r Role) TokenEligible() bool {
	switch r {
	case RoleSender, RoleRecipient:
		return true
	case RoleIdle, RoleModerator, RoleAdmin:
		return false
	default:
		return false
	}
}

// Assignable reports whether an admin may grant r.
func (r Role) Assignable() bool {
	switch r {
	case RoleIdle, RoleSender, RoleRecipient, RoleModerator:
		return true
	case RoleAdmin:
		return false
	default:
		return false
	}
}

// SelfRegistrable reports whether r may be requested at registration.
func (r Role) SelfRegistrable() bool {
	switch r {
	case RoleSender, RoleRecipient, RoleModerator:
		return true
	case RoleIdle, RoleAdmin:
		return false
	default:
		return false
	}
}

// NeedsApproval reports whether a requested role starts idle until an admin assigns it.
func (r Role) NeedsApproval() bool { return r == RoleModerator }
