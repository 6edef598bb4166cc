// Package model defines domain entities used by services and repositories.
package model

import (
	"time"
)

// RoleChange records the role a user held before a transition.
type RoleChange struct {
	Role      Role      `json:"role"`
	ChangedAt time.Time `json:"changedAt"`
	ChangedBy string    `json:"changedBy"`
}

// User is a registered participant. Keys are base64 DER SPKI public keys produced client-side.
type User struct {
	UID                string
	Email              string // unique, lower-cased
	Name               string
	Role               Role
	RequestedRole      Role // set while an elevated role awaits admin approval
	RoleHistory        []RoleChange
	PublicKey          string
	ModeratorPublicKey string // separate key used to receive mediated flagged content
	IsSuspended        bool
	IsEmailVerified    bool
	EmailVerifiedAt    time.Time
	CreatedAt          time.Time
}

// HadRole reports whether r appears in the user's role history.
func (u *User) HadRole(r Role) bool {
	for _, h := range u.RoleHistory {
		if h.Role == r {
			return true
		}
	}
	return false
}

// Actor is the authenticated caller of an operation, resolved from the store per request.
type Actor struct {
	UID       string
	Role      Role
	Suspended bool
}

// Round is a time window in which each eligible user holds one sending token.
type Round struct {
	Number    int64
	IsActive  bool
	StartedAt time.Time
	EndedAt   time.Time // zero while active
	CreatedBy string
}

// FreezeInfo marks a token disabled by a moderator.
type FreezeInfo struct {
	Status      bool
	Timestamp   time.Time
	ModeratorID string
}

// AuthToken is a one-time sending credential scoped to a round.
type AuthToken struct {
	UID      string // owner
	Token    string // random, unique
	Round    int64
	IssuedAt time.Time
	IsUsed   bool
	UsedAt   time.Time
	Frozen   FreezeInfo
}

// Usable reports whether the token can still be spent in round active.
func (t *AuthToken) Usable(active int64) bool {
	return !t.IsUsed && !t.Frozen.Status && t.Round == active
}

// FlagState is the recipient-side flag attached to a message.
type FlagState struct {
	Status      bool
	Timestamp   time.Time
	ModeratorID string
}

// Message is an encrypted payload. Only flag and read state change after send.
type Message struct {
	ID           string
	Ciphertext   string // chunked RSA-OAEP, recipient key
	SenderToken  string
	RecipientUID string
	Round        int64
	SentAt       time.Time
	IsRead       bool
	Flag         FlagState
}

// Box selects a side of a user's mailbox.
type Box string

// Mailbox sides.
const (
	BoxSent     Box = "sent"
	BoxReceived Box = "received"
)

// Page requests a window of a listing. Page is 1-based.
type Page struct {
	Page  int
	Limit int
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int { return (p.Page - 1) * p.Limit }

// MessagePage is one page of a mailbox listing.
type MessagePage struct {
	Messages []Message
	Total    int
	HasMore  bool
}

// VerificationCode is a pending email verification; only the code hash is stored.
type VerificationCode struct {
	ID        string
	Email     string
	CodeHash  []byte
	Salt      []byte
	CreatedAt time.Time
	IsUsed    bool
}

// SendCommand is a validated request to store a message.
type SendCommand struct {
	MessageID    string
	ActorUID     string
	Token        string
	RecipientUID string
	Ciphertext   string
	SentAt       time.Time
}

// FlagCommand is a recipient's request to put a message in the moderation queue.
type FlagCommand struct {
	FlaggedID     string
	MessageID     string
	ActorUID      string
	ServerContent string
	Envelope      Envelope
	Reason        string
	Severity      Severity
	Tags          []string
	FlaggedAt     time.Time
}
