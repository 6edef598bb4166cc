// Package api defines the WhisperChain+ wire contract: request and response
// messages, the gRPC service descriptor, its JSON codec and a typed client.
package api

import "time"

// Empty is used by calls without a payload.
type Empty struct{}

// RoleChange is one entry of a user's role history.
type RoleChange struct {
	Role      string    `json:"role"`
	ChangedAt time.Time `json:"changedAt"`
	ChangedBy string    `json:"changedBy"`
}

// User is an account as seen by clients.
type User struct {
	UID             string       `json:"uid"`
	Email           string       `json:"email"`
	Name            string       `json:"name"`
	Role            string       `json:"role"`
	RequestedRole   string       `json:"requestedRole,omitempty"`
	RoleHistory     []RoleChange `json:"roleHistory,omitempty"`
	PublicKey       string       `json:"publicKey,omitempty"`
	HasModeratorKey bool         `json:"hasModeratorKey"`
	IsSuspended     bool         `json:"isSuspended"`
	IsEmailVerified bool         `json:"isEmailVerified"`
	EmailVerifiedAt time.Time    `json:"emailVerifiedAt,omitzero"`
	CreatedAt       time.Time    `json:"createdAt"`
}

// Round is a sending window.
type Round struct {
	Number    int64     `json:"number"`
	IsActive  bool      `json:"isActive"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt,omitzero"`
	CreatedBy string    `json:"createdBy"`
}

// Token is a one-time sending token.
type Token struct {
	Token    string    `json:"token"`
	Round    int64     `json:"round"`
	IssuedAt time.Time `json:"issuedAt"`
	IsUsed   bool      `json:"isUsed"`
	UsedAt   time.Time `json:"usedAt,omitzero"`
	Frozen   bool      `json:"frozen"`
	FrozenAt time.Time `json:"frozenAt,omitzero"`
	FrozenBy string    `json:"frozenBy,omitempty"`
}

// Message is an encrypted message. The sender is identified by token only.
type Message struct {
	ID            string    `json:"id"`
	Ciphertext    string    `json:"ciphertext"`
	SenderToken   string    `json:"senderToken"`
	RecipientUID  string    `json:"recipientUid"`
	Round         int64     `json:"round"`
	SentAt        time.Time `json:"sentAt"`
	IsRead        bool      `json:"isRead"`
	Flagged       bool      `json:"flagged"`
	FlaggedAt     time.Time `json:"flaggedAt,omitzero"`
	FlagModerator string    `json:"flagModerator,omitempty"`
}

// FlaggedMessage is a moderation queue entry. ModeratorContent is sealed for the
// requesting moderator's key and is only set on listings.
type FlaggedMessage struct {
	ID                string    `json:"id"`
	OriginalMessageID string    `json:"originalMessageId"`
	SenderUID         string    `json:"senderUid"`
	RecipientUID      string    `json:"recipientUid"`
	SenderToken       string    `json:"senderToken,omitempty"`
	ModeratorContent  string    `json:"moderatorContent,omitempty"`
	DecryptionFailed  bool      `json:"decryptionFailed,omitempty"`
	Envelope          string    `json:"envelope"`
	FlaggedBy         string    `json:"flaggedBy"`
	FlaggedAt         time.Time `json:"flaggedAt"`
	OriginalSentAt    time.Time `json:"originalSentAt"`
	Status            string    `json:"moderationStatus"`
	ModeratedBy       string    `json:"moderatedBy,omitempty"`
	ModeratedAt       time.Time `json:"moderatedAt,omitzero"`
	Note              string    `json:"moderationNote,omitempty"`
	Reason            string    `json:"reason,omitempty"`
	Severity          string    `json:"severity"`
	Tags              []string  `json:"tags"`
}

// AuditEntry is one record of the audit log.
type AuditEntry struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	ActionType string         `json:"actionType"`
	ActorRole  string         `json:"actorRole,omitempty"`
	ActorUID   string         `json:"actorUid,omitempty"`
	TokenID    string         `json:"tokenId,omitempty"`
	TargetID   string         `json:"targetId,omitempty"`
	Round      int64          `json:"round,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// RegisterRequest creates an account. Role is sender, recipient or moderator.
type RegisterRequest struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	PublicKey string `json:"publicKey,omitempty"`
}

// RequestCodeRequest asks for an email verification code.
type RequestCodeRequest struct {
	Email string `json:"email"`
}

// VerifyCodeRequest exchanges a code for a session.
type VerifyCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// SessionResponse carries a session token.
type SessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      User      `json:"user"`
}

// UserResponse carries one account.
type UserResponse struct {
	User User `json:"user"`
}

// UsersResponse carries a list of accounts.
type UsersResponse struct {
	Users []User `json:"users"`
}

// UserRequest addresses an account.
type UserRequest struct {
	UID string `json:"uid"`
}

// KeyRequest uploads a base64 SPKI public key.
type KeyRequest struct {
	PublicKey string `json:"publicKey"`
}

// KeyResponse returns a base64 SPKI public key.
type KeyResponse struct {
	PublicKey string `json:"publicKey"`
}

// AssignRoleRequest sets the role of an account.
type AssignRoleRequest struct {
	UID  string `json:"uid"`
	Role string `json:"role"`
}

// SetSuspendedRequest suspends or reinstates an account.
type SetSuspendedRequest struct {
	UID       string `json:"uid"`
	Suspended bool   `json:"suspended"`
}

// RoundResponse carries a round and, on start, the number of issued tokens.
type RoundResponse struct {
	Round        Round `json:"round"`
	TokensIssued int   `json:"tokensIssued,omitempty"`
}

// TokenRequest addresses a sending token.
type TokenRequest struct {
	Token string `json:"token"`
}

// TokenResponse carries a sending token.
type TokenResponse struct {
	Token Token `json:"token"`
}

// SendMessageRequest spends Token to deliver Ciphertext.
type SendMessageRequest struct {
	Token        string `json:"token"`
	RecipientUID string `json:"recipientUid"`
	Ciphertext   string `json:"ciphertext"`
}

// MessageResponse carries one message.
type MessageResponse struct {
	Message Message `json:"message"`
}

// PageRequest selects a page; zero values use server defaults.
type PageRequest struct {
	Page  int `json:"page,omitempty"`
	Limit int `json:"limit,omitempty"`
}

// MessagePageResponse is one page of a mailbox.
type MessagePageResponse struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	HasMore  bool      `json:"hasMore"`
}

// CountResponse carries a counter.
type CountResponse struct {
	Count int `json:"count"`
}

// FlagMessageRequest reports a received message. ServerContent is the plaintext
// sealed for the server key.
type FlagMessageRequest struct {
	MessageID     string   `json:"messageId"`
	ServerContent string   `json:"serverContent"`
	Envelope      string   `json:"envelope,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	Severity      string   `json:"severity,omitempty"`
	Tags          []string `json:"tags,omitempty"`
}

// MessageIDRequest addresses a message.
type MessageIDRequest struct {
	MessageID string `json:"messageId"`
}

// FlaggedResponse carries one queue entry.
type FlaggedResponse struct {
	Flagged FlaggedMessage `json:"flagged"`
}

// ListFlaggedRequest pages through the queue; Status defaults to pending.
type ListFlaggedRequest struct {
	Status string `json:"status,omitempty"`
	Page   int    `json:"page,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// FlaggedListResponse carries queue entries.
type FlaggedListResponse struct {
	Items []FlaggedMessage `json:"items"`
}

// ModerateRequest resolves the pending entry of MessageID.
// Action is approve, reject or suspend_sender.
type ModerateRequest struct {
	MessageID string `json:"messageId"`
	Action    string `json:"action"`
	Note      string `json:"note,omitempty"`
}

// ListAuditRequest filters the audit log.
type ListAuditRequest struct {
	ActionType string    `json:"actionType,omitempty"`
	Round      int64     `json:"round,omitempty"`
	From       time.Time `json:"from,omitzero"`
	To         time.Time `json:"to,omitzero"`
	Limit      int       `json:"limit,omitempty"`
}

// AuditResponse carries audit entries, newest first.
type AuditResponse struct {
	Entries []AuditEntry `json:"entries"`
}
