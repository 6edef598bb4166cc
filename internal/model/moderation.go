package model

import (
	"fmt"
	"time"

	"github.com/whisperchain/whisperchain/internal/errs"
)

// ModerationStatus is the lifecycle state of a flagged message.
type ModerationStatus string

// Statuses. Transitions only leave pending.
const (
	StatusPending   ModerationStatus = "pending"
	StatusApproved  ModerationStatus = "approved"
	StatusRejected  ModerationStatus = "rejected"
	StatusDismissed ModerationStatus = "dismissed"
)

// ParseStatus validates s; empty means pending.
func ParseStatus(s string) (ModerationStatus, error) {
	switch st := ModerationStatus(s); st {
	case "":
		return StatusPending, nil
	case StatusPending, StatusApproved, StatusRejected, StatusDismissed:
		return st, nil
	default:
		return "", errs.Validation(fmt.Sprintf("unknown moderation status %q", s))
	}
}

// ModerationAction is a moderator decision.
type ModerationAction string

// Actions.
const (
	ActionApprove       ModerationAction = "approve"
	ActionReject        ModerationAction = "reject"
	ActionSuspendSender ModerationAction = "suspend_sender"
)

// Severity grades a flag.
type Severity string

// Severities.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity validates s; empty means medium.
func ParseSeverity(s string) (Severity, error) {
	switch sv := Severity(s); sv {
	case "":
		return SeverityMedium, nil
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return sv, nil
	default:
		return "", errs.Validation(fmt.Sprintf("unknown severity %q", s))
	}
}

// Envelope describes how the server copy of a flagged message was produced.
type Envelope string

// Envelopes. Legacy copies may be wrapped twice under the server key.
const (
	EnvelopeLegacy Envelope = "legacy"
	EnvelopeV1     Envelope = "v1"
)

// ParseEnvelope validates s; empty means v1. Legacy copies must say so explicitly.
func ParseEnvelope(s string) (Envelope, error) {
	switch e := Envelope(s); e {
	case "":
		return EnvelopeV1, nil
	case EnvelopeLegacy, EnvelopeV1:
		return e, nil
	default:
		return "", errs.Validation(fmt.Sprintf("unknown envelope %q", s))
	}
}

// UnknownSender marks a flagged message whose sender could not be resolved at flag time.
const UnknownSender = "unknown"

// FlaggedMessage is a moderation queue entry. Entries are never deleted.
type FlaggedMessage struct {
	ID                     string
	OriginalMessageID      string
	SenderUID              string
	RecipientUID           string
	ServerEncryptedContent string // chunked RSA-OAEP, server key
	Envelope               Envelope
	FlaggedBy              string
	FlaggedAt              time.Time
	OriginalSentAt         time.Time
	Status                 ModerationStatus
	ModeratedBy            string
	ModeratedAt            time.Time
	Note                   string
	Reason                 string
	Severity               Severity
	Tags                   []string
}

// FlaggedView is a flagged message prepared for a specific moderator.
type FlaggedView struct {
	FlaggedMessage
	SenderToken      string
	ModeratorContent string // empty when mediation failed
	DecryptionFailed bool
}

// FlaggedFilter selects entries of the moderation queue.
type FlaggedFilter struct {
	Status ModerationStatus
	Limit  int
	Offset int
}

// Resolution is the outcome of a moderation decision applied to a pending entry.
type Resolution struct {
	Status      ModerationStatus
	ModeratedBy string
	ModeratedAt time.Time
	Note        string
	ClearFlag   bool   // unset the original message flag
	SuspendUID  string // non-empty when the sender must be suspended
}
