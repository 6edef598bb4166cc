// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesSent counts successfully stored messages.
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whisperchain_messages_sent_total",
		Help: "Messages accepted and stored",
	})

	// SendRejected counts rejected sends by error kind.
	SendRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whisperchain_send_rejected_total",
		Help: "Send attempts rejected, by error kind",
	}, []string{"kind"})

	// RoundsStarted counts started rounds.
	RoundsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whisperchain_rounds_started_total",
		Help: "Rounds started",
	})

	// TokensIssued counts sending tokens issued at round start.
	TokensIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whisperchain_tokens_issued_total",
		Help: "Sending tokens issued",
	})

	// ModerationActions counts moderation decisions by action.
	ModerationActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whisperchain_moderation_actions_total",
		Help: "Moderation decisions applied, by action",
	}, []string{"action"})

	// MediationFailures counts flagged items that could not be re-encrypted for a moderator.
	MediationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whisperchain_mediation_failures_total",
		Help: "Flagged messages whose server copy could not be mediated",
	})

	// AuditWriteFailures counts audit entries dropped after retries.
	AuditWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whisperchain_audit_write_failures_total",
		Help: "Audit entries that could not be persisted",
	})

	// VerificationEmails counts verification code deliveries by outcome.
	VerificationEmails = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whisperchain_verification_emails_total",
		Help: "Verification code deliveries, by result",
	}, []string{"result"})
)
