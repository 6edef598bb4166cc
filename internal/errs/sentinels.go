// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Error kinds. Every error produced by the domain layers wraps exactly one of these,
// so transports can map them with errors.Is.
var (
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation")

	// ErrUnauthorized indicates a missing or invalid session.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the caller's role does not permit the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a state conflict (used token, active round, duplicate id).
	ErrConflict = errors.New("conflict")

	// ErrRateLimited indicates a temporary lockout or cooldown.
	ErrRateLimited = errors.New("rate limited")

	// ErrCrypto indicates a decryption or encryption failure.
	ErrCrypto = errors.New("crypto")

	// ErrConfiguration indicates the server is missing required setup.
	ErrConfiguration = errors.New("configuration")
)

// Specific errors with stable messages.
var (
	ErrTokenNotFound        = New(ErrNotFound, "token not found")
	ErrTokenUsed            = New(ErrConflict, "token already used")
	ErrTokenFrozen          = New(ErrConflict, "token is frozen")
	ErrRoundActive          = New(ErrConflict, "a round is already active")
	ErrNoActiveRound        = New(ErrConflict, "no active round")
	ErrRoundMismatch        = New(ErrConflict, "token does not belong to the active round")
	ErrRecipientNotFound    = New(ErrNotFound, "recipient not found")
	ErrUserNotFound         = New(ErrNotFound, "user not found")
	ErrMessageNotFound      = New(ErrNotFound, "message not found")
	ErrFlaggedNotFound      = New(ErrNotFound, "flagged message not found or already moderated")
	ErrAlreadyFlagged       = New(ErrConflict, "message already flagged")
	ErrAlreadyExists        = New(ErrConflict, "already exists")
	ErrInvalidAction        = New(ErrValidation, "invalid moderation action")
	ErrModeratorKeyMissing  = New(ErrValidation, "moderator public key not registered")
	ErrDecryptionFailed     = New(ErrCrypto, "decryption failed")
	ErrServerKeyUnavailable = New(ErrConfiguration, "server key unavailable")
)

// Error is a message bound to one of the kinds above.
type Error struct {
	kind error
	msg  string
}

// New returns an error of the given kind carrying msg.
func New(kind error, msg string) *Error { return &Error{kind: kind, msg: msg} }

func (e *Error) Error() string { return e.msg }

// Unwrap exposes the kind.
func (e *Error) Unwrap() error { return e.kind }

// Validation is shorthand for New(ErrValidation, msg).
func Validation(msg string) error { return New(ErrValidation, msg) }

// Forbidden is shorthand for New(ErrForbidden, msg).
func Forbidden(msg string) error { return New(ErrForbidden, msg) }

var kinds = []error{
	ErrValidation, ErrUnauthorized, ErrForbidden, ErrNotFound,
	ErrConflict, ErrRateLimited, ErrCrypto, ErrConfiguration,
}

// KindOf returns the kind err wraps, or nil when err is not a domain error.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Message returns the user-facing text of err: the innermost *Error message when one
// exists, otherwise the kind name.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.msg
	}
	if k := KindOf(err); k != nil {
		return k.Error()
	}
	return "internal"
}
