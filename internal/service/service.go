// Package service implements the WhisperChain+ operations on top of the
// repositories. Every exported method takes the authenticated actor, checks its
// permission, runs the pure rules inside a repository transaction and records the
// audit trail.
package service

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/whisperchain/whisperchain/internal/model"
)

// Auditor appends audit entries. Failures are handled by the implementation.
type Auditor interface {
	Record(ctx context.Context, e model.AuditEntry)
}

// Clock returns the current time; tests pin it.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

func newID() (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
