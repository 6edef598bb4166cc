// Package audit writes and reads the append-only audit trail.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/whisperchain/whisperchain/internal/errs"
	"github.com/whisperchain/whisperchain/internal/metrics"
	"github.com/whisperchain/whisperchain/internal/model"
	"github.com/whisperchain/whisperchain/internal/repository"
	"github.com/whisperchain/whisperchain/internal/rules"
)

// Recorder appends audit entries. A write that still fails after the configured
// retries is logged and counted but never returned to the caller: the primary
// action has already succeeded by the time it is audited.
type Recorder struct {
	repo    repository.AuditRepository
	log     *zap.Logger
	retries uint64
	base    time.Duration
	now     func() time.Time
}

// NewRecorder constructs a Recorder that retries each write up to retries times.
func NewRecorder(repo repository.AuditRepository, log *zap.Logger, retries uint64) *Recorder {
	return &Recorder{
		repo:    repo,
		log:     log.With(zap.String("component", "audit")),
		retries: retries,
		base:    50 * time.Millisecond,
		now:     time.Now,
	}
}

// Record stamps e with an id and timestamp and appends it.
func (r *Recorder) Record(ctx context.Context, e model.AuditEntry) {
	if e.ID == "" {
		id, err := uuid.NewV4()
		if err != nil {
			r.fail(e, err)
			return
		}
		e.ID = id.String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now().UTC()
	}

	// The entry outlives a cancelled request.
	ctx = context.WithoutCancel(ctx)
	b := retry.WithMaxRetries(r.retries, retry.NewExponential(r.base))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		err := r.repo.Append(ctx, e)
		switch {
		case err == nil, errors.Is(err, errs.ErrAlreadyExists):
			// A duplicate id means an earlier attempt landed.
			return nil
		default:
			return retry.RetryableError(err)
		}
	})
	if err != nil {
		r.fail(e, err)
	}
}

func (r *Recorder) fail(e model.AuditEntry, err error) {
	metrics.AuditWriteFailures.Inc()
	r.log.Error("audit write failed",
		zap.String("action", string(e.ActionType)),
		zap.String("target", e.TargetID),
		zap.Error(err),
	)
}

// List returns entries for actors allowed to read the trail.
func (r *Recorder) List(ctx context.Context, actor model.Actor, f model.AuditFilter) ([]model.AuditEntry, error) {
	if err := rules.Authorize(actor, model.PermReadAudit); err != nil {
		return nil, err
	}
	return r.repo.List(ctx, rules.NormalizeAuditFilter(f))
}
