package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/whisperchain/whisperchain/internal/errs"
	"github.com/whisperchain/whisperchain/internal/metrics"
	"github.com/whisperchain/whisperchain/internal/model"
	"github.com/whisperchain/whisperchain/internal/repository/memory"
)

// flakyRepo fails the first n appends.
type flakyRepo struct {
	failures int
	calls    int
	got      []model.AuditEntry
}

func (f *flakyRepo) Append(_ context.Context, e model.AuditEntry) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("db down")
	}
	f.got = append(f.got, e)
	return nil
}

func (f *flakyRepo) List(context.Context, model.AuditFilter) ([]model.AuditEntry, error) {
	return f.got, nil
}

func newRecorder(t *testing.T, repo *flakyRepo, retries uint64) *Recorder {
	r := NewRecorder(repo, zaptest.NewLogger(t), retries)
	r.base = time.Millisecond
	return r
}

func TestRecord_StampsAndRetries(t *testing.T) {
	repo := &flakyRepo{failures: 2}
	r := newRecorder(t, repo, 3)

	r.Record(context.Background(), model.AuditEntry{ActionType: model.AuditMessageSent, TargetID: "m1"})
	require.Equal(t, 3, repo.calls)
	require.Len(t, repo.got, 1)
	require.NotEmpty(t, repo.got[0].ID)
	require.False(t, repo.got[0].Timestamp.IsZero())
}

func TestRecord_GivesUpWithoutFailingCaller(t *testing.T) {
	repo := &flakyRepo{failures: 100}
	r := newRecorder(t, repo, 2)
	before := testutil.ToFloat64(metrics.AuditWriteFailures)

	r.Record(context.Background(), model.AuditEntry{ActionType: model.AuditRoundStarted})
	require.Equal(t, 3, repo.calls)
	require.Empty(t, repo.got)
	require.Equal(t, before+1, testutil.ToFloat64(metrics.AuditWriteFailures))
}

func TestRecord_SurvivesCancelledRequest(t *testing.T) {
	repo := &flakyRepo{}
	r := newRecorder(t, repo, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r.Record(ctx, model.AuditEntry{ActionType: model.AuditRoundEnded})
	require.Len(t, repo.got, 1)
}

func TestList_RequiresAuditPermission(t *testing.T) {
	store := memory.New()
	r := NewRecorder(store.Audit(), zaptest.NewLogger(t), 0)
	ctx := context.Background()
	r.Record(ctx, model.AuditEntry{ActionType: model.AuditRoundStarted, ActorRole: model.RoleAdmin})

	_, err := r.List(ctx, model.Actor{UID: "s", Role: model.RoleSender}, model.AuditFilter{})
	require.ErrorIs(t, err, errs.ErrForbidden)

	got, err := r.List(ctx, model.Actor{UID: "m", Role: model.RoleModerator}, model.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
}
