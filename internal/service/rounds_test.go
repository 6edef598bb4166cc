package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/whisperchain/whisperchain/internal/errs"
	"github.com/whisperchain/whisperchain/internal/model"
)

func TestRounds_Lifecycle(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	admin := w.admin(t)
	w.register(t, "alice@wc.test", "sender", "")
	w.register(t, "bob@wc.test", "recipient", "")
	mod := w.moderator(t, admin, "mod@wc.test")

	_, _, err := w.rounds.Start(ctx, mod)
	require.ErrorIs(t, err, errs.ErrForbidden)

	_, err = w.rounds.Active(ctx, admin)
	require.ErrorIs(t, err, errs.ErrNoActiveRound)

	rd, issued, err := w.rounds.Start(ctx, admin)
	require.NoError(t, err)
	require.EqualValues(t, 1, rd.Number)
	require.Equal(t, 2, issued)

	_, _, err = w.rounds.Start(ctx, admin)
	require.ErrorIs(t, err, errs.ErrRoundActive)

	active, err := w.rounds.Active(ctx, mod)
	require.NoError(t, err)
	require.EqualValues(t, 1, active.Number)

	ended, err := w.rounds.End(ctx, admin)
	require.NoError(t, err)
	require.False(t, ended.IsActive)

	_, err = w.rounds.End(ctx, admin)
	require.ErrorIs(t, err, errs.ErrNoActiveRound)

	started := w.audit.byAction(model.AuditRoundStarted)
	require.Len(t, started, 1)
	require.Equal(t, 2, started[0].Metadata["tokensIssued"])
	require.Len(t, w.audit.byAction(model.AuditRoundEnded), 1)
}

func TestRounds_ConcurrentStart(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	admin := w.admin(t)
	w.register(t, "alice@wc.test", "sender", "")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := w.rounds.Start(ctx, admin); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)
}
