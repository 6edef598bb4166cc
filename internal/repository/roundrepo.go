package repository

import (
	"context"
	"time"

	"github.com/whisperchain/whisperchain/internal/model"
)

// RoundRepository owns rounds and the tokens issued for them.
type RoundRepository interface {
	// Active returns the active round or errs.ErrNoActiveRound.
	Active(ctx context.Context) (*model.Round, error)
	// Start atomically creates round last+1 and issues one token per eligible user.
	// A concurrent or existing active round yields errs.ErrRoundActive.
	Start(ctx context.Context, createdBy string, at time.Time, newToken func() (string, error)) (model.Round, []model.AuthToken, error)
	// End deactivates the active round or returns errs.ErrNoActiveRound.
	End(ctx context.Context, at time.Time) (model.Round, error)
}

// TokenRepository reads and freezes sending tokens.
type TokenRepository interface {
	// Get loads a token or returns errs.ErrTokenNotFound.
	Get(ctx context.Context, token string) (*model.AuthToken, error)
	// ForUser returns the token uid holds in round.
	ForUser(ctx context.Context, uid string, round int64) (*model.AuthToken, error)
	// Freeze marks the token frozen; an already frozen token yields errs.ErrTokenFrozen.
	Freeze(ctx context.Context, token, moderatorUID string, at time.Time) (*model.AuthToken, error)
}
