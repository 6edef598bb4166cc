package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/whisperchain/whisperchain/internal/crypto"
	"github.com/whisperchain/whisperchain/internal/errs"
	"github.com/whisperchain/whisperchain/internal/metrics"
	"github.com/whisperchain/whisperchain/internal/model"
	"github.com/whisperchain/whisperchain/internal/repository"
	"github.com/whisperchain/whisperchain/internal/rules"
)

// RoundService starts and ends rounds.
type RoundService struct {
	rounds repository.RoundRepository
	audit  Auditor
	log    *zap.Logger
	Clock  Clock
}

// NewRoundService constructs a RoundService.
func NewRoundService(rounds repository.RoundRepository, audit Auditor, log *zap.Logger) *RoundService {
	return &RoundService{rounds: rounds, audit: audit, log: log.With(zap.String("component", "rounds"))}
}

// Start opens the next round and issues one token per eligible user.
func (s *RoundService) Start(ctx context.Context, actor model.Actor) (model.Round, int, error) {
	if err := rules.Authorize(actor, model.PermManageRounds); err != nil {
		return model.Round{}, 0, err
	}
	rd, tokens, err := s.rounds.Start(ctx, actor.UID, s.Clock.now(), crypto.NewToken)
	if err != nil {
		return model.Round{}, 0, err
	}

	metrics.RoundsStarted.Inc()
	metrics.TokensIssued.Add(float64(len(tokens)))
	s.log.Info("round started", zap.Int64("round", rd.Number), zap.Int("tokens", len(tokens)))
	s.audit.Record(ctx, model.AuditEntry{
		ActionType: model.AuditRoundStarted,
		ActorRole:  actor.Role,
		ActorUID:   actor.UID,
		Round:      rd.Number,
		Metadata:   map[string]any{"tokensIssued": len(tokens)},
	})
	return rd, len(tokens), nil
}

// End closes the active round. Unused tokens of that round can no longer be spent.
func (s *RoundService) End(ctx context.Context, actor model.Actor) (model.Round, error) {
	if err := rules.Authorize(actor, model.PermManageRounds); err != nil {
		return model.Round{}, err
	}
	rd, err := s.rounds.End(ctx, s.Clock.now())
	if err != nil {
		return model.Round{}, err
	}
	s.log.Info("round ended", zap.Int64("round", rd.Number))
	s.audit.Record(ctx, model.AuditEntry{
		ActionType: model.AuditRoundEnded,
		ActorRole:  actor.Role,
		ActorUID:   actor.UID,
		Round:      rd.Number,
	})
	return rd, nil
}

// Active returns the active round.
func (s *RoundService) Active(ctx context.Context, actor model.Actor) (*model.Round, error) {
	if actor.UID == "" {
		return nil, errs.ErrUnauthorized
	}
	return s.rounds.Active(ctx)
}
