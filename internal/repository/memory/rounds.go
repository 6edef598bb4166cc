package memory

import (
	"context"
	"time"

	"github.com/whisperchain/whisperchain/internal/errs"
	"github.com/whisperchain/whisperchain/internal/model"
	"github.com/whisperchain/whisperchain/internal/rules"
)

type roundRepo struct{ s *Store }

func (r *roundRepo) Active(context.Context) (*model.Round, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if rd := r.s.activeRound(); rd != nil {
		return rd, nil
	}
	return nil, errs.ErrNoActiveRound
}

func (r *roundRepo) Start(
	_ context.Context, createdBy string, at time.Time, newToken func() (string, error),
) (model.Round, []model.AuthToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.activeRound() != nil {
		return model.Round{}, nil, errs.ErrRoundActive
	}

	var last int64
	for _, rd := range r.s.rounds {
		if rd.Number > last {
			last = rd.Number
		}
	}
	round := model.Round{Number: rules.NextRoundNumber(last), IsActive: true, StartedAt: at, CreatedBy: createdBy}

	// Tokens are staged first so a generator failure leaves no trace.
	var tokens []model.AuthToken
	for _, uid := range sortedUIDs(r.s.users) {
		if !rules.TokenEligible(r.s.users[uid]) {
			continue
		}
		tok, err := newToken()
		if err != nil {
			return model.Round{}, nil, err
		}
		if _, dup := r.s.tokens[tok]; dup {
			return model.Round{}, nil, errs.ErrAlreadyExists
		}
		tokens = append(tokens, model.AuthToken{UID: uid, Token: tok, Round: round.Number, IssuedAt: at})
	}

	r.s.rounds = append(r.s.rounds, round)
	for _, t := range tokens {
		r.s.tokens[t.Token] = t
	}
	return round, tokens, nil
}

func (r *roundRepo) End(_ context.Context, at time.Time) (model.Round, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.rounds {
		if r.s.rounds[i].IsActive {
			r.s.rounds[i].IsActive = false
			r.s.rounds[i].EndedAt = at
			return r.s.rounds[i], nil
		}
	}
	return model.Round{}, errs.ErrNoActiveRound
}

type tokenRepo struct{ s *Store }

func (r *tokenRepo) Get(_ context.Context, token string) (*model.AuthToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tokens[token]
	if !ok {
		return nil, errs.ErrTokenNotFound
	}
	return &t, nil
}

func (r *tokenRepo) ForUser(_ context.Context, uid string, round int64) (*model.AuthToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.tokens {
		if t.UID == uid && t.Round == round {
			return &t, nil
		}
	}
	return nil, errs.ErrTokenNotFound
}

func (r *tokenRepo) Freeze(_ context.Context, token, moderatorUID string, at time.Time) (*model.AuthToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tokens[token]
	if !ok {
		return nil, errs.ErrTokenNotFound
	}
	if t.Frozen.Status {
		return nil, errs.ErrTokenFrozen
	}
	t.Frozen = model.FreezeInfo{Status: true, Timestamp: at, ModeratorID: moderatorUID}
	r.s.tokens[token] = t
	return &t, nil
}
