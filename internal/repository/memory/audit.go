package memory

import (
	"context"
	"sort"
	"time"

	"github.com/whisperchain/whisperchain/internal/errs"
	"github.com/whisperchain/whisperchain/internal/model"
)

type auditRepo struct{ s *Store }

func (r *auditRepo) Append(_ context.Context, e model.AuditEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, x := range r.s.audit {
		if x.ID == e.ID {
			return errs.ErrAlreadyExists
		}
	}
	r.s.audit = append(r.s.audit, e.Clone())
	return nil
}

func (r *auditRepo) List(_ context.Context, f model.AuditFilter) ([]model.AuditEntry, error) {
	r.s.mu.Lock()
	var out []model.AuditEntry
	for _, e := range r.s.audit {
		switch {
		case f.ActionType != "" && e.ActionType != f.ActionType,
			f.Round != 0 && e.Round != f.Round,
			!f.From.IsZero() && e.Timestamp.Before(f.From),
			!f.To.IsZero() && e.Timestamp.After(f.To):
			continue
		}
		out = append(out, e.Clone())
	}
	r.s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

type verificationRepo struct{ s *Store }

func (r *verificationRepo) Create(_ context.Context, c model.VerificationCode) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.codes = append(r.s.codes, c)
	return nil
}

func (r *verificationRepo) LatestUnused(_ context.Context, email string, since time.Time) (*model.VerificationCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := len(r.s.codes) - 1; i >= 0; i-- {
		c := r.s.codes[i]
		if c.Email == email && !c.IsUsed && c.CreatedAt.After(since) {
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (r *verificationRepo) MarkUsed(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.codes {
		if r.s.codes[i].ID != id {
			continue
		}
		if r.s.codes[i].IsUsed {
			return errs.New(errs.ErrConflict, "verification code already used")
		}
		r.s.codes[i].IsUsed = true
		return nil
	}
	return errs.New(errs.ErrNotFound, "verification code not found")
}
