package memory

import (
	"context"
	"time"

	"github.com/whisperchain/whisperchain/internal/errs"
	"github.com/whisperchain/whisperchain/internal/model"
)

type userRepo struct{ s *Store }

func (r *userRepo) Create(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[u.UID]; ok {
		return errs.ErrAlreadyExists
	}
	if _, ok := r.s.byEmail[u.Email]; ok {
		return errs.ErrAlreadyExists
	}
	r.s.users[u.UID] = *cloneUser(*u)
	r.s.byEmail[u.Email] = u.UID
	return nil
}

func (r *userRepo) GetByID(_ context.Context, uid string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[uid]
	if !ok {
		return nil, errs.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	uid, ok := r.s.byEmail[email]
	r.s.mu.Unlock()
	if !ok {
		return nil, errs.ErrUserNotFound
	}
	return r.GetByID(ctx, uid)
}

func (r *userRepo) ListPending(context.Context) ([]model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.User
	for _, uid := range sortedUIDs(r.s.users) {
		u := r.s.users[uid]
		if u.Role == model.RoleIdle && u.RequestedRole != "" {
			out = append(out, *cloneUser(u))
		}
	}
	return out, nil
}

func (r *userRepo) CountByRole(_ context.Context, role model.Role) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, u := range r.s.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

// update applies fn to a stored user under the lock.
func (r *userRepo) update(uid string, fn func(u *model.User)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[uid]
	if !ok {
		return errs.ErrUserNotFound
	}
	fn(&u)
	r.s.users[uid] = u
	return nil
}

func (r *userRepo) UpdateRole(_ context.Context, uid string, role model.Role, change model.RoleChange) error {
	return r.update(uid, func(u *model.User) {
		u.RoleHistory = append(append([]model.RoleChange(nil), u.RoleHistory...), change)
		u.Role = role
		u.RequestedRole = ""
	})
}

func (r *userRepo) SetSuspended(_ context.Context, uid string, suspended bool) error {
	return r.update(uid, func(u *model.User) { u.IsSuspended = suspended })
}

func (r *userRepo) SetPublicKey(_ context.Context, uid, key string) error {
	return r.update(uid, func(u *model.User) { u.PublicKey = key })
}

func (r *userRepo) SetModeratorPublicKey(_ context.Context, uid, key string) error {
	return r.update(uid, func(u *model.User) { u.ModeratorPublicKey = key })
}

func (r *userRepo) MarkEmailVerified(_ context.Context, email string, at time.Time) error {
	r.s.mu.Lock()
	uid, ok := r.s.byEmail[email]
	r.s.mu.Unlock()
	if !ok {
		return errs.ErrUserNotFound
	}
	return r.update(uid, func(u *model.User) {
		u.IsEmailVerified = true
		u.EmailVerifiedAt = at
	})
}
