package service

import (
	"context"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/whisperchain/whisperchain/internal/crypto/chunked"
	"github.com/whisperchain/whisperchain/internal/errs"
	"github.com/whisperchain/whisperchain/internal/model"
	"github.com/whisperchain/whisperchain/internal/repository"
	"github.com/whisperchain/whisperchain/internal/rules"
)

// UserService manages accounts, roles and public keys.
type UserService struct {
	users repository.UserRepository
	audit Auditor
	log   *zap.Logger
	Clock Clock
}

// NewUserService constructs a UserService.
func NewUserService(users repository.UserRepository, audit Auditor, log *zap.Logger) *UserService {
	return &UserService{users: users, audit: audit, log: log.With(zap.String("component", "users"))}
}

func normalizeEmail(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return "", errs.Validation("invalid email address")
	}
	return s, nil
}

func checkPublicKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", nil
	}
	if _, err := chunked.ParsePublicKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// Register creates an account. Senders and recipients are active at once; a
// moderator request leaves the account idle until an admin assigns the role.
func (s *UserService) Register(ctx context.Context, email, name, requestedRole, publicKey string) (*model.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	role, err := model.ParseRole(strings.TrimSpace(requestedRole))
	if err != nil {
		return nil, err
	}
	if !role.SelfRegistrable() {
		return nil, errs.Validation("role cannot be requested at registration")
	}
	key, err := checkPublicKey(publicKey)
	if err != nil {
		return nil, err
	}
	uid, err := newID()
	if err != nil {
		return nil, err
	}

	u := &model.User{
		UID:       uid,
		Email:     email,
		Name:      strings.TrimSpace(name),
		Role:      role,
		PublicKey: key,
		CreatedAt: s.Clock.now(),
	}
	if role.NeedsApproval() {
		u.Role, u.RequestedRole = model.RoleIdle, role
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, model.AuditEntry{
		ActionType: model.AuditUserCreated,
		ActorRole:  u.Role,
		ActorUID:   u.UID,
		TargetID:   u.UID,
		Metadata:   map[string]any{"role": string(u.Role), "requestedRole": string(u.RequestedRole)},
	})
	return u, nil
}

// BootstrapAdmin creates the first admin when none exists. It reports whether an
// account was created.
func (s *UserService) BootstrapAdmin(ctx context.Context, email, name string) (*model.User, bool, error) {
	n, err := s.users.CountByRole(ctx, model.RoleAdmin)
	if err != nil {
		return nil, false, err
	}
	if n > 0 {
		return nil, false, nil
	}
	email, err = normalizeEmail(email)
	if err != nil {
		return nil, false, err
	}
	uid, err := newID()
	if err != nil {
		return nil, false, err
	}
	u := &model.User{UID: uid, Email: email, Name: name, Role: model.RoleAdmin, CreatedAt: s.Clock.now()}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, false, err
	}
	s.log.Info("bootstrap admin created", zap.String("uid", u.UID))
	s.audit.Record(ctx, model.AuditEntry{
		ActionType: model.AuditUserCreated,
		ActorRole:  model.RoleAdmin,
		TargetID:   u.UID,
		Metadata:   map[string]any{"role": string(model.RoleAdmin), "bootstrap": true},
	})
	return u, true, nil
}

// Profile returns the actor's account.
func (s *UserService) Profile(ctx context.Context, actor model.Actor) (*model.User, error) {
	if actor.UID == "" {
		return nil, errs.ErrUnauthorized
	}
	return s.users.GetByID(ctx, actor.UID)
}

// SetPublicKey replaces the actor's messaging key.
func (s *UserService) SetPublicKey(ctx context.Context, actor model.Actor, key string) error {
	if actor.UID == "" {
		return errs.ErrUnauthorized
	}
	key, err := checkPublicKey(key)
	if err != nil {
		return err
	}
	if key == "" {
		return errs.Validation("public key is required")
	}
	return s.users.SetPublicKey(ctx, actor.UID, key)
}

// GetPublicKey returns the messaging key of uid.
func (s *UserService) GetPublicKey(ctx context.Context, actor model.Actor, uid string) (string, error) {
	if actor.UID == "" {
		return "", errs.ErrUnauthorized
	}
	u, err := s.users.GetByID(ctx, uid)
	if err != nil {
		return "", err
	}
	if u.PublicKey == "" {
		return "", errs.New(errs.ErrNotFound, "public key not registered")
	}
	return u.PublicKey, nil
}

// AssignRole sets the role of uid. The admin role is never assignable.
func (s *UserService) AssignRole(ctx context.Context, actor model.Actor, uid, role string) error {
	if err := rules.Authorize(actor, model.PermManageUsers); err != nil {
		return err
	}
	r, err := model.ParseRole(strings.TrimSpace(role))
	if err != nil {
		return err
	}
	if !r.Assignable() {
		return errs.Validation("role cannot be assigned")
	}
	if uid == actor.UID {
		return errs.Validation("cannot change own role")
	}
	return s.changeRole(ctx, actor, uid, r, nil)
}

// PendingUsers lists idle accounts waiting for a requested role.
func (s *UserService) PendingUsers(ctx context.Context, actor model.Actor) ([]model.User, error) {
	if err := rules.Authorize(actor, model.PermManageUsers); err != nil {
		return nil, err
	}
	return s.users.ListPending(ctx)
}

// MakeModeratorIdle demotes a moderator to idle, keeping the role in history.
func (s *UserService) MakeModeratorIdle(ctx context.Context, actor model.Actor, uid string) error {
	if err := rules.Authorize(actor, model.PermManageUsers); err != nil {
		return err
	}
	if uid == actor.UID {
		return errs.Validation("cannot change own role")
	}
	return s.changeRole(ctx, actor, uid, model.RoleIdle, func(u *model.User) error {
		if u.Role != model.RoleModerator {
			return errs.New(errs.ErrConflict, "user is not a moderator")
		}
		return nil
	})
}

// ReactivateModerator restores the moderator role to an idle former moderator.
func (s *UserService) ReactivateModerator(ctx context.Context, actor model.Actor, uid string) error {
	if err := rules.Authorize(actor, model.PermManageUsers); err != nil {
		return err
	}
	return s.changeRole(ctx, actor, uid, model.RoleModerator, func(u *model.User) error {
		if u.Role != model.RoleIdle || !u.HadRole(model.RoleModerator) {
			return errs.New(errs.ErrConflict, "user is not an idle former moderator")
		}
		return nil
	})
}

func (s *UserService) changeRole(
	ctx context.Context, actor model.Actor, uid string, to model.Role, check func(*model.User) error,
) error {
	u, err := s.users.GetByID(ctx, uid)
	if err != nil {
		return err
	}
	if u.Role == model.RoleAdmin {
		return errs.Forbidden("admin accounts cannot be changed")
	}
	if check != nil {
		if err := check(u); err != nil {
			return err
		}
	}
	change := model.RoleChange{Role: u.Role, ChangedAt: s.Clock.now(), ChangedBy: actor.UID}
	if err := s.users.UpdateRole(ctx, uid, to, change); err != nil {
		return err
	}
	s.audit.Record(ctx, model.AuditEntry{
		ActionType: model.AuditUserRoleChanged,
		ActorRole:  actor.Role,
		ActorUID:   actor.UID,
		TargetID:   uid,
		Metadata:   map[string]any{"from": string(u.Role), "to": string(to)},
	})
	return nil
}
