package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/whisperchain/whisperchain/internal/errs"
	"github.com/whisperchain/whisperchain/internal/model"
)

func TestRegister(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	_, _, rk := testKeys(t)

	tests := []struct {
		name  string
		email string
		role  string
		key   string
		kind  error
	}{
		{"bad email", "not-an-email", "sender", "", errs.ErrValidation},
		{"unknown role", "x@wc.test", "boss", "", errs.ErrValidation},
		{"admin not self-registrable", "x@wc.test", "admin", "", errs.ErrValidation},
		{"idle not self-registrable", "x@wc.test", "idle", "", errs.ErrValidation},
		{"bad key", "x@wc.test", "sender", "AAAA", errs.ErrValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := w.users.Register(ctx, tc.email, "X", tc.role, tc.key)
			require.ErrorIs(t, err, tc.kind)
		})
	}

	u, err := w.users.Register(ctx, "  Bob@WC.test ", "Bob", "recipient", rk.pub)
	require.NoError(t, err)
	require.Equal(t, "bob@wc.test", u.Email)
	require.Equal(t, model.RoleRecipient, u.Role)
	require.Equal(t, rk.pub, u.PublicKey)

	_, err = w.users.Register(ctx, "bob@wc.test", "Bob", "sender", "")
	require.ErrorIs(t, err, errs.ErrAlreadyExists)

	m, err := w.users.Register(ctx, "mod@wc.test", "Mod", "moderator", "")
	require.NoError(t, err)
	require.Equal(t, model.RoleIdle, m.Role)
	require.Equal(t, model.RoleModerator, m.RequestedRole)

	require.Len(t, w.audit.byAction(model.AuditUserCreated), 2)
}

func TestBootstrapAdmin_Once(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	admin := w.admin(t)
	require.Equal(t, model.RoleAdmin, admin.Role)

	_, created, err := w.users.BootstrapAdmin(ctx, "other@wc.test", "Other")
	require.NoError(t, err)
	require.False(t, created)
}

func TestAssignRole_AndModeratorLifecycle(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	admin := w.admin(t)
	alice := w.register(t, "alice@wc.test", "sender", "")
	m := w.register(t, "mod@wc.test", "moderator", "")

	pending, err := w.users.PendingUsers(ctx, admin)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, m.UID, pending[0].UID)

	require.ErrorIs(t, w.users.AssignRole(ctx, alice, m.UID, "moderator"), errs.ErrForbidden)
	require.ErrorIs(t, w.users.AssignRole(ctx, admin, m.UID, "admin"), errs.ErrValidation)
	require.ErrorIs(t, w.users.AssignRole(ctx, admin, m.UID, "root"), errs.ErrValidation)
	require.ErrorIs(t, w.users.AssignRole(ctx, admin, admin.UID, "sender"), errs.ErrValidation)
	require.ErrorIs(t, w.users.AssignRole(ctx, admin, "ghost", "sender"), errs.ErrNotFound)

	// reactivation requires a moderator past
	require.ErrorIs(t, w.users.ReactivateModerator(ctx, admin, m.UID), errs.ErrConflict)

	require.NoError(t, w.users.AssignRole(ctx, admin, m.UID, "moderator"))
	u, err := w.store.Users().GetByID(ctx, m.UID)
	require.NoError(t, err)
	require.Equal(t, model.RoleModerator, u.Role)
	require.Empty(t, u.RequestedRole)
	require.True(t, u.HadRole(model.RoleIdle))

	require.ErrorIs(t, w.users.MakeModeratorIdle(ctx, admin, alice.UID), errs.ErrConflict)
	require.NoError(t, w.users.MakeModeratorIdle(ctx, admin, m.UID))
	require.NoError(t, w.users.ReactivateModerator(ctx, admin, m.UID))

	u, err = w.store.Users().GetByID(ctx, m.UID)
	require.NoError(t, err)
	require.Equal(t, model.RoleModerator, u.Role)
	require.Len(t, u.RoleHistory, 3)
	require.Equal(t, admin.UID, u.RoleHistory[2].ChangedBy)

	changes := w.audit.byAction(model.AuditUserRoleChanged)
	require.Len(t, changes, 3)
	require.Equal(t, "idle", changes[0].Metadata["from"])
	require.Equal(t, "moderator", changes[0].Metadata["to"])
}

func TestPublicKeys(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	_, _, rk := testKeys(t)
	alice := w.register(t, "alice@wc.test", "sender", "")
	bob := w.register(t, "bob@wc.test", "recipient", "")

	_, err := w.users.GetPublicKey(ctx, alice, bob.UID)
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.ErrorIs(t, w.users.SetPublicKey(ctx, bob, ""), errs.ErrValidation)
	require.NoError(t, w.users.SetPublicKey(ctx, bob, rk.pub))

	key, err := w.users.GetPublicKey(ctx, alice, bob.UID)
	require.NoError(t, err)
	require.Equal(t, rk.pub, key)

	_, err = w.users.GetPublicKey(ctx, model.Actor{}, bob.UID)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	p, err := w.users.Profile(ctx, bob)
	require.NoError(t, err)
	require.Equal(t, "bob@wc.test", p.Email)
}
