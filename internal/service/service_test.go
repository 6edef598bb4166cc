package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/whisperchain/whisperchain/internal/crypto/chunked"
	"github.com/whisperchain/whisperchain/internal/mediation"
	"github.com/whisperchain/whisperchain/internal/model"
	"github.com/whisperchain/whisperchain/internal/repository/memory"
)

// recAuditor keeps every entry in memory.
type recAuditor struct {
	mu      sync.Mutex
	entries []model.AuditEntry
}

func (a *recAuditor) Record(_ context.Context, e model.AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *recAuditor) byAction(t model.ActionType) []model.AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []model.AuditEntry
	for _, e := range a.entries {
		if e.ActionType == t {
			out = append(out, e)
		}
	}
	return out
}

type keyPair struct{ pub, priv string }

var (
	keysOnce            sync.Once
	serverKeys, modKeys keyPair
	recipientKeys       keyPair
)

func testKeys(t *testing.T) (server, moderator, recipient keyPair) {
	t.Helper()
	keysOnce.Do(func() {
		for _, p := range []*keyPair{&serverKeys, &modKeys, &recipientKeys} {
			pub, priv, err := chunked.GenerateKeyPair(1024)
			if err != nil {
				panic(err)
			}
			*p = keyPair{pub, priv}
		}
	})
	return serverKeys, modKeys, recipientKeys
}

// world wires every service over one memory store.
type world struct {
	store *memory.Store
	audit *recAuditor
	now   time.Time

	users  *UserService
	rounds *RoundService
	msgs   *MessageService
	mod    *ModerationService
}

func newWorld(t *testing.T) *world {
	t.Helper()
	log := zaptest.NewLogger(t)
	srv, _, _ := testKeys(t)
	kr, err := mediation.LoadKeyring(srv.pub, srv.priv, nil)
	require.NoError(t, err)

	w := &world{store: memory.New(), audit: &recAuditor{}, now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	clock := Clock(func() time.Time { return w.now })
	s := w.store

	w.users = NewUserService(s.Users(), w.audit, log)
	w.users.Clock = clock
	w.rounds = NewRoundService(s.Rounds(), w.audit, log)
	w.rounds.Clock = clock
	w.msgs = NewMessageService(s.Rounds(), s.Tokens(), s.Messages(), s.Flags(), w.audit, log)
	w.msgs.Clock = clock
	w.mod = NewModerationService(s.Users(), s.Tokens(), s.Flags(), mediation.NewMediator(kr, log), w.audit, log)
	w.mod.Clock = clock
	return w
}

func actorOf(u *model.User) model.Actor {
	return model.Actor{UID: u.UID, Role: u.Role, Suspended: u.IsSuspended}
}

// refresh reloads the actor the way the transport does on every request.
func (w *world) refresh(t *testing.T, a model.Actor) model.Actor {
	t.Helper()
	u, err := w.store.Users().GetByID(context.Background(), a.UID)
	require.NoError(t, err)
	return actorOf(u)
}

func (w *world) admin(t *testing.T) model.Actor {
	t.Helper()
	u, created, err := w.users.BootstrapAdmin(context.Background(), "admin@wc.test", "Admin")
	require.NoError(t, err)
	require.True(t, created)
	return actorOf(u)
}

func (w *world) register(t *testing.T, email, role, key string) model.Actor {
	t.Helper()
	u, err := w.users.Register(context.Background(), email, email, role, key)
	require.NoError(t, err)
	return actorOf(u)
}

func (w *world) moderator(t *testing.T, admin model.Actor, email string) model.Actor {
	t.Helper()
	ctx := context.Background()
	m := w.register(t, email, "moderator", "")
	require.NoError(t, w.users.AssignRole(ctx, admin, m.UID, "moderator"))
	return w.refresh(t, m)
}
