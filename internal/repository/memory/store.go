// Package memory implements the repository interfaces in process memory. It is
// used by tests and by the server when no database is configured. A single mutex
// guards all state so each repository call is atomic, mirroring the row locks of
// the PostgreSQL backend.
package memory

import (
	"sort"
	"sync"

	"github.com/whisperchain/whisperchain/internal/model"
	"github.com/whisperchain/whisperchain/internal/repository"
)

type mailboxEntry struct {
	messageID string
	box       model.Box
}

// Store holds every collection.
type Store struct {
	mu sync.Mutex

	users    map[string]model.User
	byEmail  map[string]string
	rounds   []model.Round
	tokens   map[string]model.AuthToken
	messages map[string]model.Message
	mailbox  map[string][]mailboxEntry
	flagged  []model.FlaggedMessage
	audit    []model.AuditEntry
	codes    []model.VerificationCode
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:    map[string]model.User{},
		byEmail:  map[string]string{},
		tokens:   map[string]model.AuthToken{},
		messages: map[string]model.Message{},
		mailbox:  map[string][]mailboxEntry{},
	}
}

// Users returns the user repository view.
func (s *Store) Users() repository.UserRepository { return &userRepo{s} }

// Rounds returns the round repository view.
func (s *Store) Rounds() repository.RoundRepository { return &roundRepo{s} }

// Tokens returns the token repository view.
func (s *Store) Tokens() repository.TokenRepository { return &tokenRepo{s} }

// Messages returns the message repository view.
func (s *Store) Messages() repository.MessageRepository { return &messageRepo{s} }

// Flags returns the moderation queue view.
func (s *Store) Flags() repository.FlagRepository { return &flagRepo{s} }

// Audit returns the audit log view.
func (s *Store) Audit() repository.AuditRepository { return &auditRepo{s} }

// Verification returns the verification code view.
func (s *Store) Verification() repository.VerificationRepository { return &verificationRepo{s} }

func cloneUser(u model.User) *model.User {
	u.RoleHistory = append([]model.RoleChange(nil), u.RoleHistory...)
	return &u
}

func cloneFlagged(f model.FlaggedMessage) model.FlaggedMessage {
	f.Tags = append([]string{}, f.Tags...)
	return f
}

// activeRound returns the active round; callers hold mu.
func (s *Store) activeRound() *model.Round {
	for i := range s.rounds {
		if s.rounds[i].IsActive {
			rd := s.rounds[i]
			return &rd
		}
	}
	return nil
}

// tokenOwner resolves who spent the token of message id; callers hold mu.
func (s *Store) tokenOwner(messageID string) string {
	m, ok := s.messages[messageID]
	if !ok {
		return ""
	}
	return s.tokens[m.SenderToken].UID
}

func sortedUIDs(m map[string]model.User) []string {
	out := make([]string, 0, len(m))
	for uid := range m {
		out = append(out, uid)
	}
	sort.Strings(out)
	return out
}
