package mediation

import (
	"regexp"

	"github.com/awnumar/memguard"
	"go.uber.org/zap"

	"github.com/whisperchain/whisperchain/internal/crypto/chunked"
	"github.com/whisperchain/whisperchain/internal/metrics"
	"github.com/whisperchain/whisperchain/internal/model"
)

// Bounds of the legacy double-encryption heuristic (exclusive).
const (
	nestedMinLen = 50
	nestedMaxLen = 2000
)

var base64Alphabet = regexp.MustCompile(`^[A-Za-z0-9+/=]+$`)

// looksNested reports whether a first-pass plaintext is itself a server ciphertext.
func looksNested(b []byte) bool {
	return len(b) > nestedMinLen && len(b) < nestedMaxLen && base64Alphabet.Match(b)
}

// Mediator re-encrypts server copies of flagged messages for moderators.
type Mediator struct {
	keys *Keyring
	log  *zap.Logger
}

// NewMediator returns a mediator backed by keys.
func NewMediator(keys *Keyring, log *zap.Logger) *Mediator {
	return &Mediator{keys: keys, log: log.With(zap.String("component", "mediation"))}
}

// ServerPublicKey returns the key clients encrypt server copies with.
func (m *Mediator) ServerPublicKey() string { return m.keys.PublicKey() }

// Mediate decrypts serverContent with the server key and seals the plaintext for
// moderatorKey. Plaintext is wiped before return.
func (m *Mediator) Mediate(serverContent string, env model.Envelope, moderatorKey string) (string, error) {
	modPub, err := chunked.ParsePublicKey(moderatorKey)
	if err != nil {
		return "", err
	}

	plain, err := m.keys.Decrypt(serverContent)
	if err != nil {
		return "", err
	}
	defer func() { memguard.WipeBytes(plain) }()

	if env != model.EnvelopeV1 && looksNested(plain) {
		if inner, err := m.keys.Decrypt(string(plain)); err == nil {
			memguard.WipeBytes(plain)
			plain = inner
		}
	}

	return chunked.Encrypt(modPub, plain)
}

// MediateAll fills ModeratorContent for every view. A failing item gets empty
// content and DecryptionFailed; the others are unaffected.
func (m *Mediator) MediateAll(views []model.FlaggedView, moderatorKey string) {
	for i := range views {
		v := &views[i]
		out, err := m.Mediate(v.ServerEncryptedContent, v.Envelope, moderatorKey)
		if err != nil {
			v.ModeratorContent = ""
			v.DecryptionFailed = true
			metrics.MediationFailures.Inc()
			m.log.Warn("mediation failed",
				zap.String("flaggedId", v.ID),
				zap.String("messageId", v.OriginalMessageID),
				zap.Error(err),
			)
			continue
		}
		v.ModeratorContent = out
		v.DecryptionFailed = false
	}
}
