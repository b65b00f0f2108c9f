// Package receiver turns inbound envelopes into plaintext, or into the error notice that
// matches the way decryption failed.
package receiver

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"chatstore/crypto"
	"chatstore/errormsg"
	"chatstore/identity"
	"chatstore/models"
	"chatstore/storage"
)

// Outcomes reported for each processed envelope.
const (
	OutcomeDecrypted            = "decrypted"
	OutcomeCorruptUnknownThread = "corrupt_unknown_thread"
	OutcomeCorrupt              = "corrupt"
	OutcomeSessionRefresh       = "session_refresh"
	OutcomeInvalidVersion       = "invalid_version"
	OutcomeInvalidKey           = "invalid_key"
	OutcomeMissingSession       = "missing_session"
	OutcomeDecryptionFailed     = "decryption_failed"
)

// SessionStore supplies the session key shared with a sender.
type SessionStore interface {
	SessionKey(addr models.Address) ([]byte, bool)
}

// OutcomeRecorder receives one outcome per processed envelope.
type OutcomeRecorder interface {
	ReceiverOutcome(outcome string)
}

// Result describes what processing one envelope produced.
type Result struct {
	Outcome   string
	Envelope  *models.Envelope
	Plaintext []byte
	// Notice is the persisted error message, nil on success or for threadless failures.
	Notice *errormsg.ErrorMessage
	// IdentityChange is set when the sender presented a new identity key.
	IdentityChange *errormsg.ErrorMessage
	// Threadless is set when the envelope was too damaged to belong to any thread.
	Threadless *errormsg.ThreadlessErrorMessage
}

// Processor decrypts envelopes and records failures as error messages.
type Processor struct {
	store      *storage.Store
	sessions   SessionStore
	identities *identity.Manager
	recorder   OutcomeRecorder
	logger     *zap.Logger
}

// Config wires a Processor. Store and Sessions are required.
type Config struct {
	Store    *storage.Store
	Sessions SessionStore
	Recorder OutcomeRecorder
	Logger   *zap.Logger
}

// NewProcessor builds a Processor from cfg.
func NewProcessor(cfg Config) (*Processor, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Processor{
		store:      cfg.Store,
		sessions:   cfg.Sessions,
		identities: identity.NewManager(logger),
		recorder:   cfg.Recorder,
		logger:     logger.With(zap.String("component", "receiver")),
	}, nil
}

// Process parses raw and handles the envelope inside one write transaction. Storage
// errors are returned and leave nothing behind; protocol failures are not errors, they
// are reported through Result.
func (p *Processor) Process(ctx context.Context, raw []byte) (*Result, error) {
	env, err := ParseEnvelope(raw)
	if err != nil || !env.HasSource() {
		p.logger.Warn("dropping envelope without a usable sender", zap.Error(err))
		threadless := errormsg.CorruptedMessageInUnknownThread()
		result := &Result{Outcome: OutcomeCorruptUnknownThread, Envelope: env, Threadless: &threadless}
		p.record(result.Outcome)
		return result, nil
	}

	var result *Result
	if err := p.store.Write(ctx, func(tx *storage.WriteTx) error {
		var txErr error
		result, txErr = p.ProcessEnvelope(tx, env)
		return txErr
	}); err != nil {
		p.logger.Warn("envelope processing failed", zap.String("source", env.Source.Key()), zap.Error(err))
		return nil, err
	}

	p.record(result.Outcome)
	return result, nil
}

// ProcessEnvelope handles env inside a caller-owned write transaction.
func (p *Processor) ProcessEnvelope(tx identity.WriteTx, env *models.Envelope) (*Result, error) {
	result := &Result{Envelope: env}
	if !env.HasSource() {
		threadless := errormsg.CorruptedMessageInUnknownThread()
		result.Outcome = OutcomeCorruptUnknownThread
		result.Threadless = &threadless
		return result, nil
	}
	source := *env.Source

	if env.Type == models.EnvelopeTypeSessionReset {
		notice, err := errormsg.SessionRefresh(tx, env)
		return p.fail(result, OutcomeSessionRefresh, notice, err)
	}
	if len(env.Ciphertext) == 0 {
		notice, err := errormsg.CorruptedMessage(tx, env)
		return p.fail(result, OutcomeCorrupt, notice, err)
	}
	if env.ProtocolVersion != ProtocolVersion {
		notice, err := errormsg.InvalidVersion(tx, env)
		return p.fail(result, OutcomeInvalidVersion, notice, err)
	}

	senderKey, err := crypto.ParseIdentityKey(env.SenderIdentityKey)
	if err != nil || !crypto.Verify(senderKey, env.Signature, signedParts(env)...) {
		notice, err := errormsg.InvalidKeyException(tx, env)
		return p.fail(result, OutcomeInvalidKey, notice, err)
	}

	_, change, err := p.identities.SaveRemoteIdentity(tx, source, senderKey)
	if err != nil {
		return nil, err
	}
	result.IdentityChange = change

	sessionKey, ok := p.sessions.SessionKey(source)
	if !ok {
		notice, err := errormsg.MissingSession(tx, env)
		return p.fail(result, OutcomeMissingSession, notice, err)
	}

	plaintext, err := crypto.Open(sessionKey, env.IV, env.Ciphertext, associatedData(source))
	if err != nil {
		p.logger.Debug("decryption failed", zap.String("source", source.Key()), zap.Error(err))
		notice, err := errormsg.FailedDecryptionForEnvelope(tx, env, env.GroupID)
		return p.fail(result, OutcomeDecryptionFailed, notice, err)
	}

	result.Outcome = OutcomeDecrypted
	result.Plaintext = plaintext
	return result, nil
}

func (p *Processor) fail(result *Result, outcome string, notice *errormsg.ErrorMessage, err error) (*Result, error) {
	if err != nil {
		return nil, err
	}
	result.Outcome = outcome
	result.Notice = notice
	p.logger.Info("error message recorded",
		zap.String("outcome", outcome),
		zap.String("error_type", notice.ErrorType().String()),
		zap.String("thread_id", notice.ThreadID()),
		zap.String("unique_id", notice.UniqueID()),
	)
	return result, nil
}

func (p *Processor) record(outcome string) {
	if p.recorder != nil {
		p.recorder.ReceiverOutcome(outcome)
	}
}

// MemorySessions is a concurrency-safe in-memory SessionStore.
type MemorySessions struct {
	mu   sync.RWMutex
	keys map[string][]byte
}

// NewMemorySessions returns an empty MemorySessions.
func NewMemorySessions() *MemorySessions {
	return &MemorySessions{keys: make(map[string][]byte)}
}

// Put stores the session key for addr.
func (s *MemorySessions) Put(addr models.Address, key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[addr.Key()] = append([]byte(nil), key...)
}

// Delete forgets the session with addr.
func (s *MemorySessions) Delete(addr models.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, addr.Key())
}

// SessionKey implements SessionStore.
func (s *MemorySessions) SessionKey(addr models.Address) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[addr.Key()]
	return key, ok
}
