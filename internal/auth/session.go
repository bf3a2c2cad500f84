package auth

import (
	"encoding/json"
	"fmt"

	"github.com/99designs/keyring"

	"github.com/psepar/demandboard/internal/model"
)

const serviceName = "demandboard"

// SessionStore persists session records in the system keyring, keyed by
// an opaque refresh token. Each client holds only its own token, so one
// client can never resume another client's session.
type SessionStore struct {
	ring keyring.Keyring
}

// OpenSessionStore opens the OS keyring backend.
func OpenSessionStore() (*SessionStore, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/demandboard/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("demandboard-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &SessionStore{ring: ring}, nil
}

// NewSessionStore wraps an already-open keyring.
func NewSessionStore(ring keyring.Keyring) *SessionStore {
	return &SessionStore{ring: ring}
}

func sessionItemKey(token string) string {
	return "session:" + token
}

// Save persists the session record under the given refresh token.
func (s *SessionStore) Save(token string, sess model.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	if err := s.ring.Set(keyring.Item{Key: sessionItemKey(token), Data: data}); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// Load returns the session persisted under the given refresh token, or
// nil when none exists.
func (s *SessionStore) Load(token string) (*model.Session, error) {
	item, err := s.ring.Get(sessionItemKey(token))
	if err == keyring.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	var sess model.Session
	if err := json.Unmarshal(item.Data, &sess); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &sess, nil
}

// Clear removes the session persisted under the given refresh token.
func (s *SessionStore) Clear(token string) error {
	err := s.ring.Remove(sessionItemKey(token))
	if err != nil && err != keyring.ErrKeyNotFound {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}
