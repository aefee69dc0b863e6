package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
)

var (
	// ErrNotFound is returned by Store.Load when no credential is stored.
	ErrNotFound = errors.New("credential not found")

	// ErrUndecodable is returned by Store.Load when the stored credential
	// cannot be decrypted or decoded, for example after the key changed.
	ErrUndecodable = errors.New("stored credential is unreadable")
)

// Store persists credentials per account.
type Store interface {
	Load(ctx context.Context, account string) (Credential, error)
	Save(ctx context.Context, account string, c Credential) error
	Delete(ctx context.Context, account string) error
}

var accountPattern = regexp.MustCompile(`^[A-Za-z0-9@._-]{1,128}$`)

// ValidateAccount rejects account names that cannot be used as file names or keys.
func ValidateAccount(account string) error {
	if !accountPattern.MatchString(account) || account == "." || account == ".." {
		return fmt.Errorf("invalid account name %q", account)
	}
	return nil
}

// Codec serializes credentials for every store: JSON, then optional encryption.
type Codec struct {
	Encryption *Encryption
}

// Marshal encodes c.
func (c Codec) Marshal(cred Credential) ([]byte, error) {
	data, err := json.Marshal(cred)
	if err != nil {
		return nil, fmt.Errorf("failed to encode credential: %w", err)
	}
	return c.Encryption.Seal(data)
}

// Unmarshal decodes data produced by Marshal.
func (c Codec) Unmarshal(data []byte) (Credential, error) {
	plain, err := c.Encryption.Open(data)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}
	var cred Credential
	if err := json.Unmarshal(plain, &cred); err != nil {
		return Credential{}, fmt.Errorf("%w: failed to decode credential: %w", ErrUndecodable, err)
	}
	return cred, nil
}

// MemoryStore keeps credentials in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	creds map[string]Credential
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[string]Credential)}
}

// Load returns the stored credential or ErrNotFound.
func (s *MemoryStore) Load(_ context.Context, account string) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[account]
	if !ok {
		return Credential{}, ErrNotFound
	}
	c.Scopes = append([]string(nil), c.Scopes...)
	return c, nil
}

// Save stores a copy of c.
func (s *MemoryStore) Save(_ context.Context, account string, c Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Scopes = append([]string(nil), c.Scopes...)
	s.creds[account] = c
	return nil
}

// Delete removes the credential. Deleting a missing credential is not an error.
func (s *MemoryStore) Delete(_ context.Context, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, account)
	return nil
}
