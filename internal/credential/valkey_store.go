package credential

import (
	"context"
	"fmt"

	"github.com/valkey-io/valkey-go"
)

const valkeyKeyPrefix = "dayplanner:credential:"

// ValkeyStore keeps one key per account on a Valkey (or Redis) server.
type ValkeyStore struct {
	client valkey.Client
	codec  Codec
}

// NewValkeyStore connects to the server at addr.
func NewValkeyStore(addr string, enc *Encryption) (*ValkeyStore, error) {
	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey at %s: %w", addr, err)
	}
	return &ValkeyStore{client: client, codec: Codec{Encryption: enc}}, nil
}

func (s *ValkeyStore) key(account string) string {
	return valkeyKeyPrefix + account
}

// Load reads the account's key.
func (s *ValkeyStore) Load(ctx context.Context, account string) (Credential, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(s.key(account)).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return Credential{}, ErrNotFound
	}
	if err != nil {
		return Credential{}, fmt.Errorf("failed to read credential: %w", err)
	}
	return s.codec.Unmarshal([]byte(data))
}

// Save writes the account's key without expiry; the refresh token outlives
// any access token.
func (s *ValkeyStore) Save(ctx context.Context, account string, c Credential) error {
	data, err := s.codec.Marshal(c)
	if err != nil {
		return err
	}
	if err := s.client.Do(ctx, s.client.B().Set().Key(s.key(account)).Value(string(data)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// Delete removes the account's key.
func (s *ValkeyStore) Delete(ctx context.Context, account string) error {
	if err := s.client.Do(ctx, s.client.B().Del().Key(s.key(account)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *ValkeyStore) Close() {
	s.client.Close()
}
