package credstore

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"songbattle/pkg/logging"
	"songbattle/pkg/oauth"
)

// tokenBucket is the bbolt bucket holding the durable credential slot.
var tokenBucket = []byte("auth")

// tokenKey is the durable slot key. The key name matches the record the web
// client writes so both front ends can share a device.
var tokenKey = []byte("spotify:auth:tokens")

// TokenStore is the durable (cross-session) credential slot, backed by a
// bbolt file. It holds at most one Token Record per device, replaced
// wholesale on every write.
//
// Token values are never logged. The database file is created with 0600
// permissions.
type TokenStore struct {
	db *bolt.DB
}

// OpenTokenStore opens (creating if necessary) the token database at path.
func OpenTokenStore(path string) (*TokenStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(tokenBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create token bucket: %w", err)
	}

	return &TokenStore{db: db}, nil
}

// Load reads and parses the durable slot. Missing or malformed data is
// treated as absence, never as a fatal error.
func (s *TokenStore) Load() *oauth.Token {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(tokenBucket).Get(tokenKey); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		logging.Warn("CredStore", "Failed to read stored tokens: %v", err)
		return nil
	}
	if raw == nil {
		return nil
	}

	var token oauth.Token
	if err := json.Unmarshal(raw, &token); err != nil {
		logging.Warn("CredStore", "Failed to parse stored tokens, treating as absent: %v", err)
		return nil
	}
	return &token
}

// Save overwrites the durable slot with the given record.
func (s *TokenStore) Save(token *oauth.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(tokenBucket).Put(tokenKey, data)
	})
}

// Clear removes the durable slot.
func (s *TokenStore) Clear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(tokenBucket).Delete(tokenKey)
	})
}

// Close closes the underlying database.
func (s *TokenStore) Close() error {
	return s.db.Close()
}
