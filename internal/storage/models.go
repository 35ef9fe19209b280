// Package storage persists connection records in a local bbolt database.
// It is the sole owner of ConnectionRecord persistence; generic callers only
// ever see the metadata-only ConnectionInfo view.
package storage

import (
	"encoding/json"
	"time"
)

// Bucket names for the bbolt database.
const (
	ConnectionsBucket = "connections"
	MetaBucket        = "meta"
)

// Meta keys.
const (
	SchemaVersionKey = "schema"
)

// CurrentSchemaVersion is bumped when the on-disk layout changes.
const CurrentSchemaVersion = 1

// ConnectionRecord is a stored link between a user and an n8n instance.
// EncryptedCredential holds the vault-encrypted bearer secret in
// "<iv_hex>:<ciphertext_hex>" form and must never leave this package except
// through the gateway execution boundary.
type ConnectionRecord struct {
	ID                  string    `json:"id"`
	UserID              string    `json:"user_id"`
	BaseURL             string    `json:"base_url"`
	ClientID            string    `json:"client_id"`
	EncryptedCredential string    `json:"encrypted_credential,omitempty"`
	IsActive            bool      `json:"is_active"`
	Created             time.Time `json:"created_at"`
	Updated             time.Time `json:"updated_at"`
}

// ConnectionInfo is the metadata-only view of a ConnectionRecord that crosses
// the repository boundary to generic callers.
type ConnectionInfo struct {
	ID       string    `json:"id"`
	BaseURL  string    `json:"base_url"`
	ClientID string    `json:"client_id"`
	IsActive bool      `json:"is_active"`
	Created  time.Time `json:"created_at"`
	Updated  time.Time `json:"updated_at"`
}

// Info returns the metadata-only view of the record.
func (r *ConnectionRecord) Info() *ConnectionInfo {
	return &ConnectionInfo{
		ID:       r.ID,
		BaseURL:  r.BaseURL,
		ClientID: r.ClientID,
		IsActive: r.IsActive,
		Created:  r.Created,
		Updated:  r.Updated,
	}
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (r *ConnectionRecord) MarshalBinary() ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (r *ConnectionRecord) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, r)
}
