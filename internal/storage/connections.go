package storage

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	// ErrNoConnection indicates the user has no stored records at all.
	ErrNoConnection = errors.New("no connection records for user")

	// ErrConnectionInactive indicates records exist but none is flagged
	// active. Distinct from ErrNoConnection so callers can offer
	// "reconnect" instead of "connect".
	ErrConnectionInactive = errors.New("connection records exist but none is active")

	// ErrMultipleActive indicates more than one record is flagged active.
	// The repository surfaces this instead of guessing.
	ErrMultipleActive = errors.New("multiple connection records flagged active")

	// ErrConnectionNotFound indicates the requested record does not exist.
	ErrConnectionNotFound = errors.New("connection record not found")
)

// connectionKey builds the bucket key for a user's record.
func connectionKey(userID, connectionID string) []byte {
	return []byte(userID + "/" + connectionID)
}

// userPrefix is the key prefix covering all of a user's records.
func userPrefix(userID string) []byte {
	return []byte(userID + "/")
}

// Upsert saves a connection record for the user. The conflict key is the
// user id: an existing record for the user is updated in place (its ID and
// creation time are kept), otherwise a new record is created. The saved
// record is flagged active and all other records for the user are
// deactivated, so "at most one active" holds at write time. Concurrent
// upserts for the same user are last-write-wins.
func (b *BoltDB) Upsert(userID string, record *ConnectionRecord) (*ConnectionInfo, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id cannot be empty")
	}
	if record == nil {
		return nil, fmt.Errorf("connection record cannot be nil")
	}

	now := time.Now().UTC()
	var saved *ConnectionInfo

	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ConnectionsBucket))

		existing, err := firstRecordForUser(bucket, userID)
		if err != nil {
			return err
		}

		if existing != nil {
			record.ID = existing.ID
			record.Created = existing.Created
		} else {
			record.ID = uuid.New().String()
			record.Created = now
		}
		record.UserID = userID
		record.Updated = now
		record.IsActive = true

		if err := deactivateOthers(bucket, userID, record.ID, now); err != nil {
			return err
		}

		data, err := record.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal connection record: %w", err)
		}
		if err := bucket.Put(connectionKey(userID, record.ID), data); err != nil {
			return fmt.Errorf("failed to store connection record: %w", err)
		}

		saved = record.Info()
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.logger.Infow("Saved connection record",
		"user_id", userID,
		"connection_id", saved.ID,
		"base_url", saved.BaseURL)

	return saved, nil
}

// SetActive flags the given record active and deactivates the user's others.
func (b *BoltDB) SetActive(userID, connectionID string) error {
	now := time.Now().UTC()

	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ConnectionsBucket))

		data := bucket.Get(connectionKey(userID, connectionID))
		if data == nil {
			return ErrConnectionNotFound
		}

		record := &ConnectionRecord{}
		if err := record.UnmarshalBinary(data); err != nil {
			return fmt.Errorf("failed to unmarshal connection record: %w", err)
		}

		if err := deactivateOthers(bucket, userID, connectionID, now); err != nil {
			return err
		}

		record.IsActive = true
		record.Updated = now
		updated, err := record.MarshalBinary()
		if err != nil {
			return err
		}
		return bucket.Put(connectionKey(userID, connectionID), updated)
	})
}

// FetchActive returns the metadata of the single record flagged active.
// Zero records at all yields ErrNoConnection, records with none active
// yields ErrConnectionInactive, more than one active yields
// ErrMultipleActive.
func (b *BoltDB) FetchActive(userID string) (*ConnectionInfo, error) {
	record, err := b.activeRecord(userID)
	if err != nil {
		return nil, err
	}
	return record.Info(), nil
}

// ActiveCredentialRecord returns the full active record including the
// encrypted credential. It exists solely for the tool gateway's execution
// boundary; everything else must use FetchActive.
func (b *BoltDB) ActiveCredentialRecord(userID string) (*ConnectionRecord, error) {
	return b.activeRecord(userID)
}

// activeRecord resolves the active record via a read-time lookup of the
// write-time-maintained flag.
func (b *BoltDB) activeRecord(userID string) (*ConnectionRecord, error) {
	var active []*ConnectionRecord
	total := 0

	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ConnectionsBucket))
		return forEachUserRecord(bucket, userID, func(record *ConnectionRecord) error {
			total++
			if record.IsActive {
				active = append(active, record)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	switch {
	case total == 0:
		return nil, ErrNoConnection
	case len(active) == 0:
		return nil, ErrConnectionInactive
	case len(active) > 1:
		return nil, ErrMultipleActive
	default:
		return active[0], nil
	}
}

// FetchAll returns metadata for all of the user's records.
func (b *BoltDB) FetchAll(userID string) ([]*ConnectionInfo, error) {
	var infos []*ConnectionInfo

	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ConnectionsBucket))
		return forEachUserRecord(bucket, userID, func(record *ConnectionRecord) error {
			infos = append(infos, record.Info())
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return infos, nil
}

// Delete removes a connection record.
func (b *BoltDB) Delete(userID, connectionID string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ConnectionsBucket))
		key := connectionKey(userID, connectionID)
		if bucket.Get(key) == nil {
			return ErrConnectionNotFound
		}
		return bucket.Delete(key)
	})
	if err != nil {
		return err
	}

	b.logger.Infow("Deleted connection record",
		"user_id", userID,
		"connection_id", connectionID)
	return nil
}

// forEachUserRecord iterates all records stored under the user's key prefix.
func forEachUserRecord(bucket *bbolt.Bucket, userID string, fn func(*ConnectionRecord) error) error {
	prefix := userPrefix(userID)
	cursor := bucket.Cursor()

	for k, v := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
		record := &ConnectionRecord{}
		if err := record.UnmarshalBinary(v); err != nil {
			return fmt.Errorf("failed to unmarshal connection record: %w", err)
		}
		if err := fn(record); err != nil {
			return err
		}
	}

	return nil
}

// firstRecordForUser returns the user's first stored record, or nil.
func firstRecordForUser(bucket *bbolt.Bucket, userID string) (*ConnectionRecord, error) {
	var found *ConnectionRecord
	err := forEachUserRecord(bucket, userID, func(record *ConnectionRecord) error {
		if found == nil {
			found = record
		}
		return nil
	})
	return found, err
}

// deactivateOthers clears the active flag on all of the user's records
// except keepID.
func deactivateOthers(bucket *bbolt.Bucket, userID, keepID string, now time.Time) error {
	var toUpdate []*ConnectionRecord

	if err := forEachUserRecord(bucket, userID, func(record *ConnectionRecord) error {
		if record.ID != keepID && record.IsActive {
			toUpdate = append(toUpdate, record)
		}
		return nil
	}); err != nil {
		return err
	}

	for _, record := range toUpdate {
		record.IsActive = false
		record.Updated = now
		data, err := record.MarshalBinary()
		if err != nil {
			return err
		}
		if err := bucket.Put(connectionKey(userID, record.ID), data); err != nil {
			return err
		}
	}

	return nil
}
