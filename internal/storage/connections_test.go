package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDB(t *testing.T) *BoltDB {
	t.Helper()
	db, err := NewBoltDB(t.TempDir(), zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testRecord(baseURL string) *ConnectionRecord {
	return &ConnectionRecord{
		BaseURL:             baseURL,
		ClientID:            "client-1",
		EncryptedCredential: "00112233445566778899aabbccddeeff:deadbeefdeadbeefdeadbeefdeadbeef",
	}
}

func TestSchemaVersion(t *testing.T) {
	db := newTestDB(t)
	version, err := db.GetSchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, uint64(CurrentSchemaVersion), version)
}

func TestUpsert(t *testing.T) {
	t.Run("creates record with generated id", func(t *testing.T) {
		db := newTestDB(t)

		info, err := db.Upsert("user-1", testRecord("https://n8n.example.com"))
		require.NoError(t, err)
		assert.NotEmpty(t, info.ID)
		assert.True(t, info.IsActive)
		assert.False(t, info.Created.IsZero())
	})

	t.Run("is idempotent per user", func(t *testing.T) {
		db := newTestDB(t)

		first, err := db.Upsert("user-1", testRecord("https://n8n.example.com"))
		require.NoError(t, err)

		second, err := db.Upsert("user-1", testRecord("https://other.example.com"))
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "https://other.example.com", second.BaseURL)

		all, err := db.FetchAll("user-1")
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("metadata view carries no credential", func(t *testing.T) {
		db := newTestDB(t)

		info, err := db.Upsert("user-1", testRecord("https://n8n.example.com"))
		require.NoError(t, err)

		// ConnectionInfo has no credential field at all; make sure the
		// full record still does via the execution-boundary accessor.
		record, err := db.ActiveCredentialRecord("user-1")
		require.NoError(t, err)
		assert.Equal(t, info.ID, record.ID)
		assert.NotEmpty(t, record.EncryptedCredential)
	})

	t.Run("users are isolated", func(t *testing.T) {
		db := newTestDB(t)

		_, err := db.Upsert("user-1", testRecord("https://a.example.com"))
		require.NoError(t, err)
		_, err = db.Upsert("user-2", testRecord("https://b.example.com"))
		require.NoError(t, err)

		active, err := db.FetchActive("user-1")
		require.NoError(t, err)
		assert.Equal(t, "https://a.example.com", active.BaseURL)
	})
}

func TestFetchActive(t *testing.T) {
	t.Run("no records at all", func(t *testing.T) {
		db := newTestDB(t)

		_, err := db.FetchActive("user-1")
		assert.ErrorIs(t, err, ErrNoConnection)
	})

	t.Run("records exist but none active", func(t *testing.T) {
		db := newTestDB(t)

		info, err := db.Upsert("user-1", testRecord("https://n8n.example.com"))
		require.NoError(t, err)

		// Flip the flag off directly, simulating a disconnected record.
		record, err := db.ActiveCredentialRecord("user-1")
		require.NoError(t, err)
		record.IsActive = false
		require.NoError(t, db.putRecordForTest(record))

		_, err = db.FetchActive("user-1")
		assert.ErrorIs(t, err, ErrConnectionInactive)
		assert.NotErrorIs(t, err, ErrNoConnection)
		_ = info
	})

	t.Run("multiple active surfaces an error", func(t *testing.T) {
		db := newTestDB(t)

		_, err := db.Upsert("user-1", testRecord("https://n8n.example.com"))
		require.NoError(t, err)

		rogue := testRecord("https://rogue.example.com")
		rogue.ID = "rogue-id"
		rogue.UserID = "user-1"
		rogue.IsActive = true
		require.NoError(t, db.putRecordForTest(rogue))

		_, err = db.FetchActive("user-1")
		assert.ErrorIs(t, err, ErrMultipleActive)
	})
}

func TestSetActive(t *testing.T) {
	db := newTestDB(t)

	info, err := db.Upsert("user-1", testRecord("https://n8n.example.com"))
	require.NoError(t, err)

	extra := testRecord("https://second.example.com")
	extra.ID = "second-id"
	extra.UserID = "user-1"
	require.NoError(t, db.putRecordForTest(extra))

	require.NoError(t, db.SetActive("user-1", "second-id"))

	active, err := db.FetchActive("user-1")
	require.NoError(t, err)
	assert.Equal(t, "second-id", active.ID)

	all, err := db.FetchAll("user-1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, c := range all {
		if c.ID == info.ID {
			assert.False(t, c.IsActive)
		}
	}

	assert.ErrorIs(t, db.SetActive("user-1", "missing"), ErrConnectionNotFound)
}

func TestDelete(t *testing.T) {
	db := newTestDB(t)

	info, err := db.Upsert("user-1", testRecord("https://n8n.example.com"))
	require.NoError(t, err)

	require.NoError(t, db.Delete("user-1", info.ID))

	_, err = db.FetchActive("user-1")
	assert.ErrorIs(t, err, ErrNoConnection)

	assert.ErrorIs(t, db.Delete("user-1", info.ID), ErrConnectionNotFound)
}
