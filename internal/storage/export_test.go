package storage

import "go.etcd.io/bbolt"

// putRecordForTest writes a record verbatim, bypassing the write-time
// single-active enforcement, so tests can construct inconsistent states.
func (b *BoltDB) putRecordForTest(record *ConnectionRecord) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ConnectionsBucket))
		data, err := record.MarshalBinary()
		if err != nil {
			return err
		}
		return bucket.Put(connectionKey(record.UserID, record.ID), data)
	})
}
