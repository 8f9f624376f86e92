package leveldb

import (
	"testing"

	"github.com/cth001/exonum/core/store/kv"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestDB_New(t *testing.T) {
	db, err := New(t.TempDir(), Options{NoSync: true, OpenFilesCacheCapacity: 16})
	require.NoError(t, err)

	set(t, db, "bucket", "A", "B")
	require.NoError(t, db.Close())

	db, err = New(t.TempDir(), Options{})
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestDB_UpdateAndView(t *testing.T) {
	db := openMemory(t)

	set(t, db, "bucket", "ping", "pong")

	err := db.View(func(tx kv.ReadableTx) error {
		b := tx.GetBucket([]byte("bucket"))
		require.NotNil(t, b)
		require.Equal(t, []byte("pong"), b.Get([]byte("ping")))
		require.Nil(t, b.Get([]byte("pong")))

		require.Nil(t, tx.GetBucket([]byte("unknown")))

		return b.Set([]byte("ping"), []byte("pang"))
	})
	require.EqualError(t, err, "tx not writable")

	err = db.Update(func(tx kv.WritableTx) error {
		_, err := tx.GetBucketOrCreate(nil)
		return err
	})
	require.EqualError(t, err, "bucket name required")

	err = db.Update(func(tx kv.WritableTx) error {
		_, err := tx.GetBucketOrCreate(make([]byte, 256))
		return err
	})
	require.EqualError(t, err, "bucket name too long: 256")
}

func TestDB_Update_Discard(t *testing.T) {
	db := openMemory(t)

	committed := false

	err := db.Update(func(tx kv.WritableTx) error {
		tx.OnCommit(func() { committed = true })

		b, err := tx.GetBucketOrCreate([]byte("bucket"))
		require.NoError(t, err)
		require.NoError(t, b.Set([]byte("A"), []byte("B")))

		// Reads observe the writes of the transaction.
		require.Equal(t, []byte("B"), b.Get([]byte("A")))

		return xerrors.New("oops")
	})
	require.EqualError(t, err, "oops")
	require.False(t, committed)

	err = db.View(func(tx kv.ReadableTx) error {
		require.Nil(t, tx.GetBucket([]byte("bucket")))
		return nil
	})
	require.NoError(t, err)

	err = db.Update(func(tx kv.WritableTx) error {
		tx.OnCommit(func() { committed = true })

		_, err := tx.GetBucketOrCreate([]byte("bucket"))
		return err
	})
	require.NoError(t, err)
	require.True(t, committed)
}

func TestDB_Snapshot(t *testing.T) {
	db := openMemory(t)

	set(t, db, "bucket", "A", "1")

	snap, err := db.Snapshot()
	require.NoError(t, err)

	set(t, db, "bucket", "A", "2")
	set(t, db, "bucket", "B", "3")

	b := snap.GetBucket([]byte("bucket"))
	require.Equal(t, []byte("1"), b.Get([]byte("A")))
	require.Nil(t, b.Get([]byte("B")))
	snap.Release()

	require.NoError(t, db.Close())

	_, err = db.Snapshot()
	require.EqualError(t, err, "failed to get snapshot: leveldb: closed")
}

func TestSnapshot_Err(t *testing.T) {
	db := openMemory(t)

	set(t, db, "bucket", "A", "1")

	snap, err := db.Snapshot()
	require.NoError(t, err)

	b := snap.GetBucket([]byte("bucket"))
	require.Equal(t, []byte("1"), b.Get([]byte("A")))
	require.NoError(t, snap.Err())

	snap.Release()

	// A failed read looks like a missing key until the error is checked.
	require.Nil(t, b.Get([]byte("A")))
	require.EqualError(t, snap.Err(), "read failed: leveldb: snapshot released")

	// The first failure is kept.
	require.Nil(t, b.Get([]byte("B")))
	require.EqualError(t, snap.Err(), "read failed: leveldb: snapshot released")
}

func TestBucket_EmptyValue(t *testing.T) {
	db := openMemory(t)

	set(t, db, "bucket", "A", "")

	err := db.View(func(tx kv.ReadableTx) error {
		value := tx.GetBucket([]byte("bucket")).Get([]byte("A"))
		require.NotNil(t, value)
		require.Len(t, value, 0)
		return nil
	})
	require.NoError(t, err)
}

func TestBucket_Isolation(t *testing.T) {
	db := openMemory(t)

	set(t, db, "a", "key", "1")
	set(t, db, "ab", "key", "2")

	err := db.View(func(tx kv.ReadableTx) error {
		var keys []string
		err := tx.GetBucket([]byte("a")).ForEach(func(k, v []byte) error {
			keys = append(keys, string(k)+"="+string(v))
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, []string{"key=1"}, keys)

		return nil
	})
	require.NoError(t, err)
}

func TestBucket_Scan(t *testing.T) {
	db := openMemory(t)

	err := db.Update(func(tx kv.WritableTx) error {
		b, err := tx.GetBucketOrCreate([]byte("bucket"))
		require.NoError(t, err)

		require.NoError(t, b.Set([]byte{7}, []byte{7}))
		require.NoError(t, b.Set([]byte{0}, []byte{0}))
		require.NoError(t, b.Set([]byte{3}, []byte{3}))
		require.NoError(t, b.Delete([]byte{3}))

		var i byte
		err = b.Scan(nil, func(k, v []byte) error {
			require.Equal(t, []byte{i}, k)
			require.Equal(t, []byte{i}, v)
			i += 7
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, byte(14), i)

		err = b.Scan([]byte{7}, func(k, v []byte) error {
			return xerrors.New("oops")
		})
		require.EqualError(t, err, "callback failed: oops")

		return nil
	})
	require.NoError(t, err)
}

func TestBucket_Iterator(t *testing.T) {
	db := openMemory(t)

	for _, key := range []string{"a1", "a3", "a2", "b1", "0"} {
		set(t, db, "bucket", key, key)
	}

	snap, err := db.Snapshot()
	require.NoError(t, err)

	defer snap.Release()

	b := snap.GetBucket([]byte("bucket"))

	require.Equal(t, []string{"a1", "a2", "a3"}, collect(b.Iterator([]byte("a"), nil)))
	require.Equal(t, []string{"a2", "a3"}, collect(b.Iterator([]byte("a"), []byte("a2"))))
	require.Equal(t, []string{"a3"}, collect(b.Iterator([]byte("a"), []byte("a25"))))
	require.Empty(t, collect(b.Iterator([]byte("a"), []byte("b"))))
	require.Equal(t, []string{"0", "a1", "a2", "a3", "b1"}, collect(b.Iterator(nil, nil)))
}

// -----------------------------------------------------------------------------
// Utility functions

func openMemory(t *testing.T) *DB {
	db, err := NewInMemory()
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return db
}

func set(t *testing.T, db kv.DB, bucket, key, value string) {
	err := db.Update(func(tx kv.WritableTx) error {
		b, err := tx.GetBucketOrCreate([]byte(bucket))
		if err != nil {
			return err
		}

		return b.Set([]byte(key), []byte(value))
	})
	require.NoError(t, err)
}

func collect(iter kv.Iterator) []string {
	defer iter.Release()

	var keys []string
	for iter.Next() {
		keys = append(keys, string(iter.Key()))
	}

	return keys
}
