package kv

import (
	"bytes"

	"go.etcd.io/bbolt"
	"golang.org/x/xerrors"
)

// Options are the parameters of the bbolt database.
type Options struct {
	// InitialMmapSize is the initial size of the memory map of the file. The
	// map cannot grow while a snapshot is open, so a merge that needs a larger
	// map waits for the snapshots to be released.
	InitialMmapSize int

	// NoSync skips the fsync after each transaction.
	NoSync bool
}

// boltDB is an adapter of the KV store using bbolt.
//
// - implements kv.DB
type boltDB struct {
	bolt *bbolt.DB
}

// New opens a bbolt database at the given path with the default options.
func New(path string) (DB, error) {
	return NewWithOptions(path, Options{})
}

// NewWithOptions opens a bbolt database at the given path.
func NewWithOptions(path string, opts Options) (DB, error) {
	db, err := bbolt.Open(path, 0666, &bbolt.Options{
		InitialMmapSize: opts.InitialMmapSize,
		NoSync:          opts.NoSync,
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to open db: %v", err)
	}

	return boltDB{bolt: db}, nil
}

// View implements kv.DB. It executes the read-only transaction.
func (db boltDB) View(fn func(ReadableTx) error) error {
	return db.bolt.View(func(txn *bbolt.Tx) error {
		return fn(boltTx{txn: txn})
	})
}

// Update implements kv.DB. It executes the read-write transaction and commits
// it when the function succeeds.
func (db boltDB) Update(fn func(WritableTx) error) error {
	return db.bolt.Update(func(txn *bbolt.Tx) error {
		return fn(boltTx{txn: txn})
	})
}

// Snapshot implements kv.DB. It opens a read-only transaction that stays open
// until the snapshot is released.
func (db boltDB) Snapshot() (Snapshot, error) {
	txn, err := db.bolt.Begin(false)
	if err != nil {
		return nil, xerrors.Errorf("failed to begin: %v", err)
	}

	return boltSnapshot{boltTx: boltTx{txn: txn}}, nil
}

// Close implements kv.DB. Any call after it returns an error.
func (db boltDB) Close() error {
	return db.bolt.Close()
}

// boltTx is the adapter of a bbolt transaction.
//
// - implements kv.WritableTx
type boltTx struct {
	txn *bbolt.Tx
}

// GetBucket implements kv.ReadableTx. It returns the bucket if it exists,
// otherwise nil.
func (tx boltTx) GetBucket(name []byte) Bucket {
	bucket := tx.txn.Bucket(name)
	if bucket == nil {
		return nil
	}

	return boltBucket{bucket: bucket}
}

// GetBucketOrCreate implements kv.WritableTx.
func (tx boltTx) GetBucketOrCreate(name []byte) (Bucket, error) {
	bucket, err := tx.txn.CreateBucketIfNotExists(name)
	if err != nil {
		return nil, xerrors.Errorf("create bucket failed: %v", err)
	}

	return boltBucket{bucket: bucket}, nil
}

// OnCommit implements store.Transaction. The callback is executed after the
// transaction is committed.
func (tx boltTx) OnCommit(fn func()) {
	tx.txn.OnCommit(fn)
}

// boltSnapshot is a long-lived read-only transaction.
//
// - implements kv.Snapshot
type boltSnapshot struct {
	boltTx
}

// Err implements kv.Snapshot. A bbolt read never fails once the transaction
// is open.
func (s boltSnapshot) Err() error {
	return nil
}

// Release implements kv.Snapshot. It rolls back the transaction.
func (s boltSnapshot) Release() {
	_ = s.txn.Rollback()
}

// boltBucket is the adapter of a bbolt bucket to the kv.Bucket interface.
//
// - implements kv.Bucket
type boltBucket struct {
	bucket *bbolt.Bucket
}

// Get implements kv.Bucket.
func (b boltBucket) Get(key []byte) []byte {
	return b.bucket.Get(key)
}

// Set implements kv.Bucket.
func (b boltBucket) Set(key, value []byte) error {
	return b.bucket.Put(key, value)
}

// Delete implements kv.Bucket.
func (b boltBucket) Delete(key []byte) error {
	return b.bucket.Delete(key)
}

// ForEach implements kv.Bucket. It iterates over the whole bucket.
func (b boltBucket) ForEach(fn func(k, v []byte) error) error {
	return b.bucket.ForEach(fn)
}

// Scan implements kv.Bucket. It iterates over the keys matching the prefix.
func (b boltBucket) Scan(prefix []byte, fn func(k, v []byte) error) error {
	cursor := b.bucket.Cursor()

	for k, v := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
		err := fn(k, v)
		if err != nil {
			return xerrors.Errorf("callback failed: %v", err)
		}
	}

	return nil
}

// Iterator implements kv.Bucket.
func (b boltBucket) Iterator(prefix, start []byte) Iterator {
	return &boltIterator{
		cursor: b.bucket.Cursor(),
		prefix: prefix,
		seek:   SeekKey(prefix, start),
	}
}

// boltIterator iterates over a bbolt cursor.
//
// - implements kv.Iterator
type boltIterator struct {
	cursor  *bbolt.Cursor
	prefix  []byte
	seek    []byte
	started bool
	done    bool
	key     []byte
	value   []byte
}

// Next implements kv.Iterator.
func (it *boltIterator) Next() bool {
	if it.done {
		return false
	}

	var k, v []byte
	if it.started {
		k, v = it.cursor.Next()
	} else {
		it.started = true
		k, v = it.cursor.Seek(it.seek)
	}

	if k == nil || !bytes.HasPrefix(k, it.prefix) {
		it.done = true
		it.key, it.value = nil, nil
		return false
	}

	it.key, it.value = k, v

	return true
}

// Key implements kv.Iterator.
func (it *boltIterator) Key() []byte {
	return it.key
}

// Value implements kv.Iterator.
func (it *boltIterator) Value() []byte {
	return it.value
}

// Error implements kv.Iterator. A cursor never fails.
func (it *boltIterator) Error() error {
	return nil
}

// Release implements kv.Iterator.
func (it *boltIterator) Release() {
	it.done = true
}

// SeekKey returns the first key to visit when iterating over the prefix from
// the start key.
func SeekKey(prefix, start []byte) []byte {
	if bytes.Compare(start, prefix) > 0 {
		return start
	}

	return prefix
}
