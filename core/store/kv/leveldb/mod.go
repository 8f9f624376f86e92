// Package leveldb implements the key/value database abstraction on top of
// goleveldb. The buckets are emulated with key prefixes and the snapshots are
// native leveldb snapshots.
package leveldb

import (
	"bytes"

	"github.com/cth001/exonum"
	"github.com/cth001/exonum/core/store/kv"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"golang.org/x/xerrors"
)

const (
	markerPrefix byte = 0x00
	dataPrefix   byte = 0x01

	maxBucketNameLen = 255
)

// Options are the parameters of the leveldb database.
type Options struct {
	// BlockCacheCapacity is the size in bytes of the block cache. Zero means
	// the leveldb default.
	BlockCacheCapacity int

	// OpenFilesCacheCapacity is the number of files kept open. Zero means the
	// leveldb default.
	OpenFilesCacheCapacity int

	// NoSync skips the fsync of the journal after each update.
	NoSync bool
}

// DB is the adapter of a leveldb database.
//
// - implements kv.DB
type DB struct {
	ldb *leveldb.DB
}

// New opens or creates the database in the given directory.
func New(path string, opts Options) (*DB, error) {
	ldb, err := leveldb.OpenFile(path, &opt.Options{
		BlockCacheCapacity:     opts.BlockCacheCapacity,
		OpenFilesCacheCapacity: opts.OpenFilesCacheCapacity,
		NoSync:                 opts.NoSync,
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to open db: %v", err)
	}

	return &DB{ldb: ldb}, nil
}

// NewInMemory returns a database that lives in memory.
func NewInMemory() (*DB, error) {
	ldb, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, xerrors.Errorf("failed to open db: %v", err)
	}

	return &DB{ldb: ldb}, nil
}

// View implements kv.DB. The transaction reads from a leveldb snapshot.
func (db *DB) View(fn func(kv.ReadableTx) error) error {
	snap, err := db.ldb.GetSnapshot()
	if err != nil {
		return xerrors.Errorf("failed to get snapshot: %v", err)
	}

	defer snap.Release()

	tx := &readTx{r: snap}

	err = fn(tx)
	if err != nil {
		return err
	}

	return tx.err
}

// Update implements kv.DB. The writes are collected in a leveldb transaction
// which is committed only if the function and every read succeed.
func (db *DB) Update(fn func(kv.WritableTx) error) error {
	tr, err := db.ldb.OpenTransaction()
	if err != nil {
		return xerrors.Errorf("failed to open transaction: %v", err)
	}

	tx := &writeTx{readTx: readTx{r: tr}, tr: tr}

	err = fn(tx)
	if err == nil {
		err = tx.err
	}

	if err != nil {
		tr.Discard()
		return err
	}

	err = tr.Commit()
	if err != nil {
		return xerrors.Errorf("failed to commit: %v", err)
	}

	for _, cb := range tx.callbacks {
		cb()
	}

	return nil
}

// Snapshot implements kv.DB. It returns a native leveldb snapshot.
func (db *DB) Snapshot() (kv.Snapshot, error) {
	snap, err := db.ldb.GetSnapshot()
	if err != nil {
		return nil, xerrors.Errorf("failed to get snapshot: %v", err)
	}

	return &snapshot{readTx: readTx{r: snap, logErrors: true}, snap: snap}, nil
}

// Close implements kv.DB.
func (db *DB) Close() error {
	return db.ldb.Close()
}

type reader interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

// readTx resolves the buckets of a snapshot or a transaction. A read failure
// is recorded and fails the enclosing transaction.
//
// - implements kv.ReadableTx
type readTx struct {
	r         reader
	err       error
	logErrors bool
}

// GetBucket implements kv.ReadableTx.
func (tx *readTx) GetBucket(name []byte) kv.Bucket {
	_, err := tx.r.Get(markerKey(name), nil)
	if err == leveldb.ErrNotFound {
		return nil
	}

	if err != nil {
		tx.fail(err)
		return nil
	}

	return &bucket{tx: tx, prefix: bucketPrefix(name)}
}

func (tx *readTx) fail(err error) {
	if tx.logErrors {
		exonum.Logger.Error().Err(err).Msg("leveldb read failed")
	}

	if tx.err == nil {
		tx.err = xerrors.Errorf("read failed: %v", err)
	}
}

// writeTx is a leveldb transaction.
//
// - implements kv.WritableTx
type writeTx struct {
	readTx

	tr        *leveldb.Transaction
	callbacks []func()
}

// GetBucketOrCreate implements kv.WritableTx.
func (tx *writeTx) GetBucketOrCreate(name []byte) (kv.Bucket, error) {
	if len(name) == 0 {
		return nil, xerrors.New("bucket name required")
	}

	if len(name) > maxBucketNameLen {
		return nil, xerrors.Errorf("bucket name too long: %d", len(name))
	}

	err := tx.tr.Put(markerKey(name), []byte{}, nil)
	if err != nil {
		return nil, xerrors.Errorf("failed to create bucket: %v", err)
	}

	return &bucket{tx: &tx.readTx, w: tx.tr, prefix: bucketPrefix(name)}, nil
}

// OnCommit implements store.Transaction.
func (tx *writeTx) OnCommit(fn func()) {
	tx.callbacks = append(tx.callbacks, fn)
}

// snapshot is a leveldb snapshot that stays open until released.
//
// - implements kv.Snapshot
type snapshot struct {
	readTx

	snap *leveldb.Snapshot
}

// Err implements kv.Snapshot. It returns the first read failure.
func (s *snapshot) Err() error {
	return s.err
}

// Release implements kv.Snapshot.
func (s *snapshot) Release() {
	s.snap.Release()
}

// bucket is a range of keys sharing the prefix of the bucket name.
//
// - implements kv.Bucket
type bucket struct {
	tx     *readTx
	w      *leveldb.Transaction
	prefix []byte
}

// Get implements kv.Bucket.
func (b *bucket) Get(key []byte) []byte {
	value, err := b.tx.r.Get(b.key(key), nil)
	if err == leveldb.ErrNotFound {
		return nil
	}

	if err != nil {
		b.tx.fail(err)
		return nil
	}

	if value == nil {
		value = []byte{}
	}

	return value
}

// Set implements kv.Bucket.
func (b *bucket) Set(key, value []byte) error {
	if b.w == nil {
		return xerrors.New("tx not writable")
	}

	return b.w.Put(b.key(key), value, nil)
}

// Delete implements kv.Bucket.
func (b *bucket) Delete(key []byte) error {
	if b.w == nil {
		return xerrors.New("tx not writable")
	}

	return b.w.Delete(b.key(key), nil)
}

// ForEach implements kv.Bucket.
func (b *bucket) ForEach(fn func(k, v []byte) error) error {
	return b.Scan(nil, fn)
}

// Scan implements kv.Bucket.
func (b *bucket) Scan(prefix []byte, fn func(k, v []byte) error) error {
	iter := b.Iterator(prefix, nil)
	defer iter.Release()

	for iter.Next() {
		err := fn(iter.Key(), iter.Value())
		if err != nil {
			return xerrors.Errorf("callback failed: %v", err)
		}
	}

	return iter.Error()
}

// Iterator implements kv.Bucket.
func (b *bucket) Iterator(prefix, start []byte) kv.Iterator {
	rng := util.BytesPrefix(b.key(prefix))
	rng.Start = b.key(kv.SeekKey(prefix, start))

	return &bucketIterator{
		iter:   b.tx.r.NewIterator(rng, nil),
		offset: len(b.prefix),
	}
}

func (b *bucket) key(key []byte) []byte {
	buffer := make([]byte, 0, len(b.prefix)+len(key))
	buffer = append(buffer, b.prefix...)

	return append(buffer, key...)
}

// bucketIterator strips the bucket prefix of the leveldb keys.
//
// - implements kv.Iterator
type bucketIterator struct {
	iter   iterator.Iterator
	offset int
}

// Next implements kv.Iterator.
func (it *bucketIterator) Next() bool {
	return it.iter.Next()
}

// Key implements kv.Iterator.
func (it *bucketIterator) Key() []byte {
	return it.iter.Key()[it.offset:]
}

// Value implements kv.Iterator.
func (it *bucketIterator) Value() []byte {
	value := it.iter.Value()
	if value == nil {
		value = []byte{}
	}

	return value
}

// Error implements kv.Iterator.
func (it *bucketIterator) Error() error {
	return it.iter.Error()
}

// Release implements kv.Iterator.
func (it *bucketIterator) Release() {
	it.iter.Release()
}

func markerKey(name []byte) []byte {
	return append([]byte{markerPrefix}, name...)
}

func bucketPrefix(name []byte) []byte {
	buffer := bytes.NewBuffer(make([]byte, 0, len(name)+2))
	buffer.WriteByte(dataPrefix)
	buffer.WriteByte(byte(len(name)))
	buffer.Write(name)

	return buffer.Bytes()
}
