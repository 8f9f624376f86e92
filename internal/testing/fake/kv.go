package fake

import "github.com/cth001/exonum/core/store/kv"

// DB is a fake implementation of a key/value database. It forwards the calls
// to the wrapped database unless an error is configured.
//
// - implements kv.DB
type DB struct {
	kv.DB

	ErrView     error
	ErrUpdate   error
	ErrSnapshot error
	// ErrRead is the read failure of the snapshots created afterwards. Their
	// buckets return nil for every key.
	ErrRead error

	// FailAfter is the number of successful updates before ErrUpdate is
	// returned.
	FailAfter int

	updates int
}

// NewDB returns a fake database wrapping the given one.
func NewDB(db kv.DB) *DB {
	return &DB{DB: db}
}

// NewBadUpdateDB returns a fake database that fails every update after the
// given number of successful ones. The failing update is rolled back.
func NewBadUpdateDB(db kv.DB, after int) *DB {
	return &DB{DB: db, ErrUpdate: fakeErr, FailAfter: after}
}

// View implements kv.DB.
func (db *DB) View(fn func(kv.ReadableTx) error) error {
	if db.ErrView != nil {
		return db.ErrView
	}

	return db.DB.View(fn)
}

// Update implements kv.DB. When the update must fail, the function is executed
// and the transaction is rolled back.
func (db *DB) Update(fn func(kv.WritableTx) error) error {
	db.updates++

	if db.ErrUpdate == nil || db.updates <= db.FailAfter {
		return db.DB.Update(fn)
	}

	err := db.DB.Update(func(tx kv.WritableTx) error {
		err := fn(tx)
		if err != nil {
			return err
		}

		return db.ErrUpdate
	})

	return err
}

// Snapshot implements kv.DB.
func (db *DB) Snapshot() (kv.Snapshot, error) {
	if db.ErrSnapshot != nil {
		return nil, db.ErrSnapshot
	}

	snap, err := db.DB.Snapshot()
	if err != nil || db.ErrRead == nil {
		return snap, err
	}

	return &Snapshot{Snapshot: snap, err: db.ErrRead}, nil
}

// Snapshot is a fake snapshot that fails every read.
//
// - implements kv.Snapshot
type Snapshot struct {
	kv.Snapshot

	err error
}

// GetBucket implements kv.ReadableTx.
func (s *Snapshot) GetBucket(name []byte) kv.Bucket {
	bucket := s.Snapshot.GetBucket(name)
	if bucket == nil {
		return nil
	}

	return badBucket{Bucket: bucket}
}

// Err implements kv.Snapshot.
func (s *Snapshot) Err() error {
	return s.err
}

// badBucket is a bucket that cannot read any key.
//
// - implements kv.Bucket
type badBucket struct {
	kv.Bucket
}

// Get implements kv.Bucket.
func (b badBucket) Get(key []byte) []byte {
	return nil
}
