// Package kv defines the abstraction of the ordered key/value database that
// persists the merkelized indexes.
//
// The package implements a default database on top of bbolt
// (https://github.com/etcd-io/bbolt). The leveldb sub-package provides an
// implementation on top of goleveldb, either on disk or in memory.
//
// Documentation Last Review: 19.10.2026
//
package kv

import "github.com/cth001/exonum/core/store"

// Bucket is a general interface to operate on a database bucket. The keys are
// ordered by their bytes.
type Bucket interface {
	// Get reads the key from the bucket and returns the value, or nil if the
	// key does not exist.
	Get(key []byte) []byte

	// Set assigns the value to the provided key.
	Set(key, value []byte) error

	// Delete deletes the key from the bucket.
	Delete(key []byte) error

	// ForEach iterates over all the items of the bucket in ascending order of
	// the keys. The iteration stops when the callback returns an error.
	ForEach(func(k, v []byte) error) error

	// Scan iterates over every key that matches the prefix in ascending order.
	// The iteration stops when the callback returns an error.
	Scan(prefix []byte, fn func(k, v []byte) error) error

	// Iterator returns an iterator over the keys that match the prefix, in
	// ascending order, starting from the first key greater than or equal to
	// start.
	Iterator(prefix, start []byte) Iterator
}

// Iterator is a pull iterator over the items of a bucket. The key and the
// value are only valid until the next call to Next.
type Iterator interface {
	// Next moves to the next item and returns true if it exists.
	Next() bool

	// Key returns the key of the current item.
	Key() []byte

	// Value returns the value of the current item.
	Value() []byte

	// Error returns the error that stopped the iteration, if any.
	Error() error

	// Release frees the resources of the iterator.
	Release()
}

// ReadableTx allows one to perform read-only atomic operations on the database.
type ReadableTx interface {
	// GetBucket returns the bucket of the given name if it exists, otherwise it
	// returns nil.
	GetBucket(name []byte) Bucket
}

// WritableTx allows one to perform atomic operations on the database.
type WritableTx interface {
	store.Transaction

	ReadableTx

	// GetBucketOrCreate returns the bucket of the given name if it exists, or
	// it creates it.
	GetBucketOrCreate(name []byte) (Bucket, error)
}

// Snapshot is a read-only transaction that stays open until it is released.
// The content never changes even if the database is updated in the meantime.
type Snapshot interface {
	ReadableTx

	// Err returns the first read failure of the snapshot, if any. A bucket
	// returns nil for a key it could not read, so the error must be checked
	// before trusting an absent value.
	Err() error

	// Release frees the resources held by the snapshot.
	Release()
}

// DB is a general interface to operate over a key/value database.
type DB interface {
	// View executes the provided read-only transaction in the context of the
	// database.
	View(fn func(ReadableTx) error) error

	// Update executes the provided writable transaction in the context of the
	// database. The changes are applied only if the function returns nil.
	Update(fn func(WritableTx) error) error

	// Snapshot returns a point-in-time read view of the database.
	Snapshot() (Snapshot, error)

	// Close closes the database and frees the resources.
	Close() error
}
