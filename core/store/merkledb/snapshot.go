package merkledb

import (
	"encoding/binary"
	"sync"

	"github.com/cth001/exonum/core/store/hashtree"
	"github.com/cth001/exonum/core/store/kv"
)

// Snapshot is a point-in-time read-only view of the database. It must be
// released when it is not used anymore. A snapshot is not meant to be shared
// between goroutines: every reader takes its own.
//
// - implements merkledb.Readable
type Snapshot struct {
	db     *Database
	kv     kv.Snapshot
	bucket kv.Bucket
	epoch  uint64
	// proofEpoch is the epoch of the last merge that changed a merkelized
	// index before the snapshot.
	proofEpoch uint64

	releaseOnce sync.Once
}

func newSnapshot(db *Database, snap kv.Snapshot, epoch, proofEpoch uint64) *Snapshot {
	promSnapshots.Inc()

	return &Snapshot{
		db:         db,
		kv:         snap,
		bucket:     snap.GetBucket(bucketName),
		epoch:      epoch,
		proofEpoch: proofEpoch,
	}
}

// Epoch returns the number of merges applied to the database when the
// snapshot was taken.
func (s *Snapshot) Epoch() uint64 {
	return s.epoch
}

// Open implements merkledb.Access. An index that does not exist is opened
// empty with the given metadata.
func (s *Snapshot) Open(addr Address, meta IndexMetadata) (*View, error) {
	return openReadOnly(s, s.db.hasher, addr, meta)
}

// Hasher implements merkledb.Access.
func (s *Snapshot) Hasher() hashtree.Hasher {
	return s.db.hasher
}

// StateHash implements merkledb.Readable.
func (s *Snapshot) StateHash() (hashtree.Digest, error) {
	return stateHash(s, s.db.hasher)
}

// Indexes implements merkledb.Readable.
func (s *Snapshot) Indexes() ([]IndexInfo, error) {
	return listIndexes(s)
}

// Release frees the resources of the snapshot. It can be called multiple
// times.
func (s *Snapshot) Release() {
	s.releaseOnce.Do(func() {
		s.kv.Release()
		promSnapshots.Dec()
	})
}

func (s *Snapshot) source() source {
	return s
}

func (s *Snapshot) get(prefix string, key []byte) ([]byte, error) {
	if s.bucket == nil {
		return nil, s.readErr()
	}

	if prefix == metadataPrefix {
		return s.getMetadata(key)
	}

	cacheKey := s.cacheKey(prefix, key)

	if s.db.cache != nil {
		value, found := s.db.cache.Get(cacheKey)
		if found {
			promCacheHits.Inc()
			return value.([]byte), nil
		}

		promCacheMisses.Inc()
	}

	value := s.bucket.Get(join(prefix, key))

	err := s.readErr()
	if err != nil {
		return nil, err
	}

	if value != nil {
		value = append([]byte{}, value...)
	}

	if s.db.cache != nil {
		s.db.cache.Add(cacheKey, value)
	}

	return value, nil
}

// getMetadata reads a metadata record. A record that exists at an epoch
// exists with the same value at every later epoch, as a merge never replaces
// the metadata of an index.
func (s *Snapshot) getMetadata(key []byte) ([]byte, error) {
	record, found := s.db.metas.Load(string(key))
	if found && record.epoch <= s.epoch {
		return record.value, nil
	}

	value := s.bucket.Get(join(metadataPrefix, key))

	err := s.readErr()
	if err != nil {
		return nil, err
	}

	if value == nil {
		return nil, nil
	}

	value = append([]byte{}, value...)
	s.db.metas.Store(string(key), metadataRecord{epoch: s.epoch, value: value})

	return value, nil
}

// readErr returns an engine error if the storage failed to read a key of the
// snapshot.
func (s *Snapshot) readErr() error {
	err := s.kv.Err()
	if err != nil {
		return newEngineError("read", err)
	}

	return nil
}

// metadataRecord is a metadata record with the epoch it was read at.
type metadataRecord struct {
	epoch uint64
	value []byte
}

func (s *Snapshot) iterator(prefix string, keyPrefix, start []byte) kv.Iterator {
	if s.bucket == nil {
		return emptyIterator{err: s.readErr()}
	}

	return &strippedIterator{
		Iterator: s.bucket.Iterator(join(prefix, keyPrefix), join(prefix, start)),
		size:     len(prefix),
	}
}

// cacheKey returns the key of the value in the read cache. The content of the
// database at an epoch never changes.
func (s *Snapshot) cacheKey(prefix string, key []byte) string {
	buffer := make([]byte, 8, 8+len(prefix)+len(key))
	binary.BigEndian.PutUint64(buffer, s.epoch)

	buffer = append(buffer, prefix...)

	return string(append(buffer, key...))
}

// strippedIterator removes the prefix of the index from the keys.
//
// - implements kv.Iterator
type strippedIterator struct {
	kv.Iterator

	size int
}

// Key implements kv.Iterator.
func (it *strippedIterator) Key() []byte {
	key := it.Iterator.Key()
	if key == nil {
		return nil
	}

	return key[it.size:]
}

func join(prefix string, key []byte) []byte {
	buffer := make([]byte, 0, len(prefix)+len(key))
	buffer = append(buffer, prefix...)

	return append(buffer, key...)
}
