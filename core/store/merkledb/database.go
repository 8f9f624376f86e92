package merkledb

import (
	"bytes"
	"sync"
	"time"

	"github.com/cth001/exonum"
	"github.com/cth001/exonum/core/store/hashtree"
	"github.com/cth001/exonum/core/store/kv"
	"github.com/cth001/exonum/crypto"
	lru "github.com/hashicorp/golang-lru"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
	"golang.org/x/xerrors"
)

var bucketName = []byte("merkledb")

var errClosed = xerrors.New("database closed")

type options struct {
	algo      crypto.HashAlgorithm
	cacheSize int
	logger    zerolog.Logger
}

// Option is the type of the options to create a database.
type Option func(*options)

// WithHashAlgorithm sets the hash algorithm of a new database. An existing
// database must have been created with the same one.
func WithHashAlgorithm(algo crypto.HashAlgorithm) Option {
	return func(opts *options) {
		opts.algo = algo
	}
}

// WithCacheSize sets the number of entries of the read cache. Zero disables
// the cache.
func WithCacheSize(size int) Option {
	return func(opts *options) {
		opts.cacheSize = size
	}
}

// WithLogger sets the logger of the database.
func WithLogger(logger zerolog.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

// Database is the merkelized storage engine on top of a key/value database.
// Snapshots can be read concurrently while a single patch is merged at a time.
type Database struct {
	kv     kv.DB
	algo   crypto.HashAlgorithm
	hasher hashtree.Hasher
	logger zerolog.Logger

	cache *lru.Cache
	// metas is the committed raw metadata by key.
	metas *xsync.MapOf[string, metadataRecord]

	mergeMu sync.RWMutex
	epoch   uint64
	// proofEpoch is the epoch of the last merge that changed a merkelized
	// index.
	proofEpoch uint64
	fatal      error
	closed     bool
}

// NewDatabase creates the merkelized storage on top of the key/value
// database. The format version and the hash algorithm are written when the
// database is empty, and verified otherwise.
func NewDatabase(db kv.DB, opts ...Option) (*Database, error) {
	tmpl := options{
		algo:      crypto.Sha256,
		cacheSize: 0,
		logger:    exonum.Logger,
	}

	for _, opt := range opts {
		opt(&tmpl)
	}

	database := &Database{
		kv:     db,
		algo:   tmpl.algo,
		hasher: hashtree.NewHasher(crypto.NewHashFactory(tmpl.algo)),
		logger: tmpl.logger.With().Str("component", "merkledb").Logger(),
		metas:  xsync.NewMapOf[string, metadataRecord](),
	}

	if tmpl.cacheSize > 0 {
		cache, err := lru.New(tmpl.cacheSize)
		if err != nil {
			return nil, xerrors.Errorf("failed to create cache: %v", err)
		}

		database.cache = cache
	}

	err := database.checkInfo()
	if err != nil {
		return nil, err
	}

	database.logger.Info().
		Stringer("hash", tmpl.algo).
		Int("cache", tmpl.cacheSize).
		Msg("database opened")

	return database, nil
}

// HashAlgorithm returns the hash algorithm pinned in the database.
func (db *Database) HashAlgorithm() crypto.HashAlgorithm {
	return db.algo
}

// Hasher returns the hasher of the merkelized indexes.
func (db *Database) Hasher() hashtree.Hasher {
	return db.hasher
}

// Epoch returns the number of patches merged since the database was opened.
func (db *Database) Epoch() uint64 {
	db.mergeMu.RLock()
	defer db.mergeMu.RUnlock()

	return db.epoch
}

// Snapshot returns a read-only view of the current state of the database. It
// is isolated from the merges that happen afterwards.
func (db *Database) Snapshot() (*Snapshot, error) {
	db.mergeMu.RLock()
	defer db.mergeMu.RUnlock()

	err := db.usable()
	if err != nil {
		return nil, err
	}

	return db.snapshot()
}

// Fork returns a fork on top of the current state of the database.
func (db *Database) Fork() (*Fork, error) {
	snap, err := db.Snapshot()
	if err != nil {
		return nil, err
	}

	return newFork(db, snap, make(changeSet), make(map[string]IndexInfo)), nil
}

// StateHash returns the state hash of the current state of the database.
func (db *Database) StateHash() (hashtree.Digest, error) {
	snap, err := db.Snapshot()
	if err != nil {
		return hashtree.Digest{}, err
	}

	defer snap.Release()

	return snap.StateHash()
}

// Merge converts the fork into a patch and merges it. The patch is released
// when it is refused.
func (db *Database) Merge(fork *Fork) error {
	patch, err := fork.IntoPatch()
	if err != nil {
		fork.Release()
		return xerrors.Errorf("couldn't create patch: %v", err)
	}

	err = db.MergePatch(patch)
	if err != nil {
		patch.Release()
		return err
	}

	return nil
}

// MergePatch writes the changes of the patch atomically. A patch with changes
// of merkelized indexes must be created after the last merge that changed a
// merkelized index, otherwise it is refused and the database is left
// untouched. A patch that creates an index already created with another type
// by an earlier merge is refused with an IndexTypeError. A failure of the
// storage leaves the database in a fatal state.
func (db *Database) MergePatch(patch *Patch) error {
	db.mergeMu.Lock()
	defer db.mergeMu.Unlock()

	err := db.usable()
	if err != nil {
		return err
	}

	if patch.merged {
		return xerrors.New("patch already merged")
	}

	if patch.merkelized && patch.snapshot.proofEpoch != db.proofEpoch {
		return xerrors.Errorf("stale patch: created at epoch %d but merkelized "+
			"indexes changed at epoch %d", patch.snapshot.epoch, db.proofEpoch)
	}

	start := time.Now()

	// The snapshot of the patch is released before the update so that a bbolt
	// file can grow its memory map.
	patch.snapshot.Release()
	patch.snapshot = nil
	patch.merged = true

	size := patch.Len()

	var conflict error

	err = db.kv.Update(func(tx kv.WritableTx) error {
		bucket, err := tx.GetBucketOrCreate(bucketName)
		if err != nil {
			return err
		}

		err = checkMetadata(bucket, patch.changes[metadataPrefix])
		if IsIndexTypeError(err) {
			conflict = err
		}

		if err != nil {
			return err
		}

		for _, prefix := range patch.changes.prefixes() {
			err = writeChanges(bucket, prefix, patch.changes[prefix])
			if err != nil {
				return err
			}
		}

		return nil
	})
	if conflict != nil {
		db.logger.Warn().
			Err(conflict).
			Str("fork", patch.id.String()).
			Msg("patch refused")

		return conflict
	}

	if err != nil {
		db.fatal = newEngineError("merge", err)

		promMergeFailures.Inc()

		db.logger.Error().
			Err(err).
			Str("fork", patch.id.String()).
			Msg("merge failed, database is unusable")

		return db.fatal
	}

	db.epoch++

	if patch.merkelized {
		db.proofEpoch = db.epoch
	}

	promMerges.Inc()
	promChanges.Observe(float64(size))
	promMergeDuration.Observe(time.Since(start).Seconds())

	db.logger.Debug().
		Str("fork", patch.id.String()).
		Int("changes", size).
		Uint64("epoch", db.epoch).
		Dur("duration", time.Since(start)).
		Msg("patch merged")

	return nil
}

// Close closes the key/value database. The snapshots must be released
// before.
func (db *Database) Close() error {
	db.mergeMu.Lock()
	defer db.mergeMu.Unlock()

	if db.closed {
		return nil
	}

	db.closed = true

	err := db.kv.Close()
	if err != nil {
		return newEngineError("close", err)
	}

	db.logger.Info().Uint64("epoch", db.epoch).Msg("database closed")

	return nil
}

func (db *Database) usable() error {
	if db.closed {
		return errClosed
	}

	return db.fatal
}

func (db *Database) snapshot() (*Snapshot, error) {
	snap, err := db.kv.Snapshot()
	if err != nil {
		return nil, newEngineError("snapshot", err)
	}

	return newSnapshot(db, snap, db.epoch, db.proofEpoch), nil
}

// checkInfo verifies the description of the database, or writes it when the
// database is new.
func (db *Database) checkInfo() error {
	expected := dbInfo{Version: FormatVersion, Hash: db.algo}
	key := join(metadataPrefix, []byte{dbInfoTag})

	var found bool

	err := db.kv.Update(func(tx kv.WritableTx) error {
		bucket, err := tx.GetBucketOrCreate(bucketName)
		if err != nil {
			return err
		}

		data := bucket.Get(key)
		if data == nil {
			return bucket.Set(key, expected.marshal())
		}

		found = true

		info, err := unmarshalDBInfo(data)
		if err != nil {
			return xerrors.Errorf("corrupted database info: %v", err)
		}

		if info.Version != expected.Version {
			return xerrors.Errorf("unsupported format version %d", info.Version)
		}

		if info.Hash != expected.Hash {
			return xerrors.Errorf("database uses %v but %v is configured",
				info.Hash, expected.Hash)
		}

		return nil
	})
	if err != nil {
		return newEngineError("open", err)
	}

	if !found {
		db.logger.Info().
			Uint64("version", expected.Version).
			Msg("database created")
	}

	return nil
}

// checkMetadata compares the metadata created by a patch with the committed
// one. It returns an IndexTypeError for the first index that was created with
// another type in the meantime.
func checkMetadata(bucket kv.Bucket, changes *viewChanges) error {
	if changes == nil {
		return nil
	}

	it := changes.data.Iterator()
	for it.Next() {
		key := []byte(it.Key().(string))
		value := it.Value().([]byte)

		committed := bucket.Get(join(metadataPrefix, key))
		if committed == nil || value == nil || bytes.Equal(committed, value) {
			continue
		}

		addr, err := addressOfMetadataKey(key)
		if err != nil {
			return xerrors.Errorf("corrupted metadata key %#x: %v", key, err)
		}

		var actual, expected IndexMetadata

		err = actual.UnmarshalBinary(committed)
		if err != nil {
			return xerrors.Errorf("corrupted metadata of '%v': %v", addr, err)
		}

		err = expected.UnmarshalBinary(value)
		if err != nil {
			return xerrors.Errorf("corrupted metadata of '%v': %v", addr, err)
		}

		return actual.Check(addr, expected)
	}

	return nil
}

func writeChanges(bucket kv.Bucket, prefix string, changes *viewChanges) error {
	if changes.cleared {
		var keys [][]byte

		err := bucket.Scan([]byte(prefix), func(key, _ []byte) error {
			keys = append(keys, append([]byte{}, key...))
			return nil
		})
		if err != nil {
			return xerrors.Errorf("failed to scan: %v", err)
		}

		for _, key := range keys {
			err = bucket.Delete(key)
			if err != nil {
				return xerrors.Errorf("failed to delete: %v", err)
			}
		}
	}

	it := changes.data.Iterator()
	for it.Next() {
		key := join(prefix, []byte(it.Key().(string)))
		value := it.Value().([]byte)

		var err error
		if value == nil {
			err = bucket.Delete(key)
		} else {
			err = bucket.Set(key, value)
		}

		if err != nil {
			return xerrors.Errorf("failed to write key %#x: %v", key, err)
		}
	}

	return nil
}
