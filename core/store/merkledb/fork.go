package merkledb

import (
	"github.com/cth001/exonum/core/store/hashtree"
	"github.com/rs/xid"
	"golang.org/x/xerrors"
)

var errConsumed = xerrors.New("fork already converted into a patch")

// Fork is a set of changes on top of a snapshot of the database. The changes
// are kept in memory until the fork is merged.
//
// The changes are written in a working layer that can be flushed into the
// fork, or rolled back to the last flush. A fork must not be used by several
// goroutines at the same time.
//
// - implements merkledb.Readable
type Fork struct {
	id       xid.ID
	db       *Database
	snapshot *Snapshot

	flushed changeSet
	working changeSet

	// opened is the metadata of the indexes opened in the fork, by prefix,
	// and pending the ones opened since the last flush.
	opened  map[string]IndexInfo
	pending map[string]IndexInfo
}

func newFork(db *Database, snap *Snapshot, flushed changeSet, opened map[string]IndexInfo) *Fork {
	return &Fork{
		id:       xid.New(),
		db:       db,
		snapshot: snap,
		flushed:  flushed,
		working:  make(changeSet),
		opened:   opened,
		pending:  make(map[string]IndexInfo),
	}
}

// ID returns the identifier of the fork.
func (f *Fork) ID() xid.ID {
	return f.id
}

// Open implements merkledb.Access. The index is created if it does not exist.
func (f *Fork) Open(addr Address, meta IndexMetadata) (*View, error) {
	if f.consumed() {
		return nil, errConsumed
	}

	err := addr.Validate()
	if err != nil {
		return nil, xerrors.Errorf("invalid address: %v", err)
	}

	prefix := string(addr.Prefix(f.db.hasher))

	info, found := f.lookup(prefix)
	if found {
		err = info.Metadata.Check(addr, meta)
		if err != nil {
			return nil, err
		}

		return &View{addr: info.Address, meta: meta, prefix: prefix, fork: f, hasher: f.db.hasher}, nil
	}

	existing, found, err := readMetadata(f.source(), addr)
	if err != nil {
		return nil, err
	}

	if found {
		err = existing.Check(addr, meta)
		if err != nil {
			return nil, err
		}
	} else {
		data, err := meta.MarshalBinary()
		if err != nil {
			return nil, xerrors.Errorf("failed to encode metadata: %v", err)
		}

		f.changesOf(metadataPrefix).put(addr.metadataKey(), data)

		f.db.logger.Debug().
			Str("fork", f.id.String()).
			Stringer("index", addr).
			Stringer("type", meta.Type).
			Msg("index created")
	}

	f.pending[prefix] = IndexInfo{Address: addr, Metadata: meta}

	return &View{addr: addr, meta: meta, prefix: prefix, fork: f, hasher: f.db.hasher}, nil
}

// Hasher implements merkledb.Access.
func (f *Fork) Hasher() hashtree.Hasher {
	return f.db.hasher
}

// StateHash implements merkledb.Readable. It computes the pending hashes of
// the merkelized indexes in the working layer.
func (f *Fork) StateHash() (hashtree.Digest, error) {
	if f.consumed() {
		return hashtree.Digest{}, errConsumed
	}

	err := f.updateHashes()
	if err != nil {
		return hashtree.Digest{}, err
	}

	return stateHash(f, f.db.hasher)
}

// Indexes implements merkledb.Readable.
func (f *Fork) Indexes() ([]IndexInfo, error) {
	if f.consumed() {
		return nil, errConsumed
	}

	return listIndexes(f)
}

// Flush moves the working changes into the fork. A rollback afterwards does
// not discard them.
func (f *Fork) Flush() {
	if f.consumed() {
		return
	}

	for prefix, changes := range f.working {
		flushed := f.flushed[prefix]
		if flushed == nil {
			flushed = newViewChanges()
			f.flushed[prefix] = flushed
		}

		flushed.apply(changes)
	}

	for prefix, info := range f.pending {
		f.opened[prefix] = info
	}

	f.working = make(changeSet)
	f.pending = make(map[string]IndexInfo)
}

// Rollback discards the working changes since the last flush.
func (f *Fork) Rollback() {
	if f.consumed() {
		return
	}

	f.working = make(changeSet)
	f.pending = make(map[string]IndexInfo)
}

// IntoPatch flushes the fork, computes the hashes of the merkelized indexes
// and the state aggregator, and returns the patch. The fork must not be used
// afterwards.
func (f *Fork) IntoPatch() (*Patch, error) {
	if f.consumed() {
		return nil, errConsumed
	}

	err := f.updateHashes()
	if err != nil {
		return nil, xerrors.Errorf("couldn't update hashes: %v", err)
	}

	f.Flush()

	merkelized := false
	for prefix := range f.flushed {
		info, found := f.opened[prefix]
		if found && info.Metadata.Type.IsMerkelized() {
			merkelized = true
		}
	}

	patch := &Patch{
		id:         f.id,
		db:         f.db,
		snapshot:   f.snapshot,
		changes:    f.flushed,
		opened:     f.opened,
		merkelized: merkelized,
	}

	f.snapshot = nil
	f.flushed = nil
	f.working = nil

	return patch, nil
}

// Release frees the snapshot of a fork that is discarded.
func (f *Fork) Release() {
	if f.snapshot != nil {
		f.snapshot.Release()
	}
}

// updateHashes computes the hashes of the merkelized indexes that changed,
// and writes the object hashes of the aggregated ones into the state
// aggregator.
func (f *Fork) updateHashes() error {
	changed := make(map[string]struct{})
	for prefix := range f.flushed {
		changed[prefix] = struct{}{}
	}

	for prefix := range f.working {
		changed[prefix] = struct{}{}
	}

	aggregator, err := f.Open(aggregatorAddress, AggregatorMetadata)
	if err != nil {
		return err
	}

	agg := newAggregator(aggregator)

	for _, prefix := range sortedKeys(changed) {
		info, found := f.lookup(prefix)
		if !found || !info.Metadata.Type.IsMerkelized() || prefix == aggregator.prefix {
			continue
		}

		view := &View{
			addr:   info.Address,
			meta:   info.Metadata,
			prefix: prefix,
			fork:   f,
			hasher: f.db.hasher,
		}

		hash, err := ObjectHash(view)
		if err != nil {
			return xerrors.Errorf("couldn't hash '%v': %v", info.Address, err)
		}

		if info.Address.IsAggregated() {
			err = agg.put(info.Address.Name, hash)
			if err != nil {
				return err
			}
		}
	}

	return agg.flush()
}

func (f *Fork) lookup(prefix string) (IndexInfo, bool) {
	info, found := f.pending[prefix]
	if !found {
		info, found = f.opened[prefix]
	}

	return info, found
}

func (f *Fork) consumed() bool {
	return f.working == nil
}

func (f *Fork) changesOf(prefix string) *viewChanges {
	changes := f.working[prefix]
	if changes == nil {
		changes = newViewChanges()
		f.working[prefix] = changes
	}

	return changes
}

func (f *Fork) source() source {
	return layered{layers: []changeSet{f.working, f.flushed}, base: f.snapshot}
}

// Patch is the set of changes of a fork, with the hashes of the merkelized
// indexes computed. It can be read, merged into the database, or converted
// back into a fork.
//
// - implements merkledb.Readable
type Patch struct {
	id         xid.ID
	db         *Database
	snapshot   *Snapshot
	changes    changeSet
	opened     map[string]IndexInfo
	merkelized bool
	merged     bool
}

// Open implements merkledb.Access.
func (p *Patch) Open(addr Address, meta IndexMetadata) (*View, error) {
	if p.merged {
		return nil, xerrors.New("patch already merged")
	}

	return openReadOnly(p.source(), p.db.hasher, addr, meta)
}

// Hasher implements merkledb.Access.
func (p *Patch) Hasher() hashtree.Hasher {
	return p.db.hasher
}

// StateHash implements merkledb.Readable.
func (p *Patch) StateHash() (hashtree.Digest, error) {
	return stateHash(p, p.db.hasher)
}

// Indexes implements merkledb.Readable.
func (p *Patch) Indexes() ([]IndexInfo, error) {
	if p.merged {
		return nil, xerrors.New("patch already merged")
	}

	return listIndexes(p)
}

// Len returns the number of changed keys.
func (p *Patch) Len() int {
	count := 0
	for _, changes := range p.changes {
		count += changes.size()
	}

	return count
}

// Fork converts the patch into a fork that continues to write on top of its
// changes. The patch must not be used afterwards.
func (p *Patch) Fork() (*Fork, error) {
	if p.merged {
		return nil, xerrors.New("patch already merged")
	}

	fork := newFork(p.db, p.snapshot, p.changes, p.opened)
	fork.id = p.id

	p.merged = true
	p.snapshot = nil

	return fork, nil
}

// Release frees the snapshot of a patch that is discarded.
func (p *Patch) Release() {
	if p.snapshot != nil {
		p.snapshot.Release()
	}
}

func (p *Patch) source() source {
	return layered{layers: []changeSet{p.changes}, base: p.snapshot}
}

func openReadOnly(src source, hasher hashtree.Hasher, addr Address, meta IndexMetadata) (*View, error) {
	err := addr.Validate()
	if err != nil {
		return nil, xerrors.Errorf("invalid address: %v", err)
	}

	existing, found, err := readMetadata(src, addr)
	if err != nil {
		return nil, err
	}

	if found {
		err = existing.Check(addr, meta)
		if err != nil {
			return nil, err
		}
	}

	view := &View{
		addr:   addr,
		meta:   meta,
		prefix: string(addr.Prefix(hasher)),
		src:    src,
		hasher: hasher,
	}

	return view, nil
}

func readMetadata(src source, addr Address) (IndexMetadata, bool, error) {
	var meta IndexMetadata

	data, err := src.get(metadataPrefix, addr.metadataKey())
	if err != nil {
		return meta, false, newEngineError("read metadata", err)
	}

	if data == nil {
		return meta, false, nil
	}

	err = meta.UnmarshalBinary(data)
	if err != nil {
		return meta, false, newEngineError("read metadata",
			xerrors.Errorf("corrupted metadata of '%v': %v", addr, err))
	}

	return meta, true, nil
}

type sourced interface {
	source() source
}

func listIndexes(access sourced) ([]IndexInfo, error) {
	it := access.source().iterator(metadataPrefix, []byte{metadataTag}, nil)
	defer it.Release()

	var infos []IndexInfo

	for it.Next() {
		addr, err := addressOfMetadataKey(it.Key())
		if err != nil {
			return nil, newEngineError("list indexes", err)
		}

		var meta IndexMetadata
		err = meta.UnmarshalBinary(it.Value())
		if err != nil {
			return nil, newEngineError("list indexes",
				xerrors.Errorf("corrupted metadata of '%v': %v", addr, err))
		}

		infos = append(infos, IndexInfo{Address: addr, Metadata: meta})
	}

	if it.Error() != nil {
		return nil, newEngineError("list indexes", it.Error())
	}

	return infos, nil
}
