package merkledb

import (
	"github.com/cth001/exonum/core/store/hashtree"
	"github.com/cth001/exonum/core/store/kv"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/xerrors"
)

// View is the raw key space of an index. The keys are relative to the prefix
// of the index. A view opened from a fork writes into the fork, and a view
// opened from a snapshot or a patch is read-only.
//
// - implements hashtree.Storage
type View struct {
	addr   Address
	meta   IndexMetadata
	prefix string

	// fork is nil when the view is read-only.
	fork *Fork
	src  source

	hasher hashtree.Hasher
}

// Address returns the address of the index.
func (v *View) Address() Address {
	return v.addr
}

// Metadata returns the metadata of the index.
func (v *View) Metadata() IndexMetadata {
	return v.meta
}

// Hasher returns the hasher of the database.
func (v *View) Hasher() hashtree.Hasher {
	return v.hasher
}

// IsReadOnly returns true if the view cannot be written.
func (v *View) IsReadOnly() bool {
	return v.fork == nil
}

// Get implements store.Readable. It returns nil if the key is not set.
func (v *View) Get(key []byte) ([]byte, error) {
	if v.fork != nil && v.fork.consumed() {
		return nil, errConsumed
	}

	value, err := v.source().get(v.prefix, key)
	if err != nil {
		return nil, xerrors.Errorf("couldn't read '%v': %w", v.addr, err)
	}

	return value, nil
}

// Set implements store.Writable.
func (v *View) Set(key, value []byte) error {
	changes, err := v.changes()
	if err != nil {
		return err
	}

	changes.put(key, append([]byte{}, value...))

	return nil
}

// Delete implements store.Writable.
func (v *View) Delete(key []byte) error {
	changes, err := v.changes()
	if err != nil {
		return err
	}

	changes.put(key, nil)

	return nil
}

// Clear removes every key of the index.
func (v *View) Clear() error {
	changes, err := v.changes()
	if err != nil {
		return err
	}

	changes.clear()

	return nil
}

// Iterator returns an iterator over the keys of the index that match the
// prefix, from the start key, in ascending order. The pending changes of the
// index are read when the iterator is created.
func (v *View) Iterator(prefix, start []byte) kv.Iterator {
	if v.fork != nil && v.fork.consumed() {
		return emptyIterator{}
	}

	return v.source().iterator(v.prefix, prefix, start)
}

// MarkDirty implements hashtree.Storage. It does nothing on a read-only view.
func (v *View) MarkDirty(key []byte) {
	changes, err := v.changes()
	if err != nil {
		return
	}

	changes.dirty[string(key)] = struct{}{}
}

// DirtyKeys implements hashtree.Storage. It returns the sorted keys marked
// dirty since the last reset, including the ones of the flushed changes.
func (v *View) DirtyKeys() [][]byte {
	if v.fork == nil || v.fork.consumed() {
		return nil
	}

	set := make(map[string]struct{})

	working := v.fork.working[v.prefix]
	if working == nil || !working.resetDirty {
		flushed := v.fork.flushed[v.prefix]
		if flushed != nil {
			maps.Copy(set, flushed.dirty)
		}
	}

	if working != nil {
		maps.Copy(set, working.dirty)
	}

	keys := maps.Keys(set)
	slices.Sort(keys)

	res := make([][]byte, len(keys))
	for i, key := range keys {
		res[i] = []byte(key)
	}

	return res
}

// ResetDirty implements hashtree.Storage.
func (v *View) ResetDirty() {
	changes, err := v.changes()
	if err != nil {
		return
	}

	changes.dirty = make(map[string]struct{})
	changes.resetDirty = true
}

func (v *View) source() source {
	if v.fork != nil {
		return v.fork.source()
	}

	return v.src
}

func (v *View) changes() (*viewChanges, error) {
	if v.fork == nil {
		return nil, xerrors.Errorf("index '%v' is read-only", v.addr)
	}

	if v.fork.consumed() {
		return nil, errConsumed
	}

	return v.fork.changesOf(v.prefix), nil
}
