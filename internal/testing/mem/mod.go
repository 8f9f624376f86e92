// Package mem implements an in-memory storage of a single merkelized index,
// used to test the trees without a database. A storage can be staged to write
// on top of it without modifying it.
package mem

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Storage is an in-memory key space. The deleted keys are kept as tombstones
// so that a staged storage hides the values of its parent.
//
// - implements hashtree.Storage
type Storage struct {
	parent *Storage
	values map[string][]byte
	dirty  map[string]struct{}
}

// NewStorage returns an empty storage.
func NewStorage() *Storage {
	return &Storage{
		values: make(map[string][]byte),
		dirty:  make(map[string]struct{}),
	}
}

// Get implements store.Readable. It looks up the parents when the key is not
// set at this level.
func (s *Storage) Get(key []byte) ([]byte, error) {
	value, found := s.values[string(key)]
	if found {
		return value, nil
	}

	if s.parent == nil {
		return nil, nil
	}

	return s.parent.Get(key)
}

// Set implements store.Writable.
func (s *Storage) Set(key, value []byte) error {
	if value == nil {
		value = []byte{}
	}

	s.values[string(key)] = value

	return nil
}

// Delete implements store.Writable.
func (s *Storage) Delete(key []byte) error {
	s.values[string(key)] = nil

	return nil
}

// MarkDirty implements hashtree.Storage.
func (s *Storage) MarkDirty(key []byte) {
	s.dirty[string(key)] = struct{}{}
}

// DirtyKeys implements hashtree.Storage.
func (s *Storage) DirtyKeys() [][]byte {
	keys := maps.Keys(s.dirty)
	slices.Sort(keys)

	res := make([][]byte, len(keys))
	for i, key := range keys {
		res[i] = []byte(key)
	}

	return res
}

// ResetDirty implements hashtree.Storage.
func (s *Storage) ResetDirty() {
	s.dirty = make(map[string]struct{})
}

// Len returns the number of keys set at this level and in the parents.
func (s *Storage) Len() int {
	count := 0
	seen := make(map[string]struct{})

	for cur := s; cur != nil; cur = cur.parent {
		for key, value := range cur.values {
			_, found := seen[key]
			if found {
				continue
			}

			seen[key] = struct{}{}

			if value != nil {
				count++
			}
		}
	}

	return count
}

// Stage returns a new storage on top of this one. The writes of the staged
// storage are invisible to this one.
func (s *Storage) Stage() *Storage {
	child := NewStorage()
	child.parent = s

	return child
}
