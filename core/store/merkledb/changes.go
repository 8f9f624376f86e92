package merkledb

import (
	"bytes"

	"github.com/cth001/exonum/core/store/kv"
	"github.com/emirpasic/gods/trees/redblacktree"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// viewChanges are the pending changes of an index. A deleted key is kept as a
// nil value so that it hides the value of the layers below.
type viewChanges struct {
	data    *redblacktree.Tree
	cleared bool

	dirty map[string]struct{}
	// resetDirty is set when the dirty keys of the layers below were flushed.
	resetDirty bool
}

func newViewChanges() *viewChanges {
	return &viewChanges{
		data:  redblacktree.NewWithStringComparator(),
		dirty: make(map[string]struct{}),
	}
}

// get returns the value of the key and true if the key is changed.
func (c *viewChanges) get(key []byte) ([]byte, bool) {
	value, found := c.data.Get(string(key))
	if !found {
		return nil, false
	}

	return value.([]byte), true
}

func (c *viewChanges) put(key, value []byte) {
	c.data.Put(string(key), value)
}

func (c *viewChanges) clear() {
	c.data.Clear()
	c.cleared = true
}

func (c *viewChanges) dirtyKeys() []string {
	keys := maps.Keys(c.dirty)
	slices.Sort(keys)

	return keys
}

// apply writes the changes on top of these ones.
func (c *viewChanges) apply(other *viewChanges) {
	if other.cleared {
		c.clear()
	}

	it := other.data.Iterator()
	for it.Next() {
		c.data.Put(it.Key(), it.Value())
	}

	if other.resetDirty {
		c.dirty = make(map[string]struct{})
	}

	for key := range other.dirty {
		c.dirty[key] = struct{}{}
	}
}

// entries returns the changes of the keys matching the prefix, starting from
// the start key, in ascending order.
func (c *viewChanges) entries(prefix, start []byte) []change {
	seek := kv.SeekKey(prefix, start)

	var res []change

	it := c.data.Iterator()
	for it.Next() {
		key := []byte(it.Key().(string))

		if bytes.Compare(key, seek) < 0 {
			continue
		}

		if !bytes.HasPrefix(key, prefix) {
			break
		}

		res = append(res, change{key: key, value: it.Value().([]byte)})
	}

	return res
}

func (c *viewChanges) size() int {
	return c.data.Size()
}

type change struct {
	key   []byte
	value []byte
}

// changeSet is the pending changes of several indexes, by prefix.
type changeSet map[string]*viewChanges

func (s changeSet) prefixes() []string {
	prefixes := maps.Keys(s)
	slices.Sort(prefixes)

	return prefixes
}

// layered is a source that reads a stack of change sets, the first having the
// highest priority, on top of a base source.
type layered struct {
	layers []changeSet
	base   source
}

func (l layered) get(prefix string, key []byte) ([]byte, error) {
	for _, layer := range l.layers {
		changes := layer[prefix]
		if changes == nil {
			continue
		}

		value, found := changes.get(key)
		if found {
			return value, nil
		}

		if changes.cleared {
			return nil, nil
		}
	}

	return l.base.get(prefix, key)
}

func (l layered) iterator(prefix string, keyPrefix, start []byte) kv.Iterator {
	return l.iteratorFrom(0, prefix, keyPrefix, start)
}

func (l layered) iteratorFrom(depth int, prefix string, keyPrefix, start []byte) kv.Iterator {
	if depth == len(l.layers) {
		return l.base.iterator(prefix, keyPrefix, start)
	}

	changes := l.layers[depth][prefix]
	if changes == nil {
		return l.iteratorFrom(depth+1, prefix, keyPrefix, start)
	}

	var base kv.Iterator
	if !changes.cleared {
		base = l.iteratorFrom(depth+1, prefix, keyPrefix, start)
	}

	return &mergeIterator{
		overlay: changes.entries(keyPrefix, start),
		base:    base,
	}
}

// mergeIterator iterates over the changes of a layer and the keys of the
// layer below, the changes taking precedence.
//
// - implements kv.Iterator
type mergeIterator struct {
	overlay []change
	pos     int

	base      kv.Iterator
	baseKey   []byte
	baseValue []byte
	baseValid bool

	key   []byte
	value []byte
	err   error
}

// Next implements kv.Iterator.
func (it *mergeIterator) Next() bool {
	for {
		it.fillBase()

		hasOverlay := it.pos < len(it.overlay)
		if !hasOverlay && !it.baseValid {
			it.key, it.value = nil, nil
			return false
		}

		var cmp int
		switch {
		case !hasOverlay:
			cmp = 1
		case !it.baseValid:
			cmp = -1
		default:
			cmp = bytes.Compare(it.overlay[it.pos].key, it.baseKey)
		}

		if cmp > 0 {
			it.key, it.value = it.baseKey, it.baseValue
			it.baseValid = false

			return true
		}

		entry := it.overlay[it.pos]
		it.pos++

		if cmp == 0 {
			it.baseValid = false
		}

		if entry.value == nil {
			continue
		}

		it.key, it.value = entry.key, entry.value

		return true
	}
}

func (it *mergeIterator) fillBase() {
	if it.baseValid || it.base == nil {
		return
	}

	if it.base.Next() {
		it.baseKey = append([]byte{}, it.base.Key()...)
		it.baseValue = append([]byte{}, it.base.Value()...)
		it.baseValid = true

		return
	}

	it.err = it.base.Error()
	it.base.Release()
	it.base = nil
}

// Key implements kv.Iterator.
func (it *mergeIterator) Key() []byte {
	return it.key
}

// Value implements kv.Iterator.
func (it *mergeIterator) Value() []byte {
	return it.value
}

// Error implements kv.Iterator.
func (it *mergeIterator) Error() error {
	return it.err
}

// Release implements kv.Iterator.
func (it *mergeIterator) Release() {
	if it.base != nil {
		it.base.Release()
		it.base = nil
	}

	it.pos = len(it.overlay)
}

// emptyIterator iterates over nothing. It reports the error it is created
// with, if any.
//
// - implements kv.Iterator
type emptyIterator struct {
	err error
}

func (emptyIterator) Next() bool { return false }

func (emptyIterator) Key() []byte { return nil }

func (emptyIterator) Value() []byte { return nil }

func (it emptyIterator) Error() error { return it.err }

func (emptyIterator) Release() {}
