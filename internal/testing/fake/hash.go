package fake

import (
	"hash"
)

// Hash is a fake hash function that fails to write after a number of calls.
//
// - implements hash.Hash
type Hash struct {
	hash.Hash
	delay int
	err   error
}

// NewBadHash returns a hash that fails at the first write.
func NewBadHash() *Hash {
	return &Hash{err: fakeErr}
}

// NewBadHashWithDelay returns a hash that fails after the given number of
// successful writes.
func NewBadHashWithDelay(delay int) *Hash {
	return &Hash{delay: delay, err: fakeErr}
}

// Write implements hash.Hash.
func (h *Hash) Write(data []byte) (int, error) {
	if h.delay > 0 {
		h.delay--
		return len(data), nil
	}

	if h.err != nil {
		return 0, h.err
	}

	return len(data), nil
}

// Sum implements hash.Hash.
func (h *Hash) Sum([]byte) []byte {
	return make([]byte, 32)
}

// HashFactory is a fake factory that returns the configured hash.
//
// - implements crypto.HashFactory
type HashFactory struct {
	hash *Hash
}

// NewHashFactory returns a factory of the given hash.
func NewHashFactory(h *Hash) HashFactory {
	return HashFactory{hash: h}
}

// New implements crypto.HashFactory.
func (f HashFactory) New() hash.Hash {
	return f.hash
}
