//
// Documentation Last Review: 19.10.2026
//

package crypto

import (
	"crypto/sha256"
	"hash"

	"golang.org/x/crypto/sha3"
	"golang.org/x/xerrors"
)

// HashAlgorithm is the identifier of a hash function producing 32 bytes
// digests.
type HashAlgorithm int

const (
	// Sha256 is the SHA-2 hash function with 256 bits digests.
	Sha256 HashAlgorithm = iota
	// Sha3_256 is the SHA-3 hash function with 256 bits digests.
	Sha3_256
)

var algorithmNames = map[HashAlgorithm]string{
	Sha256:   "sha256",
	Sha3_256: "sha3-256",
}

// String implements fmt.Stringer. It returns the name of the algorithm as it
// appears in the configuration.
func (a HashAlgorithm) String() string {
	name, found := algorithmNames[a]
	if !found {
		return "unknown"
	}

	return name
}

// ParseHashAlgorithm returns the algorithm with the given name.
func ParseHashAlgorithm(name string) (HashAlgorithm, error) {
	for algo, n := range algorithmNames {
		if n == name {
			return algo, nil
		}
	}

	return 0, xerrors.Errorf("unknown hash algorithm '%s'", name)
}

// hashFactory is a hash factory that is using SHA algorithms.
//
// - implements crypto.HashFactory
type hashFactory struct {
	hashType HashAlgorithm
}

// NewSha256Factory returns a factory of SHA-256 hashes.
func NewSha256Factory() HashFactory {
	return hashFactory{hashType: Sha256}
}

// NewHashFactory returns a new instance of the factory for the algorithm.
func NewHashFactory(a HashAlgorithm) HashFactory {
	return hashFactory{hashType: a}
}

// New implements crypto.HashFactory. It returns a new Hash instance.
func (f hashFactory) New() hash.Hash {
	switch f.hashType {
	case Sha256:
		return sha256.New()
	case Sha3_256:
		return sha3.New256()
	default:
		panic("unknown hash type")
	}
}
