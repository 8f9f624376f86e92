package merkledb

import (
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/cth001/exonum/core/store/hashtree"
	"golang.org/x/xerrors"
)

// PrefixSize is the size of the key prefix of an index.
const PrefixSize = 16

// MaxNameLength is the maximum length of the name of an index.
const MaxNameLength = 255

// SystemPrefix starts the names of the indexes of the engine and of the core
// schemas, which are not aggregated into the state hash.
const SystemPrefix = "__"

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// Address is the identifier of an index. An index in a group has a non-empty
// identifier within the group, like the history of a given wallet.
type Address struct {
	Name string
	ID   []byte
}

// NewAddress returns the address of a standalone index.
func NewAddress(name string) Address {
	return Address{Name: name}
}

// GroupAddress returns the address of the index of the group with the given
// identifier.
func GroupAddress(name string, id []byte) Address {
	return Address{Name: name, ID: append([]byte{}, id...)}
}

// Validate returns an error if the name is empty, too long or contains
// characters other than letters, digits, underscores, dashes and dots.
func (a Address) Validate() error {
	if a.Name == "" {
		return xerrors.New("empty index name")
	}

	if len(a.Name) > MaxNameLength {
		return xerrors.Errorf("index name too long: %d > %d", len(a.Name), MaxNameLength)
	}

	if !namePattern.MatchString(a.Name) {
		return xerrors.Errorf("invalid index name '%s'", a.Name)
	}

	return nil
}

// IsSystem returns true for the indexes of the engine and of the core schemas.
func (a Address) IsSystem() bool {
	return strings.HasPrefix(a.Name, SystemPrefix)
}

// IsAggregated returns true if the object hash of the index is aggregated into
// the state hash, provided that the index is merkelized.
func (a Address) IsAggregated() bool {
	return !a.IsSystem() && len(a.ID) == 0
}

// Prefix returns the prefix of the keys of the index.
func (a Address) Prefix(hasher hashtree.Hasher) []byte {
	digest := hasher.Hash([]byte(a.Name), []byte{0}, a.ID)

	return digest[:PrefixSize]
}

// String implements fmt.Stringer.
func (a Address) String() string {
	if len(a.ID) == 0 {
		return a.Name
	}

	return a.Name + "[" + hex.EncodeToString(a.ID) + "]"
}

// metadataKey returns the key of the metadata of the index in the pool.
func (a Address) metadataKey() []byte {
	key := make([]byte, 0, 2+len(a.Name)+len(a.ID))
	key = append(key, metadataTag)
	key = append(key, a.Name...)
	key = append(key, 0)

	return append(key, a.ID...)
}

func addressOfMetadataKey(key []byte) (Address, error) {
	if len(key) == 0 || key[0] != metadataTag {
		return Address{}, xerrors.Errorf("invalid metadata key %#x", key)
	}

	rest := key[1:]

	for i, b := range rest {
		if b != 0 {
			continue
		}

		addr := Address{Name: string(rest[:i])}
		if len(rest) > i+1 {
			addr.ID = append([]byte{}, rest[i+1:]...)
		}

		return addr, nil
	}

	return Address{}, xerrors.Errorf("invalid metadata key %#x", key)
}
