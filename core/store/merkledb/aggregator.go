package merkledb

import (
	"bytes"

	"github.com/cth001/exonum/core/store/hashtree"
	"github.com/cth001/exonum/core/store/hashtree/prooflist"
	"github.com/cth001/exonum/core/store/hashtree/proofmap"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/xerrors"
)

// AggregatorName is the name of the system map of the object hashes of the
// aggregated indexes. Its object hash is the state hash.
const AggregatorName = "__STATE_AGGREGATOR__"

// AggregatorMetadata is the metadata of the state aggregator. The keys are the
// names of the indexes and the values their object hashes.
var AggregatorMetadata = IndexMetadata{
	Type:       ProofMapType,
	KeyCodec:   "string",
	ValueCodec: "digest",
}

var aggregatorAddress = NewAddress(AggregatorName)

// ObjectHash returns the hash of a merkelized index. The hash of a proof entry
// is the hash of its value, or the zero digest when it is not set.
func ObjectHash(view *View) (hashtree.Digest, error) {
	hasher := view.Hasher()

	switch view.meta.Type {
	case ProofEntryType:
		value, err := view.Get(nil)
		if err != nil || value == nil {
			return hashtree.Digest{}, err
		}

		return hasher.HashLeaf(value), nil
	case ProofListType:
		return prooflist.New(view, hasher).ObjectHash()
	case ProofMapType:
		return proofmap.New(view, hasher).ObjectHash()
	case RawProofMapType:
		return proofmap.New(view, hasher, proofmap.WithRawKeys()).ObjectHash()
	default:
		return hashtree.Digest{}, xerrors.Errorf("index '%v' of type %v has no hash",
			view.addr, view.meta.Type)
	}
}

// aggregator updates the state aggregator. The aggregator is left untouched
// when no hash is put.
type aggregator struct {
	tree    proofmap.Tree
	changed bool
}

func newAggregator(view *View) *aggregator {
	return &aggregator{tree: proofmap.New(view, view.Hasher())}
}

func (a *aggregator) put(name string, hash hashtree.Digest) error {
	current, err := a.tree.Get([]byte(name))
	if err != nil {
		return xerrors.Errorf("couldn't read '%s': %v", name, err)
	}

	if bytes.Equal(current, hash[:]) {
		return nil
	}

	err = a.tree.Put([]byte(name), hash.Bytes())
	if err != nil {
		return xerrors.Errorf("couldn't aggregate '%s': %v", name, err)
	}

	a.changed = true

	return nil
}

func (a *aggregator) flush() error {
	if !a.changed {
		return nil
	}

	err := a.tree.Flush()
	if err != nil {
		return xerrors.Errorf("couldn't flush the aggregator: %v", err)
	}

	return nil
}

func stateHash(access Access, hasher hashtree.Hasher) (hashtree.Digest, error) {
	view, err := access.Open(aggregatorAddress, AggregatorMetadata)
	if err != nil {
		return hashtree.Digest{}, err
	}

	return proofmap.New(view, hasher).ObjectHash()
}

func sortedKeys(set map[string]struct{}) []string {
	keys := maps.Keys(set)
	slices.Sort(keys)

	return keys
}
