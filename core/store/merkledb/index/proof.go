package index

import (
	"github.com/cth001/exonum/core/store/codec"
	"github.com/cth001/exonum/core/store/hashtree"
	"github.com/cth001/exonum/core/store/hashtree/prooflist"
	"github.com/cth001/exonum/core/store/hashtree/proofmap"
)

// ListEntry is a value of a list revealed by a proof.
type ListEntry[V any] struct {
	Index uint64
	Value V
}

// ListProof is the proof of some values of a proof list, decoded with the
// codec of the list.
type ListProof[V any] struct {
	prooflist.Proof

	codec codec.Codec[V]
}

// NewListProof returns the typed proof of a raw proof, for instance one that
// was received from a peer.
func NewListProof[V any](proof prooflist.Proof, vc codec.Codec[V]) ListProof[V] {
	return ListProof[V]{Proof: proof, codec: vc}
}

// Verify checks the proof against the object hash of the list and returns the
// revealed values.
func (p ListProof[V]) Verify(hasher hashtree.Hasher, expected hashtree.Digest) ([]ListEntry[V], error) {
	entries, err := p.Proof.Verify(hasher, expected)
	if err != nil {
		return nil, err
	}

	res := make([]ListEntry[V], len(entries))

	for i, entry := range entries {
		value, err := decode(p.codec, entry.Value)
		if err != nil {
			return nil, hashtree.NewMalformed("invalid value at index %d: %v", entry.Index, err)
		}

		res[i] = ListEntry[V]{Index: entry.Index, Value: value}
	}

	return res, nil
}

// MapEntry is a key and its value revealed by a proof.
type MapEntry[K, V any] struct {
	Key   K
	Value V
}

// MapProof is the proof of the values of some keys of a proof map, decoded
// with the codecs of the map.
type MapProof[K, V any] struct {
	proofmap.Proof

	keyCodec   codec.Codec[K]
	valueCodec codec.Codec[V]
	raw        bool
}

// NewMapProof returns the typed proof of a raw proof.
func NewMapProof[K, V any](proof proofmap.Proof, kc codec.Codec[K], vc codec.Codec[V]) MapProof[K, V] {
	return MapProof[K, V]{Proof: proof, keyCodec: kc, valueCodec: vc}
}

// NewRawMapProof returns the typed proof of a map opened by NewRawProofMap.
func NewRawMapProof[K, V any](proof proofmap.Proof, kc codec.Codec[K], vc codec.Codec[V]) MapProof[K, V] {
	return MapProof[K, V]{Proof: proof, keyCodec: kc, valueCodec: vc, raw: true}
}

// Verify checks the proof against the object hash of the map and returns the
// revealed entries and the keys proven absent.
func (p MapProof[K, V]) Verify(hasher hashtree.Hasher, expected hashtree.Digest) ([]MapEntry[K, V], []K, error) {
	verify := p.Proof.Verify
	if p.raw {
		verify = p.Proof.VerifyRaw
	}

	entries, missing, err := verify(hasher, expected)
	if err != nil {
		return nil, nil, err
	}

	res := make([]MapEntry[K, V], len(entries))

	for i, entry := range entries {
		key, err := decode(p.keyCodec, entry.Key)
		if err != nil {
			return nil, nil, hashtree.NewMalformed("invalid key %#x: %v", entry.Key, err)
		}

		value, err := decode(p.valueCodec, entry.Value)
		if err != nil {
			return nil, nil, hashtree.NewMalformed("invalid value of key %#x: %v", entry.Key, err)
		}

		res[i] = MapEntry[K, V]{Key: key, Value: value}
	}

	absent := make([]K, len(missing))

	for i, raw := range missing {
		key, err := decode(p.keyCodec, raw)
		if err != nil {
			return nil, nil, hashtree.NewMalformed("invalid missing key %#x: %v", raw, err)
		}

		absent[i] = key
	}

	return res, absent, nil
}
