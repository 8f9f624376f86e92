package types

import (
	"io"

	"github.com/cth001/exonum/core/store/hashtree"
	"github.com/cth001/exonum/crypto"
	"github.com/cth001/exonum/serde"
	"golang.org/x/xerrors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Block is the header of a block. It commits to the state of the database
// after the execution of its transactions through the state hash.
//
// - implements serde.Message
// - implements serde.Fingerprinter
type Block struct {
	digest    hashtree.Digest
	proposer  ValidatorID
	height    uint64
	txCount   uint32
	prevHash  hashtree.Digest
	txHash    hashtree.Digest
	stateHash hashtree.Digest
	errorHash hashtree.Digest
}

type blockTemplate struct {
	Block

	hashFactory crypto.HashFactory
}

// BlockOption is the type of option to set some fields of a block.
type BlockOption func(*blockTemplate)

// WithProposer is an option to set the validator that proposed the block.
func WithProposer(id ValidatorID) BlockOption {
	return func(tmpl *blockTemplate) {
		tmpl.proposer = id
	}
}

// WithTransactions is an option to set the number of transactions and the
// root of their list.
func WithTransactions(count uint32, root hashtree.Digest) BlockOption {
	return func(tmpl *blockTemplate) {
		tmpl.txCount = count
		tmpl.txHash = root
	}
}

// WithPrevHash is an option to set the hash of the previous block.
func WithPrevHash(hash hashtree.Digest) BlockOption {
	return func(tmpl *blockTemplate) {
		tmpl.prevHash = hash
	}
}

// WithStateHash is an option to set the state hash of the database.
func WithStateHash(hash hashtree.Digest) BlockOption {
	return func(tmpl *blockTemplate) {
		tmpl.stateHash = hash
	}
}

// WithErrorHash is an option to set the root of the execution errors.
func WithErrorHash(hash hashtree.Digest) BlockOption {
	return func(tmpl *blockTemplate) {
		tmpl.errorHash = hash
	}
}

// WithHashFactory is an option to set the hash factory used to compute the
// hash of the block.
func WithHashFactory(fac crypto.HashFactory) BlockOption {
	return func(tmpl *blockTemplate) {
		tmpl.hashFactory = fac
	}
}

// NewBlock creates a new block at the given height.
func NewBlock(height uint64, opts ...BlockOption) (Block, error) {
	tmpl := blockTemplate{
		Block: Block{
			height: height,
		},
		hashFactory: crypto.NewSha256Factory(),
	}

	for _, opt := range opts {
		opt(&tmpl)
	}

	h := tmpl.hashFactory.New()

	err := tmpl.Fingerprint(h)
	if err != nil {
		return tmpl.Block, xerrors.Errorf("fingerprint failed: %v", err)
	}

	copy(tmpl.digest[:], h.Sum(nil))

	return tmpl.Block, nil
}

// GetHash returns the digest of the block.
func (b Block) GetHash() hashtree.Digest {
	return b.digest
}

// GetProposer returns the validator that proposed the block.
func (b Block) GetProposer() ValidatorID {
	return b.proposer
}

// GetHeight returns the height of the block.
func (b Block) GetHeight() uint64 {
	return b.height
}

// GetTxCount returns the number of transactions of the block.
func (b Block) GetTxCount() uint32 {
	return b.txCount
}

// GetPrevHash returns the hash of the previous block.
func (b Block) GetPrevHash() hashtree.Digest {
	return b.prevHash
}

// GetTxHash returns the root of the transactions of the block.
func (b Block) GetTxHash() hashtree.Digest {
	return b.txHash
}

// GetStateHash returns the state hash of the database after the block.
func (b Block) GetStateHash() hashtree.Digest {
	return b.stateHash
}

// GetErrorHash returns the root of the execution errors of the block.
func (b Block) GetErrorHash() hashtree.Digest {
	return b.errorHash
}

// MarshalBinary implements encoding.BinaryMarshaler. It returns the canonical
// encoding of the header.
func (b Block) MarshalBinary() ([]byte, error) {
	var data []byte
	data = appendVarint(data, 1, uint64(b.proposer))
	data = appendVarint(data, 2, b.height)
	data = appendVarint(data, 3, uint64(b.txCount))
	data = appendDigest(data, 4, b.prevHash)
	data = appendDigest(data, 5, b.txHash)
	data = appendDigest(data, 6, b.stateHash)
	data = appendDigest(data, 7, b.errorHash)

	return data, nil
}

// Fingerprint implements serde.Fingerprinter. It writes the canonical encoding
// of the header.
func (b Block) Fingerprint(w io.Writer) error {
	data, _ := b.MarshalBinary()

	_, err := w.Write(data)
	if err != nil {
		return xerrors.Errorf("couldn't write header: %v", err)
	}

	return nil
}

// Serialize implements serde.Message.
func (b Block) Serialize(ctx serde.Context) ([]byte, error) {
	format := blockFormats.Get(ctx.GetFormat())

	data, err := format.Encode(ctx, b)
	if err != nil {
		return nil, xerrors.Errorf("encoding failed: %v", err)
	}

	return data, nil
}

// BlockFactory is the factory of the blocks.
//
// - implements serde.Factory
type BlockFactory struct {
	hashFactory crypto.HashFactory
}

// NewBlockFactory returns a factory that computes the hashes of the blocks
// with SHA-256, or with the given hash factory.
func NewBlockFactory(fac ...crypto.HashFactory) BlockFactory {
	f := BlockFactory{hashFactory: crypto.NewSha256Factory()}

	if len(fac) > 0 {
		f.hashFactory = fac[0]
	}

	return f
}

// HashFactory returns the hash factory of the blocks.
func (f BlockFactory) HashFactory() crypto.HashFactory {
	return f.hashFactory
}

// Deserialize implements serde.Factory.
func (f BlockFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	format := blockFormats.Get(ctx.GetFormat())

	ctx = serde.WithFactory(ctx, BlockKey{}, f)

	msg, err := format.Decode(ctx, data)
	if err != nil {
		return nil, xerrors.Errorf("decoding failed: %v", err)
	}

	return msg, nil
}

// BlockOf returns the block of the canonical encoding.
func (f BlockFactory) BlockOf(data []byte) (Block, error) {
	var proposer, height, txCount uint64
	var prevHash, txHash, stateHash, errorHash hashtree.Digest

	err := consumeFields(data, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			return consumeVarint(typ, data, &proposer)
		case 2:
			return consumeVarint(typ, data, &height)
		case 3:
			return consumeVarint(typ, data, &txCount)
		case 4:
			return consumeDigest(typ, data, &prevHash)
		case 5:
			return consumeDigest(typ, data, &txHash)
		case 6:
			return consumeDigest(typ, data, &stateHash)
		case 7:
			return consumeDigest(typ, data, &errorHash)
		default:
			return 0, xerrors.New("unknown field")
		}
	})
	if err != nil {
		return Block{}, xerrors.Errorf("malformed block: %v", err)
	}

	if proposer > 0xffff || txCount > 0xffffffff {
		return Block{}, xerrors.New("malformed block: value out of range")
	}

	block, err := NewBlock(height,
		WithProposer(ValidatorID(proposer)),
		WithTransactions(uint32(txCount), txHash),
		WithPrevHash(prevHash),
		WithStateHash(stateHash),
		WithErrorHash(errorHash),
		WithHashFactory(f.hashFactory))
	if err != nil {
		return Block{}, err
	}

	canonical, _ := block.MarshalBinary()

	err = checkCanonical(data, canonical)
	if err != nil {
		return Block{}, xerrors.Errorf("malformed block: %v", err)
	}

	return block, nil
}
