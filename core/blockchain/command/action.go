package command

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cth001/exonum/cli"
	"github.com/cth001/exonum/core/blockchain"
	"github.com/cth001/exonum/core/ordering/types"
	"github.com/cth001/exonum/core/store/hashtree"
	"github.com/cth001/exonum/core/store/merkledb"
	"github.com/cth001/exonum/crypto"
	"github.com/cth001/exonum/crypto/ed25519"
	"github.com/cth001/exonum/serde"
	sjson "github.com/cth001/exonum/serde/json"
	"golang.org/x/xerrors"
)

// action defines the cli actions of the blockchain. The functions to open the
// database and to access the files are replaced in the tests.
type action struct {
	printer io.Writer

	open      func(cli.Flags) (*merkledb.Database, error)
	genSigner func() ([]byte, error)
	readFile  func(path string) ([]byte, error)
	saveFile  func(path string, force bool, data []byte) error
}

func (a action) newSignerAction(flags cli.Flags) error {
	data, err := a.genSigner()
	if err != nil {
		return xerrors.Errorf("failed to marshal signer: %v", err)
	}

	signer, err := ed25519.NewSignerFromBytes(data)
	if err != nil {
		return xerrors.Errorf("failed to unmarshal signer: %v", err)
	}

	err = a.saveFile(flags.Path("save"), flags.Bool("force"), data)
	if err != nil {
		return xerrors.Errorf("failed to save signer: %v", err)
	}

	text, err := signer.GetPublicKey().MarshalText()
	if err != nil {
		return xerrors.Errorf("failed to marshal public key: %v", err)
	}

	fmt.Fprintln(a.printer, string(text))

	return nil
}

func (a action) genesisAction(flags cli.Flags) error {
	signers, err := a.loadSigners(flags)
	if err != nil {
		return err
	}

	keys := make([]crypto.PublicKey, len(signers))
	for i, signer := range signers {
		keys[i] = signer.GetPublicKey()
	}

	return a.withChain(flags, func(_ *merkledb.Database, bc *blockchain.Blockchain) error {
		block, err := bc.CreateGenesis(keys)
		if err != nil {
			return xerrors.Errorf("failed to create genesis: %v", err)
		}

		return a.print(block)
	})
}

// commitAction commits a block of the current state. The signers vote for
// the block in the round zero.
func (a action) commitAction(flags cli.Flags) error {
	signers, err := a.loadSigners(flags)
	if err != nil {
		return err
	}

	return a.withChain(flags, func(db *merkledb.Database, bc *blockchain.Blockchain) error {
		validators, err := bc.Validators()
		if err != nil {
			return xerrors.Errorf("failed to read validators: %v", err)
		}

		ids := make([]types.ValidatorID, len(signers))

		for i, signer := range signers {
			id, found := indexOf(validators, signer.GetPublicKey())
			if !found {
				return xerrors.Errorf("signer %d is not a validator", i)
			}

			ids[i] = id
		}

		fork, err := db.Fork()
		if err != nil {
			return xerrors.Errorf("failed to create fork: %v", err)
		}

		bp, err := bc.CreateBlock(fork, types.WithProposer(ids[0]))
		if err != nil {
			return xerrors.Errorf("failed to create block: %v", err)
		}

		block := bp.GetBlock()
		precommits := make([]types.Verified, len(signers))

		for i, signer := range signers {
			p := types.NewPrecommit(ids[i], block.GetHeight(), 0, hashtree.Digest{},
				block.GetHash(), time.Now())

			precommits[i], err = p.Sign(signer)
			if err != nil {
				bp.Release()
				return xerrors.Errorf("failed to sign precommit: %v", err)
			}
		}

		err = bc.Commit(bp, precommits)
		if err != nil {
			bp.Release()
			return xerrors.Errorf("failed to commit: %v", err)
		}

		return a.print(block)
	})
}

func (a action) blockAction(flags cli.Flags) error {
	return a.withChain(flags, func(_ *merkledb.Database, bc *blockchain.Blockchain) error {
		height := flags.Int("height")

		if height < 0 {
			length, err := bc.Len()
			if err != nil {
				return xerrors.Errorf("failed to read height: %v", err)
			}

			height = int(length) - 1
		}

		if height < 0 {
			return blockchain.ErrNoBlock
		}

		proof, err := bc.BlockProof(uint64(height))
		if err != nil {
			return xerrors.Errorf("failed to read block %d: %v", height, err)
		}

		return a.print(proof)
	})
}

func (a action) proveAction(flags cli.Flags) error {
	return a.withChain(flags, func(_ *merkledb.Database, bc *blockchain.Blockchain) error {
		proof, err := bc.IndexProof(flags.String("index"))
		if err != nil {
			return xerrors.Errorf("failed to prove: %v", err)
		}

		return a.print(proof)
	})
}

func (a action) withChain(flags cli.Flags, fn func(*merkledb.Database, *blockchain.Blockchain) error) error {
	db, err := a.open(flags)
	if err != nil {
		return xerrors.Errorf("failed to open database: %v", err)
	}

	defer db.Close()

	return fn(db, blockchain.New(db))
}

func (a action) loadSigners(flags cli.Flags) ([]crypto.Signer, error) {
	paths := flags.StringSlice("signer")
	if len(paths) == 0 {
		return nil, xerrors.New("no signer")
	}

	signers := make([]crypto.Signer, len(paths))

	for i, path := range paths {
		data, err := a.readFile(path)
		if err != nil {
			return nil, xerrors.Errorf("failed to read signer: %v", err)
		}

		signers[i], err = ed25519.NewSignerFromBytes(data)
		if err != nil {
			return nil, xerrors.Errorf("failed to unmarshal signer '%s': %v", path, err)
		}
	}

	return signers, nil
}

func (a action) print(msg serde.Message) error {
	data, err := msg.Serialize(sjson.NewContext(sjson.WithIndent("  ")))
	if err != nil {
		return xerrors.Errorf("failed to serialize: %v", err)
	}

	fmt.Fprintln(a.printer, string(data))

	return nil
}

func indexOf(validators []crypto.PublicKey, key crypto.PublicKey) (types.ValidatorID, bool) {
	for i, v := range validators {
		if v.Equal(key) {
			return types.ValidatorID(i), true
		}
	}

	return 0, false
}

func newSigner() ([]byte, error) {
	return ed25519.NewSigner().(ed25519.Signer).MarshalBinary()
}

func saveToFile(path string, force bool, data []byte) error {
	if !force && fileExist(path) {
		return xerrors.Errorf("file '%s' already exists, use --force to overwrite", path)
	}

	err := os.WriteFile(path, data, 0600)
	if err != nil {
		return xerrors.Errorf("failed to write file: %v", err)
	}

	return nil
}

func fileExist(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
