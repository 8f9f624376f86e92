// Package command defines the cli commands to create and prove the blocks of
// a blockchain stored in a merkledb database.
package command

import (
	"os"

	"github.com/cth001/exonum/cli"
	dbcmd "github.com/cth001/exonum/core/store/merkledb/command"
)

// Initializer implements the blockchain initializer for the cli.
//
// - implements cli.Initializer
type Initializer struct{}

// SetCommands implements cli.Initializer.
func (i Initializer) SetCommands(builder cli.Builder) {
	action := action{
		printer:   os.Stdout,
		open:      dbcmd.Open,
		genSigner: newSigner,
		readFile:  os.ReadFile,
		saveFile:  saveToFile,
	}

	cmd := builder.SetCommand("chain")
	cmd.SetDescription("manage the blocks of the database")

	signer := cmd.SetSubCommand("signer")
	signer.SetDescription("create the key of a validator")
	signer.SetFlags(cli.StringFlag{
		Name:     "save",
		Usage:    "file of the private key",
		Required: true,
	}, cli.BoolFlag{
		Name:  "force",
		Usage: "overwrite the file if it exists",
	})
	signer.SetAction(action.newSignerAction)

	signers := cli.StringSliceFlag{
		Name:     "signer",
		Usage:    "file of the private key of a validator, can be repeated",
		Required: true,
	}

	genesis := cmd.SetSubCommand("genesis")
	genesis.SetDescription("create the genesis block with the keys of the validators")
	genesis.SetFlags(signers)
	genesis.SetAction(action.genesisAction)

	commit := cmd.SetSubCommand("commit")
	commit.SetDescription("commit a block of the current state")
	commit.SetFlags(signers)
	commit.SetAction(action.commitAction)

	block := cmd.SetSubCommand("block")
	block.SetDescription("print the proof of a block")
	block.SetFlags(cli.IntFlag{
		Name:  "height",
		Usage: "height of the block, the last one if negative",
		Value: -1,
	})
	block.SetAction(action.blockAction)

	prove := cmd.SetSubCommand("prove")
	prove.SetDescription("print the proof of an index against the last block")
	prove.SetFlags(cli.StringFlag{
		Name:     "index",
		Usage:    "name of the index",
		Required: true,
	})
	prove.SetAction(action.proveAction)
}
