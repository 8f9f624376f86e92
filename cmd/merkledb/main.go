// Package main provides a cli to inspect and edit a merkledb database, and to
// commit and prove the blocks of the chain stored in it.
//
//	merkledb --db data chain signer --save alice.key
//	merkledb --db data chain genesis --signer alice.key
//	merkledb --db data map put --name wallets --key alice --value 10
//	merkledb --db data chain commit --signer alice.key
//	merkledb --db data chain prove --index wallets
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/cth001/exonum/cli"
	"github.com/cth001/exonum/cli/ucli"
	chain "github.com/cth001/exonum/core/blockchain/command"
	db "github.com/cth001/exonum/core/store/merkledb/command"
)

var builder cli.Builder = ucli.NewBuilder("merkledb", nil, db.GlobalFlags()...)
var printer io.Writer = os.Stderr

func main() {
	err := run(os.Args, db.Initializer{}, chain.Initializer{})
	if err != nil {
		fmt.Fprintf(printer, "%+v\n", err)
		os.Exit(1)
	}
}

func run(args []string, inits ...cli.Initializer) error {
	for _, init := range inits {
		init.SetCommands(builder)
	}

	app := builder.Build()
	err := app.Run(args)
	if err != nil {
		return err
	}

	return nil
}
