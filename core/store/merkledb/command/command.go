// Package command defines the cli commands to inspect and edit a merkledb
// database.
package command

import (
	"os"

	"github.com/cth001/exonum/cli"
)

// GlobalFlags returns the flags that select the database. They are given to
// the builder of the application so that every command can open the
// database.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Usage: "path to the YAML configuration of the database",
		},
		cli.StringFlag{
			Name:  "db",
			Usage: "path to the database, when the configuration does not set one",
			Value: "merkledb",
		},
		cli.StringFlag{
			Name:  "backend",
			Usage: "key/value backend: [leveldb | bbolt | memory]",
		},
	}
}

// Initializer implements the merkledb initializer for the cli.
//
// - implements cli.Initializer
type Initializer struct{}

// SetCommands implements cli.Initializer.
func (i Initializer) SetCommands(builder cli.Builder) {
	action := action{
		printer: os.Stdout,
		open:    Open,
	}

	state := builder.SetCommand("state")
	state.SetDescription("print the state hash of the database")
	state.SetAction(action.stateAction)

	indexes := builder.SetCommand("indexes")
	indexes.SetDescription("print the indexes of the database")
	indexes.SetAction(action.indexesAction)

	setMapCommands(builder.SetCommand("map"), action)
	setListCommands(builder.SetCommand("list"), action)

	metrics := builder.SetCommand("metrics")
	metrics.SetDescription("serve the Prometheus metrics")
	metrics.SetFlags(cli.StringFlag{
		Name:  "addr",
		Usage: "listening address",
		Value: "127.0.0.1:9100",
	}, cli.DurationFlag{
		Name:  "duration",
		Usage: "how long to serve, until interrupted if zero",
	})
	metrics.SetAction(metricsAction{action: action, wait: waitSignal}.execute)
}

func setMapCommands(cmd cli.CommandBuilder, action action) {
	cmd.SetDescription("manage a proof map of strings to bytes")

	name := cli.StringFlag{
		Name:     "name",
		Usage:    "name of the map",
		Required: true,
	}

	put := cmd.SetSubCommand("put")
	put.SetDescription("set the value of a key")
	put.SetFlags(name, cli.StringFlag{
		Name:     "key",
		Required: true,
	}, cli.StringFlag{
		Name:  "value",
		Usage: "value of the key, the key is removed if empty",
	})
	put.SetAction(action.mapPutAction)

	get := cmd.SetSubCommand("get")
	get.SetDescription("print the value of a key")
	get.SetFlags(name, cli.StringFlag{
		Name:     "key",
		Required: true,
	})
	get.SetAction(action.mapGetAction)

	prove := cmd.SetSubCommand("prove")
	prove.SetDescription("print the proof of some keys")
	prove.SetFlags(name, cli.StringSliceFlag{
		Name:     "key",
		Usage:    "key to prove, can be repeated",
		Required: true,
	})
	prove.SetAction(action.mapProveAction)
}

func setListCommands(cmd cli.CommandBuilder, action action) {
	cmd.SetDescription("manage a proof list of bytes")

	name := cli.StringFlag{
		Name:     "name",
		Usage:    "name of the list",
		Required: true,
	}

	push := cmd.SetSubCommand("push")
	push.SetDescription("append a value")
	push.SetFlags(name, cli.StringFlag{
		Name:     "value",
		Required: true,
	})
	push.SetAction(action.listPushAction)

	get := cmd.SetSubCommand("get")
	get.SetDescription("print the value at an index")
	get.SetFlags(name, cli.Uint64Flag{
		Name: "index",
	})
	get.SetAction(action.listGetAction)

	prove := cmd.SetSubCommand("prove")
	prove.SetDescription("print the proof of a range of values")
	prove.SetFlags(name, cli.Uint64Flag{
		Name:  "from",
		Usage: "first index of the range",
	}, cli.Uint64Flag{
		Name:     "to",
		Usage:    "index after the last one of the range",
		Required: true,
	})
	prove.SetAction(action.listProveAction)
}
