package command

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cth001/exonum"
	"github.com/cth001/exonum/cli"
	"github.com/cth001/exonum/core/store/codec"
	"github.com/cth001/exonum/core/store/hashtree"
	"github.com/cth001/exonum/core/store/merkledb"
	"github.com/cth001/exonum/core/store/merkledb/index"
	"github.com/cth001/exonum/serde"
	sjson "github.com/cth001/exonum/serde/json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/xerrors"
)

// Open opens the database selected by the global flags. The flags override
// the configuration file.
func Open(flags cli.Flags) (*merkledb.Database, error) {
	cfg := merkledb.DefaultConfig(flags.Path("db"))

	if flags.Path("config") != "" {
		var err error

		cfg, err = merkledb.LoadConfig(flags.Path("config"))
		if err != nil {
			return nil, err
		}

		if cfg.Path == "" {
			cfg.Path = flags.Path("db")
		}
	}

	if flags.String("backend") != "" {
		cfg.Backend = merkledb.Backend(flags.String("backend"))
	}

	return merkledb.Open(cfg)
}

// MapProofJSON is the output of a map proof.
type MapProofJSON struct {
	ObjectHash hashtree.Digest
	Proof      index.MapProof[string, []byte]
}

// ListProofJSON is the output of a list proof.
type ListProofJSON struct {
	ObjectHash hashtree.Digest
	Proof      index.ListProof[[]byte]
}

// action defines the cli actions of the database. The database is opened by
// the function of the action so that it can be replaced in the tests.
type action struct {
	printer io.Writer
	open    func(cli.Flags) (*merkledb.Database, error)
}

func (a action) stateAction(flags cli.Flags) error {
	return a.read(flags, func(snap *merkledb.Snapshot) error {
		hash, err := snap.StateHash()
		if err != nil {
			return xerrors.Errorf("failed to read state hash: %v", err)
		}

		fmt.Fprintf(a.printer, "%x\n", hash[:])

		return nil
	})
}

func (a action) indexesAction(flags cli.Flags) error {
	return a.read(flags, func(snap *merkledb.Snapshot) error {
		infos, err := snap.Indexes()
		if err != nil {
			return xerrors.Errorf("failed to list indexes: %v", err)
		}

		for _, info := range infos {
			fmt.Fprintf(a.printer, "%v\t%v\t%s\t%s\n", info.Address, info.Metadata.Type,
				info.Metadata.KeyCodec, info.Metadata.ValueCodec)
		}

		return nil
	})
}

func (a action) mapPutAction(flags cli.Flags) error {
	return a.update(flags, func(fork *merkledb.Fork) error {
		m, err := openMap(fork, flags.String("name"))
		if err != nil {
			return err
		}

		if flags.String("value") == "" {
			return m.Remove(flags.String("key"))
		}

		return m.Put(flags.String("key"), []byte(flags.String("value")))
	})
}

func (a action) mapGetAction(flags cli.Flags) error {
	return a.read(flags, func(snap *merkledb.Snapshot) error {
		m, err := openMap(snap, flags.String("name"))
		if err != nil {
			return err
		}

		value, found, err := m.Get(flags.String("key"))
		if err != nil {
			return xerrors.Errorf("failed to read: %v", err)
		}

		if !found {
			return xerrors.Errorf("key '%s' not found", flags.String("key"))
		}

		fmt.Fprintln(a.printer, string(value))

		return nil
	})
}

func (a action) mapProveAction(flags cli.Flags) error {
	return a.read(flags, func(snap *merkledb.Snapshot) error {
		m, err := openMap(snap, flags.String("name"))
		if err != nil {
			return err
		}

		proof, err := m.GetMultiproof(flags.StringSlice("key")...)
		if err != nil {
			return xerrors.Errorf("failed to prove: %v", err)
		}

		hash, err := m.ObjectHash()
		if err != nil {
			return xerrors.Errorf("failed to read object hash: %v", err)
		}

		_, _, err = proof.Verify(snap.Hasher(), hash)
		if err != nil {
			return xerrors.Errorf("invalid proof: %v", err)
		}

		return a.print(MapProofJSON{ObjectHash: hash, Proof: proof})
	})
}

func (a action) listPushAction(flags cli.Flags) error {
	return a.update(flags, func(fork *merkledb.Fork) error {
		l, err := openList(fork, flags.String("name"))
		if err != nil {
			return err
		}

		_, err = l.Push([]byte(flags.String("value")))

		return err
	})
}

func (a action) listGetAction(flags cli.Flags) error {
	return a.read(flags, func(snap *merkledb.Snapshot) error {
		l, err := openList(snap, flags.String("name"))
		if err != nil {
			return err
		}

		value, found, err := l.Get(flags.Uint64("index"))
		if err != nil {
			return xerrors.Errorf("failed to read: %v", err)
		}

		if !found {
			return xerrors.Errorf("index %d out of range", flags.Uint64("index"))
		}

		fmt.Fprintln(a.printer, string(value))

		return nil
	})
}

func (a action) listProveAction(flags cli.Flags) error {
	return a.read(flags, func(snap *merkledb.Snapshot) error {
		l, err := openList(snap, flags.String("name"))
		if err != nil {
			return err
		}

		proof, err := l.GetRangeProof(flags.Uint64("from"), flags.Uint64("to"))
		if err != nil {
			return xerrors.Errorf("failed to prove: %v", err)
		}

		hash, err := l.ObjectHash()
		if err != nil {
			return xerrors.Errorf("failed to read object hash: %v", err)
		}

		_, err = proof.Verify(snap.Hasher(), hash)
		if err != nil {
			return xerrors.Errorf("invalid proof: %v", err)
		}

		return a.print(ListProofJSON{ObjectHash: hash, Proof: proof})
	})
}

func (a action) read(flags cli.Flags, fn func(*merkledb.Snapshot) error) error {
	db, err := a.open(flags)
	if err != nil {
		return xerrors.Errorf("failed to open database: %v", err)
	}

	defer db.Close()

	snap, err := db.Snapshot()
	if err != nil {
		return xerrors.Errorf("failed to read database: %v", err)
	}

	defer snap.Release()

	return fn(snap)
}

// update merges the changes of the function and prints the new state hash.
func (a action) update(flags cli.Flags, fn func(*merkledb.Fork) error) error {
	db, err := a.open(flags)
	if err != nil {
		return xerrors.Errorf("failed to open database: %v", err)
	}

	defer db.Close()

	fork, err := db.Fork()
	if err != nil {
		return xerrors.Errorf("failed to create fork: %v", err)
	}

	err = fn(fork)
	if err != nil {
		fork.Release()
		return xerrors.Errorf("failed to write: %v", err)
	}

	err = db.Merge(fork)
	if err != nil {
		return xerrors.Errorf("failed to merge: %v", err)
	}

	hash, err := db.StateHash()
	if err != nil {
		return xerrors.Errorf("failed to read state hash: %v", err)
	}

	fmt.Fprintf(a.printer, "%x\n", hash[:])

	return nil
}

func (a action) print(v interface{}) error {
	return printJSON(a.printer, sjson.NewContext(sjson.WithIndent("  ")), v)
}

func printJSON(out io.Writer, ctx serde.Context, v interface{}) error {
	data, err := ctx.Marshal(v)
	if err != nil {
		return xerrors.Errorf("failed to marshal: %v", err)
	}

	fmt.Fprintln(out, string(data))

	return nil
}

func openMap(access merkledb.Access, name string) (index.ProofMap[string, []byte], error) {
	return index.NewProofMap(access, merkledb.NewAddress(name), codec.String(), codec.Bytes())
}

func openList(access merkledb.Access, name string) (index.ProofList[[]byte], error) {
	return index.NewProofList(access, merkledb.NewAddress(name), codec.Bytes())
}

// metricsAction serves the collectors of the packages until the wait
// function returns.
type metricsAction struct {
	action

	wait func(time.Duration)
}

func (a metricsAction) execute(flags cli.Flags) error {
	db, err := a.open(flags)
	if err != nil {
		return xerrors.Errorf("failed to open database: %v", err)
	}

	defer db.Close()

	registry := prometheus.NewRegistry()

	for _, c := range exonum.PromCollectors {
		err = registry.Register(c)
		if err != nil {
			fmt.Fprintf(a.printer, "ERROR: failed to register: %v\n", err)
		}
	}

	ln, err := net.Listen("tcp", flags.String("addr"))
	if err != nil {
		return xerrors.Errorf("failed to listen: %v", err)
	}

	server := &http.Server{
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go server.Serve(ln)

	fmt.Fprintf(a.printer, "serving metrics on %s\n", ln.Addr())

	a.wait(flags.Duration("duration"))

	return server.Close()
}

// waitSignal waits for the duration, or for an interruption if the duration
// is zero.
func waitSignal(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
		return
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	<-sigs
}
