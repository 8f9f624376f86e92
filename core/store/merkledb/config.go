package merkledb

import (
	"os"

	"github.com/cth001/exonum/core/store/kv"
	"github.com/cth001/exonum/core/store/kv/leveldb"
	"github.com/cth001/exonum/crypto"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

// Backend is the name of a key/value database implementation.
type Backend string

const (
	// BackendLevelDB stores the database in a leveldb directory.
	BackendLevelDB Backend = "leveldb"
	// BackendBolt stores the database in a bbolt file.
	BackendBolt Backend = "bbolt"
	// BackendMemory keeps the database in memory.
	BackendMemory Backend = "memory"
)

// LevelDBConfig is the tuning of the leveldb backend.
type LevelDBConfig struct {
	BlockCacheMB int `yaml:"block_cache_mb"`
	MaxOpenFiles int `yaml:"max_open_files"`
}

// Config is the configuration of a database.
type Config struct {
	Backend Backend `yaml:"backend"`
	Path    string  `yaml:"path"`
	Sync    bool    `yaml:"sync"`

	// MmapSize is the initial size of the memory map of the bbolt backend.
	MmapSize int `yaml:"mmap_size"`

	// CacheSize is the number of entries of the read cache. Zero disables it.
	CacheSize int `yaml:"cache_size"`

	// Hash is the name of the hash algorithm, pinned when the database is
	// created.
	Hash string `yaml:"hash"`

	LevelDB LevelDBConfig `yaml:"leveldb"`
}

// DefaultConfig returns the default configuration of a database at the path.
func DefaultConfig(path string) Config {
	return Config{
		Backend:   BackendLevelDB,
		Path:      path,
		Sync:      true,
		CacheSize: 4096,
		Hash:      crypto.Sha256.String(),
		LevelDB: LevelDBConfig{
			BlockCacheMB: 8,
			MaxOpenFiles: 500,
		},
	}
}

// LoadConfig reads the YAML configuration file. The missing fields take their
// default values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, xerrors.Errorf("failed to read config: %v", err)
	}

	cfg := DefaultConfig("")

	err = yaml.UnmarshalStrict(data, &cfg)
	if err != nil {
		return Config{}, xerrors.Errorf("failed to parse config: %v", err)
	}

	return cfg, nil
}

// Open opens or creates the database described by the configuration.
func Open(cfg Config) (*Database, error) {
	algo, err := crypto.ParseHashAlgorithm(cfg.Hash)
	if err != nil {
		return nil, xerrors.Errorf("invalid config: %v", err)
	}

	var db kv.DB

	switch cfg.Backend {
	case BackendLevelDB:
		db, err = leveldb.New(cfg.Path, leveldb.Options{
			BlockCacheCapacity:     cfg.LevelDB.BlockCacheMB * 1024 * 1024,
			OpenFilesCacheCapacity: cfg.LevelDB.MaxOpenFiles,
			NoSync:                 !cfg.Sync,
		})
	case BackendBolt:
		db, err = kv.NewWithOptions(cfg.Path, kv.Options{
			InitialMmapSize: cfg.MmapSize,
			NoSync:          !cfg.Sync,
		})
	case BackendMemory:
		db, err = leveldb.NewInMemory()
	default:
		return nil, xerrors.Errorf("invalid config: unknown backend '%s'", cfg.Backend)
	}

	if err != nil {
		return nil, newEngineError("open", err)
	}

	database, err := NewDatabase(db, WithHashAlgorithm(algo), WithCacheSize(cfg.CacheSize))
	if err != nil {
		db.Close()
		return nil, err
	}

	return database, nil
}
