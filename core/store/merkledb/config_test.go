package merkledb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cth001/exonum/crypto"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
backend: bbolt
path: /var/lib/exonum/db
cache_size: 128
hash: sha3-256
leveldb:
  max_open_files: 64
`

	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, BackendBolt, cfg.Backend)
	require.Equal(t, "/var/lib/exonum/db", cfg.Path)
	require.Equal(t, 128, cfg.CacheSize)
	require.Equal(t, "sha3-256", cfg.Hash)
	require.Equal(t, 64, cfg.LevelDB.MaxOpenFiles)

	// Missing fields keep the default values.
	require.True(t, cfg.Sync)
	require.Equal(t, 8, cfg.LevelDB.BlockCacheMB)

	require.NoError(t, os.WriteFile(path, []byte("unknown: 1\n"), 0644))

	_, err = LoadConfig(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to parse config: ")

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read config: ")
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	backends := []Backend{BackendLevelDB, BackendBolt, BackendMemory}

	for _, backend := range backends {
		cfg := DefaultConfig(filepath.Join(dir, string(backend)))
		cfg.Backend = backend

		db, err := Open(cfg)
		require.NoError(t, err, backend)

		fork, err := db.Fork()
		require.NoError(t, err)

		view, err := fork.Open(NewAddress("notes"), plainMap)
		require.NoError(t, err)
		require.NoError(t, view.Set([]byte("a"), []byte("b")))
		require.NoError(t, db.Merge(fork))

		snap, err := db.Snapshot()
		require.NoError(t, err)
		require.Equal(t, []byte("b"), get(t, snap, "notes", plainMap, "a"))
		snap.Release()

		require.NoError(t, db.Close())
	}

	// The hash algorithm is pinned at creation.
	cfg := DefaultConfig(filepath.Join(dir, string(BackendLevelDB)))
	cfg.Hash = crypto.Sha3_256.String()

	_, err := Open(cfg)
	require.True(t, IsEngineError(err))

	cfg.Hash = "md5"
	_, err = Open(cfg)
	require.EqualError(t, err, "invalid config: unknown hash algorithm 'md5'")

	cfg = DefaultConfig(dir)
	cfg.Backend = "rocksdb"
	_, err = Open(cfg)
	require.EqualError(t, err, "invalid config: unknown backend 'rocksdb'")

	cfg = DefaultConfig(filepath.Join(dir, "file"))
	require.NoError(t, os.WriteFile(cfg.Path, []byte("not a directory"), 0644))

	_, err = Open(cfg)
	require.True(t, IsEngineError(err))
}
