package backend

import (
	"sync"

	"github.com/nivlgo/gitlite/ginternals/config"
	"github.com/nivlgo/gitlite/internal/syncutil"
	"github.com/spf13/afero"
)

// namedMutexSize controls how many stripes the object-level locking
// uses. Collisions just mean two unrelated oids occasionally share a
// lock, which is harmless, only a little less concurrent.
const namedMutexSize = 256

// Backend is a filesystem-backed implementation of the Backend interface.
// It stores objects as zlib-compressed loose files and references as
// plain files/packed-refs, the same layout .git itself uses.
type Backend struct {
	fs     afero.Fs
	config *config.Config

	// looseObjects tracks every oid this backend has seen, keyed by
	// ginternals.Oid, so existence checks don't need to hit the fs.
	looseObjects sync.Map
	// refs tracks every reference name to its raw file content, keyed
	// by the reference's unix-style path.
	refs sync.Map

	objectMu *syncutil.NamedMutex
}

// NewFS creates a Backend that reads and writes data from/to the
// filesystem described by cfg.
func NewFS(cfg *config.Config) (*Backend, error) {
	b := &Backend{
		fs:       cfg.FS,
		config:   cfg,
		objectMu: syncutil.NewNamedMutex(namedMutexSize),
	}
	if b.fs == nil {
		b.fs = afero.NewOsFs()
	}

	if err := b.loadConfig(); err != nil {
		return nil, err
	}
	if err := b.loadLooseObject(); err != nil {
		return nil, err
	}
	if err := b.loadRefs(); err != nil {
		return nil, err
	}

	return b, nil
}

// Close releases the resources held by the backend. The filesystem-based
// backend doesn't hold on to anything that needs explicit closing.
func (b *Backend) Close() error {
	return nil
}

// Path returns the path to the .git directory
func (b *Backend) Path() string {
	return b.config.GitDirPath
}

// ObjectsPath returns the path to the .git/objects directory
func (b *Backend) ObjectsPath() string {
	return b.config.ObjectDirPath
}

// Config returns the repository config backing this backend, so
// callers can read or update .git/config (e.g. to record a remote
// after a clone).
func (b *Backend) Config() *config.Config {
	return b.config
}
