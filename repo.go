// Package git exposes a porcelain-ish Repository type that wires the
// ginternals object model and reference store onto a storage backend.
// It's the package cmd/gitlite and other callers use instead of talking
// to backend.Backend directly.
package git

import (
	"errors"
	"path/filepath"

	"github.com/nivlgo/gitlite/backend"
	"github.com/nivlgo/gitlite/ginternals"
	"github.com/nivlgo/gitlite/ginternals/config"
	"github.com/nivlgo/gitlite/ginternals/object"
	"github.com/nivlgo/gitlite/internal/env"
	"github.com/nivlgo/gitlite/internal/gitpath"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

// List of errors returned by the Repository struct
var (
	ErrRepositoryNotExist           = errors.New("repository does not exist")
	ErrRepositoryUnsupportedVersion = errors.New("repository not supported")
	ErrRepositoryExists             = errors.New("repository already exists")
)

// Repository represents a git repository: the .git/ directory inside a
// project, tracking every change made to the project's files over time.
// https://blog.axosoft.com/learning-git-repository/
type Repository struct {
	backend  backend.Backend
	repoRoot string
	wt       afero.Fs
}

// InitOptions contains all the optional data used to initialize a
// repository.
type InitOptions struct {
	// IsBare represents whether a bare repository will be created or not
	IsBare bool
	// InitialBranchName is the branch HEAD points to right after init.
	// Defaults to ginternals.Master.
	InitialBranchName string
	// FS is the filesystem backing both the .git directory and, unless
	// IsBare is set, the work tree. Defaults to the OS filesystem.
	FS afero.Fs
}

// InitRepository creates the .git directory in the given path, which is
// where almost everything Git stores and manipulates is located.
// https://git-scm.com/book/en/v2/Git-Internals-Plumbing-and-Porcelain#ch10-git-internals
func InitRepository(repoPath string) (*Repository, error) {
	return InitRepositoryWithOptions(repoPath, InitOptions{})
}

// InitRepositoryWithOptions creates the .git directory in the given
// path using the given options.
func InitRepositoryWithOptions(repoPath string, opts InitOptions) (*Repository, error) {
	fs := opts.FS
	if fs == nil {
		fs = afero.NewOsFs()
	}

	gitDirPath := repoPath
	if !opts.IsBare {
		gitDirPath = filepath.Join(repoPath, gitpath.DotGitPath)
	}

	cfg, err := config.LoadConfigSkipEnv(config.LoadConfigOptions{
		FS:               fs,
		WorkTreePath:     repoPath,
		GitDirPath:       gitDirPath,
		IsBare:           opts.IsBare,
		SkipGitDirLookUp: true,
	})
	if err != nil {
		return nil, xerrors.Errorf("could not build repository config: %w", err)
	}

	return InitRepositoryFromConfig(cfg, opts.InitialBranchName)
}

// InitRepositoryFromConfig initializes a repository using an
// already-loaded config, so a caller that built its own Config (e.g.
// to honor $GIT_DIR/$GIT_WORK_TREE or --separate-git-dir) doesn't have
// to re-derive it.
func InitRepositoryFromConfig(cfg *config.Config, branchName string) (*Repository, error) {
	b, err := backend.NewFS(cfg)
	if err != nil {
		return nil, xerrors.Errorf("could not construct backend: %w", err)
	}

	branch := branchName
	if branch == "" {
		branch = ginternals.Master
	}

	if err := b.Init(branch); err != nil {
		if errors.Is(err, ginternals.ErrRefExists) {
			return nil, ErrRepositoryExists
		}
		return nil, xerrors.Errorf("could not initialize repository: %w", err)
	}

	r := &Repository{backend: b, repoRoot: cfg.WorkTreePath}
	if cfg.WorkTreePath != "" {
		r.wt = cfg.FS
	}
	return r, nil
}

// OpenOptions contains all the optional data used to open a repository.
type OpenOptions struct {
	// IsBare represents whether the repository is bare or not
	IsBare bool
	// FS is the filesystem the .git directory lives on. Defaults to the
	// OS filesystem.
	FS afero.Fs
}

// OpenRepository loads an existing git repository by reading its config
// file, and returns a Repository instance.
func OpenRepository(repoPath string) (*Repository, error) {
	return OpenRepositoryWithOptions(repoPath, OpenOptions{})
}

// OpenRepositoryWithOptions loads an existing git repository using the
// given options.
func OpenRepositoryWithOptions(repoPath string, opts OpenOptions) (*Repository, error) {
	fs := opts.FS
	if fs == nil {
		fs = afero.NewOsFs()
	}

	gitDirPath := repoPath
	if !opts.IsBare {
		gitDirPath = filepath.Join(repoPath, gitpath.DotGitPath)
	}

	cfg, err := config.LoadConfig(env.NewFromOS(), config.LoadConfigOptions{
		FS:           fs,
		WorkTreePath: repoPath,
		GitDirPath:   gitDirPath,
		IsBare:       opts.IsBare,
	})
	if err != nil {
		return nil, xerrors.Errorf("could not load repository config: %w", err)
	}

	return OpenRepositoryFromConfig(cfg)
}

// OpenRepositoryFromConfig opens a repository from an already-loaded
// config, so a caller that built its own Config (e.g. to honor
// $GIT_DIR/$GIT_WORK_TREE/-C) doesn't have to re-derive it.
func OpenRepositoryFromConfig(cfg *config.Config) (*Repository, error) {
	b, err := backend.NewFS(cfg)
	if err != nil {
		return nil, xerrors.Errorf("could not construct backend: %w", err)
	}

	// Since we can't cheaply check whether the .git directory is a real
	// repository, we check for HEAD instead, since every valid
	// repository has one.
	if _, err := b.Reference(ginternals.Head); err != nil {
		return nil, ErrRepositoryNotExist
	}

	if fromFiles := cfg.FromFile(); fromFiles != nil {
		if version, ok := fromFiles.RepoFormatVersion(); ok && version != 0 {
			return nil, ErrRepositoryUnsupportedVersion
		}
	}

	r := &Repository{backend: b, repoRoot: cfg.WorkTreePath}
	if cfg.WorkTreePath != "" {
		r.wt = cfg.FS
	}
	return r, nil
}

// IsBare returns whether the repository has no work tree.
func (r *Repository) IsBare() bool {
	return r.wt == nil
}

// Backend returns the storage backend powering this repository, giving
// callers (e.g. the clone orchestrator) direct access to the odb and
// ref store when the porcelain methods aren't enough.
func (r *Repository) Backend() backend.Backend {
	return r.backend
}

// Close releases any resource held by the repository's backend.
func (r *Repository) Close() error {
	return r.backend.Close()
}

// GetObject returns the object matching the given oid.
func (r *Repository) GetObject(oid ginternals.Oid) (*object.Object, error) {
	return r.backend.Object(oid)
}

// WriteObject writes an object to the odb and returns its Oid.
func (r *Repository) WriteObject(o *object.Object) (ginternals.Oid, error) {
	return r.backend.WriteObject(o)
}

// Reference returns the reference matching the given name, resolving
// symbolic references (e.g. HEAD) along the way.
func (r *Repository) Reference(name string) (*ginternals.Reference, error) {
	return r.backend.Reference(name)
}

// NewBlob creates, stores, and returns a new blob object.
func (r *Repository) NewBlob(data []byte) (*object.Blob, error) {
	o := object.New(object.TypeBlob, data)
	if _, err := r.backend.WriteObject(o); err != nil {
		return nil, xerrors.Errorf("could not write blob: %w", err)
	}
	return o.AsBlob(), nil
}
