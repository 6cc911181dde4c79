// Package pathutil contains helpers to locate a repository on disk and
// to validate filesystem path flags.
package pathutil

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/nivlgo/gitlite/internal/gitpath"
	"golang.org/x/xerrors"
)

// ErrNoRepo is returned when no repository is found
var ErrNoRepo = errors.New("not a git repository (or any of the parent directories)")

// WorkingTree returns the absolute path to the working tree containing
// the current directory
func WorkingTree() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", xerrors.Errorf("could not get current working directory: %w", err)
	}
	return WorkingTreeFromPath(wd)
}

// WorkingTreeFromPath returns the absolute path to the root of the repo
// containing the given directory, walking up until a .git directory is
// found or the filesystem root is reached
func WorkingTreeFromPath(p string) (string, error) {
	prev := ""
	for p != prev {
		info, err := os.Stat(filepath.Join(p, gitpath.DotGitPath))
		if err == nil && info.IsDir() {
			return p, nil
		}
		prev = p
		p = filepath.Dir(p)
	}
	return "", ErrNoRepo
}
