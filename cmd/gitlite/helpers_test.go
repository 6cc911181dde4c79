package main

import (
	"path/filepath"
	"testing"

	git "github.com/nivlgo/gitlite"
	"github.com/nivlgo/gitlite/internal/env"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stringValue is a minimal pflag.Value that always returns a fixed
// string, standing in for the real -C flag in tests.
type stringValue string

func (v stringValue) String() string      { return string(v) }
func (v *stringValue) Set(s string) error { *v = stringValue(s); return nil }
func (v stringValue) Type() string        { return "string" }

func TestLoadRepository(t *testing.T) {
	t.Parallel()

	repoPath := t.TempDir()
	repo, err := git.InitRepository(repoPath)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	testCases := []struct {
		desc        string
		C           string
		expectError bool
	}{
		{
			desc: "A given path should be used",
			C:    repoPath,
		},
		{
			desc:        "Invalid path should return an error",
			C:           filepath.Join(t.TempDir(), "nope"),
			expectError: true,
		},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			sv := stringValue(tc.C)
			cfg := &globalFlags{
				env: env.NewFromKVList([]string{}),
				C:   &sv,
			}
			got, err := loadRepository(cfg)
			if tc.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, got)
			t.Cleanup(func() {
				assert.NoError(t, got.Close())
			})
		})
	}
}
