package backend

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nivlgo/gitlite/ginternals"
	"github.com/nivlgo/gitlite/ginternals/config"
	"github.com/nivlgo/gitlite/ginternals/object"
	"github.com/nivlgo/gitlite/internal/gitpath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T, dir string) *Backend {
	t.Helper()
	cfg, err := config.LoadConfigSkipEnv(config.LoadConfigOptions{
		WorkTreePath: dir,
		GitDirPath:   filepath.Join(dir, gitpath.DotGitPath),
	})
	require.NoError(t, err)

	b, err := NewFS(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, b.Close())
	})
	return b
}

func TestObject(t *testing.T) {
	t.Parallel()

	t.Run("existing loose object should be returned", func(t *testing.T) {
		t.Parallel()

		b := newTestBackend(t, t.TempDir())
		require.NoError(t, b.Init(ginternals.Master))

		o := object.New(object.TypeBlob, []byte("package packfile and other content"))
		oid, err := b.WriteObject(o)
		require.NoError(t, err)

		obj, err := b.Object(oid)
		require.NoError(t, err)
		require.NotNil(t, obj)

		assert.Equal(t, oid, obj.ID())
		assert.Equal(t, object.TypeBlob, obj.Type())
		assert.Equal(t, "package packfile", string(obj.Bytes()[:16]))
	})

	t.Run("un-existing object should fail", func(t *testing.T) {
		t.Parallel()

		b := newTestBackend(t, t.TempDir())
		require.NoError(t, b.Init(ginternals.Master))

		oid, err := ginternals.NewOidFromStr("2dcdadc2a420225783794fbffd51e2e137a69646")
		require.NoError(t, err)

		obj, err := b.Object(oid)
		require.Error(t, err)
		require.Nil(t, obj)
		require.True(t, errors.Is(err, ginternals.ErrObjectNotFound), "unexpected error received")
	})
}

func TestHasObject(t *testing.T) {
	t.Parallel()

	t.Run("existing object should exist", func(t *testing.T) {
		t.Parallel()

		b := newTestBackend(t, t.TempDir())
		require.NoError(t, b.Init(ginternals.Master))

		oid, err := b.WriteObject(object.New(object.TypeBlob, []byte("data")))
		require.NoError(t, err)

		exists, err := b.HasObject(oid)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("non-existing object should not exist", func(t *testing.T) {
		t.Parallel()

		b := newTestBackend(t, t.TempDir())
		require.NoError(t, b.Init(ginternals.Master))

		fakeOid, err := ginternals.NewOidFromStr("2dcdadc2a420225783794fbffd51e2e137a69646")
		require.NoError(t, err)

		exists, err := b.HasObject(fakeOid)
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestWriteObject(t *testing.T) {
	t.Parallel()

	t.Run("add a new blob", func(t *testing.T) {
		t.Parallel()

		b := newTestBackend(t, t.TempDir())
		require.NoError(t, b.Init(ginternals.Master))

		o := object.New(object.TypeBlob, []byte("data"))
		oid, err := b.WriteObject(o)
		require.NoError(t, err)
		assert.NotEqual(t, ginternals.NullOid, oid, "invalid oid returned")

		// assert it's on disk
		storedO, err := b.Object(oid)
		require.NoError(t, err)
		assert.Equal(t, o.Type(), storedO.Type(), "invalid type")
		assert.Equal(t, o.Size(), storedO.Size(), "invalid size")
		assert.Equal(t, o.Bytes(), storedO.Bytes(), "invalid content")
		assert.NotEqual(t, ginternals.NullOid, storedO.ID(), "invalid ID")

		// make sure the blob was persisted
		p := filepath.Join(b.ObjectsPath(), storedO.ID().String()[0:2], storedO.ID().String()[2:])
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o444), info.Mode(), "objects should be read only")
	})

	t.Run("Writing the same object twice should not trigger a rewrite", func(t *testing.T) {
		t.Parallel()

		b := newTestBackend(t, t.TempDir())
		require.NoError(t, b.Init(ginternals.Master))

		o := object.New(object.TypeBlob, []byte("data"))
		oid, err := b.WriteObject(o)
		require.NoError(t, err)
		assert.NotEqual(t, ginternals.NullOid, oid, "invalid oid returned")

		p := filepath.Join(b.ObjectsPath(), oid.String()[0:2], oid.String()[2:])
		originalInfo, err := os.Stat(p)
		require.NoError(t, err)

		time.Sleep(10 * time.Millisecond)
		_, err = b.WriteObject(o)
		require.NoError(t, err)
		info, err := os.Stat(p)
		require.NoError(t, err)

		assert.Equal(t, originalInfo.ModTime(), info.ModTime())
	})
}

func TestWalkLooseObjectIDs(t *testing.T) {
	t.Parallel()

	t.Run("Should return all the objects", func(t *testing.T) {
		t.Parallel()

		b := newTestBackend(t, t.TempDir())
		require.NoError(t, b.Init(ginternals.Master))

		_, err := b.WriteObject(object.New(object.TypeBlob, []byte("one")))
		require.NoError(t, err)
		_, err = b.WriteObject(object.New(object.TypeBlob, []byte("two")))
		require.NoError(t, err)

		totalObject := 0
		err = b.WalkLooseObjectIDs(func(oid ginternals.Oid) error {
			totalObject++
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, totalObject)
	})

	t.Run("Should stop the walk", func(t *testing.T) {
		t.Parallel()

		b := newTestBackend(t, t.TempDir())
		require.NoError(t, b.Init(ginternals.Master))

		_, err := b.WriteObject(object.New(object.TypeBlob, []byte("one")))
		require.NoError(t, err)
		_, err = b.WriteObject(object.New(object.TypeBlob, []byte("two")))
		require.NoError(t, err)

		totalObject := 0
		err = b.WalkLooseObjectIDs(func(oid ginternals.Oid) error {
			totalObject++
			return WalkStop
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, totalObject)
	})

	t.Run("Should propagate an error", func(t *testing.T) {
		t.Parallel()

		b := newTestBackend(t, t.TempDir())
		require.NoError(t, b.Init(ginternals.Master))

		_, err := b.WriteObject(object.New(object.TypeBlob, []byte("one")))
		require.NoError(t, err)

		someErr := errors.New("some error")
		err = b.WalkLooseObjectIDs(func(oid ginternals.Oid) error {
			return someErr
		})
		assert.Error(t, err)
		assert.ErrorIs(t, err, someErr)
	})
}

func TestIsLooseObjectDir(t *testing.T) {
	t.Parallel()

	b := newTestBackend(t, t.TempDir())
	require.NoError(t, b.Init(ginternals.Master))

	t.Run("Any directory from 00 to ff should be valid", func(t *testing.T) {
		t.Parallel()

		for i := int64(0); i < 256; i++ {
			hex := fmt.Sprintf("%02x", i)
			assert.True(t, b.isLooseObjectDir(hex), "%s (%d) should pass", hex, i)
		}
	})

	shouldFail := true
	testCases := []struct {
		desc     string
		name     string
		expected bool
	}{
		{
			desc:     "Should fail with a name too long",
			name:     "fff",
			expected: shouldFail,
		},
		{
			desc:     "Should fail with a name too short",
			name:     "f",
			expected: shouldFail,
		},
		{
			desc:     "Should fail with an invalid hex",
			name:     "gg",
			expected: shouldFail,
		},
	}
	for i, tc := range testCases {
		tc := tc
		i := i
		t.Run(fmt.Sprintf("%d/%s", i, tc.desc), func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, !b.isLooseObjectDir(tc.name), tc.expected)
		})
	}
}
