package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/localnerve/datashare/internal/config"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactKey(t *testing.T) {
	assert.Equal(t, "p1-d1.csv", ArtifactKey("p1", "d1", "csv"))
}

func TestPutGetRemove(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	store := NewFsStore(fs, true)

	require.NoError(t, store.Put(ctx, "p1-d1.csv", strings.NewReader("a,b\n1,2\n")))
	data, err := store.Get(ctx, "p1-d1.csv")
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))

	require.NoError(t, store.Remove(ctx, "p1-d1.csv"))
	_, err = store.Get(ctx, "p1-d1.csv")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, store.Remove(ctx, "p1-d1.csv"))
}

func TestPutRefusesOverwrite(t *testing.T) {
	ctx := context.Background()
	store := NewFsStore(afero.NewMemMapFs(), false)

	require.NoError(t, store.Put(ctx, "k.json", strings.NewReader("[]")))
	err := store.Put(ctx, "k.json", strings.NewReader(`[{"a":1}]`))
	assert.True(t, errors.Is(err, ErrExists))

	data, err := store.Get(ctx, "k.json")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestPutCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := NewFsStore(afero.NewMemMapFs(), true)
	assert.ErrorIs(t, store.Put(ctx, "k.csv", strings.NewReader("x")), context.Canceled)
}

func TestNewBackends(t *testing.T) {
	ctx := context.Background()

	mem, err := New(ctx, &config.Config{ArtifactBackend: config.BackendMemory})
	require.NoError(t, err)
	assert.NoError(t, Probe(ctx, mem))

	root := t.TempDir()
	disk, err := New(ctx, &config.Config{ArtifactBackend: config.BackendFS, DatasetRoot: root})
	require.NoError(t, err)
	require.NoError(t, disk.Put(ctx, "p-d.csv", strings.NewReader("x\n")))
	exists, err := afero.Exists(afero.NewOsFs(), root+"/p-d.csv")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = New(ctx, &config.Config{ArtifactBackend: "ftp"})
	assert.Error(t, err)
}
