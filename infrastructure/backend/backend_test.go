package backend

import (
	"context"
	"path/filepath"
	"testing"

	"tutorhub/config"
	"tutorhub/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMemory(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Backend: config.BackendMemory}}

	h, err := Open(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, "memory", h.Backend.Name())
	assert.Nil(t, h.DB)
	assert.Nil(t, h.Redis)

	_, ok := h.Watcher()
	assert.True(t, ok)
}

func TestOpenFile(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{
		Backend:  config.BackendFile,
		FilePath: filepath.Join(t.TempDir(), "store.json"),
	}}

	h, err := Open(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	defer h.Close()

	ctx := context.Background()
	require.NoError(t, h.Backend.Set(ctx, "k", `"v"`))
	v, found, err := h.Backend.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `"v"`, v)
}

func TestOpenUnknown(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Backend: "etcd"}}

	_, err := Open(context.Background(), cfg, logger.Discard())
	assert.Error(t, err)
}
