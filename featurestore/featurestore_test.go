package featurestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash(t *testing.T) {
	t.Parallel()
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		Hash(nil))
	assert.NotEqual(t, Hash([]byte("a")), Hash([]byte("b")))
}

func TestFileStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "features")

	fs, err := NewFile(dir)
	require.NoError(t, err)

	data := []byte(`{"pair":"EUR_USD"}`)
	h := Hash(data)
	path, err := fs.Put(ctx, h, data)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, h+".json"), path)

	again, err := fs.Put(ctx, h, data)
	require.NoError(t, err)
	assert.Equal(t, path, again)

	got, err := fs.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = fs.Get(ctx, filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = fs.Put(ctx, "", data)
	assert.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("FXCALIB_TEST_REDIS")
	if addr == "" {
		t.Skip("FXCALIB_TEST_REDIS not set")
	}
	ctx := context.Background()

	rs, err := NewRedis(WithRedisAddr(addr), WithRedisPrefix("fxcalib-test"), WithRedisTTL(time.Minute))
	require.NoError(t, err)
	defer rs.Close()

	data := []byte(`{"pair":"USD_JPY"}`)
	path, err := rs.Put(ctx, Hash(data), data)
	require.NoError(t, err)
	assert.Equal(t, "redis://fxcalib-test:features:"+Hash(data), path)

	got, err := rs.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = rs.Get(ctx, "redis://fxcalib-test:features:none")
	assert.ErrorIs(t, err, ErrNotFound)
}
