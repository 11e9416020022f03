package storage_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"medscan-backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	bucket, key, err := storage.ParseURI("s3://medscan-data/platform/raw_scans/a/b.png")
	require.NoError(t, err)
	assert.Equal(t, "medscan-data", bucket)
	assert.Equal(t, "platform/raw_scans/a/b.png", key)

	_, _, err = storage.ParseURI("gs://bucket/key")
	assert.Error(t, err)

	_, _, err = storage.ParseURI("s3://bucket-only")
	assert.Error(t, err)
}

func TestJoinURI(t *testing.T) {
	assert.Equal(t, "s3://b/k/v.png", storage.JoinURI("b", "k/v.png"))
	assert.Equal(t, "s3://b/k/v.png", storage.JoinURI("b", "/k/v.png"))
}

func TestLocalObjectStore(t *testing.T) {
	ctx := context.Background()

	store, err := storage.NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)

	src := storage.JoinURI("staging", "patients/PT-001/scan/original.png")
	dst := storage.JoinURI("dataset", "vision/tb/train/Tuberculosis/20250101_PT-001_original.png")

	exists, err := store.Exists(ctx, src)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.PutObject(ctx, src, bytes.NewReader([]byte("image-bytes"))))

	exists, err = store.Exists(ctx, src)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.Copy(ctx, src, dst))

	data, err := store.GetObject(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("image-bytes"), data)

	// source stays in place after a copy
	data, err = store.GetObject(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, []byte("image-bytes"), data)

	url, err := store.SignedURL(ctx, dst, time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "file://")
}

func TestLocalObjectStore_CopyMissingSource(t *testing.T) {
	ctx := context.Background()

	store, err := storage.NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)

	err = store.Copy(ctx, storage.JoinURI("staging", "missing.png"), storage.JoinURI("dataset", "x.png"))
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}
