package integrationtests

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/minio"

	"medscan-backend/internal/storage"
)

const (
	minioUsername = "admin"
	minioPassword = "password"
)

func setupMinioContainer(t *testing.T, ctx context.Context) string {
	minioContainer, err := minio.Run(
		ctx,
		"minio/minio:RELEASE.2024-01-16T16-07-38Z",
		minio.WithUsername(minioUsername),
		minio.WithPassword(minioPassword),
	)
	require.NoError(t, err, "Failed to start MinIO container")

	t.Cleanup(func() {
		err := minioContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate MinIO container")
	})

	connStr, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err, "Failed to get MinIO connection string")

	return "http://" + connStr
}

func TestS3ObjectStore(t *testing.T) {
	ctx := context.Background()
	endpoint := setupMinioContainer(t, ctx)

	store, err := storage.NewS3ObjectStore(storage.S3ClientConfig{
		Endpoint:        endpoint,
		Region:          "us-east-1",
		AccessKeyID:     minioUsername,
		SecretAccessKey: minioPassword,
	})
	require.NoError(t, err)

	require.NoError(t, store.CreateBucket(ctx, "platform"))
	require.NoError(t, store.CreateBucket(ctx, "datasets"))
	// Creating an existing bucket is a no-op.
	require.NoError(t, store.CreateBucket(ctx, "platform"))

	srcURI := storage.JoinURI("platform", "raw_scans/patients/PT-0001/scan-1/front.png")
	require.NoError(t, store.PutObject(ctx, srcURI, strings.NewReader("fake image bytes")))

	exists, err := store.Exists(ctx, srcURI)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Exists(ctx, storage.JoinURI("platform", "missing.png"))
	require.NoError(t, err)
	assert.False(t, exists)

	dstURI := storage.JoinURI("datasets", "vision/tb/train/Tuberculosis/20260315_PT-0001_front.png")
	require.NoError(t, store.Copy(ctx, srcURI, dstURI))

	data, err := store.GetObject(ctx, dstURI)
	require.NoError(t, err)
	assert.Equal(t, "fake image bytes", string(data))

	// Source survives a copy.
	data, err = store.GetObject(ctx, srcURI)
	require.NoError(t, err)
	assert.Equal(t, "fake image bytes", string(data))

	_, err = store.GetObject(ctx, storage.JoinURI("datasets", "missing.png"))
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)

	err = store.Copy(ctx, storage.JoinURI("platform", "missing.png"), dstURI)
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)

	signedURL, err := store.SignedURL(ctx, srcURI, time.Minute)
	require.NoError(t, err)

	res, err := http.Get(signedURL)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, "fake image bytes", string(body))
}
