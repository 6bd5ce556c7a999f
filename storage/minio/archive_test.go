package minio

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/poiesic/docpipe/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	assert.ErrorIs(t, Config{}.Validate(), ErrMissingEndpoint)
	assert.ErrorIs(t, Config{Endpoint: "   "}.Validate(), ErrMissingEndpoint)
	assert.NoError(t, Config{Endpoint: "localhost:9000"}.Validate())
}

func TestConfigBucketDefault(t *testing.T) {
	assert.Equal(t, DefaultBucket, Config{}.bucket())
	assert.Equal(t, "mine", Config{Bucket: " mine "}.bucket())
}

func TestNewArchive_MissingEndpoint(t *testing.T) {
	_, err := NewArchive(context.Background(), Config{})
	assert.ErrorIs(t, err, ErrMissingEndpoint)
}

// TestArchive_RoundTrip runs against a live server when DOCPIPE_MINIO_ENDPOINT is set.
func TestArchive_RoundTrip(t *testing.T) {
	endpoint := os.Getenv("DOCPIPE_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("DOCPIPE_MINIO_ENDPOINT not set")
	}
	ctx := context.Background()
	archive, err := NewArchive(ctx, Config{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("DOCPIPE_MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("DOCPIPE_MINIO_SECRET_KEY"),
		Bucket:    "docpipe-test",
	})
	require.NoError(t, err)

	data := []byte("archived bytes")
	fp := core.FingerprintOf(data)
	require.NoError(t, archive.Put(ctx, fp, bytes.NewReader(data), int64(len(data)), "text/plain"))
	require.NoError(t, archive.Put(ctx, fp, bytes.NewReader(data), int64(len(data)), "text/plain"))

	exists, err := archive.Exists(ctx, fp)
	require.NoError(t, err)
	assert.True(t, exists)
}
