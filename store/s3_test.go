package store

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestS3_RoundTrip runs against a real MinIO when MINIO_ENDPOINT is set.
func TestS3_RoundTrip(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_ENDPOINT not set")
	}
	ctx := context.Background()

	s, err := NewS3(ctx, S3Config{
		Endpoint:        endpoint,
		Bucket:          "transitdata-test",
		Prefix:          "run-" + uuid.NewString(),
		AccessKeyID:     os.Getenv("MINIO_ACCESS_KEY"),
		SecretAccessKey: os.Getenv("MINIO_SECRET_KEY"),
	})
	require.NoError(t, err)

	obj, err := s.Put(ctx, "gtfs/a.zip", strings.NewReader("payload"))
	require.NoError(t, err)

	st, err := s.Stat(ctx, "gtfs/a.zip")
	require.NoError(t, err)
	assert.Equal(t, obj.Checksum, st.Checksum)
	assert.Equal(t, int64(7), st.Size)

	rc, err := s.Open(ctx, "gtfs/a.zip")
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "payload", string(body))

	require.NoError(t, s.Delete(ctx, "gtfs/a.zip"))
	_, err = s.Stat(ctx, "gtfs/a.zip")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestNewS3_Validation(t *testing.T) {
	ctx := context.Background()
	_, err := NewS3(ctx, S3Config{Bucket: "b", AccessKeyID: "a", SecretAccessKey: "s"})
	assert.Error(t, err)
	_, err = NewS3(ctx, S3Config{Endpoint: "localhost:9000", AccessKeyID: "a", SecretAccessKey: "s"})
	assert.Error(t, err)
	_, err = NewS3(ctx, S3Config{Endpoint: "localhost:9000", Bucket: "b"})
	assert.Error(t, err)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/zip", contentType("gtfs/a.ZIP"))
	assert.Equal(t, "text/csv", contentType("lodes/x.csv"))
	assert.Equal(t, "application/octet-stream", contentType("lodes/x.parquet"))
}
