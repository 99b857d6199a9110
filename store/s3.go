package store

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const checksumMetaKey = "Xxhash64"

// S3Config configures an S3/MinIO backend.
type S3Config struct {
	Endpoint        string
	Bucket          string
	Prefix          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// S3 stores artifacts as objects in a bucket using the minio-go SDK.
type S3 struct {
	client *minio.Client
	cfg    S3Config
}

// NewS3 connects to the endpoint and makes sure the bucket exists.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("s3 credentials are required")
	}

	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL
	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		if u.Scheme == "https" {
			useSSL = true
		}
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &S3{client: client, cfg: cfg}, nil
}

func (s *S3) objectKey(key string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if s.cfg.Prefix == "" {
		return key, nil
	}
	return path.Join(strings.Trim(s.cfg.Prefix, "/"), key), nil
}

// Put spools r to a temp file to learn its size and checksum, then uploads it.
func (s *S3) Put(ctx context.Context, key string, r io.Reader) (Object, error) {
	objKey, err := s.objectKey(key)
	if err != nil {
		return Object{}, err
	}

	spool, err := os.CreateTemp("", "transitdata-s3-*")
	if err != nil {
		return Object{}, err
	}
	defer func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}()

	h := xxhash.New()
	n, err := io.Copy(io.MultiWriter(spool, h), &ctxReader{ctx: ctx, r: r})
	if err != nil {
		return Object{}, fmt.Errorf("spool %s: %w", key, err)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return Object{}, err
	}
	sum := hex.EncodeToString(h.Sum(nil))

	info, err := s.client.PutObject(ctx, s.cfg.Bucket, objKey, spool, n, minio.PutObjectOptions{
		ContentType:  contentType(key),
		UserMetadata: map[string]string{checksumMetaKey: sum},
	})
	if err != nil {
		return Object{}, fmt.Errorf("upload %s: %w", s.Location(key), err)
	}
	return Object{Key: key, Size: n, Checksum: sum, ModTime: info.LastModified}, nil
}

func (s *S3) Stat(ctx context.Context, key string) (Object, error) {
	objKey, err := s.objectKey(key)
	if err != nil {
		return Object{}, err
	}
	info, err := s.client.StatObject(ctx, s.cfg.Bucket, objKey, minio.StatObjectOptions{})
	if err != nil {
		return Object{}, s.classify(key, err)
	}
	obj := Object{Key: key, Size: info.Size, ModTime: info.LastModified}
	for k, v := range info.UserMetadata {
		if strings.EqualFold(k, checksumMetaKey) {
			obj.Checksum = v
		}
	}
	return obj, nil
}

func (s *S3) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	objKey, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, objKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.classify(key, err)
	}
	// GetObject is lazy; Stat surfaces a missing key
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, s.classify(key, err)
	}
	return obj, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	objKey, err := s.objectKey(key)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.cfg.Bucket, objKey, minio.RemoveObjectOptions{}); err != nil {
		if err := s.classify(key, err); !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("delete %s: %w", s.Location(key), err)
		}
	}
	return nil
}

func (s *S3) Location(key string) string {
	objKey, err := s.objectKey(key)
	if err != nil {
		objKey = key
	}
	return fmt.Sprintf("s3://%s/%s", s.cfg.Bucket, objKey)
}

func (s *S3) classify(key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return err
}

func contentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".zip":
		return "application/zip"
	case ".csv":
		return "text/csv"
	case ".pb":
		return "application/x-protobuf"
	case ".yml", ".yaml":
		return "application/yaml"
	case ".md":
		return "text/markdown"
	}
	return "application/octet-stream"
}
