// Package storage ships files to S3 compatible object storage.
package storage

import (
	"context"
	"os"
	"path"
	"strings"

	errs "RiderGuard/pkg/errors"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioConfig struct {
	Endpoint  string `env:"BACKUP_S3_ENDPOINT"`
	AccessKey string `env:"BACKUP_S3_ACCESS_KEY"`
	SecretKey string `env:"BACKUP_S3_SECRET_KEY"`
	Bucket    string `env:"BACKUP_S3_BUCKET"`
	// key prefix inside the bucket
	Prefix string `env:"BACKUP_S3_PREFIX"`
	UseSSL bool   `env:"BACKUP_S3_USE_SSL"`
}

// Enabled reports whether enough is configured to upload.
func (c MinioConfig) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

type MinioStore struct {
	cli    *minio.Client
	bucket string
	prefix string
}

func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errs.Wrap(err, "minio client")
	}
	return &MinioStore{cli: cli, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

func (m *MinioStore) ensureBucket(ctx context.Context) error {
	exists, err := m.cli.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return m.cli.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
	}
	return nil
}

// Key returns the object key used for a file name.
func (m *MinioStore) Key(name string) string {
	if m.prefix == "" {
		return name
	}
	return path.Join(m.prefix, name)
}

// UploadFile copies the local file at p into the bucket under its base
// name and returns the object key.
func (m *MinioStore) UploadFile(ctx context.Context, p string) (string, error) {
	if err := m.ensureBucket(ctx); err != nil {
		return "", errs.Transient(err, "ensure bucket %s", m.bucket)
	}
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return "", err
	}

	key := m.Key(path.Base(p))
	_, err = m.cli.PutObject(ctx, m.bucket, key, f, st.Size(), minio.PutObjectOptions{
		ContentType: "application/vnd.sqlite3",
	})
	if err != nil {
		return "", errs.Transient(err, "upload %s", key)
	}
	return key, nil
}

// Exists reports whether key is present in the bucket.
func (m *MinioStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := m.cli.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
