package logstore

import (
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioArchiver uploads rotated log files to an S3-compatible bucket
// before Rotate deletes them locally. It implements Archiver.
type MinioArchiver struct {
	client *minio.Client
	bucket string
}

// NewMinioArchiver connects to an S3-compatible endpoint. The bucket
// is expected to already exist; pulsewatch does not provision it.
func NewMinioArchiver(endpoint, accessKey, secretKey, bucket string) (*MinioArchiver, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: true,
	})
	if err != nil {
		return nil, fmt.Errorf("logstore: connect to archive endpoint %s: %w", endpoint, err)
	}
	return &MinioArchiver{client: client, bucket: bucket}, nil
}

// Archive uploads localPath under a key namespaced by service/date,
// so an archived bucket reads like a mirror of the local log
// directory's naming scheme.
func (a *MinioArchiver) Archive(localPath, service, date string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	object := fmt.Sprintf("%s/%s.json", service, date)
	_, err := a.client.FPutObject(ctx, a.bucket, object, localPath, minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("logstore: upload %s to %s/%s: %w", localPath, a.bucket, object, err)
	}
	return nil
}
