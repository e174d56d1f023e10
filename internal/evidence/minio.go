package evidence

import (
	"bytes"
	"context"
	"fmt"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioSink stores evidence in an S3-compatible bucket. Use this for
// multi-instance deployments where report renderers run on other hosts.
type MinioSink struct {
	mc     *minio.Client
	bucket string
}

// NewMinioSink builds a sink against an S3-compatible endpoint.
func NewMinioSink(endpoint, accessKey, secretKey string, useSSL bool, bucket string) (*MinioSink, error) {
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinioSink{mc: mc, bucket: bucket}, nil
}

func (s *MinioSink) Put(ctx context.Context, key string, png []byte) (string, error) {
	_, err := s.mc.PutObject(ctx, s.bucket, key, bytes.NewReader(png), int64(len(png)),
		minio.PutObjectOptions{ContentType: "image/png"})
	if err != nil {
		return "", fmt.Errorf("upload evidence: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
