package s3

import (
	"context"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

/*
Conn wraps a MinIO client bound to one bucket.
*/
type Conn struct {
	client *minio.Client
	bucket string
}

type ConnConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func NewConn(ctx context.Context, cfg ConnConfig) (*Conn, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})

	if err != nil {
		return nil, err
	}

	conn := &Conn{client: client, bucket: cfg.Bucket}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, err
	}

	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}

	return conn, nil
}

// NotFound reports whether err is the backend's missing-object error.
func NotFound(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
