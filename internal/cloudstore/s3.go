package cloudstore

import (
	"context"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/conf"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/errors"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"
)

const (
	componentName = "cloudstore"
	maxObjectSize = 256 << 20
)

// Bucket is a Store backed by an S3-compatible bucket (AWS S3 or Cloudflare R2)
type Bucket struct {
	client *minio.Client
	bucket string
	log    logger.Logger
}

// NewBucket connects to the bucket described by the s3 settings
func NewBucket(s conf.S3Settings) (*Bucket, error) {
	if s.BucketName == "" {
		return nil, errors.Newf("s3.bucket_name is not configured").
			Category(errors.CategoryConfiguration).
			Component(componentName).
			Build()
	}

	opts := &minio.Options{
		Secure: !s.Insecure,
		Region: s.Region,
	}
	if s.AccessKeyID != "" && s.SecretAccessKey != "" {
		opts.Creds = credentials.NewStaticV4(s.AccessKeyID, s.SecretAccessKey, "")
	} else {
		opts.Creds = credentials.NewEnvAWS()
	}
	// R2 only accepts the "auto" region
	if s.AccountID != "" && s.Endpoint == "" {
		opts.Region = "auto"
	}

	endpoint := s.ResolvedEndpoint()
	client, err := minio.New(endpoint, opts)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Component(componentName).
			Context("endpoint", endpoint).
			Build()
	}

	log := GetLogger()
	log.Debug("cloud storage client created",
		logger.String("endpoint", endpoint),
		logger.String("bucket", s.BucketName))

	return &Bucket{client: client, bucket: s.BucketName, log: log}, nil
}

// Name implements Store
func (b *Bucket) Name() string { return b.bucket }

// List implements Store
func (b *Bucket) List(ctx context.Context, prefix string) ([]Object, error) {
	start := time.Now()
	var out []Object

	for info := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, errors.New(info.Err).
				Category(errors.CategoryStorage).
				Component(componentName).
				Context("bucket", b.bucket).
				Context("prefix", prefix).
				Build()
		}
		if strings.HasSuffix(info.Key, "/") {
			continue
		}
		out = append(out, Object{Key: info.Key, Size: info.Size, LastModified: info.LastModified})
	}

	b.log.Info("listed cloud storage",
		logger.String("bucket", b.bucket),
		logger.String("prefix", prefix),
		logger.Int("objects", len(out)),
		logger.Duration("elapsed", time.Since(start)))
	return out, nil
}

// Get implements Store
func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err == nil {
		defer func() { _ = obj.Close() }()
		var data []byte
		data, err = readAll(obj, maxObjectSize)
		if err == nil {
			return data, nil
		}
	}

	category := errors.CategoryStorage
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		category = errors.CategoryNotFound
	}
	return nil, errors.New(err).
		Category(category).
		Component(componentName).
		Context("bucket", b.bucket).
		Context("key", key).
		Build()
}
