package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	log "github.com/sirupsen/logrus"

	"docq/internal/config"
	"docq/internal/store"
)

// S3Store implements store.ObjectStore on AWS S3.
type S3Store struct {
	client *s3.Client
	bucket string
	region string
}

// NewS3Store creates an S3-backed object store for the configured bucket.
func NewS3Store(ctx context.Context, cfg *config.Config) (*S3Store, error) {
	if cfg.Storage.Bucket == "" {
		return nil, errors.New("S3 bucket name not set")
	}
	region := cfg.Storage.Region
	if region == "" {
		region = cfg.Broker.Region
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.Broker.AccessKey != "" && cfg.Broker.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.Broker.AccessKey, cfg.Broker.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Broker.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Broker.Endpoint)
			o.UsePathStyle = true
		}
	})
	log.Infof("Object store connected to s3://%s (%s)", cfg.Storage.Bucket, region)

	return &S3Store{client: client, bucket: cfg.Storage.Bucket, region: region}, nil
}

// Put uploads an object and returns its public URL.
func (c *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	uploader := manager.NewUploader(c.client)

	ctxUpload, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	_, err := uploader.Upload(ctxUpload, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload of %s failed: %w", key, err)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.bucket, c.region, key), nil
}

// Get downloads an object. A missing key maps to store.ErrNotFound.
func (c *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	ctxGet, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := c.client.GetObject(ctxGet, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("object %s: %w", key, store.ErrNotFound)
		}
		return nil, fmt.Errorf("s3 get of %s failed: %w", key, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", key, err)
	}
	return body, nil
}
