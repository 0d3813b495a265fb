package objectclient

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	cfg "github.com/legalworkflow/docprocessor/internal/config"
	"github.com/legalworkflow/docprocessor/internal/core"
)

// S3Archiver keeps a copy of every raw upload in an S3 bucket, keyed by
// file hash so identical uploads share one object.
type S3Archiver struct {
	client *s3.Client
	region string
	bucket string
}

var _ core.Archiver = (*S3Archiver)(nil)

func NewS3Archiver(ctx context.Context, cfg *cfg.Config) (*S3Archiver, error) {
	if cfg.AwsAccessKey == "" || cfg.AwsSecretKey == "" {
		return nil, fmt.Errorf("AWS credentials not set")
	}
	if cfg.ArchiveBucket == "" {
		return nil, fmt.Errorf("archive bucket not set")
	}

	awsCfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(cfg.AwsRegion),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	logrus.Info("connected to AWS S3")
	return &S3Archiver{
		client: s3.NewFromConfig(awsCfg),
		region: cfg.AwsRegion,
		bucket: cfg.ArchiveBucket,
	}, nil
}

// Archive uploads the raw bytes and returns the object URL.
func (a *S3Archiver) Archive(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	uploader := manager.NewUploader(a.client)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}

	url := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", a.bucket, a.region, key)
	return url, nil
}
