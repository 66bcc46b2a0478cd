package storage

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	rlerrors "github.com/roverlog/roverlog/internal/errors"
)

// S3Config holds configuration for S3-hosted log files.
type S3Config struct {
	// Region is the AWS region for the bucket.
	Region string
	// Endpoint is an optional custom endpoint (for MinIO, LocalStack, etc.).
	Endpoint string
	// UsePathStyle enables path-style addressing (required for MinIO).
	UsePathStyle bool
}

// DefaultS3Config returns the default S3 configuration.
func DefaultS3Config() S3Config {
	return S3Config{Region: "us-east-1"}
}

// S3Blob reads a log file from an S3 object.
type S3Blob struct {
	client *s3.Client
	bucket string
	key    string
}

// NewS3Blob creates a blob over an S3 object.
func NewS3Blob(ctx context.Context, bucket, key string, cfg S3Config) (*S3Blob, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, rlerrors.NewStorageError(rlerrors.CodeOpenFailed,
			"failed to load AWS config", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &S3Blob{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: bucket,
		key:    key,
	}, nil
}

// Name returns the object's s3:// URL.
func (b *S3Blob) Name() string {
	return "s3://" + b.bucket + "/" + b.key
}

// Size returns the object's content length from a HEAD request.
func (b *S3Blob) Size(ctx context.Context) (int64, error) {
	head, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
	})
	if err != nil {
		return 0, rlerrors.NewStorageError(rlerrors.CodeStatFailed,
			"failed to head "+b.Name(), err)
	}
	if head.ContentLength == nil {
		return 0, rlerrors.NewStorageError(rlerrors.CodeStatFailed,
			"no content length for "+b.Name(), nil)
	}
	return *head.ContentLength, nil
}

// Open returns a streaming reader over the object body.
func (b *S3Blob) Open(ctx context.Context) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
	})
	if err != nil {
		return nil, rlerrors.NewStorageError(rlerrors.CodeOpenFailed,
			"failed to get "+b.Name(), err)
	}
	return out.Body, nil
}
