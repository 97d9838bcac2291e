package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dump-ingestion-api/internal/config"
)

// S3API is the subset of the S3 client used by S3Store
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Store keeps archive objects in a bucket. Locations have the form
// s3://{bucket}/{prefix}/{key}.
type S3Store struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Store wraps an existing client
func NewS3Store(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// NewS3StoreFromConfig builds a client from the archive settings. Static
// credentials and a custom endpoint are optional; without them the default
// AWS credential chain applies.
func NewS3StoreFromConfig(ctx context.Context, cfg *config.ArchiveConfig) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Store(client, cfg.S3Bucket, cfg.S3Prefix), nil
}

func (s *S3Store) Locate(key string) string {
	return "s3://" + s.bucket + "/" + path.Join(s.prefix, key)
}

func (s *S3Store) objectKey(location string) (string, error) {
	root := "s3://" + s.bucket + "/"
	if !strings.HasPrefix(location, root) {
		return "", fmt.Errorf("location outside bucket %s", s.bucket)
	}
	return strings.TrimPrefix(location, root), nil
}

// Write puts the object in a single request; S3 replaces objects atomically.
func (s *S3Store) Write(ctx context.Context, location string, data []byte) error {
	key, err := s.objectKey(location)
	if err != nil {
		return &StoreError{Op: "write", Location: location, Err: err}
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return &StoreError{Op: "write", Location: location, Err: err}
	}
	return nil
}

func (s *S3Store) Read(ctx context.Context, location string) ([]byte, error) {
	key, err := s.objectKey(location)
	if err != nil {
		return nil, &StoreError{Op: "read", Location: location, Err: err}
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &StoreError{Op: "read", Location: location, Err: err}
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &StoreError{Op: "read", Location: location, Err: err}
	}
	return data, nil
}

// Remove deletes the object. S3 reports success for absent keys.
func (s *S3Store) Remove(ctx context.Context, location string) error {
	key, err := s.objectKey(location)
	if err != nil {
		return &StoreError{Op: "remove", Location: location, Err: err}
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return &StoreError{Op: "remove", Location: location, Err: err}
	}
	return nil
}

func (s *S3Store) Exists(ctx context.Context, location string) (bool, error) {
	key, err := s.objectKey(location)
	if err != nil {
		return false, &StoreError{Op: "stat", Location: location, Err: err}
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, &StoreError{Op: "stat", Location: location, Err: err}
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}
