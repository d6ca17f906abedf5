package storage

import (
	"bytes"
	"context"
	"io"

	"github.com/Laisky/errors/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/playletworks/drama-api/common"
)

// S3Options configures the S3-compatible backend. Endpoint may point at any
// S3-compatible service (MinIO, R2); when set, path-style addressing is used.
type S3Options struct {
	Endpoint string
	Bucket   string
	Region   string
	Key      string
	Secret   string
}

// S3Store stores artifacts in an S3-compatible bucket.
type S3Store struct {
	client *s3.Client
	bucket string
}

func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, errors.Wrap(common.ErrInvalidInput, "s3 bucket is not configured")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.Key != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.Key, opts.Secret, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Store{client: client, bucket: opts.Bucket}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (Ref, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", errors.Wrapf(err, "put artifact %s", key)
	}
	return s3Ref(s.bucket, key), nil
}

func (s *S3Store) Get(ctx context.Context, ref Ref) ([]byte, error) {
	bucket, key, err := parseS3Ref(ref)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, errors.Wrapf(common.ErrNotFound, "artifact %s", ref)
		}
		return nil, errors.Wrapf(err, "get artifact %s", ref)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read artifact %s", ref)
	}
	return data, nil
}

func (s *S3Store) Delete(ctx context.Context, ref Ref) (bool, error) {
	bucket, key, err := parseS3Ref(ref)
	if err != nil {
		return false, err
	}
	// DeleteObject succeeds on absent keys, so probe first to report
	// deleted vs not-found per the contract.
	exists, err := s.Exists(ctx, ref)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return false, errors.Wrapf(err, "delete artifact %s", ref)
	}
	return true, nil
}

func (s *S3Store) Exists(ctx context.Context, ref Ref) (bool, error) {
	bucket, key, err := parseS3Ref(ref)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, errors.Wrapf(err, "stat artifact %s", ref)
	}
	return true, nil
}
