package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config holds configuration for S3 or an S3-compatible store
type S3Config struct {
	BucketName     string
	BucketDir      string // key prefix inside the bucket
	Region         string
	Endpoint       string // internal endpoint, e.g. minio:9000
	PublicEndpoint string // endpoint presigned URLs are built for
	AccessKey      string
	SecretKey      string
	UseSSL         bool
}

// S3Storage is the remote side of migrated files.
type S3Storage struct {
	client        *s3.Client
	presignClient *s3.Client
	config        S3Config
}

// NewS3Storage creates a new S3 storage implementation
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(withScheme(cfg.Endpoint, cfg.UseSSL))
			o.UsePathStyle = true
		}
	})

	presignClient := client
	if cfg.Endpoint != "" && cfg.PublicEndpoint != "" {
		presignClient = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(withScheme(cfg.PublicEndpoint, cfg.UseSSL))
			o.UsePathStyle = true
		})
	}

	return &S3Storage{
		client:        client,
		presignClient: presignClient,
		config:        cfg,
	}, nil
}

// Key maps a generated filename to its object key.
func (s *S3Storage) Key(generatedFilename string) string {
	dir := strings.Trim(s.config.BucketDir, "/")
	if dir == "" {
		return generatedFilename
	}
	return path.Join(dir, generatedFilename)
}

// Upload copies body to key. The body must be seekable so the request can be
// signed and retried.
func (s *S3Storage) Upload(ctx context.Context, key string, body io.ReadSeeker, size int64, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.config.BucketName),
		Key:    aws.String(key),
		Body:   body,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to s3: %w", err)
	}
	return nil
}

// Delete removes an object; S3 treats missing keys as success.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from s3: %w", err)
	}
	return nil
}

// Exists checks whether key is present.
func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.config.BucketName),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat s3 object: %w", err)
}

// PresignGet generates a temporary URL for key. A non-empty downloadName
// makes the browser save the file under that name.
func (s *S3Storage) PresignGet(ctx context.Context, key string, ttl time.Duration, downloadName string) (string, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.config.BucketName),
		Key:    aws.String(key),
	}
	if downloadName != "" {
		input.ResponseContentDisposition = aws.String(attachmentDisposition(downloadName))
	}

	request, err := s3.NewPresignClient(s.presignClient).PresignGetObject(ctx, input, func(opts *s3.PresignOptions) {
		opts.Expires = ttl
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return request.URL, nil
}

// PublicURL is the unsigned URL of key, for public buckets.
func (s *S3Storage) PublicURL(key string) string {
	if s.config.PublicEndpoint != "" {
		return fmt.Sprintf("%s/%s/%s", withScheme(s.config.PublicEndpoint, s.config.UseSSL), s.config.BucketName, key)
	}
	if s.config.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", withScheme(s.config.Endpoint, s.config.UseSSL), s.config.BucketName, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.config.BucketName, s.config.Region, key)
}

// attachmentDisposition quotes or encodes name as RFC 6266 expects.
func attachmentDisposition(name string) string {
	if d := mime.FormatMediaType("attachment", map[string]string{"filename": name}); d != "" {
		return d
	}
	return "attachment"
}

func withScheme(endpoint string, useSSL bool) string {
	if hasHTTPPrefix(endpoint) {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

// hasHTTPPrefix checks if a string has http:// or https:// prefix
func hasHTTPPrefix(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
