package client

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/hometour/api/internal/config"
)

const (
	StorageTypeR2 = "r2"
	StorageTypeS3 = "s3"
)

// StorageClient defines the interface for object storage operations
type StorageClient interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	UploadFile(ctx context.Context, path, key, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	GetPublicURL(key string) string
}

// S3Storage implements StorageClient for AWS S3 and Cloudflare R2
type S3Storage struct {
	s3Client    *s3.Client
	storageType string
	bucketName  string
	region      string
	publicURL   string
}

// NewS3Storage creates a storage client for the configured provider
func NewS3Storage(cfg *config.StorageConfig) (*S3Storage, error) {
	if cfg.Bucket == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("storage configuration incomplete")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	}

	region := cfg.Region
	var endpoint string
	switch cfg.Type {
	case StorageTypeR2:
		if cfg.AccountID == "" {
			return nil, fmt.Errorf("R2 configuration incomplete: account id required")
		}
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
		region = "auto"
	case StorageTypeS3:
		if region == "" {
			region = "us-east-1"
		}
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}
	opts = append(opts, awsconfig.WithRegion(region))

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	log.Printf("[Storage] %s client ready (bucket=%s)", cfg.Type, cfg.Bucket)

	return &S3Storage{
		s3Client:    s3Client,
		storageType: cfg.Type,
		bucketName:  cfg.Bucket,
		region:      region,
		publicURL:   strings.TrimSuffix(cfg.PublicURL, "/"),
	}, nil
}

// Upload uploads an object and returns its public URL
func (c *S3Storage) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(c.bucketName),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}

	if _, err := c.s3Client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload to %s: %w", c.storageType, err)
	}

	return c.GetPublicURL(key), nil
}

// UploadFile uploads a local file. The file handle gives the SDK a seekable
// body so the payload can be signed without buffering it in memory.
func (c *S3Storage) UploadFile(ctx context.Context, path, key, contentType string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	url, err := c.Upload(ctx, key, f, contentType)
	if err != nil {
		return "", err
	}
	log.Printf("[Storage] uploaded %s", key)
	return url, nil
}

// Delete removes an object
func (c *S3Storage) Delete(ctx context.Context, key string) error {
	input := &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(key),
	}

	if _, err := c.s3Client.DeleteObject(ctx, input); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", c.storageType, err)
	}

	return nil
}

// GetPublicURL returns the public URL for a key
func (c *S3Storage) GetPublicURL(key string) string {
	if c.publicURL != "" {
		return fmt.Sprintf("%s/%s", c.publicURL, key)
	}
	if c.storageType == StorageTypeR2 {
		return fmt.Sprintf("https://%s.r2.cloudflarestorage.com/%s", c.bucketName, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.bucketName, c.region, key)
}

// IsConfigured returns true if the client has valid configuration
func (c *S3Storage) IsConfigured() bool {
	return c != nil && c.s3Client != nil && c.bucketName != ""
}

// GenerateUniqueKey returns "<prefix>/<uuid>.<ext>".
func GenerateUniqueKey(prefix, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	prefix = strings.Trim(prefix, "/")
	return fmt.Sprintf("%s/%s.%s", prefix, uuid.New().String(), ext)
}
