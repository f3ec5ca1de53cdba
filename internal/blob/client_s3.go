package blob

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	// ManifestExpiry is long enough to cover a slow manifest fetch.
	ManifestExpiry = 7 * 24 * time.Hour
	// ObjectExpiry covers a single file transfer; object URLs are minted right
	// before each download.
	ObjectExpiry = time.Hour
)

type BlobClient struct {
	s3Client    *s3.Client
	s3Presigner *s3.PresignClient
	config      *S3BlobConfig
}

func NewBlobClient(s3Client *s3.Client, config *S3BlobConfig) *BlobClient {
	return &BlobClient{
		s3Client:    s3Client,
		s3Presigner: s3.NewPresignClient(s3Client),
		config:      config,
	}
}

// NewBlobClientWithS3Config builds a client for AWS S3 or any S3 compatible
// store. A custom endpoint switches to path style addressing, which MinIO needs.
func NewBlobClientWithS3Config(ctx context.Context, cfg *S3BlobConfig) (*BlobClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// static credentials only, AWS_* env vars and shared config files are not read
	opts := s3.Options{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		HTTPClient:  awshttp.NewBuildableClient().WithTimeout(30 * time.Second),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}

	awsClient := s3.New(opts)

	return NewBlobClient(awsClient, cfg), nil
}

// PresignGet mints a GET-only URL for key that stays valid for ttl.
func (s *BlobClient) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if key == "" {
		return "", fmt.Errorf("blob: presign: %w", ErrEmptyKey)
	}

	url, err := s.s3Presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.BucketName),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = ttl
	})
	if err != nil {
		return "", fmt.Errorf("blob: presign %q: %w", key, err)
	}
	return url.URL, nil
}

// Bucket returns the bucket every URL is minted against.
func (s *BlobClient) Bucket() string {
	return s.config.BucketName
}

// check if BlobClient implements Presigner interface
var _ Presigner = (*BlobClient)(nil)
