package blob

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyKey = errors.New("blob: empty object key")
)

type S3BlobConfig struct {
	BucketName string
	Region     string
	AccessKey  string
	SecretKey  string
	Endpoint   string
}

// WithMinioConfig creates a configuration for a MinIO (or other S3 compatible) bucket
func WithMinioConfig(url, bucketName, region, accessKey, secretKey string) *S3BlobConfig {
	if region == "" {
		region = "us-east-1"
	}
	return &S3BlobConfig{
		BucketName: bucketName,
		Endpoint:   url,
		Region:     region,
		AccessKey:  accessKey,
		SecretKey:  secretKey,
	}
}

func (c *S3BlobConfig) Validate() error {
	switch {
	case c.BucketName == "":
		return fmt.Errorf("blob: bucket name missing")
	case c.Region == "":
		return fmt.Errorf("blob: region missing")
	case c.AccessKey == "" || c.SecretKey == "":
		return fmt.Errorf("blob: credentials missing")
	}
	return nil
}
