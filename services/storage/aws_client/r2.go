package aws_client

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
)

// R2Endpoint is the S3-compatible endpoint of a Cloudflare R2 account.
func R2Endpoint(accountID string) string {
	return "https://" + accountID + ".r2.cloudflarestorage.com"
}

// NewR2Config builds an aws.Config for Cloudflare R2. R2 ignores the region
// and needs path-style addressing.
func NewR2Config(accountID, accessKeyID, accessKeySecret string) *aws.Config {
	return &aws.Config{
		Endpoint:         aws.String(R2Endpoint(accountID)),
		Region:           aws.String("auto"),
		Credentials:      credentials.NewStaticCredentials(accessKeyID, accessKeySecret, ""),
		S3ForcePathStyle: aws.Bool(true),
	}
}

// NewS3Config builds an aws.Config for AWS S3 or any S3-compatible endpoint.
func NewS3Config(region, endpoint, accessKeyID, accessKeySecret string) *aws.Config {
	cfg := &aws.Config{
		Region: aws.String(region),
	}
	if accessKeyID != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKeyID, accessKeySecret, "")
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	return cfg
}
