// Package storage holds the S3-compatible object storage client used for
// operator-managed configuration such as the IP blocklist.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/betlinkr/betlinkr-api/internal/config"
)

// Client wraps the S3 client together with its enabled state.
type Client struct {
	s3      *s3.Client
	enabled bool
}

// New creates the storage client. With no endpoint configured the client is
// disabled and S3() returns nil.
func New(cfg *appconfig.Config, logger *slog.Logger) (*Client, error) {
	if !cfg.BlocklistEnabled() {
		logger.Info("object storage disabled - no endpoint configured")
		return &Client{}, nil
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(cfg.StorageRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.StorageAccessKey,
			cfg.StorageSecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Custom endpoint for S3-compatible storage (Tigris, MinIO, etc.)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.StorageEndpoint)
		o.UsePathStyle = true
	})

	logger.Info("object storage initialized",
		"bucket", cfg.BlocklistBucket, "endpoint", cfg.StorageEndpoint)

	return &Client{s3: client, enabled: true}, nil
}

// Enabled returns whether object storage is configured.
func (c *Client) Enabled() bool {
	return c.enabled
}

// S3 returns the underlying client, or nil when disabled.
func (c *Client) S3() *s3.Client {
	if c == nil {
		return nil
	}
	return c.s3
}
