package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Mirror is the shared location a dataset is published to and fetched from.
// Every operation overwrites unconditionally; concurrent runs against the same
// location are not coordinated.
type Mirror interface {
	// Remove deletes everything stored at the location.
	Remove(ctx context.Context) error
	// Upload copies a local directory tree to the location.
	Upload(ctx context.Context, localDir string) error
	// Download copies the location's tree into a local directory.
	Download(ctx context.Context, localDir string) error
	// String renders the location for logs.
	String() string
}

// S3Options configures the S3 backend.
type S3Options struct {
	Region   string
	Endpoint string // For testing with MinIO
}

// NewMirror picks a backend for target: s3://bucket/prefix for S3, a plain
// path or file:// URL for the local filesystem.
func NewMirror(ctx context.Context, target string, opts S3Options, logger *zap.Logger) (Mirror, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch {
	case strings.HasPrefix(target, "s3://"):
		u, err := url.Parse(target)
		if err != nil {
			return nil, fmt.Errorf("invalid S3 target %q: %w", target, err)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("invalid S3 target %q: missing bucket", target)
		}
		client, err := newS3Client(ctx, opts)
		if err != nil {
			return nil, err
		}
		return NewS3Mirror(client, u.Host, strings.Trim(u.Path, "/"), logger), nil

	case strings.HasPrefix(target, "file://"):
		return NewLocalMirror(strings.TrimPrefix(target, "file://"), logger), nil

	case strings.Contains(target, "://"):
		return nil, fmt.Errorf("unsupported storage target %q (only s3:// and file:// are supported)", target)

	default:
		return NewLocalMirror(target, logger), nil
	}
}
