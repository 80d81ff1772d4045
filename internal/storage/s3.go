package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	uploadConcurrency = 8
	deleteBatchSize   = 1000
)

// S3API is the subset of the S3 client the mirror uses.
type S3API interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3Mirror is a shared location under an S3 bucket prefix.
type S3Mirror struct {
	client S3API
	bucket string
	prefix string
	logger *zap.Logger
}

// NewS3Mirror returns a mirror over bucket/prefix.
func NewS3Mirror(client S3API, bucket, prefix string, logger *zap.Logger) *S3Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Mirror{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/"), logger: logger}
}

func newS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if opts.Endpoint != "" {
		// For MinIO/testing
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

func (m *S3Mirror) String() string { return fmt.Sprintf("s3://%s/%s", m.bucket, m.prefix) }

func (m *S3Mirror) keyPrefix() string {
	if m.prefix == "" {
		return ""
	}
	return m.prefix + "/"
}

func (m *S3Mirror) listKeys(ctx context.Context) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(m.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(m.bucket),
		Prefix: aws.String(m.keyPrefix()),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", m, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// Remove deletes every object under the prefix.
func (m *S3Mirror) Remove(ctx context.Context) error {
	keys, err := m.listKeys(ctx)
	if err != nil {
		return err
	}
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
		}
		out, err := m.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(m.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("failed to delete objects under %s: %w", m, err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return fmt.Errorf("failed to delete %s: %s", aws.ToString(e.Key), aws.ToString(e.Message))
		}
	}
	m.logger.Info("removed shared dataset", zap.String("target", m.String()), zap.Int("objects", len(keys)))
	return nil
}

// Upload puts every file under localDir at prefix/<relative path>.
func (m *S3Mirror) Upload(ctx context.Context, localDir string) error {
	var files []string
	err := filepath.WalkDir(localDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", localDir, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)
	for _, f := range files {
		g.Go(func() error {
			rel, err := filepath.Rel(localDir, f)
			if err != nil {
				return err
			}
			body, err := os.ReadFile(f)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", f, err)
			}
			key := m.keyPrefix() + filepath.ToSlash(rel)
			_, err = m.client.PutObject(gctx, &s3.PutObjectInput{
				Bucket:      aws.String(m.bucket),
				Key:         aws.String(key),
				Body:        bytes.NewReader(body),
				ContentType: aws.String(contentType(key)),
				Metadata: map[string]string{
					"source":      "insurance-nlp",
					"uploaded-at": time.Now().UTC().Format(time.RFC3339),
				},
			})
			if err != nil {
				return fmt.Errorf("failed to upload %s to s3://%s/%s: %w", f, m.bucket, key, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	m.logger.Info("uploaded directory", zap.String("from", localDir), zap.String("to", m.String()), zap.Int("files", len(files)))
	return nil
}

// Download fetches every object under the prefix into localDir.
func (m *S3Mirror) Download(ctx context.Context, localDir string) error {
	keys, err := m.listKeys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("%s: %w", m, ErrNotADataset)
	}

	for _, key := range keys {
		rel := strings.TrimPrefix(key, m.keyPrefix())
		if rel == "" || strings.HasSuffix(rel, "/") {
			continue
		}
		dest := filepath.Join(localDir, filepath.FromSlash(path.Clean(rel)))
		if err := m.downloadObject(ctx, key, dest); err != nil {
			return err
		}
	}

	m.logger.Info("downloaded directory", zap.String("from", m.String()), zap.String("to", localDir), zap.Int("files", len(keys)))
	return nil
}

func (m *S3Mirror) downloadObject(ctx context.Context, key, dest string) error {
	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to get s3://%s/%s: %w", m.bucket, key, err)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return f.Close()
}

func contentType(key string) string {
	switch path.Ext(key) {
	case ".json":
		return "application/json"
	case ".parquet":
		return "application/vnd.apache.parquet"
	default:
		return "application/octet-stream"
	}
}
