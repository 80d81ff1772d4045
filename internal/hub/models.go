package hub

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// maxFileSize caps a single downloaded model file. Tokenizer vocabularies and
// configs are far below it; weights are never fetched here.
const maxFileSize = 100 * 1024 * 1024

// ModelClient resolves files of pretrained model repositories.
type ModelClient struct {
	client   *resty.Client
	logger   *zap.Logger
	revision string
}

// NewModelClient creates a client against a model hub base URL.
func NewModelClient(cfg Config, logger *zap.Logger) *ModelClient {
	return &ModelClient{
		client:   newRestyClient(cfg),
		logger:   nopIfNil(logger),
		revision: "main",
	}
}

// Download fetches repo/file and writes it to dest, replacing any existing file.
func (c *ModelClient) Download(ctx context.Context, repo, file, dest string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(fmt.Sprintf("/%s/resolve/%s/%s", repo, c.revision, file))
	if err != nil {
		return fmt.Errorf("failed to download %s/%s: %w", repo, file, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.IsError() {
		snippet, _ := io.ReadAll(io.LimitReader(body, 512))
		if resp.StatusCode() == http.StatusNotFound {
			return fmt.Errorf("download %s/%s: %w", repo, file, ErrNotFound)
		}
		return fmt.Errorf("download %s/%s: hub returned status %d: %s", repo, file, resp.StatusCode(), snippet)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dest), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".part-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", dest, err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(body, maxFileSize+1))
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if n > maxFileSize {
		return fmt.Errorf("download %s/%s: file exceeds %d bytes", repo, file, maxFileSize)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", dest, err)
	}

	c.logger.Info("downloaded model file",
		zap.String("repo", repo),
		zap.String("file", file),
		zap.Int64("bytes", n),
		zap.String("dest", dest))
	return nil
}
