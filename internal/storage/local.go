package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// LocalMirror is a shared location on a mounted filesystem.
type LocalMirror struct {
	root   string
	logger *zap.Logger
}

// NewLocalMirror returns a mirror rooted at root.
func NewLocalMirror(root string, logger *zap.Logger) *LocalMirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalMirror{root: filepath.Clean(root), logger: logger}
}

func (m *LocalMirror) String() string { return "file://" + m.root }

// Remove deletes the mirror root recursively. A missing root is not an error.
func (m *LocalMirror) Remove(ctx context.Context) error {
	if err := os.RemoveAll(m.root); err != nil {
		return fmt.Errorf("failed to remove %s: %w", m.root, err)
	}
	return nil
}

// Upload copies localDir into the mirror root.
func (m *LocalMirror) Upload(ctx context.Context, localDir string) error {
	n, err := copyTree(ctx, localDir, m.root)
	if err != nil {
		return err
	}
	m.logger.Info("copied directory", zap.String("from", localDir), zap.String("to", m.String()), zap.Int("files", n))
	return nil
}

// Download copies the mirror root into localDir.
func (m *LocalMirror) Download(ctx context.Context, localDir string) error {
	n, err := copyTree(ctx, m.root, localDir)
	if err != nil {
		return err
	}
	m.logger.Info("copied directory", zap.String("from", m.String()), zap.String("to", localDir), zap.Int("files", n))
	return nil
}

// copyTree copies every regular file under src to the same relative path under dst.
func copyTree(ctx context.Context, src, dst string) (int, error) {
	files := 0
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		files++
		return copyFile(path, target)
	})
	if err != nil {
		return files, fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return files, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
