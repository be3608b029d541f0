// Package local implements storage.Blob on a directory of the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/joseph-ayodele/faxintake/internal/storage"
)

// PartialSuffix marks in-flight copy targets; they are renamed into place on success.
const PartialSuffix = ".partial"

// Store roots every object path under Root.
type Store struct {
	Root    string
	tracker *storage.CopyTracker
	logger  *zap.Logger
}

func New(root string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("abs root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create root: %w", err)
	}
	return &Store{Root: abs, tracker: storage.NewCopyTracker(), logger: logger}, nil
}

// Resolve maps an object path onto the filesystem, refusing paths that escape Root.
func (s *Store) Resolve(object string) (string, error) {
	clean := path.Clean("/" + strings.TrimSpace(object))
	if clean == "/" {
		return "", fmt.Errorf("empty object path")
	}
	return filepath.Join(s.Root, filepath.FromSlash(clean)), nil
}

// ObjectPath is the inverse of Resolve.
func (s *Store) ObjectPath(abs string) (string, error) {
	rel, err := filepath.Rel(s.Root, abs)
	if err != nil {
		return "", err
	}
	if rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside %s", abs, s.Root)
	}
	return filepath.ToSlash(rel), nil
}

func (s *Store) StartCopy(ctx context.Context, src, dst string) error {
	srcPath, err := s.Resolve(src)
	if err != nil {
		return err
	}
	dstPath, err := s.Resolve(dst)
	if err != nil {
		return err
	}
	if _, err := os.Stat(srcPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", storage.ErrNotFound, src)
		}
		return err
	}

	s.tracker.Start(ctx, dst, func(context.Context) error {
		return copyFile(srcPath, dstPath)
	})
	s.logger.Debug("storage.local.copy.started", zap.String("src", src), zap.String("dst", dst))
	return nil
}

func (s *Store) CopyStatus(_ context.Context, dst string) (storage.CopyStatus, error) {
	st, ok := s.tracker.Status(dst)
	if !ok {
		return storage.CopyStatus{}, fmt.Errorf("%w: no copy to %s", storage.ErrNotFound, dst)
	}
	if st.State != storage.CopyPending {
		s.tracker.Forget(dst)
	}
	return st, nil
}

func (s *Store) Delete(_ context.Context, object string) error {
	p, err := s.Resolve(object)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", storage.ErrNotFound, object)
		}
		return err
	}
	return nil
}

func (s *Store) Open(_ context.Context, object string) (io.ReadCloser, error) {
	p, err := s.Resolve(object)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, object)
		}
		return nil, err
	}
	return f, nil
}

// copyFile writes dst via a partial file so watchers only ever see a complete object appear.
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	tmp := dst + PartialSuffix
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create partial: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("copy: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close partial: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

var _ storage.Blob = (*Store)(nil)
