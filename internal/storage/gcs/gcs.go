// Package gcs implements storage.Blob on a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	blob "github.com/joseph-ayodele/faxintake/internal/storage"
)

type Store struct {
	client  *storage.Client
	bucket  string
	tracker *blob.CopyTracker
	logger  *zap.Logger
}

// NewClient uses explicit credentials JSON when given, otherwise Application Default Credentials.
func NewClient(ctx context.Context, credentialsJSON string) (*storage.Client, error) {
	if strings.TrimSpace(credentialsJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	return storage.NewClient(ctx)
}

func New(client *storage.Client, bucket string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, bucket: bucket, tracker: blob.NewCopyTracker(), logger: logger}
}

func (s *Store) Bucket() string { return s.bucket }

func (s *Store) object(name string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(name)
}

// StartCopy runs a server-side rewrite in the background; CopyStatus reports its progress.
func (s *Store) StartCopy(ctx context.Context, src, dst string) error {
	if _, err := s.object(src).Attrs(ctx); err != nil {
		return mapErr(err, src)
	}
	s.tracker.Start(ctx, dst, func(ctx context.Context) error {
		attrs, err := s.object(dst).CopierFrom(s.object(src)).Run(ctx)
		if err != nil {
			return err
		}
		s.logger.Debug("storage.gcs.copy.done",
			zap.String("dst", dst), zap.Int64("size", attrs.Size), zap.Int64("generation", attrs.Generation))
		return nil
	})
	return nil
}

func (s *Store) CopyStatus(_ context.Context, dst string) (blob.CopyStatus, error) {
	st, ok := s.tracker.Status(dst)
	if !ok {
		return blob.CopyStatus{}, fmt.Errorf("%w: no copy to %s", blob.ErrNotFound, dst)
	}
	if st.State != blob.CopyPending {
		s.tracker.Forget(dst)
	}
	return st, nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	return mapErr(s.object(name).Delete(ctx), name)
}

func (s *Store) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	r, err := s.object(name).NewReader(ctx)
	if err != nil {
		return nil, mapErr(err, name)
	}
	return r, nil
}

func mapErr(err error, name string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%w: gs object %s", blob.ErrNotFound, name)
	}
	return fmt.Errorf("gcs %s: %w", name, err)
}

var _ blob.Blob = (*Store)(nil)
