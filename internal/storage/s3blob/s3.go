// Package s3blob implements storage.Blob on an Amazon S3 bucket.
package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/faxintake/internal/storage"
)

// API is the subset of the S3 client used here.
type API interface {
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type Store struct {
	api     API
	bucket  string
	tracker *storage.CopyTracker
	logger  *zap.Logger
}

func New(api API, bucket string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{api: api, bucket: bucket, tracker: storage.NewCopyTracker(), logger: logger}
}

// StartCopy issues CopyObject and confirms the destination with HeadObject, in the background.
func (s *Store) StartCopy(ctx context.Context, src, dst string) error {
	if _, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(src)}); err != nil {
		return mapErr(err, src)
	}
	s.tracker.Start(ctx, dst, func(ctx context.Context) error {
		_, err := s.api.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(s.bucket),
			Key:        aws.String(dst),
			CopySource: aws.String(s.bucket + "/" + escapeKey(src)),
		})
		if err != nil {
			return fmt.Errorf("copy object: %w", err)
		}
		head, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(dst)})
		if err != nil {
			return fmt.Errorf("head destination: %w", err)
		}
		s.logger.Debug("storage.s3.copy.done", zap.String("dst", dst), zap.Int64("size", aws.ToInt64(head.ContentLength)))
		return nil
	})
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

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	return mapErr(err, key)
}

func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return nil, mapErr(err, key)
	}
	return out.Body, nil
}

// escapeKey URL-encodes each key segment, keeping the separators.
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func mapErr(err error, key string) error {
	if err == nil {
		return nil
	}
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return fmt.Errorf("%w: s3 key %s", storage.ErrNotFound, key)
	}
	return fmt.Errorf("s3 %s: %w", key, err)
}

var _ storage.Blob = (*Store)(nil)
