// Package organize relocates raw uploads into per-document folders.
package organize

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joseph-ayodele/faxintake/constants"
	"github.com/joseph-ayodele/faxintake/internal/storage"
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultCopyTimeout  = 2 * time.Minute
)

// ErrCopyTimeout is returned when the copy is still pending after the copy timeout. The source is kept.
var ErrCopyTimeout = errors.New("copy did not complete before timeout")

// CopyFailedError reports a copy that finished in a non-success state.
type CopyFailedError struct {
	Src, Dst string
	Status   storage.CopyStatus
}

func (e *CopyFailedError) Error() string {
	return fmt.Sprintf("copy %s -> %s failed: %s", e.Src, e.Dst, e.Status)
}

type Organizer struct {
	blob         storage.Blob
	logger       *zap.Logger
	pollInterval time.Duration
	copyTimeout  time.Duration
}

type Option func(*Organizer)

func WithPollInterval(d time.Duration) Option {
	return func(o *Organizer) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

func WithCopyTimeout(d time.Duration) Option {
	return func(o *Organizer) {
		if d > 0 {
			o.copyTimeout = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Organizer) {
		if l != nil {
			o.logger = l
		}
	}
}

func New(blob storage.Blob, opts ...Option) *Organizer {
	o := &Organizer{
		blob:         blob,
		logger:       zap.NewNop(),
		pollInterval: DefaultPollInterval,
		copyTimeout:  DefaultCopyTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Destination returns "<base-without-ext>/<fileName>" for src.
func Destination(src string) string {
	name := path.Base(strings.ReplaceAll(src, "\\", constants.FolderSeparator))
	stem := strings.TrimSuffix(name, path.Ext(name))
	if stem == "" {
		stem = name
	}
	return stem + constants.FolderSeparator + name
}

// Organize copies src to its destination, waits for the copy to succeed and only then deletes src.
func (o *Organizer) Organize(ctx context.Context, src string) (string, error) {
	dst := Destination(src)
	log := o.logger.With(zap.String("src", src), zap.String("dst", dst))

	if err := o.blob.StartCopy(ctx, src, dst); err != nil {
		log.Error("organize.copy.start_failed", zap.Error(err))
		return "", fmt.Errorf("start copy: %w", err)
	}

	st, err := o.wait(ctx, dst)
	if err != nil {
		log.Error("organize.copy.wait_failed", zap.Error(err))
		return "", err
	}
	if st.State != storage.CopySuccess {
		log.Error("organize.copy.failed", zap.Stringer("status", st))
		return "", &CopyFailedError{Src: src, Dst: dst, Status: st}
	}

	if err := o.blob.Delete(ctx, src); err != nil {
		// dst already holds the data; the orphaned source only needs cleanup.
		log.Error("organize.delete.failed", zap.Error(err))
		return "", fmt.Errorf("delete source: %w", err)
	}

	log.Info("organize.ok")
	return dst, nil
}

func (o *Organizer) wait(ctx context.Context, dst string) (storage.CopyStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, o.copyTimeout)
	defer cancel()

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		st, err := o.blob.CopyStatus(ctx, dst)
		if err != nil {
			return storage.CopyStatus{}, fmt.Errorf("copy status: %w", err)
		}
		if st.State != storage.CopyPending {
			return st, nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return storage.CopyStatus{}, fmt.Errorf("%w: %s after %s", ErrCopyTimeout, dst, o.copyTimeout)
			}
			return storage.CopyStatus{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
