// Package storage defines the blob storage surface the intake pipeline consumes.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned when an object or copy operation is unknown.
var ErrNotFound = errors.New("object not found")

// CopyState is the state of an asynchronous server-side copy.
type CopyState string

const (
	CopyPending CopyState = "pending"
	CopySuccess CopyState = "success"
	CopyFailed  CopyState = "failed"
	CopyAborted CopyState = "aborted"
)

// CopyStatus is what a poll of the destination reports.
type CopyStatus struct {
	State  CopyState
	Detail string
}

func (s CopyStatus) String() string {
	if s.Detail == "" {
		return string(s.State)
	}
	return fmt.Sprintf("%s: %s", s.State, s.Detail)
}

// Blob is a single storage container addressed by slash separated object paths.
type Blob interface {
	// StartCopy begins copying src to dst and returns without waiting for completion.
	StartCopy(ctx context.Context, src, dst string) error
	// CopyStatus reports the state of the copy whose destination is dst.
	CopyStatus(ctx context.Context, dst string) (CopyStatus, error)
	// Delete removes the object at path.
	Delete(ctx context.Context, path string) error
	// Open streams the object at path.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}
