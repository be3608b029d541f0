package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/faxintake/constants"
	"github.com/joseph-ayodele/faxintake/internal/entity"
)

var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("authorization record not found")
	// ErrConflict is returned when a record for the same source path already exists.
	ErrConflict = errors.New("authorization record already exists for source path")
	// ErrTerminal is returned when a terminal write targets a record that already left processing.
	ErrTerminal = errors.New("authorization record is already terminal")
)

// DefaultListLimit caps List when the filter leaves Limit unset.
const DefaultListLimit = 100

// ListFilter narrows List. A zero Status matches every status.
type ListFilter struct {
	Status constants.AuthorizationStatus
	Limit  int
	Offset int
}

func (f ListFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// AuthorizationRepository persists authorization records. Terminal writes only apply to records
// still in processing.
type AuthorizationRepository interface {
	Create(ctx context.Context, sourcePath, fileName string, uploadedAt time.Time) (string, error)
	Complete(ctx context.Context, id string, fields entity.ExtractedFields) error
	MarkFailed(ctx context.Context, id, message string) error
	GetByID(ctx context.Context, id string) (*entity.AuthorizationRecord, error)
	ExistsBySourcePath(ctx context.Context, sourcePath string) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]*entity.AuthorizationRecord, error)
	ListStale(ctx context.Context, olderThan time.Time) ([]*entity.AuthorizationRecord, error)
}

// Option configures the store implementations.
type Option func(*options)

type options struct {
	now   func() time.Time
	newID func() string
}

func defaultOptions() options {
	return options{
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// WithClock overrides the clock used for processedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func encodeFields(fields entity.ExtractedFields) ([]byte, error) {
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode extracted fields: %w", err)
	}
	return b, nil
}

func decodeFields(b []byte) (*entity.ExtractedFields, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var f entity.ExtractedFields
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode extracted fields: %w", err)
	}
	return &f, nil
}
