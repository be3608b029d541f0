package intake

import (
	"fmt"

	"github.com/joseph-ayodele/faxintake/internal/entity"
)

// Kind is the top-level result of one invocation.
type Kind int

const (
	Skipped Kind = iota + 1
	Organized
	Completed
	Failed
)

func (k Kind) String() string {
	switch k {
	case Skipped:
		return "skipped"
	case Organized:
		return "organized"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrorKind classifies skips and failures.
type ErrorKind string

const (
	UnsupportedFormat   ErrorKind = "UnsupportedFormat"
	AlreadyProcessed    ErrorKind = "AlreadyProcessed"
	InFlight            ErrorKind = "InFlight"
	OrganizeFailure     ErrorKind = "OrganizeFailure"
	RecordLookupFailure ErrorKind = "RecordLookupFailure"
	RecordCreateFailure ErrorKind = "RecordCreateFailure"
	ExtractionFailure   ErrorKind = "ExtractionFailure"
	RecordUpdateFailure ErrorKind = "RecordUpdateFailure"
	FailureMarkFailure  ErrorKind = "FailureMarkFailure"
)

// Outcome is what Handle returns instead of an error.
type Outcome struct {
	Kind   Kind
	Path   string
	Reason ErrorKind
	Err    error
	// RecordID is set once a record exists for this invocation.
	RecordID string
	// Record is set for Completed.
	Record *entity.AuthorizationRecord
	// Destination is the organized path for Organized.
	Destination string
}

func (o Outcome) String() string {
	switch o.Kind {
	case Skipped:
		return fmt.Sprintf("skipped %s (%s)", o.Path, o.Reason)
	case Organized:
		return fmt.Sprintf("organized %s -> %s", o.Path, o.Destination)
	case Completed:
		return fmt.Sprintf("completed %s (record %s)", o.Path, o.RecordID)
	case Failed:
		return fmt.Sprintf("failed %s (%s): %v", o.Path, o.Reason, o.Err)
	default:
		return "unknown outcome"
	}
}
