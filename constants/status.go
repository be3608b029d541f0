package constants

// AuthorizationStatus is the canonical status for authorization records.
type AuthorizationStatus string

// Stable values (store these exact strings).
const (
	StatusProcessing AuthorizationStatus = "processing" // record created, extraction in flight
	StatusCompleted  AuthorizationStatus = "completed"  // terminal, extracted fields attached
	StatusFailed     AuthorizationStatus = "failed"     // terminal, error message attached
)

// IsTerminal reports whether s is a terminal status.
func (s AuthorizationStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s AuthorizationStatus) Valid() bool {
	switch s {
	case StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}
