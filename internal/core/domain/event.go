package domain

import "time"

// ErrorEventStatus tracks the lifecycle of a recorded failure.
type ErrorEventStatus string

const (
	ErrorEventPending  ErrorEventStatus = "pending"
	ErrorEventResolved ErrorEventStatus = "resolved"
	ErrorEventIgnored  ErrorEventStatus = "ignored"
)

// ErrorEvent records one failed attempt of an operation. Created once per
// failure; Recovered and RecoveryActions are the only fields mutated after
// creation, and RecoveryActions is append-only.
type ErrorEvent struct {
	ID              string           `json:"id"`
	Kind            ErrorKind        `json:"kind"`
	Severity        Severity         `json:"severity"`
	Message         string           `json:"message"`
	Context         ExecutionContext `json:"context"`
	Timestamp       time.Time        `json:"timestamp"`
	Recoverable     bool             `json:"recoverable"`
	Recovered       bool             `json:"recovered"`
	RecoveryActions []string         `json:"recovery_actions"`
	Duration        time.Duration    `json:"duration"`
	Status          ErrorEventStatus `json:"status"`
}

// MarkRecovered records a successful recovery action on the event.
func (e *ErrorEvent) MarkRecovered(action string) {
	e.Recovered = true
	e.Status = ErrorEventResolved
	e.RecoveryActions = append(e.RecoveryActions, action)
}

// RecordAttempt appends a recovery action that was tried, whether or not
// it succeeded.
func (e *ErrorEvent) RecordAttempt(action string) {
	e.RecoveryActions = append(e.RecoveryActions, action)
}
