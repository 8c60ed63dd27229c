package domain

import (
	"github.com/google/uuid"
)

// StepCompletedEvent is published once a step's completion is committed.
type StepCompletedEvent struct {
	ProjectID  uuid.UUID `json:"project_id"`
	StepID     uuid.UUID `json:"step_id"`
	ProgressID uuid.UUID `json:"progress_id"`
	StepName   string    `json:"step_name"`
}

type StepTerminationType string

const (
	StepTerminationFailed    StepTerminationType = "failed"
	StepTerminationExhausted StepTerminationType = "retry_exhausted"
)

// StepTerminatedEvent is published when a step attempt fails. Exhausted
// marks the attempt that spent the retry budget.
type StepTerminatedEvent struct {
	ProjectID  uuid.UUID           `json:"project_id"`
	StepID     uuid.UUID           `json:"step_id"`
	ProgressID uuid.UUID           `json:"progress_id"`
	Type       StepTerminationType `json:"type"`
	RetryCount int                 `json:"retry_count"`
	Error      string              `json:"error"`
}
