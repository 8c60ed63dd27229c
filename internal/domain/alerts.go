package domain

import "github.com/google/uuid"

type AlertPriority string

const (
	AlertPriorityHigh   AlertPriority = "high"
	AlertPriorityNormal AlertPriority = "normal"
)

// ErrorKindRetryExhausted is the error taxonomy sent when a step spends its
// retry budget.
const ErrorKindRetryExhausted = "workflow_retry_exhausted"

// ErrorKindStepFailed is sent when a step fails while automatic retries are
// switched off and budget remains.
const ErrorKindStepFailed = "workflow_step_failed"

type FailureAlert struct {
	ProjectID  uuid.UUID     `json:"project"`
	StepID     uuid.UUID     `json:"step"`
	StepName   string        `json:"stepName"`
	ErrorKind  string        `json:"errorKind"`
	Priority   AlertPriority `json:"priority"`
	RetryCount int           `json:"retryCount"`
	MaxRetries int           `json:"maxRetries"`
	Reason     string        `json:"reason"`
}

type SuccessAlert struct {
	ProjectID      uuid.UUID `json:"project"`
	CompletedSteps int       `json:"completedSteps"`
}

// Activation is handed to the Trigger Gateway to start a step on the agent side.
type Activation struct {
	ProjectID uuid.UUID `json:"projectId"`
	StepID    uuid.UUID `json:"stepId"`
	StepName  string    `json:"stepName"`
	Order     int       `json:"order"`
	Prompt    string    `json:"prompt"`
	Attempt   int       `json:"attempt"`
}
