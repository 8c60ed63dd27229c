package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ProgressStatus string

const (
	StatusPending    ProgressStatus = "pending"
	StatusInProgress ProgressStatus = "in_progress"
	StatusCompleted  ProgressStatus = "completed"
	StatusFailed     ProgressStatus = "failed"
)

// Progress is the execution record of one step for one project.
type Progress struct {
	ID        uuid.UUID      `gorm:"type:uuid;primary_key;" json:"id"`
	ProjectID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_progress_project_step,priority:1" json:"projectId"`
	StepID    uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_progress_project_step,priority:2" json:"stepId"`
	Status    ProgressStatus `gorm:"type:varchar(20);index;default:'pending'" json:"status"`

	Content                 datatypes.JSON `gorm:"type:jsonb" json:"content,omitempty"`
	ExternalConversationRef *string        `gorm:"type:varchar(500)" json:"externalConversationRef,omitempty"`
	PromptSnapshot          *string        `gorm:"type:text" json:"promptSnapshot,omitempty"`
	LastError               *string        `gorm:"type:text" json:"lastError,omitempty"`
	RetryCount              int            `gorm:"default:0" json:"retryCount"`

	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (Progress) TableName() string {
	return "progress"
}

func NewProgress(projectID, stepID uuid.UUID) *Progress {
	return &Progress{
		ID:        uuid.New(),
		ProjectID: projectID,
		StepID:    stepID,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
}

// CanRetry reports whether the retry budget still allows an automatic retry.
func (p *Progress) CanRetry(maxRetries int) bool {
	return p.RetryCount < maxRetries
}

func (p *Progress) IsFinished() bool {
	return p.Status == StatusCompleted
}

// ProgressWithStep pairs a Progress row with the definition it was created for.
type ProgressWithStep struct {
	Progress
	StepName  string     `json:"stepName"`
	StepOrder int        `json:"stepOrder"`
	Kind      ResultKind `json:"resultKind"`
}

type OverallStatus string

const (
	OverallNotStarted OverallStatus = "not_started"
	OverallInProgress OverallStatus = "in_progress"
	OverallCompleted  OverallStatus = "completed"
	OverallFailed     OverallStatus = "failed"
)

// DeriveOverallStatus computes a project's workflow status from its Progress set.
// A failed row only fails the workflow once its retry budget is spent.
func DeriveOverallStatus(rows []Progress, maxRetries int) OverallStatus {
	if len(rows) == 0 {
		return OverallNotStarted
	}
	completed := 0
	for _, p := range rows {
		switch p.Status {
		case StatusCompleted:
			completed++
		case StatusFailed:
			if !p.CanRetry(maxRetries) {
				return OverallFailed
			}
		}
	}
	if completed == len(rows) {
		return OverallCompleted
	}
	return OverallInProgress
}

// WorkflowStatus is the derived view of a project's workflow instance.
type WorkflowStatus struct {
	ProjectID      uuid.UUID          `json:"projectId"`
	OverallStatus  OverallStatus      `json:"overallStatus"`
	CompletedSteps int                `json:"completedSteps"`
	TotalSteps     int                `json:"totalSteps"`
	CurrentStep    *ProgressWithStep  `json:"currentStep"`
	Steps          []ProgressWithStep `json:"steps"`
}
