package ports

import (
	"context"
	"encoding/json"
	"time"

	"go-stepflow/internal/domain"

	"github.com/google/uuid"
)

// Transactor runs fn inside one database transaction. Repositories called
// with the ctx handed to fn join that transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// StepRepository represents the step catalog storage operations
type StepRepository interface {
	Create(ctx context.Context, step *domain.StepDefinition) error
	Update(ctx context.Context, step *domain.StepDefinition) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.StepDefinition, error)
	GetByName(ctx context.Context, name string) (*domain.StepDefinition, error)

	// Active definitions ordered by step order, ties broken by lowest id
	ListActive(ctx context.Context) ([]domain.StepDefinition, error)
	ListAll(ctx context.Context) ([]domain.StepDefinition, error)
}

// ProgressRepository represents the Progress store operations
type ProgressRepository interface {
	// Create all rows of a project in one transaction
	CreateBatch(ctx context.Context, rows []domain.Progress) error

	GetByID(ctx context.Context, id uuid.UUID) (*domain.Progress, error)
	GetByProjectAndStep(ctx context.Context, projectID, stepID uuid.UUID) (*domain.Progress, error)

	// Rows of a project joined with their step, ordered by step order
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]domain.ProgressWithStep, error)
	CountByProject(ctx context.Context, projectID uuid.UUID) (int64, error)

	// Compare-and-swap on status: "SET status=to, fields... WHERE id=? AND status=from".
	// Returns domain.ErrStaleTransition when no row matched. retry_count is
	// owned by the store: it is incremented on failed -> in_progress and
	// never written otherwise.
	Transition(ctx context.Context, id uuid.UUID, from, to domain.ProgressStatus, fields map[string]any) error

	// Stores the agent session handle while the row is still in_progress
	SetConversationRef(ctx context.Context, id uuid.UUID, ref string) error

	// in_progress rows started before the cutoff
	ListStale(ctx context.Context, startedBefore time.Time) ([]domain.Progress, error)

	DeleteByProject(ctx context.Context, projectID uuid.UUID) error
}

// ResultRepository represents the step result storage operations
type ResultRepository interface {
	UpsertMacroAnalysis(ctx context.Context, m *domain.MacroAnalysis) error
	UpsertConsolidatedData(ctx context.Context, d *domain.ConsolidatedData) error
	UpsertFinalMessage(ctx context.Context, m *domain.FinalMessage) error

	// Replace the project's list wholesale
	ReplaceMissingDocuments(ctx context.Context, projectID uuid.UUID, docs []domain.MissingDocument) error
	ReplaceVigilancePoints(ctx context.Context, projectID uuid.UUID, points []domain.VigilancePoint) error
	ReplaceStrengthPoints(ctx context.Context, projectID uuid.UUID, points []domain.StrengthPoint) error

	GetFinalMessage(ctx context.Context, projectID uuid.UUID) (*domain.FinalMessage, error)
	SetReformulatedText(ctx context.Context, projectID uuid.UUID, text string) error

	GetFindingStatus(ctx context.Context, kind domain.FindingKind, id uuid.UUID) (domain.FindingStatus, error)
	SetFindingStatus(ctx context.Context, kind domain.FindingKind, id uuid.UUID, from, to domain.FindingStatus) error

	GetProjectResults(ctx context.Context, projectID uuid.UUID) (*domain.ProjectResults, error)
	DeleteByProject(ctx context.Context, projectID uuid.UUID) error
}

// ResultWriter persists one typed result for a completing step
type ResultWriter interface {
	Write(ctx context.Context, progress *domain.Progress, result domain.StepResult) (json.RawMessage, error)
}

// TriggerGateway hands a step off to the external AI agent
type TriggerGateway interface {
	ActivateStep(ctx context.Context, activation domain.Activation) (string, error)
}

// Notifier delivers operator alerts. Implementations used by the engine
// must not block on delivery.
type Notifier interface {
	NotifyFailure(ctx context.Context, alert domain.FailureAlert) error
	NotifySuccess(ctx context.Context, alert domain.SuccessAlert) error
}

// EventBus represents the event bus operations
type EventBus interface {
	// Publish "step X is done" to subscribers
	PublishStepCompleted(ctx context.Context, event domain.StepCompletedEvent) error

	// Publish a failed attempt, exhausted or not
	PublishStepTerminated(ctx context.Context, event domain.StepTerminatedEvent) error
}
