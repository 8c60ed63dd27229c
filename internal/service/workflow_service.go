package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go-stepflow/internal/core/ports"
	"go-stepflow/internal/domain"
	"go-stepflow/internal/metrics"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// StepOutcome is what a callback produced: the row as stored after the call,
// whether the call was a repeat of an already-applied report, and the
// project's overall status.
type StepOutcome struct {
	Progress      *domain.Progress     `json:"progress"`
	Duplicate     bool                 `json:"duplicate"`
	OverallStatus domain.OverallStatus `json:"overallStatus"`
}

type WorkflowService interface {
	Initiate(ctx context.Context, projectID uuid.UUID) (*domain.WorkflowStatus, error)
	GetStatus(ctx context.Context, projectID uuid.UUID) (*domain.WorkflowStatus, error)

	RecordStepResult(ctx context.Context, projectID, stepID uuid.UUID, result domain.StepResult) (*StepOutcome, error)
	// RecordResultByKind completes the project's step that produces result's kind.
	RecordResultByKind(ctx context.Context, projectID uuid.UUID, result domain.StepResult) (*StepOutcome, error)
	RecordStepFailure(ctx context.Context, projectID, stepID uuid.UUID, reason string) (*StepOutcome, error)
	// ReportStepStatus serves the generic update-step callback.
	ReportStepStatus(ctx context.Context, projectID, stepID uuid.UUID, status domain.ProgressStatus, content json.RawMessage) (*StepOutcome, error)
	RetryStep(ctx context.Context, projectID, stepID uuid.UUID) (*domain.Progress, error)

	ReformulateFinalMessage(ctx context.Context, projectID uuid.UUID, text string) (*domain.FinalMessage, error)
	GetResults(ctx context.Context, projectID uuid.UUID) (*domain.ProjectResults, error)
	SetFindingStatus(ctx context.Context, kind domain.FindingKind, id uuid.UUID, status domain.FindingStatus) error
	DeleteProject(ctx context.Context, projectID uuid.UUID) error

	// ReapStale fails in_progress steps started more than olderThan ago.
	ReapStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// Deps are the collaborators of the workflow engine.
type Deps struct {
	Tx       ports.Transactor
	Steps    ports.StepRepository
	Progress ports.ProgressRepository
	Results  ports.ResultRepository
	Writer   ports.ResultWriter
	Trigger  ports.TriggerGateway
	Notifier ports.Notifier
}

type Config struct {
	MaxRetries int
	AutoRetry  bool
}

type Option func(*workflowService)

func WithClock(now func() time.Time) Option {
	return func(s *workflowService) { s.now = now }
}

func WithEventBus(bus ports.EventBus) Option {
	return func(s *workflowService) { s.events = bus }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *workflowService) { s.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *workflowService) { s.logger = logger }
}

type workflowService struct {
	Deps
	cfg     Config
	events  ports.EventBus
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewWorkflowService(deps Deps, cfg Config, opts ...Option) WorkflowService {
	s := &workflowService{
		Deps:   deps,
		cfg:    cfg,
		events: nopEventBus{},
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	s.logger = s.logger.With("component", "workflow")
	return s
}

// errDuplicate aborts a completion transaction that lost the race.
var errDuplicate = errors.New("duplicate completion")

func (s *workflowService) Initiate(ctx context.Context, projectID uuid.UUID) (*domain.WorkflowStatus, error) {
	if projectID == uuid.Nil {
		return nil, fmt.Errorf("project id is required: %w", domain.ErrValidation)
	}

	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		count, err := s.Progress.CountByProject(ctx, projectID)
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("project %s: %w", projectID, domain.ErrAlreadyInitiated)
		}

		steps, err := s.Steps.ListActive(ctx)
		if err != nil {
			return err
		}
		if len(steps) == 0 {
			return fmt.Errorf("no active steps defined: %w", domain.ErrValidation)
		}

		rows := make([]domain.Progress, 0, len(steps))
		for _, step := range steps {
			rows = append(rows, *domain.NewProgress(projectID, step.ID))
		}
		if err := s.Progress.CreateBatch(ctx, rows); err != nil {
			// a concurrent initiate created the rows first
			if errors.Is(err, domain.ErrValidation) {
				return fmt.Errorf("project %s: %w", projectID, domain.ErrAlreadyInitiated)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("workflow initiated", "project_id", projectID)
	ctx = context.WithoutCancel(ctx)
	if err := s.advance(ctx, projectID, true); err != nil {
		return nil, err
	}
	return s.GetStatus(ctx, projectID)
}

func (s *workflowService) GetStatus(ctx context.Context, projectID uuid.UUID) (*domain.WorkflowStatus, error) {
	rows, err := s.Progress.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("project %s: %w", projectID, domain.ErrNotFound)
	}

	status := &domain.WorkflowStatus{
		ProjectID:     projectID,
		OverallStatus: s.overall(rows),
		TotalSteps:    len(rows),
		Steps:         rows,
	}
	for i := range rows {
		if rows[i].Status == domain.StatusInProgress {
			status.CurrentStep = &rows[i]
		}
		if rows[i].IsFinished() {
			status.CompletedSteps++
		}
	}
	return status, nil
}

func (s *workflowService) RecordResultByKind(ctx context.Context, projectID uuid.UUID, result domain.StepResult) (*StepOutcome, error) {
	rows, err := s.Progress.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("project %s: %w", projectID, domain.ErrNotFound)
	}

	var match *domain.ProgressWithStep
	for i := range rows {
		if rows[i].Kind != result.Kind() {
			continue
		}
		if match == nil || rows[i].Status == domain.StatusInProgress {
			match = &rows[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("project %s has no %s step: %w", projectID, result.Kind(), domain.ErrNotFound)
	}
	return s.RecordStepResult(ctx, projectID, match.StepID, result)
}

func (s *workflowService) RecordStepResult(ctx context.Context, projectID, stepID uuid.UUID, result domain.StepResult) (*StepOutcome, error) {
	progress, err := s.Progress.GetByProjectAndStep(ctx, projectID, stepID)
	if err != nil {
		return nil, err
	}
	step, err := s.Steps.GetByID(ctx, stepID)
	if err != nil {
		return nil, err
	}
	if result.Kind() != domain.ResultGeneric && result.Kind() != step.ResultKind {
		return nil, fmt.Errorf("step %q expects a %s result, got %s: %w", step.Name, step.ResultKind, result.Kind(), domain.ErrValidation)
	}

	switch progress.Status {
	case domain.StatusCompleted:
		return s.duplicateCompletion(ctx, progress, result)
	case domain.StatusPending, domain.StatusFailed:
		return nil, fmt.Errorf("step %q is %s, cannot complete: %w", step.Name, progress.Status, domain.ErrInvalidTransition)
	}

	err = s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		content, err := s.Writer.Write(ctx, progress, result)
		if err != nil {
			return err
		}
		err = s.Progress.Transition(ctx, progress.ID, domain.StatusInProgress, domain.StatusCompleted, map[string]any{
			"content":      datatypes.JSON(content),
			"completed_at": s.now(),
			"last_error":   nil,
		})
		if errors.Is(err, domain.ErrStaleTransition) {
			return errDuplicate
		}
		return err
	})
	if errors.Is(err, errDuplicate) {
		// lost the race; the winner's row decides
		current, err := s.Progress.GetByID(ctx, progress.ID)
		if err != nil {
			return nil, err
		}
		if current.Status != domain.StatusCompleted {
			return nil, fmt.Errorf("step %q is %s, cannot complete: %w", step.Name, current.Status, domain.ErrInvalidTransition)
		}
		return s.duplicateCompletion(ctx, current, result)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.Transitions.WithLabelValues(string(domain.StatusInProgress), string(domain.StatusCompleted)).Inc()
	s.logger.Info("step completed", "project_id", projectID, "step", step.Name, "kind", result.Kind())
	s.publishCompleted(ctx, progress, step.Name)

	// the completion is committed; a caller that goes away must not strand
	// the next step in pending
	ctx = context.WithoutCancel(ctx)
	if err := s.advance(ctx, projectID, true); err != nil {
		return nil, err
	}
	return s.outcome(ctx, progress.ID, projectID, false)
}

// duplicateCompletion answers a repeated completion report with the stored
// row. The first payload wins. A resent report also restarts the advance, in
// case the original call stopped between its commit and the next activation.
func (s *workflowService) duplicateCompletion(ctx context.Context, stored *domain.Progress, result domain.StepResult) (*StepOutcome, error) {
	s.metrics.DuplicateReports.WithLabelValues("completion").Inc()
	if incoming, err := result.Content(); err == nil && !sameJSON(incoming, stored.Content) {
		s.logger.Warn("duplicate completion with a different payload ignored",
			"project_id", stored.ProjectID, "step_id", stored.StepID)
	}

	ctx = context.WithoutCancel(ctx)
	if err := s.advance(ctx, stored.ProjectID, false); err != nil {
		return nil, err
	}
	return s.outcome(ctx, stored.ID, stored.ProjectID, true)
}

func (s *workflowService) RecordStepFailure(ctx context.Context, projectID, stepID uuid.UUID, reason string) (*StepOutcome, error) {
	progress, err := s.Progress.GetByProjectAndStep(ctx, projectID, stepID)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "reported failed by agent"
	}

	switch progress.Status {
	case domain.StatusFailed:
		s.metrics.DuplicateReports.WithLabelValues("failure").Inc()
		return s.outcome(ctx, progress.ID, projectID, true)
	case domain.StatusPending, domain.StatusCompleted:
		return nil, fmt.Errorf("step is %s, cannot fail: %w", progress.Status, domain.ErrInvalidTransition)
	}

	duplicate, err := s.fail(ctx, progress, reason)
	if err != nil {
		return nil, err
	}
	return s.outcome(ctx, progress.ID, projectID, duplicate)
}

func (s *workflowService) ReportStepStatus(ctx context.Context, projectID, stepID uuid.UUID, status domain.ProgressStatus, content json.RawMessage) (*StepOutcome, error) {
	switch status {
	case domain.StatusCompleted:
		if len(bytes.TrimSpace(content)) == 0 {
			return nil, fmt.Errorf("content is required to complete a step: %w", domain.ErrValidation)
		}
		return s.RecordStepResult(ctx, projectID, stepID, domain.GenericResult{Raw: content})
	case domain.StatusFailed:
		return s.RecordStepFailure(ctx, projectID, stepID, failureReason(content))
	case domain.StatusInProgress:
		progress, err := s.Progress.GetByProjectAndStep(ctx, projectID, stepID)
		if err != nil {
			return nil, err
		}
		if progress.Status != domain.StatusInProgress {
			return nil, fmt.Errorf("step is %s, only the engine starts steps: %w", progress.Status, domain.ErrInvalidTransition)
		}
		return s.outcome(ctx, progress.ID, projectID, true)
	default:
		return nil, fmt.Errorf("status %q cannot be reported: %w", status, domain.ErrInvalidTransition)
	}
}

func (s *workflowService) RetryStep(ctx context.Context, projectID, stepID uuid.UUID) (*domain.Progress, error) {
	progress, err := s.Progress.GetByProjectAndStep(ctx, projectID, stepID)
	if err != nil {
		return nil, err
	}
	if progress.Status != domain.StatusFailed {
		return nil, fmt.Errorf("only failed steps can be retried, step is %s: %w", progress.Status, domain.ErrInvalidTransition)
	}

	s.logger.Info("operator retry", "project_id", projectID, "step_id", stepID, "retry_count", progress.RetryCount)
	if err := s.activate(ctx, progress, domain.StatusFailed); err != nil {
		return nil, err
	}
	return s.Progress.GetByID(ctx, progress.ID)
}

func (s *workflowService) ReformulateFinalMessage(ctx context.Context, projectID uuid.UUID, text string) (*domain.FinalMessage, error) {
	if text == "" {
		return nil, fmt.Errorf("reformulated text is required: %w", domain.ErrValidation)
	}
	if err := s.Results.SetReformulatedText(ctx, projectID, text); err != nil {
		return nil, err
	}
	return s.Results.GetFinalMessage(ctx, projectID)
}

func (s *workflowService) GetResults(ctx context.Context, projectID uuid.UUID) (*domain.ProjectResults, error) {
	if err := s.requireProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.Results.GetProjectResults(ctx, projectID)
}

func (s *workflowService) SetFindingStatus(ctx context.Context, kind domain.FindingKind, id uuid.UUID, status domain.FindingStatus) error {
	current, err := s.Results.GetFindingStatus(ctx, kind, id)
	if err != nil {
		return err
	}
	if !current.CanMoveTo(status) {
		return fmt.Errorf("%s %s cannot move from %s to %s: %w", kind, id, current, status, domain.ErrInvalidTransition)
	}
	err = s.Results.SetFindingStatus(ctx, kind, id, current, status)
	if errors.Is(err, domain.ErrStaleTransition) {
		return fmt.Errorf("%s %s changed concurrently: %w", kind, id, domain.ErrInvalidTransition)
	}
	return err
}

// DeleteProject removes the project's Progress rows and every result it owns
// in one transaction.
func (s *workflowService) DeleteProject(ctx context.Context, projectID uuid.UUID) error {
	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.requireProject(ctx, projectID); err != nil {
			return err
		}
		if err := s.Results.DeleteByProject(ctx, projectID); err != nil {
			return err
		}
		return s.Progress.DeleteByProject(ctx, projectID)
	})
	if err != nil {
		return err
	}
	s.logger.Info("project deleted", "project_id", projectID)
	return nil
}

func (s *workflowService) ReapStale(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := s.Progress.ListStale(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}

	reaped := 0
	for i := range stale {
		duplicate, err := s.fail(ctx, &stale[i], "step timed out")
		if err != nil {
			s.logger.Error("reaping stale step failed", "progress_id", stale[i].ID, "error", err)
			continue
		}
		if !duplicate {
			reaped++
			s.metrics.ReapedSteps.Inc()
		}
	}
	return reaped, nil
}

// advance starts the next pending step. When none remain and settle is set,
// a completed workflow is announced.
func (s *workflowService) advance(ctx context.Context, projectID uuid.UUID, settle bool) error {
	rows, err := s.Progress.ListByProject(ctx, projectID)
	if err != nil {
		return err
	}

	var next *domain.ProgressWithStep
	for i := range rows {
		switch rows[i].Status {
		case domain.StatusInProgress:
			return nil
		case domain.StatusPending:
			if next == nil {
				next = &rows[i]
			} else if rows[i].StepOrder == next.StepOrder {
				s.logger.Warn("steps share an order, lowest id runs first",
					"order", next.StepOrder, "chosen", next.StepName, "other", rows[i].StepName)
			}
		}
	}

	if next == nil {
		if settle && s.overall(rows) == domain.OverallCompleted {
			s.metrics.WorkflowsFinished.WithLabelValues(string(domain.OverallCompleted)).Inc()
			s.logger.Info("workflow completed", "project_id", projectID, "steps", len(rows))
			s.notifySuccess(ctx, domain.SuccessAlert{ProjectID: projectID, CompletedSteps: len(rows)})
		}
		return nil
	}

	err = s.activate(ctx, &next.Progress, domain.StatusPending)
	if errors.Is(err, domain.ErrInvalidTransition) {
		// another caller started it
		return nil
	}
	return err
}

// activate moves a row to in_progress and hands it to the agent. Trigger
// errors go through the failure path so the retry budget bounds them.
func (s *workflowService) activate(ctx context.Context, progress *domain.Progress, from domain.ProgressStatus) error {
	step, err := s.Steps.GetByID(ctx, progress.StepID)
	if err != nil {
		return err
	}

	prompt := step.PromptTemplate
	err = s.Progress.Transition(ctx, progress.ID, from, domain.StatusInProgress, map[string]any{
		"started_at":                s.now(),
		"completed_at":              nil,
		"prompt_snapshot":           prompt,
		"external_conversation_ref": nil,
	})
	if errors.Is(err, domain.ErrStaleTransition) {
		return fmt.Errorf("step %q is no longer %s: %w", step.Name, from, domain.ErrInvalidTransition)
	}
	if err != nil {
		return err
	}
	s.metrics.Transitions.WithLabelValues(string(from), string(domain.StatusInProgress)).Inc()

	current, err := s.Progress.GetByID(ctx, progress.ID)
	if err != nil {
		return err
	}

	ref, err := s.Trigger.ActivateStep(ctx, domain.Activation{
		ProjectID: current.ProjectID,
		StepID:    step.ID,
		StepName:  step.Name,
		Order:     step.Order,
		Prompt:    prompt,
		Attempt:   current.RetryCount + 1,
	})
	switch {
	case errors.Is(err, domain.ErrActivationInFlight):
		s.logger.Warn("activation already in flight", "project_id", current.ProjectID, "step", step.Name)
		return nil
	case err != nil:
		s.logger.Error("step activation failed", "project_id", current.ProjectID, "step", step.Name, "error", err)
		_, err = s.fail(ctx, current, err.Error())
		return err
	}

	s.logger.Info("step activated", "project_id", current.ProjectID, "step", step.Name, "attempt", current.RetryCount+1)
	if err := s.Progress.SetConversationRef(ctx, current.ID, ref); err != nil && !errors.Is(err, domain.ErrStaleTransition) {
		return err
	}
	return nil
}

// fail moves an in_progress row to failed, then retries it or, once the
// budget is spent, alerts the operator. Only the caller that wins the
// in_progress -> failed swap gets here, so each exhaustion alerts once.
func (s *workflowService) fail(ctx context.Context, progress *domain.Progress, reason string) (bool, error) {
	err := s.Progress.Transition(ctx, progress.ID, domain.StatusInProgress, domain.StatusFailed, map[string]any{
		"last_error": reason,
	})
	if errors.Is(err, domain.ErrStaleTransition) {
		current, getErr := s.Progress.GetByID(ctx, progress.ID)
		if getErr != nil {
			return false, getErr
		}
		if current.Status == domain.StatusFailed {
			return true, nil
		}
		return false, fmt.Errorf("step is %s, cannot fail: %w", current.Status, domain.ErrInvalidTransition)
	}
	if err != nil {
		return false, err
	}
	s.metrics.Transitions.WithLabelValues(string(domain.StatusInProgress), string(domain.StatusFailed)).Inc()

	failed, err := s.Progress.GetByID(ctx, progress.ID)
	if err != nil {
		return false, err
	}
	step, err := s.Steps.GetByID(ctx, failed.StepID)
	if err != nil {
		return false, err
	}
	log := s.logger.With("project_id", failed.ProjectID, "step", step.Name, "retry_count", failed.RetryCount)

	if !failed.CanRetry(s.cfg.MaxRetries) {
		log.Error("retry budget exhausted", "reason", reason)
		s.metrics.RetriesExhausted.Inc()
		s.metrics.WorkflowsFinished.WithLabelValues(string(domain.OverallFailed)).Inc()
		s.publishTerminated(ctx, failed, domain.StepTerminationExhausted, reason)
		s.notifyFailure(ctx, domain.FailureAlert{
			ProjectID:  failed.ProjectID,
			StepID:     failed.StepID,
			StepName:   step.Name,
			ErrorKind:  domain.ErrorKindRetryExhausted,
			Priority:   domain.AlertPriorityHigh,
			RetryCount: failed.RetryCount,
			MaxRetries: s.cfg.MaxRetries,
			Reason:     reason,
		})
		return false, nil
	}

	s.publishTerminated(ctx, failed, domain.StepTerminationFailed, reason)
	if !s.cfg.AutoRetry {
		log.Warn("step failed, waiting for operator retry", "reason", reason)
		s.notifyFailure(ctx, domain.FailureAlert{
			ProjectID:  failed.ProjectID,
			StepID:     failed.StepID,
			StepName:   step.Name,
			ErrorKind:  domain.ErrorKindStepFailed,
			Priority:   domain.AlertPriorityNormal,
			RetryCount: failed.RetryCount,
			MaxRetries: s.cfg.MaxRetries,
			Reason:     reason,
		})
		return false, nil
	}

	log.Warn("step failed, retrying", "reason", reason, "max_retries", s.cfg.MaxRetries)
	err = s.activate(ctx, failed, domain.StatusFailed)
	if errors.Is(err, domain.ErrInvalidTransition) {
		return false, nil
	}
	return false, err
}

func (s *workflowService) outcome(ctx context.Context, progressID, projectID uuid.UUID, duplicate bool) (*StepOutcome, error) {
	progress, err := s.Progress.GetByID(ctx, progressID)
	if err != nil {
		return nil, err
	}
	rows, err := s.Progress.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &StepOutcome{Progress: progress, Duplicate: duplicate, OverallStatus: s.overall(rows)}, nil
}

func (s *workflowService) overall(rows []domain.ProgressWithStep) domain.OverallStatus {
	plain := make([]domain.Progress, len(rows))
	for i := range rows {
		plain[i] = rows[i].Progress
	}
	return domain.DeriveOverallStatus(plain, s.cfg.MaxRetries)
}

func (s *workflowService) requireProject(ctx context.Context, projectID uuid.UUID) error {
	count, err := s.Progress.CountByProject(ctx, projectID)
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("project %s: %w", projectID, domain.ErrNotFound)
	}
	return nil
}

func (s *workflowService) notifyFailure(ctx context.Context, alert domain.FailureAlert) {
	if err := s.Notifier.NotifyFailure(ctx, alert); err != nil {
		s.logger.Error("failure alert not delivered", "project_id", alert.ProjectID, "error", err)
	}
}

func (s *workflowService) notifySuccess(ctx context.Context, alert domain.SuccessAlert) {
	if err := s.Notifier.NotifySuccess(ctx, alert); err != nil {
		s.logger.Error("success alert not delivered", "project_id", alert.ProjectID, "error", err)
	}
}

func (s *workflowService) publishCompleted(ctx context.Context, p *domain.Progress, stepName string) {
	err := s.events.PublishStepCompleted(ctx, domain.StepCompletedEvent{
		ProjectID:  p.ProjectID,
		StepID:     p.StepID,
		ProgressID: p.ID,
		StepName:   stepName,
	})
	if err != nil {
		s.logger.Warn("publish step completed", "error", err)
	}
}

func (s *workflowService) publishTerminated(ctx context.Context, p *domain.Progress, kind domain.StepTerminationType, reason string) {
	err := s.events.PublishStepTerminated(ctx, domain.StepTerminatedEvent{
		ProjectID:  p.ProjectID,
		StepID:     p.StepID,
		ProgressID: p.ID,
		Type:       kind,
		RetryCount: p.RetryCount,
		Error:      reason,
	})
	if err != nil {
		s.logger.Warn("publish step terminated", "error", err)
	}
}

type nopEventBus struct{}

func (nopEventBus) PublishStepCompleted(context.Context, domain.StepCompletedEvent) error {
	return nil
}

func (nopEventBus) PublishStepTerminated(context.Context, domain.StepTerminatedEvent) error {
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

func sameJSON(a, b []byte) bool {
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}

// failureReason pulls a readable reason out of an update-step payload.
func failureReason(content json.RawMessage) string {
	if len(bytes.TrimSpace(content)) == 0 {
		return ""
	}
	var text string
	if json.Unmarshal(content, &text) == nil {
		return text
	}
	var obj struct {
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}
	if json.Unmarshal(content, &obj) == nil {
		if obj.Reason != "" {
			return obj.Reason
		}
		if obj.Error != "" {
			return obj.Error
		}
	}
	return string(content)
}
