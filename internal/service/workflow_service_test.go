package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"go-stepflow/internal/core/ports"
	"go-stepflow/internal/core/postgres/repository"
	"go-stepflow/internal/database/dbtest"
	"go-stepflow/internal/domain"
	"go-stepflow/internal/logging"
	"go-stepflow/internal/metrics"
	"go-stepflow/internal/resultsink"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeTrigger struct {
	mu          sync.Mutex
	activations []domain.Activation
	failures    int // fail this many calls, then succeed; -1 fails forever
}

func (f *fakeTrigger) ActivateStep(_ context.Context, a domain.Activation) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activations = append(f.activations, a)
	if f.failures != 0 {
		if f.failures > 0 {
			f.failures--
		}
		return "", fmt.Errorf("agent unreachable: %w", domain.ErrUpstreamAgent)
	}
	return "conv-" + a.StepName, nil
}

func (f *fakeTrigger) calls() []domain.Activation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Activation(nil), f.activations...)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyFailure(ctx context.Context, alert domain.FailureAlert) error {
	return m.Called(alert).Error(0)
}

func (m *mockNotifier) NotifySuccess(ctx context.Context, alert domain.SuccessAlert) error {
	return m.Called(alert).Error(0)
}

type harness struct {
	db       *gorm.DB
	svc      WorkflowService
	catalog  StepCatalog
	progress ports.ProgressRepository
	results  ports.ResultRepository
	trigger  *fakeTrigger
	notifier *mockNotifier
	metrics  *metrics.Metrics
	steps    []domain.StepDefinition
	project  uuid.UUID
	deps     Deps
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	db := dbtest.New(t)
	tx := repository.NewTransactor(db)
	stepRepo := repository.NewStepRepository(db)
	results := repository.NewResultRepository(db)

	h := &harness{
		db:       db,
		catalog:  NewStepCatalog(tx, stepRepo, logging.Discard()),
		progress: repository.NewProgressRepository(db),
		results:  results,
		trigger:  &fakeTrigger{},
		notifier: &mockNotifier{},
		metrics:  metrics.New(),
		project:  uuid.New(),
	}
	h.deps = Deps{
		Tx:       tx,
		Steps:    stepRepo,
		Progress: h.progress,
		Results:  results,
		Writer:   resultsink.NewRegistry(results),
		Trigger:  h.trigger,
		Notifier: h.notifier,
	}
	h.svc = NewWorkflowService(h.deps, cfg, append([]Option{WithMetrics(h.metrics), WithLogger(logging.Discard())}, opts...)...)
	return h
}

// defineDefault creates the catalog {0: bootstrap, 1: macro, 2: final}.
func (h *harness) defineDefault(t *testing.T) {
	t.Helper()
	for _, in := range []StepInput{
		{Name: "upload", PromptTemplate: "index the uploaded files", Order: 0, ResultKind: domain.ResultBootstrap},
		{Name: "macro", PromptTemplate: "analyse the sector", Order: 1, ResultKind: domain.ResultMacroAnalysis},
		{Name: "final", PromptTemplate: "write the final message", Order: 2, ResultKind: domain.ResultFinalMessage},
	} {
		step, err := h.catalog.DefineStep(context.Background(), in)
		require.NoError(t, err)
		h.steps = append(h.steps, *step)
	}
}

func (h *harness) row(t *testing.T, i int) *domain.Progress {
	t.Helper()
	p, err := h.progress.GetByProjectAndStep(context.Background(), h.project, h.steps[i].ID)
	require.NoError(t, err)
	return p
}

func (h *harness) inProgressCount(t *testing.T) int {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(&domain.Progress{}).
		Where("project_id = ? AND status = ?", h.project, domain.StatusInProgress).
		Count(&n).Error)
	return int(n)
}

var bootstrapDone = domain.GenericResult{Raw: json.RawMessage(`{"files":3}`)}

func TestScenarios(t *testing.T) {
	ctx := context.Background()
	cfg := Config{MaxRetries: 3, AutoRetry: true}

	t.Run("A: initiate creates every row and starts the first step", func(t *testing.T) {
		h := newHarness(t, cfg)
		h.defineDefault(t)

		status, err := h.svc.Initiate(ctx, h.project)
		require.NoError(t, err)

		assert.Equal(t, domain.OverallInProgress, status.OverallStatus)
		assert.Equal(t, 3, status.TotalSteps)
		assert.Zero(t, status.CompletedSteps)
		require.NotNil(t, status.CurrentStep)
		assert.Equal(t, "upload", status.CurrentStep.StepName)
		assert.Equal(t, domain.StatusPending, status.Steps[1].Status)
		assert.Equal(t, domain.StatusPending, status.Steps[2].Status)

		first := h.row(t, 0)
		require.NotNil(t, first.StartedAt)
		require.NotNil(t, first.PromptSnapshot)
		assert.Equal(t, "index the uploaded files", *first.PromptSnapshot)
		require.NotNil(t, first.ExternalConversationRef)
		assert.Equal(t, "conv-upload", *first.ExternalConversationRef)

		calls := h.trigger.calls()
		require.Len(t, calls, 1)
		assert.Equal(t, 1, calls[0].Attempt)
	})

	t.Run("B: completing a step starts the next one", func(t *testing.T) {
		h := newHarness(t, cfg)
		h.defineDefault(t)
		_, err := h.svc.Initiate(ctx, h.project)
		require.NoError(t, err)

		out, err := h.svc.RecordStepResult(ctx, h.project, h.steps[0].ID, bootstrapDone)
		require.NoError(t, err)
		assert.False(t, out.Duplicate)
		assert.Equal(t, domain.StatusCompleted, out.Progress.Status)
		assert.NotNil(t, out.Progress.CompletedAt)
		assert.JSONEq(t, `{"files":3}`, string(out.Progress.Content))

		status, err := h.svc.GetStatus(ctx, h.project)
		require.NoError(t, err)
		assert.Equal(t, 1, status.CompletedSteps)
		require.NotNil(t, status.CurrentStep)
		assert.Equal(t, "macro", status.CurrentStep.StepName)
		assert.Equal(t, 1, h.inProgressCount(t))
	})

	t.Run("C and D: exhausts after the third automatic retry, alerts once, operator retry counts 4", func(t *testing.T) {
		h := newHarness(t, cfg)
		h.defineDefault(t)
		_, err := h.svc.Initiate(ctx, h.project)
		require.NoError(t, err)
		_, err = h.svc.RecordStepResult(ctx, h.project, h.steps[0].ID, bootstrapDone)
		require.NoError(t, err)

		h.notifier.On("NotifyFailure", mock.MatchedBy(func(a domain.FailureAlert) bool {
			return a.ErrorKind == domain.ErrorKindRetryExhausted &&
				a.Priority == domain.AlertPriorityHigh &&
				a.RetryCount == 3 && a.MaxRetries == 3 &&
				a.ProjectID == h.project && a.StepID == h.steps[1].ID
		})).Return(nil).Once()

		// the first attempt and three automatic retries
		for attempt := 0; attempt < 3; attempt++ {
			out, err := h.svc.RecordStepFailure(ctx, h.project, h.steps[1].ID, "agent crashed")
			require.NoError(t, err)
			assert.Equal(t, domain.StatusInProgress, out.Progress.Status)
			assert.Equal(t, attempt+1, out.Progress.RetryCount)
			assert.Equal(t, domain.OverallInProgress, out.OverallStatus)
		}
		out, err := h.svc.RecordStepFailure(ctx, h.project, h.steps[1].ID, "agent crashed")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, out.Progress.Status)
		assert.Equal(t, 3, out.Progress.RetryCount)
		assert.Equal(t, domain.OverallFailed, out.OverallStatus)
		require.NotNil(t, out.Progress.LastError)
		assert.Equal(t, "agent crashed", *out.Progress.LastError)

		// a repeated report changes nothing and alerts nobody
		again, err := h.svc.RecordStepFailure(ctx, h.project, h.steps[1].ID, "agent crashed")
		require.NoError(t, err)
		assert.True(t, again.Duplicate)
		assert.Equal(t, 3, again.Progress.RetryCount)

		h.notifier.AssertNumberOfCalls(t, "NotifyFailure", 1)
		h.notifier.AssertExpectations(t)
		assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RetriesExhausted))

		status, err := h.svc.GetStatus(ctx, h.project)
		require.NoError(t, err)
		assert.Equal(t, domain.OverallFailed, status.OverallStatus)
		assert.Nil(t, status.CurrentStep)

		retried, err := h.svc.RetryStep(ctx, h.project, h.steps[1].ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusInProgress, retried.Status)
		assert.Equal(t, 4, retried.RetryCount)

		calls := h.trigger.calls()
		assert.Equal(t, 5, calls[len(calls)-1].Attempt)
	})

	t.Run("E: a duplicate completion returns the stored row unchanged", func(t *testing.T) {
		h := newHarness(t, cfg)
		h.defineDefault(t)
		_, err := h.svc.Initiate(ctx, h.project)
		require.NoError(t, err)

		first, err := h.svc.RecordStepResult(ctx, h.project, h.steps[0].ID, bootstrapDone)
		require.NoError(t, err)

		second, err := h.svc.RecordStepResult(ctx, h.project, h.steps[0].ID, bootstrapDone)
		require.NoError(t, err)
		assert.True(t, second.Duplicate)
		assert.JSONEq(t, string(first.Progress.Content), string(second.Progress.Content))
		assert.Equal(t, first.Progress.CompletedAt.Unix(), second.Progress.CompletedAt.Unix())
		assert.Equal(t, first.Progress.UpdatedAt.Unix(), second.Progress.UpdatedAt.Unix())

		// a different payload does not overwrite the first one
		third, err := h.svc.RecordStepResult(ctx, h.project, h.steps[0].ID, domain.GenericResult{Raw: json.RawMessage(`{"files":9}`)})
		require.NoError(t, err)
		assert.True(t, third.Duplicate)
		assert.JSONEq(t, `{"files":3}`, string(third.Progress.Content))

		// step 1 was activated exactly once
		assert.Len(t, h.trigger.calls(), 2)
	})
}

func TestRecordStepResult(t *testing.T) {
	ctx := context.Background()
	cfg := Config{MaxRetries: 3, AutoRetry: true}

	t.Run("Should run a workflow to completion and alert once", func(t *testing.T) {
		h := newHarness(t, cfg)
		h.defineDefault(t)
		h.notifier.On("NotifySuccess", domain.SuccessAlert{ProjectID: h.project, CompletedSteps: 3}).Return(nil).Once()

		_, err := h.svc.Initiate(ctx, h.project)
		require.NoError(t, err)
		_, err = h.svc.RecordStepResult(ctx, h.project, h.steps[0].ID, bootstrapDone)
		require.NoError(t, err)
		_, err = h.svc.RecordResultByKind(ctx, h.project, domain.MacroAnalysisResult{
			IsSectorPromising: true,
			Summary:           "growing market",
			KeyPoints:         []string{"demand"},
		})
		require.NoError(t, err)
		out, err := h.svc.RecordResultByKind(ctx, h.project, domain.FinalMessageResult{Message: "go ahead"})
		require.NoError(t, err)
		assert.Equal(t, domain.OverallCompleted, out.OverallStatus)

		results, err := h.svc.GetResults(ctx, h.project)
		require.NoError(t, err)
		require.NotNil(t, results.MacroAnalysis)
		assert.Equal(t, "growing market", results.MacroAnalysis.Summary)
		require.NotNil(t, results.FinalMessage)
		assert.Equal(t, "go ahead", results.FinalMessage.RawText)

		// duplicate of the last step does not alert again
		_, err = h.svc.RecordResultByKind(ctx, h.project, domain.FinalMessageResult{Message: "go ahead"})
		require.NoError(t, err)
		h.notifier.AssertExpectations(t)
		h.notifier.AssertNumberOfCalls(t, "NotifySuccess", 1)
	})

	t.Run("Should refuse to complete a pending step", func(t *testing.T) {
		h := newHarness(t, cfg)
		h.defineDefault(t)
		_, err := h.svc.Initiate(ctx, h.project)
		require.NoError(t, err)

		_, err = h.svc.RecordStepResult(ctx, h.project, h.steps[2].ID, domain.FinalMessageResult{Message: "early"})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("Should refuse a result of another kind", func(t *testing.T) {
		h := newHarness(t, cfg)
		h.defineDefault(t)
		_, err := h.svc.Initiate(ctx, h.project)
		require.NoError(t, err)

		_, err = h.svc.RecordStepResult(ctx, h.project, h.steps[0].ID, domain.FinalMessageResult{Message: "x"})
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.Equal(t, domain.StatusInProgress, h.row(t, 0).Status)
	})

	t.Run("Should report unknown projects and steps as not found", func(t *testing.T) {
		h := newHarness(t, cfg)
		h.defineDefault(t)

		_, err := h.svc.RecordStepResult(ctx, uuid.New(), h.steps[0].ID, bootstrapDone)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = h.svc.GetStatus(ctx, uuid.New())
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = h.svc.RecordResultByKind(ctx, uuid.New(), domain.FinalMessageResult{Message: "x"})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Should let exactly one of many racing completions win", func(t *testing.T) {
		h := newHarness(t, cfg)
		h.defineDefault(t)
		_, err := h.svc.Initiate(ctx, h.project)
		require.NoError(t, err)

		var wg sync.WaitGroup
		var mu sync.Mutex
		fresh, dup := 0, 0
		for i := 0; i < 6; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				out, err := h.svc.RecordStepResult(ctx, h.project, h.steps[0].ID, bootstrapDone)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				if out.Duplicate {
					dup++
				} else {
					fresh++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, fresh)
		assert.Equal(t, 5, dup)
		assert.Equal(t, 1, h.inProgressCount(t))
		assert.Len(t, h.trigger.calls(), 2)
	})
}

// flakyProgress fails the next pending -> in_progress swaps.
type flakyProgress struct {
	ports.ProgressRepository
	mu         sync.Mutex
	failStarts int
}

func (f *flakyProgress) Transition(ctx context.Context, id uuid.UUID, from, to domain.ProgressStatus, fields map[string]any) error {
	f.mu.Lock()
	fail := from == domain.StatusPending && to == domain.StatusInProgress && f.failStarts > 0
	if fail {
		f.failStarts--
	}
	f.mu.Unlock()
	if fail {
		return fmt.Errorf("progress transition: %w: connection reset", domain.ErrPersistence)
	}
	return f.ProgressRepository.Transition(ctx, id, from, to, fields)
}

// cancelOnComplete cancels the caller's context as soon as a completion is
// committed, like a client that hangs up right after the write.
type cancelOnComplete struct {
	cancel context.CancelFunc
}

func (c cancelOnComplete) PublishStepCompleted(context.Context, domain.StepCompletedEvent) error {
	c.cancel()
	return nil
}

func (c cancelOnComplete) PublishStepTerminated(context.Context, domain.StepTerminatedEvent) error {
	return nil
}

func TestAdvanceAfterInterruptedCompletion(t *testing.T) {
	ctx := context.Background()
	cfg := Config{MaxRetries: 3, AutoRetry: true}

	t.Run("Should start the next step when the agent resends its callback", func(t *testing.T) {
		h := newHarness(t, cfg)
		h.defineDefault(t)
		_, err := h.svc.Initiate(ctx, h.project)
		require.NoError(t, err)

		flaky := &flakyProgress{ProgressRepository: h.progress, failStarts: 1}
		deps := h.deps
		deps.Progress = flaky
		h.svc = NewWorkflowService(deps, cfg, WithMetrics(h.metrics), WithLogger(logging.Discard()))

		_, err = h.svc.RecordStepResult(ctx, h.project, h.steps[0].ID, bootstrapDone)
		require.ErrorIs(t, err, domain.ErrPersistence)
		assert.Equal(t, domain.StatusCompleted, h.row(t, 0).Status)
		assert.Equal(t, domain.StatusPending, h.row(t, 1).Status)
		assert.Zero(t, h.inProgressCount(t))

		out, err := h.svc.RecordStepResult(ctx, h.project, h.steps[0].ID, bootstrapDone)
		require.NoError(t, err)
		assert.True(t, out.Duplicate)
		assert.Equal(t, domain.OverallInProgress, out.OverallStatus)

		status, err := h.svc.GetStatus(ctx, h.project)
		require.NoError(t, err)
		require.NotNil(t, status.CurrentStep)
		assert.Equal(t, "macro", status.CurrentStep.StepName)
		assert.Equal(t, 1, status.CompletedSteps)
		assert.Equal(t, 1, h.inProgressCount(t))
	})

	t.Run("Should start the next step after the caller hangs up", func(t *testing.T) {
		h := newHarness(t, cfg)
		h.defineDefault(t)
		_, err := h.svc.Initiate(ctx, h.project)
		require.NoError(t, err)

		callCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		h.svc = NewWorkflowService(h.deps, cfg,
			WithMetrics(h.metrics), WithLogger(logging.Discard()), WithEventBus(cancelOnComplete{cancel: cancel}))

		out, err := h.svc.RecordStepResult(callCtx, h.project, h.steps[0].ID, bootstrapDone)
		require.NoError(t, err)
		assert.False(t, out.Duplicate)
		assert.Error(t, callCtx.Err())
		assert.Equal(t, domain.StatusInProgress, h.row(t, 1).Status)
	})

	t.Run("Should not announce a finished workflow again on a resent final callback", func(t *testing.T) {
		h := newHarness(t, cfg)
		h.defineDefault(t)
		h.notifier.On("NotifySuccess", domain.SuccessAlert{ProjectID: h.project, CompletedSteps: 3}).Return(nil).Once()
		_, err := h.svc.Initiate(ctx, h.project)
		require.NoError(t, err)

		_, err = h.svc.RecordStepResult(ctx, h.project, h.steps[0].ID, bootstrapDone)
		require.NoError(t, err)
		_, err = h.svc.RecordResultByKind(ctx, h.project, domain.MacroAnalysisResult{Summary: "fine"})
		require.NoError(t, err)
		final := domain.FinalMessageResult{Message: "Dear founder"}
		_, err = h.svc.RecordResultByKind(ctx, h.project, final)
		require.NoError(t, err)

		again, err := h.svc.RecordResultByKind(ctx, h.project, final)
		require.NoError(t, err)
		assert.True(t, again.Duplicate)
		assert.Equal(t, domain.OverallCompleted, again.OverallStatus)
		h.notifier.AssertNumberOfCalls(t, "NotifySuccess", 1)
	})
}

func TestInitiate(t *testing.T) {
	ctx := context.Background()
	cfg := Config{MaxRetries: 3, AutoRetry: true}

	t.Run("Should refuse a second initiation", func(t *testing.T) {
		h := newHarness(t, cfg)
		h.defineDefault(t)
		_, err := h.svc.Initiate(ctx, h.project)
		require.NoError(t, err)

		_, err = h.svc.Initiate(ctx, h.project)
		assert.ErrorIs(t, err, domain.ErrAlreadyInitiated)
		assert.Len(t, h.trigger.calls(), 1)
	})

	t.Run("Should refuse an empty catalog", func(t *testing.T) {
		h := newHarness(t, cfg)

		_, err := h.svc.Initiate(ctx, h.project)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("Should skip inactive steps", func(t *testing.T) {
		h := newHarness(t, cfg)
		h.defineDefault(t)
		off := false
		_, err := h.catalog.UpdateStep(ctx, h.steps[1].ID, StepChanges{IsActive: &off})
		require.NoError(t, err)

		status, err := h.svc.Initiate(ctx, h.project)
		require.NoError(t, err)
		assert.Equal(t, 2, status.TotalSteps)
	})

	t.Run("Should break an order tie on the lowest id", func(t *testing.T) {
		h := newHarness(t, cfg)
		repo := repository.NewStepRepository(h.db)
		a := domain.NewStepDefinition("a", "p", 1, "")
		b := domain.NewStepDefinition("b", "p", 1, "")
		require.NoError(t, repo.Create(ctx, a))
		require.NoError(t, repo.Create(ctx, b))
		ids := []string{a.ID.String(), b.ID.String()}
		sort.Strings(ids)

		status, err := h.svc.Initiate(ctx, h.project)
		require.NoError(t, err)
		require.NotNil(t, status.CurrentStep)
		assert.Equal(t, ids[0], status.CurrentStep.StepID.String())
	})

	t.Run("Should spend the budget on activation failures", func(t *testing.T) {
		h := newHarness(t, Config{MaxRetries: 2, AutoRetry: true})
		h.defineDefault(t)
		h.trigger.failures = -1
		h.notifier.On("NotifyFailure", mock.MatchedBy(func(a domain.FailureAlert) bool {
			return a.ErrorKind == domain.ErrorKindRetryExhausted && a.RetryCount == 2
		})).Return(nil).Once()

		status, err := h.svc.Initiate(ctx, h.project)
		require.NoError(t, err)
		assert.Equal(t, domain.OverallFailed, status.OverallStatus)

		first := h.row(t, 0)
		assert.Equal(t, domain.StatusFailed, first.Status)
		assert.Equal(t, 2, first.RetryCount)
		assert.Len(t, h.trigger.calls(), 3)
		h.notifier.AssertExpectations(t)
	})

	t.Run("Should recover when the agent comes back within budget", func(t *testing.T) {
		h := newHarness(t, cfg)
		h.defineDefault(t)
		h.trigger.failures = 1

		_, err := h.svc.Initiate(ctx, h.project)
		require.NoError(t, err)

		first := h.row(t, 0)
		assert.Equal(t, domain.StatusInProgress, first.Status)
		assert.Equal(t, 1, first.RetryCount)
		require.NotNil(t, first.ExternalConversationRef)
	})
}

func TestFailureHandling(t *testing.T) {
	ctx := context.Background()

	t.Run("Should wait for the operator when auto retry is off", func(t *testing.T) {
		h := newHarness(t, Config{MaxRetries: 3, AutoRetry: false})
		h.defineDefault(t)
		h.notifier.On("NotifyFailure", mock.MatchedBy(func(a domain.FailureAlert) bool {
			return a.ErrorKind == domain.ErrorKindStepFailed && a.Priority == domain.AlertPriorityNormal
		})).Return(nil).Once()
		_, err := h.svc.Initiate(ctx, h.project)
		require.NoError(t, err)

		out, err := h.svc.RecordStepFailure(ctx, h.project, h.steps[0].ID, "")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, out.Progress.Status)
		assert.Equal(t, 0, out.Progress.RetryCount)
		assert.Equal(t, domain.OverallInProgress, out.OverallStatus)
		require.NotNil(t, out.Progress.LastError)
		assert.Equal(t, "reported failed by agent", *out.Progress.LastError)

		retried, err := h.svc.RetryStep(ctx, h.project, h.steps[0].ID)
		require.NoError(t, err)
		assert.Equal(t, 1, retried.RetryCount)
		h.notifier.AssertExpectations(t)
	})

	t.Run("Should reject failures and retries from the wrong state", func(t *testing.T) {
		h := newHarness(t, Config{MaxRetries: 3, AutoRetry: true})
		h.defineDefault(t)
		_, err := h.svc.Initiate(ctx, h.project)
		require.NoError(t, err)

		_, err = h.svc.RecordStepFailure(ctx, h.project, h.steps[1].ID, "x")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		_, err = h.svc.RetryStep(ctx, h.project, h.steps[0].ID)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)

		_, err = h.svc.RecordStepResult(ctx, h.project, h.steps[0].ID, bootstrapDone)
		require.NoError(t, err)
		_, err = h.svc.RecordStepFailure(ctx, h.project, h.steps[0].ID, "late failure")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("Should never decrease the retry count", func(t *testing.T) {
		h := newHarness(t, Config{MaxRetries: 5, AutoRetry: true})
		h.defineDefault(t)
		_, err := h.svc.Initiate(ctx, h.project)
		require.NoError(t, err)

		last := 0
		for i := 0; i < 4; i++ {
			out, err := h.svc.RecordStepFailure(ctx, h.project, h.steps[0].ID, "flaky")
			require.NoError(t, err)
			assert.GreaterOrEqual(t, out.Progress.RetryCount, last)
			last = out.Progress.RetryCount
		}
		_, err = h.svc.RecordStepResult(ctx, h.project, h.steps[0].ID, bootstrapDone)
		require.NoError(t, err)
		assert.Equal(t, last, h.row(t, 0).RetryCount)
	})
}

func TestReportStepStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{MaxRetries: 3, AutoRetry: true})
	h.defineDefault(t)
	_, err := h.svc.Initiate(ctx, h.project)
	require.NoError(t, err)

	_, err = h.svc.ReportStepStatus(ctx, h.project, h.steps[0].ID, domain.StatusCompleted, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	out, err := h.svc.ReportStepStatus(ctx, h.project, h.steps[0].ID, domain.StatusInProgress, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, out.Progress.Status)

	_, err = h.svc.ReportStepStatus(ctx, h.project, h.steps[0].ID, domain.StatusPending, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	out, err = h.svc.ReportStepStatus(ctx, h.project, h.steps[0].ID, domain.StatusFailed, json.RawMessage(`{"reason":"timeout upstream"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Progress.RetryCount)
	stored := h.row(t, 0)
	require.NotNil(t, stored.LastError)
	assert.Equal(t, "timeout upstream", *stored.LastError)

	out, err = h.svc.ReportStepStatus(ctx, h.project, h.steps[0].ID, domain.StatusCompleted, json.RawMessage(`"done"`))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, out.Progress.Status)

	_, err = h.svc.ReportStepStatus(ctx, h.project, h.steps[1].ID, domain.StatusInProgress, nil)
	require.NoError(t, err)
	_, err = h.svc.ReportStepStatus(ctx, h.project, h.steps[2].ID, domain.StatusInProgress, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestReapStale(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	h := newHarness(t, Config{MaxRetries: 3, AutoRetry: true}, WithClock(clock))
	h.defineDefault(t)
	_, err := h.svc.Initiate(ctx, h.project)
	require.NoError(t, err)

	n, err := h.svc.ReapStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	now = now.Add(2 * time.Hour)
	n, err = h.svc.ReapStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	first := h.row(t, 0)
	assert.Equal(t, domain.StatusInProgress, first.Status)
	assert.Equal(t, 1, first.RetryCount)
	require.NotNil(t, first.LastError)
	assert.Equal(t, "step timed out", *first.LastError)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ReapedSteps))
}

func TestSideOperations(t *testing.T) {
	ctx := context.Background()
	cfg := Config{MaxRetries: 3, AutoRetry: true}

	setup := func(t *testing.T) *harness {
		h := newHarness(t, cfg)
		h.defineDefault(t)
		_, err := h.svc.Initiate(ctx, h.project)
		require.NoError(t, err)
		return h
	}

	t.Run("Should reformulate the final message without touching progress", func(t *testing.T) {
		h := setup(t)

		_, err := h.svc.ReformulateFinalMessage(ctx, h.project, "nicer")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		require.NoError(t, h.results.UpsertFinalMessage(ctx, &domain.FinalMessage{ProjectID: h.project, ProgressID: h.row(t, 2).ID, RawText: "raw"}))
		msg, err := h.svc.ReformulateFinalMessage(ctx, h.project, "nicer")
		require.NoError(t, err)
		require.NotNil(t, msg.ReformulatedText)
		assert.Equal(t, "nicer", *msg.ReformulatedText)
		assert.Equal(t, domain.StatusPending, h.row(t, 2).Status)

		_, err = h.svc.ReformulateFinalMessage(ctx, h.project, "")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("Should settle a finding once", func(t *testing.T) {
		h := setup(t)
		docs := []domain.MissingDocument{{ProgressID: uuid.New(), Name: "kbis", Status: domain.FindingPending}}
		require.NoError(t, h.results.ReplaceMissingDocuments(ctx, h.project, docs))

		require.NoError(t, h.svc.SetFindingStatus(ctx, domain.FindingMissingDocument, docs[0].ID, domain.FindingResolved))
		err := h.svc.SetFindingStatus(ctx, domain.FindingMissingDocument, docs[0].ID, domain.FindingIrrelevant)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		err = h.svc.SetFindingStatus(ctx, domain.FindingMissingDocument, uuid.New(), domain.FindingResolved)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Should delete a project and everything it owns", func(t *testing.T) {
		h := setup(t)
		_, err := h.svc.RecordStepResult(ctx, h.project, h.steps[0].ID, bootstrapDone)
		require.NoError(t, err)
		_, err = h.svc.RecordResultByKind(ctx, h.project, domain.MacroAnalysisResult{Summary: "s"})
		require.NoError(t, err)

		require.NoError(t, h.svc.DeleteProject(ctx, h.project))

		_, err = h.svc.GetStatus(ctx, h.project)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		results, err := h.results.GetProjectResults(ctx, h.project)
		require.NoError(t, err)
		assert.Nil(t, results.MacroAnalysis)

		assert.True(t, errors.Is(h.svc.DeleteProject(ctx, h.project), domain.ErrNotFound))
	})
}
