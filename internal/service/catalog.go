package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go-stepflow/internal/core/ports"
	"go-stepflow/internal/domain"

	"github.com/google/uuid"
)

// StepInput describes a new catalog entry.
type StepInput struct {
	Name           string
	Description    string
	PromptTemplate string
	Order          int
	ResultKind     domain.ResultKind
}

// StepChanges lists the fields to change on an existing definition; nil
// fields are left alone.
type StepChanges struct {
	Description    *string
	PromptTemplate *string
	Order          *int
	ResultKind     *domain.ResultKind
	IsActive       *bool
}

type StepCatalog interface {
	DefineStep(ctx context.Context, input StepInput) (*domain.StepDefinition, error)
	UpdateStep(ctx context.Context, id uuid.UUID, changes StepChanges) (*domain.StepDefinition, error)
	ListActiveSteps(ctx context.Context) ([]domain.StepDefinition, error)
	ListSteps(ctx context.Context) ([]domain.StepDefinition, error)
}

type stepCatalog struct {
	tx     ports.Transactor
	repo   ports.StepRepository
	logger *slog.Logger
}

func NewStepCatalog(tx ports.Transactor, repo ports.StepRepository, logger *slog.Logger) StepCatalog {
	return &stepCatalog{
		tx:     tx,
		repo:   repo,
		logger: logger.With("component", "catalog"),
	}
}

func (c *stepCatalog) DefineStep(ctx context.Context, input StepInput) (*domain.StepDefinition, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, fmt.Errorf("step name is required: %w", domain.ErrValidation)
	}
	if strings.TrimSpace(input.PromptTemplate) == "" {
		return nil, fmt.Errorf("prompt template is required: %w", domain.ErrValidation)
	}
	step := domain.NewStepDefinition(input.Name, input.PromptTemplate, input.Order, input.ResultKind)
	step.Description = input.Description
	if err := validateDefinition(step); err != nil {
		return nil, err
	}

	err := c.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := c.repo.GetByName(ctx, step.Name); err == nil {
			return fmt.Errorf("step %q already exists: %w", step.Name, domain.ErrValidation)
		} else if !isNotFound(err) {
			return err
		}
		if err := c.checkOrderFree(ctx, step); err != nil {
			return err
		}
		return c.repo.Create(ctx, step)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("step defined", "step_id", step.ID, "name", step.Name, "order", step.Order)
	return step, nil
}

// UpdateStep edits a definition. Running and finished workflows keep the
// prompt they were activated with.
func (c *stepCatalog) UpdateStep(ctx context.Context, id uuid.UUID, changes StepChanges) (*domain.StepDefinition, error) {
	var step *domain.StepDefinition
	err := c.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		step, err = c.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}

		if changes.Description != nil {
			step.Description = *changes.Description
		}
		if changes.PromptTemplate != nil {
			if strings.TrimSpace(*changes.PromptTemplate) == "" {
				return fmt.Errorf("prompt template is required: %w", domain.ErrValidation)
			}
			step.PromptTemplate = *changes.PromptTemplate
		}
		if changes.Order != nil {
			step.Order = *changes.Order
		}
		if changes.ResultKind != nil {
			step.ResultKind = *changes.ResultKind
		}
		if changes.IsActive != nil {
			step.IsActive = *changes.IsActive
		}
		if err := validateDefinition(step); err != nil {
			return err
		}
		if err := c.checkOrderFree(ctx, step); err != nil {
			return err
		}
		return c.repo.Update(ctx, step)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("step updated", "step_id", step.ID, "name", step.Name, "order", step.Order, "active", step.IsActive)
	return step, nil
}

func (c *stepCatalog) ListActiveSteps(ctx context.Context) ([]domain.StepDefinition, error) {
	return c.repo.ListActive(ctx)
}

func (c *stepCatalog) ListSteps(ctx context.Context) ([]domain.StepDefinition, error) {
	return c.repo.ListAll(ctx)
}

// checkOrderFree rejects an active step whose order is already used by
// another active step.
func (c *stepCatalog) checkOrderFree(ctx context.Context, step *domain.StepDefinition) error {
	if !step.IsActive {
		return nil
	}
	active, err := c.repo.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, other := range active {
		if other.ID != step.ID && other.Order == step.Order {
			return fmt.Errorf("order %d is already used by step %q: %w", step.Order, other.Name, domain.ErrValidation)
		}
	}
	return nil
}

func validateDefinition(step *domain.StepDefinition) error {
	if step.Order < 0 {
		return fmt.Errorf("order must be >= 0, got %d: %w", step.Order, domain.ErrValidation)
	}
	if step.ResultKind == "" {
		step.ResultKind = domain.ResultGeneric
	}
	if !step.ResultKind.Valid() {
		return fmt.Errorf("unknown result kind %q: %w", step.ResultKind, domain.ErrValidation)
	}
	return nil
}
