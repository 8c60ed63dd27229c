package repository

import (
	"context"
	"go-stepflow/internal/core/ports"
	"go-stepflow/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type stepRepository struct {
	db *gorm.DB
}

// NewStepRepository creates a new instance of StepRepository
func NewStepRepository(db *gorm.DB) ports.StepRepository {
	return &stepRepository{db: db}
}

func (r *stepRepository) Create(ctx context.Context, step *domain.StepDefinition) error {
	return mapError(conn(ctx, r.db).Create(step).Error, "step "+step.Name)
}

// Update writes every mutable column, including IsActive=false which a
// struct-based Updates would skip as a zero value.
func (r *stepRepository) Update(ctx context.Context, step *domain.StepDefinition) error {
	err := conn(ctx, r.db).
		Model(&domain.StepDefinition{}).
		Where("id = ?", step.ID).
		Updates(map[string]interface{}{
			"name":            step.Name,
			"description":     step.Description,
			"prompt_template": step.PromptTemplate,
			"step_order":      step.Order,
			"result_kind":     step.ResultKind,
			"is_active":       step.IsActive,
		}).Error
	return mapError(err, "step "+step.Name)
}

func (r *stepRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.StepDefinition, error) {
	var step domain.StepDefinition
	err := conn(ctx, r.db).Where("id = ?", id).First(&step).Error
	if err != nil {
		return nil, mapError(err, "step "+id.String())
	}
	return &step, nil
}

func (r *stepRepository) GetByName(ctx context.Context, name string) (*domain.StepDefinition, error) {
	var step domain.StepDefinition
	err := conn(ctx, r.db).Where("name = ?", name).First(&step).Error
	if err != nil {
		return nil, mapError(err, "step "+name)
	}
	return &step, nil
}

func (r *stepRepository) ListActive(ctx context.Context) ([]domain.StepDefinition, error) {
	var steps []domain.StepDefinition
	err := conn(ctx, r.db).
		Where("is_active = ?", true).
		Order("step_order ASC").
		Order("id ASC").
		Find(&steps).Error
	return steps, mapError(err, "active steps")
}

func (r *stepRepository) ListAll(ctx context.Context) ([]domain.StepDefinition, error) {
	var steps []domain.StepDefinition
	err := conn(ctx, r.db).Order("step_order ASC").Order("id ASC").Find(&steps).Error
	return steps, mapError(err, "steps")
}
