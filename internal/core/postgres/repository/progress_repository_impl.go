package repository

import (
	"context"
	"time"

	"go-stepflow/internal/core/ports"
	"go-stepflow/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type progressRepository struct {
	db *gorm.DB
}

// NewProgressRepository creates a new instance of ProgressRepository
func NewProgressRepository(db *gorm.DB) ports.ProgressRepository {
	return &progressRepository{db: db}
}

func (r *progressRepository) CreateBatch(ctx context.Context, rows []domain.Progress) error {
	if len(rows) == 0 {
		return nil
	}
	return mapError(conn(ctx, r.db).Create(&rows).Error, "progress")
}

func (r *progressRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Progress, error) {
	var p domain.Progress
	err := conn(ctx, r.db).Where("id = ?", id).First(&p).Error
	if err != nil {
		return nil, mapError(err, "progress "+id.String())
	}
	return &p, nil
}

func (r *progressRepository) GetByProjectAndStep(ctx context.Context, projectID, stepID uuid.UUID) (*domain.Progress, error) {
	var p domain.Progress
	err := conn(ctx, r.db).
		Where("project_id = ? AND step_id = ?", projectID, stepID).
		First(&p).Error
	if err != nil {
		return nil, mapError(err, "progress for step "+stepID.String())
	}
	return &p, nil
}

func (r *progressRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]domain.ProgressWithStep, error) {
	var rows []domain.ProgressWithStep
	err := conn(ctx, r.db).
		Table("progress").
		Select("progress.*, step_definitions.name AS step_name, step_definitions.step_order AS step_order, step_definitions.result_kind AS kind").
		Joins("JOIN step_definitions ON step_definitions.id = progress.step_id").
		Where("progress.project_id = ?", projectID).
		Order("step_definitions.step_order ASC").
		Order("step_definitions.id ASC").
		Scan(&rows).Error
	return rows, mapError(err, "progress of project "+projectID.String())
}

func (r *progressRepository) CountByProject(ctx context.Context, projectID uuid.UUID) (int64, error) {
	var count int64
	err := conn(ctx, r.db).
		Model(&domain.Progress{}).
		Where("project_id = ?", projectID).
		Count(&count).Error
	return count, mapError(err, "progress count")
}

// Transition is the store-level serialization point. Two callers racing on
// the same row both issue the conditional UPDATE; only one sees a row
// affected, the other gets ErrStaleTransition.
func (r *progressRepository) Transition(ctx context.Context, id uuid.UUID, from, to domain.ProgressStatus, fields map[string]any) error {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	for k, v := range fields {
		updates[k] = v
	}
	if from == domain.StatusFailed && to == domain.StatusInProgress {
		updates["retry_count"] = gorm.Expr("retry_count + ?", 1)
	} else {
		delete(updates, "retry_count")
	}

	result := conn(ctx, r.db).
		Model(&domain.Progress{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)

	if result.Error != nil {
		return mapError(result.Error, "progress transition")
	}
	if result.RowsAffected == 0 {
		return domain.ErrStaleTransition
	}
	return nil
}

func (r *progressRepository) SetConversationRef(ctx context.Context, id uuid.UUID, ref string) error {
	result := conn(ctx, r.db).
		Model(&domain.Progress{}).
		Where("id = ? AND status = ?", id, domain.StatusInProgress).
		Updates(map[string]interface{}{
			"external_conversation_ref": ref,
			"updated_at":                time.Now(),
		})
	if result.Error != nil {
		return mapError(result.Error, "conversation ref")
	}
	if result.RowsAffected == 0 {
		return domain.ErrStaleTransition
	}
	return nil
}

func (r *progressRepository) ListStale(ctx context.Context, startedBefore time.Time) ([]domain.Progress, error) {
	var rows []domain.Progress
	err := conn(ctx, r.db).
		Where("status = ? AND started_at < ?", domain.StatusInProgress, startedBefore).
		Order("started_at ASC").
		Find(&rows).Error
	return rows, mapError(err, "stale progress")
}

func (r *progressRepository) DeleteByProject(ctx context.Context, projectID uuid.UUID) error {
	err := conn(ctx, r.db).
		Where("project_id = ?", projectID).
		Delete(&domain.Progress{}).Error
	return mapError(err, "progress of project "+projectID.String())
}
