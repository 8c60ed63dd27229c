package repository

import (
	"context"
	"fmt"
	"time"

	"go-stepflow/internal/core/ports"
	"go-stepflow/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type resultRepository struct {
	db *gorm.DB
}

// NewResultRepository creates a new instance of ResultRepository
func NewResultRepository(db *gorm.DB) ports.ResultRepository {
	return &resultRepository{db: db}
}

// upsertByProject inserts value or overwrites the columns of the row already
// stored for the same project.
func (r *resultRepository) upsertByProject(ctx context.Context, value interface{}, columns []string, what string) error {
	err := conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}},
		DoUpdates: clause.AssignmentColumns(append(columns, "progress_id", "updated_at")),
	}).Create(value).Error
	return mapError(err, what)
}

func (r *resultRepository) UpsertMacroAnalysis(ctx context.Context, m *domain.MacroAnalysis) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return r.upsertByProject(ctx, m, []string{
		"is_sector_promising", "has_regulatory_constraints", "is_market_saturated",
		"summary", "key_points", "risks", "opportunities",
	}, "macro analysis")
}

func (r *resultRepository) UpsertConsolidatedData(ctx context.Context, d *domain.ConsolidatedData) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return r.upsertByProject(ctx, d, []string{
		"fiscal_year", "currency", "revenue", "ebitda", "net_income",
		"equity", "net_debt", "cash_flow", "employees", "funding_asked",
	}, "consolidated data")
}

// UpsertFinalMessage replaces the raw text. A previous reformulation no
// longer matches the new text, so it is cleared too.
func (r *resultRepository) UpsertFinalMessage(ctx context.Context, m *domain.FinalMessage) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.ReformulatedText = nil
	return r.upsertByProject(ctx, m, []string{"raw_text", "reformulated_text"}, "final message")
}

func (r *resultRepository) ReplaceMissingDocuments(ctx context.Context, projectID uuid.UUID, docs []domain.MissingDocument) error {
	return r.replace(ctx, projectID, &domain.MissingDocument{}, len(docs), func(db *gorm.DB) error {
		for i := range docs {
			if docs[i].ID == uuid.Nil {
				docs[i].ID = uuid.New()
			}
			docs[i].ProjectID = projectID
		}
		return db.Create(&docs).Error
	}, "missing documents")
}

func (r *resultRepository) ReplaceVigilancePoints(ctx context.Context, projectID uuid.UUID, points []domain.VigilancePoint) error {
	return r.replace(ctx, projectID, &domain.VigilancePoint{}, len(points), func(db *gorm.DB) error {
		for i := range points {
			if points[i].ID == uuid.Nil {
				points[i].ID = uuid.New()
			}
			points[i].ProjectID = projectID
		}
		return db.Create(&points).Error
	}, "vigilance points")
}

func (r *resultRepository) ReplaceStrengthPoints(ctx context.Context, projectID uuid.UUID, points []domain.StrengthPoint) error {
	return r.replace(ctx, projectID, &domain.StrengthPoint{}, len(points), func(db *gorm.DB) error {
		for i := range points {
			if points[i].ID == uuid.Nil {
				points[i].ID = uuid.New()
			}
			points[i].ProjectID = projectID
		}
		return db.Create(&points).Error
	}, "strength points")
}

// replace deletes the project's rows of model and inserts the new set in the
// caller's transaction, or in a fresh one when there is none.
func (r *resultRepository) replace(ctx context.Context, projectID uuid.UUID, model interface{}, n int, insert func(db *gorm.DB) error, what string) error {
	run := func(db *gorm.DB) error {
		if err := db.Where("project_id = ?", projectID).Delete(model).Error; err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		return insert(db)
	}

	var err error
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		err = run(tx)
	} else {
		err = r.db.WithContext(ctx).Transaction(run)
	}
	return mapError(err, what)
}

func (r *resultRepository) GetFinalMessage(ctx context.Context, projectID uuid.UUID) (*domain.FinalMessage, error) {
	var m domain.FinalMessage
	err := conn(ctx, r.db).Where("project_id = ?", projectID).First(&m).Error
	if err != nil {
		return nil, mapError(err, "final message")
	}
	return &m, nil
}

func (r *resultRepository) SetReformulatedText(ctx context.Context, projectID uuid.UUID, text string) error {
	result := conn(ctx, r.db).
		Model(&domain.FinalMessage{}).
		Where("project_id = ?", projectID).
		Updates(map[string]interface{}{
			"reformulated_text": text,
			"updated_at":        time.Now(),
		})
	if result.Error != nil {
		return mapError(result.Error, "final message")
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("final message: %w", domain.ErrNotFound)
	}
	return nil
}

func findingModel(kind domain.FindingKind) (interface{}, error) {
	switch kind {
	case domain.FindingMissingDocument:
		return &domain.MissingDocument{}, nil
	case domain.FindingVigilancePoint:
		return &domain.VigilancePoint{}, nil
	case domain.FindingStrengthPoint:
		return &domain.StrengthPoint{}, nil
	default:
		return nil, fmt.Errorf("unknown finding kind %q: %w", kind, domain.ErrValidation)
	}
}

func (r *resultRepository) GetFindingStatus(ctx context.Context, kind domain.FindingKind, id uuid.UUID) (domain.FindingStatus, error) {
	model, err := findingModel(kind)
	if err != nil {
		return "", err
	}
	var status string
	err = conn(ctx, r.db).
		Model(model).
		Select("status").
		Where("id = ?", id).
		Limit(1).
		Scan(&status).Error
	if err != nil {
		return "", mapError(err, string(kind))
	}
	if status == "" {
		return "", fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
	}
	return domain.FindingStatus(status), nil
}

// SetFindingStatus moves a finding with the same compare-and-swap used for
// Progress rows.
func (r *resultRepository) SetFindingStatus(ctx context.Context, kind domain.FindingKind, id uuid.UUID, from, to domain.FindingStatus) error {
	model, err := findingModel(kind)
	if err != nil {
		return err
	}
	result := conn(ctx, r.db).
		Model(model).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return mapError(result.Error, string(kind))
	}
	if result.RowsAffected == 0 {
		return domain.ErrStaleTransition
	}
	return nil
}

func (r *resultRepository) GetProjectResults(ctx context.Context, projectID uuid.UUID) (*domain.ProjectResults, error) {
	db := conn(ctx, r.db)
	out := &domain.ProjectResults{
		ProjectID:        projectID,
		MissingDocuments: []domain.MissingDocument{},
		VigilancePoints:  []domain.VigilancePoint{},
		StrengthPoints:   []domain.StrengthPoint{},
	}

	var macro []domain.MacroAnalysis
	if err := db.Where("project_id = ?", projectID).Limit(1).Find(&macro).Error; err != nil {
		return nil, mapError(err, "macro analysis")
	}
	if len(macro) > 0 {
		out.MacroAnalysis = &macro[0]
	}

	var data []domain.ConsolidatedData
	if err := db.Where("project_id = ?", projectID).Limit(1).Find(&data).Error; err != nil {
		return nil, mapError(err, "consolidated data")
	}
	if len(data) > 0 {
		out.ConsolidatedData = &data[0]
	}

	var final []domain.FinalMessage
	if err := db.Where("project_id = ?", projectID).Limit(1).Find(&final).Error; err != nil {
		return nil, mapError(err, "final message")
	}
	if len(final) > 0 {
		out.FinalMessage = &final[0]
	}

	if err := db.Where("project_id = ?", projectID).Order("created_at ASC").Find(&out.MissingDocuments).Error; err != nil {
		return nil, mapError(err, "missing documents")
	}
	if err := db.Where("project_id = ?", projectID).Order("created_at ASC").Find(&out.VigilancePoints).Error; err != nil {
		return nil, mapError(err, "vigilance points")
	}
	if err := db.Where("project_id = ?", projectID).Order("created_at ASC").Find(&out.StrengthPoints).Error; err != nil {
		return nil, mapError(err, "strength points")
	}
	return out, nil
}

func (r *resultRepository) DeleteByProject(ctx context.Context, projectID uuid.UUID) error {
	db := conn(ctx, r.db)
	for _, model := range []interface{}{
		&domain.MacroAnalysis{},
		&domain.ConsolidatedData{},
		&domain.MissingDocument{},
		&domain.VigilancePoint{},
		&domain.StrengthPoint{},
		&domain.FinalMessage{},
	} {
		if err := db.Where("project_id = ?", projectID).Delete(model).Error; err != nil {
			return mapError(err, "results of project "+projectID.String())
		}
	}
	return nil
}
