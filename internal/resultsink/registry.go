package resultsink

import (
	"context"
	"encoding/json"
	"fmt"

	"go-stepflow/internal/core/ports"
	"go-stepflow/internal/domain"
)

// WriterFunc persists one kind of typed result and returns the JSON that
// goes into Progress.content.
type WriterFunc func(ctx context.Context, progress *domain.Progress, result domain.StepResult) (json.RawMessage, error)

// Registry holds one writer per result kind
type Registry map[domain.ResultKind]WriterFunc

// NewRegistry wires a writer for every result kind onto repo.
func NewRegistry(repo ports.ResultRepository) Registry {
	registry := make(Registry)

	registry[domain.ResultGeneric] = contentOnly
	registry[domain.ResultBootstrap] = contentOnly

	registry[domain.ResultMacroAnalysis] = func(ctx context.Context, p *domain.Progress, result domain.StepResult) (json.RawMessage, error) {
		r, ok := result.(domain.MacroAnalysisResult)
		if !ok {
			return nil, mismatch(result, domain.ResultMacroAnalysis)
		}
		err := repo.UpsertMacroAnalysis(ctx, &domain.MacroAnalysis{
			ProjectID:                p.ProjectID,
			ProgressID:               p.ID,
			IsSectorPromising:        r.IsSectorPromising,
			HasRegulatoryConstraints: r.HasRegulatoryConstraints,
			IsMarketSaturated:        r.IsMarketSaturated,
			Summary:                  r.Summary,
			KeyPoints:                nonNil(r.KeyPoints),
			Risks:                    nonNil(r.Risks),
			Opportunities:            nonNil(r.Opportunities),
		})
		if err != nil {
			return nil, err
		}
		return r.Content()
	}

	registry[domain.ResultConsolidatedData] = func(ctx context.Context, p *domain.Progress, result domain.StepResult) (json.RawMessage, error) {
		r, ok := result.(domain.ConsolidatedDataResult)
		if !ok {
			return nil, mismatch(result, domain.ResultConsolidatedData)
		}
		err := repo.UpsertConsolidatedData(ctx, &domain.ConsolidatedData{
			ProjectID:    p.ProjectID,
			ProgressID:   p.ID,
			FiscalYear:   r.FiscalYear,
			Currency:     r.Currency,
			Revenue:      r.Revenue,
			EBITDA:       r.EBITDA,
			NetIncome:    r.NetIncome,
			Equity:       r.Equity,
			NetDebt:      r.NetDebt,
			CashFlow:     r.CashFlow,
			Employees:    r.Employees,
			FundingAsked: r.FundingAsked,
		})
		if err != nil {
			return nil, err
		}
		return r.Content()
	}

	registry[domain.ResultReputationAnalysis] = func(ctx context.Context, p *domain.Progress, result domain.StepResult) (json.RawMessage, error) {
		r, ok := result.(domain.ReputationAnalysisResult)
		if !ok {
			return nil, mismatch(result, domain.ResultReputationAnalysis)
		}
		points := make([]domain.VigilancePoint, 0, len(r.Points))
		for _, item := range r.Points {
			points = append(points, domain.VigilancePoint{
				ProgressID:  p.ID,
				Title:       item.Title,
				Description: item.Description,
				Category:    item.Category,
				RiskLevel:   riskOrDefault(item.RiskLevel),
				Status:      domain.FindingPending,
			})
		}
		if err := repo.ReplaceVigilancePoints(ctx, p.ProjectID, points); err != nil {
			return nil, err
		}
		return r.Content()
	}

	registry[domain.ResultMissingDocuments] = func(ctx context.Context, p *domain.Progress, result domain.StepResult) (json.RawMessage, error) {
		r, ok := result.(domain.MissingDocumentsResult)
		if !ok {
			return nil, mismatch(result, domain.ResultMissingDocuments)
		}
		docs := make([]domain.MissingDocument, 0, len(r.Documents))
		for _, item := range r.Documents {
			priority := item.Priority
			if priority == "" {
				priority = domain.PriorityMedium
			}
			docs = append(docs, domain.MissingDocument{
				ProgressID:  p.ID,
				Name:        item.Name,
				Description: item.Description,
				Category:    item.Category,
				Priority:    priority,
				Status:      domain.FindingPending,
			})
		}
		if err := repo.ReplaceMissingDocuments(ctx, p.ProjectID, docs); err != nil {
			return nil, err
		}
		return r.Content()
	}

	registry[domain.ResultStrengthsWeaknesses] = func(ctx context.Context, p *domain.Progress, result domain.StepResult) (json.RawMessage, error) {
		r, ok := result.(domain.StrengthsWeaknessesResult)
		if !ok {
			return nil, mismatch(result, domain.ResultStrengthsWeaknesses)
		}
		points := make([]domain.StrengthPoint, 0, len(r.Points))
		for _, item := range r.Points {
			if item.Kind != domain.KindStrength && item.Kind != domain.KindWeakness {
				return nil, fmt.Errorf("point %q has kind %q: %w", item.Title, item.Kind, domain.ErrValidation)
			}
			points = append(points, domain.StrengthPoint{
				ProgressID:  p.ID,
				Kind:        item.Kind,
				Title:       item.Title,
				Description: item.Description,
				RiskLevel:   riskOrDefault(item.RiskLevel),
				Status:      domain.FindingPending,
			})
		}
		if err := repo.ReplaceStrengthPoints(ctx, p.ProjectID, points); err != nil {
			return nil, err
		}
		return r.Content()
	}

	registry[domain.ResultFinalMessage] = func(ctx context.Context, p *domain.Progress, result domain.StepResult) (json.RawMessage, error) {
		r, ok := result.(domain.FinalMessageResult)
		if !ok {
			return nil, mismatch(result, domain.ResultFinalMessage)
		}
		err := repo.UpsertFinalMessage(ctx, &domain.FinalMessage{
			ProjectID:  p.ProjectID,
			ProgressID: p.ID,
			RawText:    r.Message,
		})
		if err != nil {
			return nil, err
		}
		return r.Content()
	}

	return registry
}

// Write dispatches on the result's own kind, so a generic payload is accepted
// for any step.
func (r Registry) Write(ctx context.Context, progress *domain.Progress, result domain.StepResult) (json.RawMessage, error) {
	writer, exists := r[result.Kind()]
	if !exists {
		return nil, fmt.Errorf("no writer for result kind %q: %w", result.Kind(), domain.ErrValidation)
	}
	content, err := writer(ctx, progress, result)
	if err != nil {
		return nil, err
	}
	if len(content) == 0 || string(content) == "null" {
		return nil, fmt.Errorf("result content is empty: %w", domain.ErrValidation)
	}
	return content, nil
}

var _ ports.ResultWriter = Registry(nil)

func contentOnly(_ context.Context, _ *domain.Progress, result domain.StepResult) (json.RawMessage, error) {
	content, err := result.Content()
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", domain.ErrValidation)
	}
	if !json.Valid(content) {
		return nil, fmt.Errorf("result content is not valid JSON: %w", domain.ErrValidation)
	}
	return content, nil
}

func mismatch(result domain.StepResult, want domain.ResultKind) error {
	return fmt.Errorf("writer for %q got %T: %w", want, result, domain.ErrValidation)
}

func riskOrDefault(level domain.RiskLevel) domain.RiskLevel {
	if level == "" {
		return domain.RiskMedium
	}
	return level
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
