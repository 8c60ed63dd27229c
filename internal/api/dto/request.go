package dto

import (
	"encoding/json"

	"go-stepflow/internal/domain"

	"github.com/google/uuid"
)

type InitiateRequest struct {
	ProjectID uuid.UUID `json:"projectId" binding:"required"`
}

type UpdateStepRequest struct {
	ProjectID uuid.UUID       `json:"projectId" binding:"required"`
	StepID    uuid.UUID       `json:"stepId" binding:"required"`
	Status    string          `json:"status" binding:"required,oneof=pending in_progress completed failed"`
	Content   json.RawMessage `json:"content"`
}

type RetryStepRequest struct {
	ProjectID uuid.UUID `json:"projectId" binding:"required"`
	StepID    uuid.UUID `json:"stepId" binding:"required"`
}

type MacroAnalysisRequest struct {
	IsSectorPromising        *bool    `json:"isSectorPromising" binding:"required"`
	HasRegulatoryConstraints *bool    `json:"hasRegulatoryConstraints" binding:"required"`
	IsMarketSaturated        *bool    `json:"isMarketSaturated" binding:"required"`
	Summary                  string   `json:"summary" binding:"required"`
	KeyPoints                []string `json:"keyPoints" binding:"omitempty,dive,required"`
	Risks                    []string `json:"risks" binding:"omitempty,dive,required"`
	Opportunities            []string `json:"opportunities" binding:"omitempty,dive,required"`
}

func (r MacroAnalysisRequest) ToResult() domain.StepResult {
	return domain.MacroAnalysisResult{
		IsSectorPromising:        *r.IsSectorPromising,
		HasRegulatoryConstraints: *r.HasRegulatoryConstraints,
		IsMarketSaturated:        *r.IsMarketSaturated,
		Summary:                  r.Summary,
		KeyPoints:                r.KeyPoints,
		Risks:                    r.Risks,
		Opportunities:            r.Opportunities,
	}
}

type ConsolidatedDataRequest struct {
	FiscalYear   *int     `json:"fiscalYear" binding:"omitempty,gte=1900,lte=2100"`
	Currency     string   `json:"currency" binding:"omitempty,len=3,uppercase"`
	Revenue      *float64 `json:"revenue"`
	EBITDA       *float64 `json:"ebitda"`
	NetIncome    *float64 `json:"netIncome"`
	Equity       *float64 `json:"equity"`
	NetDebt      *float64 `json:"netDebt"`
	CashFlow     *float64 `json:"cashFlow"`
	Employees    *int     `json:"employees" binding:"omitempty,gte=0"`
	FundingAsked *float64 `json:"fundingAsked" binding:"omitempty,gte=0"`
}

func (r ConsolidatedDataRequest) ToResult() domain.StepResult {
	return domain.ConsolidatedDataResult{
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
	}
}

type VigilancePointDTO struct {
	Title       string `json:"title" binding:"required,max=255"`
	Description string `json:"description"`
	Category    string `json:"category" binding:"max=100"`
	RiskLevel   string `json:"riskLevel" binding:"omitempty,oneof=low medium high critical"`
}

type ReputationAnalysisRequest struct {
	Summary string              `json:"summary" binding:"required"`
	Points  []VigilancePointDTO `json:"points" binding:"required,dive"`
}

func (r ReputationAnalysisRequest) ToResult() domain.StepResult {
	items := make([]domain.VigilanceItem, 0, len(r.Points))
	for _, p := range r.Points {
		items = append(items, domain.VigilanceItem{
			Title:       p.Title,
			Description: p.Description,
			Category:    p.Category,
			RiskLevel:   domain.RiskLevel(p.RiskLevel),
		})
	}
	return domain.ReputationAnalysisResult{Summary: r.Summary, Points: items}
}

type MissingDocumentDTO struct {
	Name        string `json:"name" binding:"required,max=255"`
	Description string `json:"description"`
	Category    string `json:"category" binding:"max=100"`
	Priority    string `json:"priority" binding:"omitempty,oneof=low medium high"`
}

type MissingDocumentsRequest struct {
	Documents []MissingDocumentDTO `json:"documents" binding:"required,dive"`
}

func (r MissingDocumentsRequest) ToResult() domain.StepResult {
	items := make([]domain.MissingDocumentItem, 0, len(r.Documents))
	for _, d := range r.Documents {
		items = append(items, domain.MissingDocumentItem{
			Name:        d.Name,
			Description: d.Description,
			Category:    d.Category,
			Priority:    domain.Priority(d.Priority),
		})
	}
	return domain.MissingDocumentsResult{Documents: items}
}

type StrengthPointDTO struct {
	Kind        string `json:"kind" binding:"required,oneof=strength weakness"`
	Title       string `json:"title" binding:"required,max=255"`
	Description string `json:"description"`
	RiskLevel   string `json:"riskLevel" binding:"omitempty,oneof=low medium high critical"`
}

type StrengthsWeaknessesRequest struct {
	Points []StrengthPointDTO `json:"points" binding:"required,dive"`
}

func (r StrengthsWeaknessesRequest) ToResult() domain.StepResult {
	items := make([]domain.StrengthItem, 0, len(r.Points))
	for _, p := range r.Points {
		items = append(items, domain.StrengthItem{
			Kind:        domain.StrengthKind(p.Kind),
			Title:       p.Title,
			Description: p.Description,
			RiskLevel:   domain.RiskLevel(p.RiskLevel),
		})
	}
	return domain.StrengthsWeaknessesResult{Points: items}
}

type FinalMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

func (r FinalMessageRequest) ToResult() domain.StepResult {
	return domain.FinalMessageResult{Message: r.Message}
}

type ReformulationRequest struct {
	ReformulatedText string `json:"reformulatedText" binding:"required"`
}

type FindingStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=resolved irrelevant"`
}

type DefineStepRequest struct {
	Name           string `json:"name" binding:"required,max=100"`
	Description    string `json:"description"`
	PromptTemplate string `json:"promptTemplate" binding:"required"`
	Order          *int   `json:"order" binding:"required,gte=0"`
	ResultKind     string `json:"resultKind"`
}

type UpdateStepDefinitionRequest struct {
	Description    *string `json:"description"`
	PromptTemplate *string `json:"promptTemplate" binding:"omitempty,min=1"`
	Order          *int    `json:"order" binding:"omitempty,gte=0"`
	ResultKind     *string `json:"resultKind"`
	IsActive       *bool   `json:"isActive"`
}
