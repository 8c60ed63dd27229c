package domain

import (
	"time"

	"github.com/google/uuid"
)

// ResultKind names the structured result a step produces when it completes.
type ResultKind string

const (
	ResultBootstrap           ResultKind = "bootstrap"
	ResultMacroAnalysis       ResultKind = "macro_analysis"
	ResultConsolidatedData    ResultKind = "consolidated_data"
	ResultReputationAnalysis  ResultKind = "reputation_analysis"
	ResultMissingDocuments    ResultKind = "missing_documents"
	ResultStrengthsWeaknesses ResultKind = "strengths_weaknesses"
	ResultFinalMessage        ResultKind = "final_message"
	ResultGeneric             ResultKind = "generic"
)

var resultKinds = []ResultKind{
	ResultBootstrap,
	ResultMacroAnalysis,
	ResultConsolidatedData,
	ResultReputationAnalysis,
	ResultMissingDocuments,
	ResultStrengthsWeaknesses,
	ResultFinalMessage,
	ResultGeneric,
}

// Valid reports whether k is a known result kind.
func (k ResultKind) Valid() bool {
	for _, known := range resultKinds {
		if k == known {
			return true
		}
	}
	return false
}

// StepDefinition is one entry of the step catalog. Definitions are never
// deleted, only deactivated.
type StepDefinition struct {
	ID             uuid.UUID  `gorm:"type:uuid;primary_key;" json:"id"`
	Name           string     `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	Description    string     `gorm:"type:text" json:"description"`
	PromptTemplate string     `gorm:"type:text;not null" json:"promptTemplate"`
	Order          int        `gorm:"column:step_order;index;not null" json:"order"`
	ResultKind     ResultKind `gorm:"type:varchar(40);default:'generic'" json:"resultKind"`
	IsActive       bool       `gorm:"default:true" json:"isActive"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (StepDefinition) TableName() string {
	return "step_definitions"
}

// --- FACTORY ---
func NewStepDefinition(name, prompt string, order int, kind ResultKind) *StepDefinition {
	if kind == "" {
		kind = ResultGeneric
	}
	return &StepDefinition{
		ID:             uuid.New(),
		Name:           name,
		PromptTemplate: prompt,
		Order:          order,
		ResultKind:     kind,
		IsActive:       true,
		CreatedAt:      time.Now(),
	}
}
