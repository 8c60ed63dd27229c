package domain

import (
	"time"

	"github.com/google/uuid"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// FindingStatus is the operator-managed status of a missing document,
// vigilance point or strength point.
type FindingStatus string

const (
	FindingPending    FindingStatus = "pending"
	FindingResolved   FindingStatus = "resolved"
	FindingIrrelevant FindingStatus = "irrelevant"
)

// CanMoveTo reports whether an operator may move a finding to next.
// Only pending findings can be settled.
func (s FindingStatus) CanMoveTo(next FindingStatus) bool {
	return s == FindingPending && (next == FindingResolved || next == FindingIrrelevant)
}

type FindingKind string

const (
	FindingMissingDocument FindingKind = "missing-documents"
	FindingVigilancePoint  FindingKind = "vigilance-points"
	FindingStrengthPoint   FindingKind = "strength-points"
)

type MacroAnalysis struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key;" json:"id"`
	ProjectID  uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"projectId"`
	ProgressID uuid.UUID `gorm:"type:uuid;index;not null" json:"progressId"`

	IsSectorPromising        bool `json:"isSectorPromising"`
	HasRegulatoryConstraints bool `json:"hasRegulatoryConstraints"`
	IsMarketSaturated        bool `json:"isMarketSaturated"`

	Summary       string   `gorm:"type:text;not null" json:"summary"`
	KeyPoints     []string `gorm:"type:text;serializer:json" json:"keyPoints"`
	Risks         []string `gorm:"type:text;serializer:json" json:"risks"`
	Opportunities []string `gorm:"type:text;serializer:json" json:"opportunities"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (MacroAnalysis) TableName() string { return "macro_analyses" }

// ConsolidatedData holds business figures; every figure stays nil until the
// agent supplies it.
type ConsolidatedData struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key;" json:"id"`
	ProjectID  uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"projectId"`
	ProgressID uuid.UUID `gorm:"type:uuid;index;not null" json:"progressId"`

	FiscalYear   *int     `json:"fiscalYear"`
	Currency     string   `gorm:"type:varchar(3)" json:"currency"`
	Revenue      *float64 `json:"revenue"`
	EBITDA       *float64 `gorm:"column:ebitda" json:"ebitda"`
	NetIncome    *float64 `json:"netIncome"`
	Equity       *float64 `json:"equity"`
	NetDebt      *float64 `json:"netDebt"`
	CashFlow     *float64 `json:"cashFlow"`
	Employees    *int     `json:"employees"`
	FundingAsked *float64 `json:"fundingAsked"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (ConsolidatedData) TableName() string { return "consolidated_data" }

type MissingDocument struct {
	ID          uuid.UUID     `gorm:"type:uuid;primary_key;" json:"id"`
	ProjectID   uuid.UUID     `gorm:"type:uuid;index;not null" json:"projectId"`
	ProgressID  uuid.UUID     `gorm:"type:uuid;index;not null" json:"progressId"`
	Name        string        `gorm:"type:varchar(255);not null" json:"name"`
	Description string        `gorm:"type:text" json:"description"`
	Category    string        `gorm:"type:varchar(100)" json:"category"`
	Priority    Priority      `gorm:"type:varchar(10);default:'medium'" json:"priority"`
	Status      FindingStatus `gorm:"type:varchar(20);default:'pending'" json:"status"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (MissingDocument) TableName() string { return "missing_documents" }

type VigilancePoint struct {
	ID          uuid.UUID     `gorm:"type:uuid;primary_key;" json:"id"`
	ProjectID   uuid.UUID     `gorm:"type:uuid;index;not null" json:"projectId"`
	ProgressID  uuid.UUID     `gorm:"type:uuid;index;not null" json:"progressId"`
	Title       string        `gorm:"type:varchar(255);not null" json:"title"`
	Description string        `gorm:"type:text" json:"description"`
	Category    string        `gorm:"type:varchar(100)" json:"category"`
	RiskLevel   RiskLevel     `gorm:"type:varchar(10);default:'medium'" json:"riskLevel"`
	Status      FindingStatus `gorm:"type:varchar(20);default:'pending'" json:"status"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (VigilancePoint) TableName() string { return "vigilance_points" }

type StrengthKind string

const (
	KindStrength StrengthKind = "strength"
	KindWeakness StrengthKind = "weakness"
)

type StrengthPoint struct {
	ID          uuid.UUID     `gorm:"type:uuid;primary_key;" json:"id"`
	ProjectID   uuid.UUID     `gorm:"type:uuid;index;not null" json:"projectId"`
	ProgressID  uuid.UUID     `gorm:"type:uuid;index;not null" json:"progressId"`
	Kind        StrengthKind  `gorm:"type:varchar(10);not null" json:"kind"`
	Title       string        `gorm:"type:varchar(255);not null" json:"title"`
	Description string        `gorm:"type:text" json:"description"`
	RiskLevel   RiskLevel     `gorm:"type:varchar(10);default:'medium'" json:"riskLevel"`
	Status      FindingStatus `gorm:"type:varchar(20);default:'pending'" json:"status"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (StrengthPoint) TableName() string { return "strength_points" }

type FinalMessage struct {
	ID               uuid.UUID `gorm:"type:uuid;primary_key;" json:"id"`
	ProjectID        uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"projectId"`
	ProgressID       uuid.UUID `gorm:"type:uuid;index;not null" json:"progressId"`
	RawText          string    `gorm:"type:text;not null" json:"rawText"`
	ReformulatedText *string   `gorm:"type:text" json:"reformulatedText"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (FinalMessage) TableName() string { return "final_messages" }

// ProjectResults gathers every result entity stored for a project.
type ProjectResults struct {
	ProjectID        uuid.UUID         `json:"projectId"`
	MacroAnalysis    *MacroAnalysis    `json:"macroAnalysis"`
	ConsolidatedData *ConsolidatedData `json:"consolidatedData"`
	MissingDocuments []MissingDocument `json:"missingDocuments"`
	VigilancePoints  []VigilancePoint  `json:"vigilancePoints"`
	StrengthPoints   []StrengthPoint   `json:"strengthPoints"`
	FinalMessage     *FinalMessage     `json:"finalMessage"`
}
