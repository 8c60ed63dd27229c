package domain

import "encoding/json"

// StepResult is a validated, strongly typed payload reported for a step.
// Kind must match the ResultKind of the step it completes, except for
// GenericResult which any step accepts.
type StepResult interface {
	Kind() ResultKind
	// Content is the JSON stored on the Progress row when the step completes.
	Content() (json.RawMessage, error)
}

type GenericResult struct {
	Raw json.RawMessage
}

func (r GenericResult) Kind() ResultKind                  { return ResultGeneric }
func (r GenericResult) Content() (json.RawMessage, error) { return r.Raw, nil }

type MacroAnalysisResult struct {
	IsSectorPromising        bool     `json:"isSectorPromising"`
	HasRegulatoryConstraints bool     `json:"hasRegulatoryConstraints"`
	IsMarketSaturated        bool     `json:"isMarketSaturated"`
	Summary                  string   `json:"summary"`
	KeyPoints                []string `json:"keyPoints"`
	Risks                    []string `json:"risks"`
	Opportunities            []string `json:"opportunities"`
}

func (r MacroAnalysisResult) Kind() ResultKind                  { return ResultMacroAnalysis }
func (r MacroAnalysisResult) Content() (json.RawMessage, error) { return json.Marshal(r) }

type ConsolidatedDataResult struct {
	FiscalYear   *int     `json:"fiscalYear"`
	Currency     string   `json:"currency"`
	Revenue      *float64 `json:"revenue"`
	EBITDA       *float64 `json:"ebitda"`
	NetIncome    *float64 `json:"netIncome"`
	Equity       *float64 `json:"equity"`
	NetDebt      *float64 `json:"netDebt"`
	CashFlow     *float64 `json:"cashFlow"`
	Employees    *int     `json:"employees"`
	FundingAsked *float64 `json:"fundingAsked"`
}

func (r ConsolidatedDataResult) Kind() ResultKind                  { return ResultConsolidatedData }
func (r ConsolidatedDataResult) Content() (json.RawMessage, error) { return json.Marshal(r) }

type VigilanceItem struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	RiskLevel   RiskLevel `json:"riskLevel"`
}

type ReputationAnalysisResult struct {
	Summary string          `json:"summary"`
	Points  []VigilanceItem `json:"points"`
}

func (r ReputationAnalysisResult) Kind() ResultKind                  { return ResultReputationAnalysis }
func (r ReputationAnalysisResult) Content() (json.RawMessage, error) { return json.Marshal(r) }

type MissingDocumentItem struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Priority    Priority `json:"priority"`
}

type MissingDocumentsResult struct {
	Documents []MissingDocumentItem `json:"documents"`
}

func (r MissingDocumentsResult) Kind() ResultKind                  { return ResultMissingDocuments }
func (r MissingDocumentsResult) Content() (json.RawMessage, error) { return json.Marshal(r) }

type StrengthItem struct {
	Kind        StrengthKind `json:"kind"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	RiskLevel   RiskLevel    `json:"riskLevel"`
}

type StrengthsWeaknessesResult struct {
	Points []StrengthItem `json:"points"`
}

func (r StrengthsWeaknessesResult) Kind() ResultKind                  { return ResultStrengthsWeaknesses }
func (r StrengthsWeaknessesResult) Content() (json.RawMessage, error) { return json.Marshal(r) }

type FinalMessageResult struct {
	Message string `json:"message"`
}

func (r FinalMessageResult) Kind() ResultKind                  { return ResultFinalMessage }
func (r FinalMessageResult) Content() (json.RawMessage, error) { return json.Marshal(r) }
