/*
dto.go - Data Transfer Objects for the HTTP API

PURPOSE:
  Defines the JSON request/response structures for the REST API.
  Decouples the API contract from the ledger record types.

CONVENTIONS:
  - Dates are "YYYY-MM-DD" strings (ledger.Date marshals itself)
  - Money is a decimal string ("123.45"); requests also accept JSON numbers
  - Optional fields use pointers + omitempty
  - Snake_case field names

SEE ALSO:
  - handlers.go: Uses these DTOs
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/finance-ledger/accounts"
	"github.com/warp/finance-ledger/ledger"
	"github.com/warp/finance-ledger/recurrence"
)

// =============================================================================
// OWNERS & ACCOUNTS
// =============================================================================

type CreateOwnerRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type OwnerDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type AccountDTO struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type OverviewDTO struct {
	OwnerID      string          `json:"owner_id"`
	TotalBalance decimal.Decimal `json:"total_balance"`
	Accounts     []AccountDTO    `json:"accounts"`
}

// VerifyResponse reports stored balances that disagree with the transactions.
type VerifyResponse struct {
	Consistent bool          `json:"consistent"`
	Mismatches []MismatchDTO `json:"mismatches"`
}

type MismatchDTO struct {
	Kind     string          `json:"kind"`
	Stored   decimal.Decimal `json:"stored"`
	Expected decimal.Decimal `json:"expected"`
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// TransactionRequest is used for both create and update.
type TransactionRequest struct {
	Date     ledger.Date     `json:"date"`
	Payee    string          `json:"payee"`
	Amount   decimal.Decimal `json:"amount"`
	Type     string          `json:"type"`               // "income" or "expense"
	Category string          `json:"category,omitempty"` // expenses only
	Account  string          `json:"account,omitempty"`  // defaults to "cash"
}

func (r TransactionRequest) input() accounts.TransactionInput {
	return accounts.TransactionInput{
		Date:     r.Date,
		Payee:    r.Payee,
		Amount:   r.Amount,
		Type:     ledger.TransactionType(r.Type),
		Category: ledger.Category(r.Category),
		Account:  ledger.AccountKind(r.Account),
	}
}

type TransactionDTO struct {
	ID        string          `json:"id"`
	Date      ledger.Date     `json:"date"`
	Payee     string          `json:"payee"`
	Amount    decimal.Decimal `json:"amount"`
	Type      string          `json:"type"`
	Category  string          `json:"category,omitempty"`
	Account   string          `json:"account"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// =============================================================================
// RECURRENCE RULES
// =============================================================================

type CreateRuleRequest struct {
	StartDate ledger.Date     `json:"start_date"`
	Payee     string          `json:"payee"`
	Amount    decimal.Decimal `json:"amount"`
	Category  string          `json:"category"`
	Cadence   string          `json:"cadence"`
	Interval  *int            `json:"interval,omitempty"`
	EndDate   *ledger.Date    `json:"end_date,omitempty"`
	Count     *int            `json:"count,omitempty"`
}

func (r CreateRuleRequest) request() recurrence.CreateRuleRequest {
	return recurrence.CreateRuleRequest{
		StartDate: r.StartDate,
		Payee:     r.Payee,
		Amount:    r.Amount,
		Category:  ledger.Category(r.Category),
		Cadence:   r.Cadence,
		Interval:  r.Interval,
		EndDate:   r.EndDate,
		Count:     r.Count,
	}
}

type RuleDTO struct {
	ID            string          `json:"id"`
	StartDate     ledger.Date     `json:"start_date"`
	Payee         string          `json:"payee"`
	Amount        decimal.Decimal `json:"amount"`
	Category      string          `json:"category"`
	Cadence       string          `json:"cadence"`
	Interval      int             `json:"interval"`
	EndDate       *ledger.Date    `json:"end_date,omitempty"`
	Count         *int            `json:"count,omitempty"`
	LastGenerated *ledger.Date    `json:"last_generated,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// CreateRuleResponse carries the rule and its first batch of occurrences.
// InitialBatchError is set when the rule was saved but the first
// materialization failed; the next sweep picks it up.
type CreateRuleResponse struct {
	Rule              RuleDTO         `json:"rule"`
	Created           []OccurrenceDTO `json:"created"`
	InitialBatchError string          `json:"initial_batch_error,omitempty"`
}

type MaterializeRequest struct {
	HorizonDays int `json:"horizon_days,omitempty"`
}

type MaterializeResponse struct {
	RuleID     string          `json:"rule_id"`
	Created    []OccurrenceDTO `json:"created"`
	Duplicates int             `json:"duplicates"`
	Watermark  *ledger.Date    `json:"watermark,omitempty"`
}

// =============================================================================
// UPCOMING CHARGES
// =============================================================================

type OccurrenceRequest struct {
	Date     ledger.Date     `json:"date"`
	Payee    string          `json:"payee"`
	Amount   decimal.Decimal `json:"amount"`
	Category string          `json:"category"`
}

func (r OccurrenceRequest) input() recurrence.ChargeInput {
	return recurrence.ChargeInput{
		Date:     r.Date,
		Payee:    r.Payee,
		Amount:   r.Amount,
		Category: ledger.Category(r.Category),
	}
}

type OccurrenceDTO struct {
	ID        string          `json:"id"`
	Date      ledger.Date     `json:"date"`
	Payee     string          `json:"payee"`
	Amount    decimal.Decimal `json:"amount"`
	Category  string          `json:"category"`
	Recurring bool            `json:"recurring"`
	RuleID    string          `json:"rule_id,omitempty"`
	Cadence   string          `json:"cadence,omitempty"`
}

// =============================================================================
// DEBTS & GOALS
// =============================================================================

type DebtRequest struct {
	Payee       string          `json:"payee"`
	CurrentPaid decimal.Decimal `json:"current_paid"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	DueDate     ledger.Date     `json:"due_date"`
}

func (r DebtRequest) input() accounts.DebtInput {
	return accounts.DebtInput{Payee: r.Payee, CurrentPaid: r.CurrentPaid, TotalAmount: r.TotalAmount, DueDate: r.DueDate}
}

type DebtDTO struct {
	ID          string          `json:"id"`
	Payee       string          `json:"payee"`
	CurrentPaid decimal.Decimal `json:"current_paid"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Remaining   decimal.Decimal `json:"remaining"`
	DueDate     ledger.Date     `json:"due_date"`
	CreatedAt   time.Time       `json:"created_at"`
}

type GoalRequest struct {
	Title         string          `json:"title"`
	TargetDate    ledger.Date     `json:"target_date"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
}

func (r GoalRequest) input() accounts.GoalInput {
	return accounts.GoalInput{Title: r.Title, TargetDate: r.TargetDate, CurrentAmount: r.CurrentAmount, TargetAmount: r.TargetAmount}
}

// GoalDTO carries Progress as a percentage of TargetAmount (0-100).
type GoalDTO struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	TargetDate    ledger.Date     `json:"target_date"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	Progress      decimal.Decimal `json:"progress"`
	CreatedAt     time.Time       `json:"created_at"`
}

// IncomeDTO is one income transaction in the income view.
type IncomeDTO struct {
	ID      string          `json:"id"`
	Date    ledger.Date     `json:"date"`
	Payee   string          `json:"payee"`
	Amount  decimal.Decimal `json:"amount"`
	Account string          `json:"account"`
}

// =============================================================================
// ADMIN
// =============================================================================

type SweepReportDTO struct {
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at"`
	Horizon     ledger.Date      `json:"horizon"`
	Rules       int              `json:"rules"`
	Eligible    int              `json:"eligible"`
	Created     int              `json:"created"`
	Failures    []RuleFailureDTO `json:"failures,omitempty"`
	Error       string           `json:"error,omitempty"`
}

type RuleFailureDTO struct {
	OwnerID string `json:"owner_id"`
	RuleID  string `json:"rule_id"`
	Error   string `json:"error"`
}

type SweepStatusDTO struct {
	Enabled   bool            `json:"enabled"`
	StartedAt time.Time       `json:"started_at"`
	Sweeps    int             `json:"sweeps"`
	LastSweep *time.Time      `json:"last_sweep,omitempty"`
	NextRun   *time.Time      `json:"next_run,omitempty"`
	Last      *SweepReportDTO `json:"last_report,omitempty"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest seeds a new owner; an empty OwnerID gets a generated one.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
	OwnerID    string `json:"owner_id,omitempty"`
}

type ScenarioResult struct {
	Scenario     string `json:"scenario"`
	OwnerID      string `json:"owner_id"`
	Rules        int    `json:"rules"`
	Transactions int    `json:"transactions"`
	Upcoming     int    `json:"upcoming"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toOwnerDTO(o ledger.Owner) OwnerDTO {
	return OwnerDTO{ID: string(o.ID), Name: o.Name, CreatedAt: o.CreatedAt}
}

func toAccountDTOs(accts []ledger.Account) []AccountDTO {
	out := make([]AccountDTO, 0, len(accts))
	for _, a := range accts {
		out = append(out, AccountDTO{ID: string(a.ID), Kind: string(a.Kind), Balance: a.Balance, UpdatedAt: a.UpdatedAt})
	}
	return out
}

func toTransactionDTO(t ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:        string(t.ID),
		Date:      t.Date,
		Payee:     t.Payee,
		Amount:    t.Amount,
		Type:      string(t.Type),
		Category:  string(t.Category),
		Account:   string(t.Account),
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func toRuleDTO(r ledger.Rule) RuleDTO {
	return RuleDTO{
		ID:            string(r.ID),
		StartDate:     r.StartDate,
		Payee:         r.Payee,
		Amount:        r.Amount,
		Category:      string(r.Category),
		Cadence:       string(r.Cadence),
		Interval:      r.Interval,
		EndDate:       r.EndDate,
		Count:         r.Count,
		LastGenerated: r.LastGenerated,
		CreatedAt:     r.CreatedAt,
	}
}

func toOccurrenceDTO(o ledger.Occurrence) OccurrenceDTO {
	return OccurrenceDTO{
		ID:        string(o.ID),
		Date:      o.Date,
		Payee:     o.Payee,
		Amount:    o.Amount,
		Category:  string(o.Category),
		Recurring: o.Recurring,
		RuleID:    string(o.RuleID),
		Cadence:   string(o.Cadence),
	}
}

func toOccurrenceDTOs(occs []ledger.Occurrence) []OccurrenceDTO {
	out := make([]OccurrenceDTO, 0, len(occs))
	for _, o := range occs {
		out = append(out, toOccurrenceDTO(o))
	}
	return out
}

func toDebtDTO(d ledger.Debt) DebtDTO {
	return DebtDTO{
		ID:          string(d.ID),
		Payee:       d.Payee,
		CurrentPaid: d.CurrentPaid,
		TotalAmount: d.TotalAmount,
		Remaining:   d.Remaining(),
		DueDate:     d.DueDate,
		CreatedAt:   d.CreatedAt,
	}
}

func toGoalDTO(g ledger.Goal) GoalDTO {
	return GoalDTO{
		ID:            string(g.ID),
		Title:         g.Title,
		TargetDate:    g.TargetDate,
		CurrentAmount: g.CurrentAmount,
		TargetAmount:  g.TargetAmount,
		Progress:      g.Progress(),
		CreatedAt:     g.CreatedAt,
	}
}

func toSweepReportDTO(r recurrence.SweepReport) SweepReportDTO {
	dto := SweepReportDTO{
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Horizon:     r.Horizon,
		Rules:       r.Rules,
		Eligible:    r.Eligible,
		Created:     r.Created,
		Error:       r.Error,
	}
	for _, f := range r.Failures {
		dto.Failures = append(dto.Failures, RuleFailureDTO{OwnerID: string(f.OwnerID), RuleID: string(f.RuleID), Error: f.Error})
	}
	return dto
}
