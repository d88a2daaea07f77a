/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that seed a fresh ledger with realistic
	data for demos. Each scenario opens an owner, imports its rules through
	the rule factory, and records transactions and manual charges.

AVAILABLE SCENARIOS:

	monthly-bills:      Rent on the month's last day, a 12-payment loan, yearly insurance
	subscriptions:      Weekly, bi-weekly and monthly subscriptions
	everyday-spending:  Salary and expenses across accounts, one manual charge

HOW SCENARIOS WORK:
 1. Open a new owner (cash account at zero)
 2. Parse the scenario's YAML rules via factory
 3. Create each rule (initial batch materialized)
 4. Record transactions through the balance updater
 5. Add manual upcoming charges

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "monthly-bills", "owner_id": "demo-1"}

NOTE:

	Scenario dates are relative to the handler's clock. Loading never
	resets existing data; an owner_id already in use is rejected.

SEE ALSO:
  - handlers.go: Handler dependencies
  - factory/rule.go: YAML rule definitions
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/finance-ledger/accounts"
	"github.com/warp/finance-ledger/factory"
	"github.com/warp/finance-ledger/ledger"
	"github.com/warp/finance-ledger/recurrence"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	load func(ctx context.Context, h *Handler, owner ledger.OwnerID, today ledger.Date) (ScenarioResult, error)
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "monthly-bills",
			Name:        "Monthly Bills",
			Description: "Rent due on the last day of each month, a 12-payment loan and yearly insurance",
		},
		load: loadMonthlyBills,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "subscriptions",
			Name:        "Subscriptions",
			Description: "Weekly gym, bi-weekly meal kit and monthly streaming",
		},
		load: loadSubscriptions,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "everyday-spending",
			Name:        "Everyday Spending",
			Description: "Salary and expenses across checking, credit and cash, plus a manual upcoming charge",
		},
		load: loadEverydaySpending,
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	out := make([]ScenarioDTO, 0, len(scenarios))
	for _, s := range scenarios {
		out = append(out, s.ScenarioDTO)
	}
	writeJSON(w, http.StatusOK, out)
}

// LoadScenario seeds a new owner with a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	sc, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	owner, err := accounts.OpenLedger(ctx, h.Store, ledger.OwnerID(req.OwnerID), sc.Name+" demo", h.Now())
	if err != nil {
		h.writeDomainError(w, "Failed to open ledger", err)
		return
	}

	res, err := sc.load(ctx, h, owner.ID, ledger.DateOf(h.Now().UTC()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	res.Scenario = sc.ID
	res.OwnerID = string(owner.ID)

	h.Logger.Info().Str("scenario", sc.ID).Str("owner_id", res.OwnerID).Int("upcoming", res.Upcoming).Msg("scenario loaded")
	writeJSON(w, http.StatusCreated, res)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func loadMonthlyBills(ctx context.Context, h *Handler, owner ledger.OwnerID, today ledger.Date) (ScenarioResult, error) {
	monthEnd := ledger.NewDate(today.Year(), today.Month(), ledger.DaysInMonth(today.Year(), today.Month()))
	rules := fmt.Sprintf(`rules:
  - payee: Rent
    amount: 1500
    category: bill
    cadence: monthly
    start_date: %s
  - payee: Car Loan
    amount: "320.50"
    category: loan
    cadence: monthly
    start_date: %s
    count: 12
  - payee: Home Insurance
    amount: 640
    category: insurance
    cadence: yearly
    start_date: %s
`, monthEnd, today.AddDays(10), today.AddDays(30))

	return h.seed(ctx, owner, rules, nil, nil)
}

func loadSubscriptions(ctx context.Context, h *Handler, owner ledger.OwnerID, today ledger.Date) (ScenarioResult, error) {
	rules := fmt.Sprintf(`rules:
  - payee: Gym
    amount: "12.50"
    category: subscription
    cadence: weekly
    start_date: %s
  - payee: Meal Kit
    amount: 59
    category: subscription
    cadence: biweekly
    start_date: %s
  - payee: Streaming
    amount: "15.99"
    category: subscription
    cadence: monthly
    start_date: %s
    end_date: %s
`, today, today.AddDays(3), today.AddDays(7), today.AddDays(365))

	return h.seed(ctx, owner, rules, nil, nil)
}

func loadEverydaySpending(ctx context.Context, h *Handler, owner ledger.OwnerID, today ledger.Date) (ScenarioResult, error) {
	txs := []accounts.TransactionInput{
		{Date: today.AddDays(-14), Payee: "Employer", Amount: decimal.NewFromInt(3200), Type: ledger.TxIncome, Account: ledger.AccountChecking},
		{Date: today.AddDays(-10), Payee: "Grocer", Amount: decimal.RequireFromString("86.40"), Type: ledger.TxExpense, Category: ledger.CategoryOther, Account: ledger.AccountCash},
		{Date: today.AddDays(-7), Payee: "Power Co", Amount: decimal.NewFromInt(110), Type: ledger.TxExpense, Category: ledger.CategoryBill, Account: ledger.AccountChecking},
		{Date: today.AddDays(-3), Payee: "Airline", Amount: decimal.NewFromInt(420), Type: ledger.TxExpense, Category: ledger.CategoryOther, Account: ledger.AccountCredit},
		{Date: today.AddDays(-1), Payee: "Savings transfer", Amount: decimal.NewFromInt(500), Type: ledger.TxIncome, Account: ledger.AccountSavings},
	}
	charges := []recurrence.ChargeInput{
		{Date: today.AddDays(12), Payee: "Dentist", Amount: decimal.NewFromInt(80), Category: ledger.CategoryOther},
	}
	rules := fmt.Sprintf(`rules:
  - payee: Phone
    amount: 35
    category: bill
    cadence: monthly
    start_date: %s
`, today.AddDays(5))

	return h.seed(ctx, owner, rules, txs, charges)
}

// seed imports rules, records transactions and adds manual charges.
func (h *Handler) seed(ctx context.Context, owner ledger.OwnerID, rulesYAML string, txs []accounts.TransactionInput, charges []recurrence.ChargeInput) (ScenarioResult, error) {
	var res ScenarioResult

	requests, err := factory.NewRuleFactory().ParseRules([]byte(rulesYAML), factory.FormatYAML)
	if err != nil {
		return res, err
	}
	for _, req := range requests {
		_, created, err := h.Rules.CreateRule(ctx, owner, req)
		if err != nil {
			return res, err
		}
		res.Rules++
		res.Upcoming += len(created.Created)
	}

	for _, in := range txs {
		if _, err := h.Balances.Create(ctx, owner, in); err != nil {
			return res, err
		}
		res.Transactions++
	}

	for _, in := range charges {
		if _, err := h.Rules.AddCharge(ctx, owner, in); err != nil {
			return res, err
		}
		res.Upcoming++
	}
	return res, nil
}
