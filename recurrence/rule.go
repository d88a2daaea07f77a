package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/finance-ledger/ledger"
)

// CreateRuleRequest is what the API layer hands over to create a rule.
// Interval nil means 1.
type CreateRuleRequest struct {
	StartDate ledger.Date
	Payee     string
	Amount    decimal.Decimal
	Category  ledger.Category
	Cadence   string
	Interval  *int
	EndDate   *ledger.Date
	Count     *int
}

// Validate checks the request without side effects and returns the parsed cadence.
func (r CreateRuleRequest) Validate() (ledger.Cadence, error) {
	cadence, err := ledger.ParseCadence(r.Cadence)
	if err != nil {
		return "", err
	}
	if r.Interval != nil && *r.Interval < 1 {
		return "", &ledger.ValidationError{
			Field:   "interval",
			Message: fmt.Sprintf("must be a positive integer, got %d", *r.Interval),
			Err:     ledger.ErrInvalidInterval,
		}
	}
	if r.Count != nil && *r.Count < 1 {
		return "", &ledger.ValidationError{
			Field:   "count",
			Message: fmt.Sprintf("must be a positive integer, got %d", *r.Count),
			Err:     ledger.ErrInvalidCount,
		}
	}
	if strings.TrimSpace(r.Payee) == "" {
		return "", &ledger.ValidationError{Field: "payee", Message: "required"}
	}
	if !r.Amount.IsPositive() {
		return "", &ledger.ValidationError{Field: "amount", Message: "must be positive"}
	}
	if !r.Category.Valid() {
		return "", &ledger.ValidationError{Field: "category", Message: fmt.Sprintf("unknown category %q", r.Category)}
	}
	if r.StartDate.IsZero() {
		return "", &ledger.ValidationError{Field: "start_date", Message: "required"}
	}
	if r.EndDate != nil && r.EndDate.Before(r.StartDate) {
		return "", &ledger.ValidationError{Field: "end_date", Message: "before start_date"}
	}
	return cadence, nil
}

// NewRule validates req and builds a fresh rule with no watermark.
func NewRule(ownerID ledger.OwnerID, req CreateRuleRequest, now time.Time) (ledger.Rule, error) {
	cadence, err := req.Validate()
	if err != nil {
		return ledger.Rule{}, err
	}

	interval := 1
	if req.Interval != nil {
		interval = *req.Interval
	}

	rule := ledger.Rule{
		ID:        ledger.RuleID(uuid.New().String()),
		OwnerID:   ownerID,
		StartDate: req.StartDate,
		Payee:     strings.TrimSpace(req.Payee),
		Amount:    req.Amount,
		Category:  req.Category,
		Cadence:   cadence,
		Interval:  interval,
		CreatedAt: now.UTC(),
	}
	if req.EndDate != nil {
		end := *req.EndDate
		rule.EndDate = &end
	}
	if req.Count != nil {
		count := *req.Count
		rule.Count = &count
	}
	return rule, nil
}

// Exhausted reports whether the rule can never produce another occurrence
// given how many already reference it.
func Exhausted(rule ledger.Rule, generated int) bool {
	if rule.Count != nil && generated >= *rule.Count {
		return true
	}
	if rule.EndDate != nil && rule.LastGenerated != nil {
		next, err := Advance(*rule.LastGenerated, rule.Cadence, rule.Interval)
		if err != nil || next.After(*rule.EndDate) {
			return true
		}
	}
	return false
}
