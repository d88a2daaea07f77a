/*
Package ledger provides the core model of the personal-finance ledger.

PURPOSE:
  This package contains the storage-agnostic types shared by the recurrence
  engine, the balance updater and the store implementations. Every record is
  scoped to one owner; nothing here ever crosses owner boundaries.

KEY CONCEPTS IN THIS FILE (types.go):
  - Owner: The ledger context a user's records hang off
  - Account: Running balance per (owner, kind)
  - Transaction: A realized income or expense routed to an account kind
  - Rule: A recurring obligation with a generation watermark
  - Occurrence: A dated upcoming charge, manual or generated from a Rule
  - Debt, Goal: Dashboard records tracked next to the ledger; they never
    move a balance

DESIGN PRINCIPLES:
  1. Precision: Money uses decimal.Decimal, never float64
  2. Type Safety: Distinct ID types prevent mixing owners, rules and transactions
  3. Calendar Days: Dates are calendar days (see time.go), not instants
  4. Provenance: An Occurrence knows whether it came from a Rule

SEE ALSO:
  - time.go: Date type
  - errors.go: Error taxonomy
  - store.go: Persistence contracts
*/
package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type OwnerID string
type AccountID string
type TransactionID string
type RuleID string
type OccurrenceID string
type DebtID string
type GoalID string

// =============================================================================
// ENUMERATIONS
// =============================================================================

// AccountKind is one of the fixed account kinds an owner can hold.
type AccountKind string

const (
	AccountChecking AccountKind = "checking"
	AccountSavings  AccountKind = "savings"
	AccountCredit   AccountKind = "credit"
	AccountCash     AccountKind = "cash"
)

// AccountKinds lists every valid account kind.
var AccountKinds = []AccountKind{AccountChecking, AccountSavings, AccountCredit, AccountCash}

func (k AccountKind) Valid() bool {
	switch k {
	case AccountChecking, AccountSavings, AccountCredit, AccountCash:
		return true
	}
	return false
}

type TransactionType string

const (
	TxIncome  TransactionType = "income"
	TxExpense TransactionType = "expense"
)

func (t TransactionType) Valid() bool { return t == TxIncome || t == TxExpense }

// Category classifies expenses and recurring charges.
type Category string

const (
	CategorySubscription Category = "subscription"
	CategoryBill         Category = "bill"
	CategoryLoan         Category = "loan"
	CategoryInsurance    Category = "insurance"
	CategoryTax          Category = "tax"
	CategoryOther        Category = "other"
)

func (c Category) Valid() bool {
	switch c {
	case CategorySubscription, CategoryBill, CategoryLoan, CategoryInsurance, CategoryTax, CategoryOther:
		return true
	}
	return false
}

// Cadence is the repeat unit of a recurrence rule.
type Cadence string

const (
	CadenceWeekly   Cadence = "weekly"
	CadenceBiWeekly Cadence = "biweekly"
	CadenceMonthly  Cadence = "monthly"
	CadenceYearly   Cadence = "yearly"
)

func (c Cadence) Valid() bool {
	switch c {
	case CadenceWeekly, CadenceBiWeekly, CadenceMonthly, CadenceYearly:
		return true
	}
	return false
}

// ParseCadence accepts the canonical names plus the legacy spellings
// ("Weekly", "BiWeekly", "bi-weekly", ...).
func ParseCadence(s string) (Cadence, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.NewReplacer("-", "", "_", "", " ", "").Replace(normalized)
	c := Cadence(normalized)
	if !c.Valid() {
		return "", &ValidationError{Field: "cadence", Message: "unknown cadence " + `"` + s + `"`, Err: ErrInvalidCadence}
	}
	return c, nil
}

// =============================================================================
// RECORDS
// =============================================================================

// Owner is the ledger context every other record belongs to.
type Owner struct {
	ID        OwnerID
	Name      string
	CreatedAt time.Time
}

// Account holds the running balance for one (owner, kind) pair.
type Account struct {
	ID        AccountID
	OwnerID   OwnerID
	Kind      AccountKind
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction is a realized income or expense.
// Amount is always positive; the sign comes from Type (see Effect).
type Transaction struct {
	ID        TransactionID
	OwnerID   OwnerID
	Date      Date
	Payee     string
	Amount    decimal.Decimal
	Type      TransactionType
	Category  Category // empty for income
	Account   AccountKind
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Effect is the signed change this transaction applies to its account.
func (t Transaction) Effect() decimal.Decimal {
	if t.Type == TxIncome {
		return t.Amount
	}
	return t.Amount.Neg()
}

// Rule is a recurring obligation. LastGenerated is the watermark: nil means
// nothing has been generated yet. Only the materializer moves it.
type Rule struct {
	ID            RuleID
	OwnerID       OwnerID
	StartDate     Date
	Payee         string
	Amount        decimal.Decimal
	Category      Category
	Cadence       Cadence
	Interval      int
	EndDate       *Date
	Count         *int
	LastGenerated *Date
	CreatedAt     time.Time
}

// Occurrence is a dated upcoming charge. RuleID is empty for manual charges.
type Occurrence struct {
	ID        OccurrenceID
	OwnerID   OwnerID
	Date      Date
	Payee     string
	Amount    decimal.Decimal
	Category  Category
	Recurring bool
	RuleID    RuleID
	Cadence   Cadence
	CreatedAt time.Time
}

// ManualProvenance is the provenance component of the dedupe key for
// occurrences not generated from a rule.
const ManualProvenance = "manual"

// OccurrenceKey is the per-owner deduplication key (payee, date, provenance).
type OccurrenceKey struct {
	OwnerID    OwnerID
	Payee      string
	Date       Date
	Provenance string
}

// Key returns the deduplication key of the occurrence.
func (o Occurrence) Key() OccurrenceKey {
	prov := string(o.RuleID)
	if prov == "" {
		prov = ManualProvenance
	}
	return OccurrenceKey{OwnerID: o.OwnerID, Payee: o.Payee, Date: o.Date, Provenance: prov}
}

// Debt is an amount owed to a payee, paid down over time.
type Debt struct {
	ID          DebtID
	OwnerID     OwnerID
	Payee       string
	CurrentPaid decimal.Decimal
	TotalAmount decimal.Decimal
	DueDate     Date
	CreatedAt   time.Time
}

// Remaining is what is still owed, never below zero.
func (d Debt) Remaining() decimal.Decimal {
	left := d.TotalAmount.Sub(d.CurrentPaid)
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}

// Goal is a savings target.
type Goal struct {
	ID            GoalID
	OwnerID       OwnerID
	Title         string
	TargetDate    Date
	CurrentAmount decimal.Decimal
	TargetAmount  decimal.Decimal
	CreatedAt     time.Time
}

// Progress is CurrentAmount over TargetAmount as a percentage, capped at 100
// and rounded to two places.
func (g Goal) Progress() decimal.Decimal {
	if !g.TargetAmount.IsPositive() {
		return decimal.Zero
	}
	pct := g.CurrentAmount.Div(g.TargetAmount).Mul(decimal.NewFromInt(100))
	if pct.GreaterThan(decimal.NewFromInt(100)) {
		pct = decimal.NewFromInt(100)
	}
	return pct.Round(2)
}
