/*
store.go - Persistence contracts for owner-scoped ledger records

PURPOSE:
  Defines the interface between the engine and the database. Every method
  takes the owner explicitly; a store never answers a query across owners
  except ListAllRules, which exists for the scheduler sweep.

KEY INTERFACES:
  OwnerStore:       Ledger contexts
  AccountStore:     Running balances, unique per (owner, kind)
  TransactionStore: Realized transactions
  RuleStore:        Recurrence rules and their watermark
  OccurrenceStore:  Upcoming charges, unique per (owner, payee, date, provenance)
  PlanStore:        Debts and savings goals
  Store:            All of the above
  TxStore:          Store plus atomic multi-write units

MISSING RECORDS:
  Get* methods return the matching *NotFound sentinel, so callers can
  branch with errors.Is. GetOwner returns ErrOwnerContextMissing.

UNIQUENESS:
  InsertOccurrence and UpdateOccurrence MUST reject a write that collides on
  the dedupe key with ErrDuplicateOccurrence (wrapped or bare). This is the
  final correctness backstop for concurrent materialization; in-memory
  duplicate checks in the engine are only an optimization.

WATERMARK:
  AdvanceWatermark moves Rule.LastGenerated forward only. Asking it to move
  backwards (or sideways) is a no-op that reports advanced=false.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite with unique indexes
  - ledger/store/memory.go: In-memory for tests and dev

SEE ALSO:
  - recurrence/materializer.go: Main consumer of OccurrenceStore
  - accounts/balance.go: Main consumer of AccountStore
*/
package ledger

import "context"

// =============================================================================
// STORE - Owner-scoped persistence
// =============================================================================

type OwnerStore interface {
	SaveOwner(ctx context.Context, owner Owner) error
	GetOwner(ctx context.Context, id OwnerID) (*Owner, error)
}

type AccountStore interface {
	// GetAccount returns ErrAccountNotFound when the owner holds no account of kind.
	GetAccount(ctx context.Context, ownerID OwnerID, kind AccountKind) (*Account, error)

	// SaveAccount upserts by (owner, kind).
	SaveAccount(ctx context.Context, account Account) error

	ListAccounts(ctx context.Context, ownerID OwnerID) ([]Account, error)
}

type TransactionStore interface {
	GetTransaction(ctx context.Context, ownerID OwnerID, id TransactionID) (*Transaction, error)

	// SaveTransaction upserts by ID.
	SaveTransaction(ctx context.Context, tx Transaction) error

	DeleteTransaction(ctx context.Context, ownerID OwnerID, id TransactionID) error

	// ListTransactions returns the owner's transactions ordered by date.
	ListTransactions(ctx context.Context, ownerID OwnerID) ([]Transaction, error)
}

type RuleStore interface {
	// CreateRule inserts a new rule.
	CreateRule(ctx context.Context, rule Rule) error

	GetRule(ctx context.Context, ownerID OwnerID, id RuleID) (*Rule, error)

	// AdvanceWatermark sets LastGenerated to at if it is unset or earlier.
	AdvanceWatermark(ctx context.Context, ownerID OwnerID, id RuleID, at Date) (bool, error)

	// DeleteRule removes the rule only; occurrences referencing it remain.
	DeleteRule(ctx context.Context, ownerID OwnerID, id RuleID) error

	ListRules(ctx context.Context, ownerID OwnerID) ([]Rule, error)

	// ListAllRules returns every rule of every owner. Used by the sweep.
	ListAllRules(ctx context.Context) ([]Rule, error)
}

type OccurrenceStore interface {
	// InsertOccurrence fails with ErrDuplicateOccurrence on a key collision.
	InsertOccurrence(ctx context.Context, occ Occurrence) error

	// UpdateOccurrence fails with ErrDuplicateOccurrence if the new key
	// collides with a different occurrence.
	UpdateOccurrence(ctx context.Context, occ Occurrence) error

	GetOccurrence(ctx context.Context, ownerID OwnerID, id OccurrenceID) (*Occurrence, error)
	DeleteOccurrence(ctx context.Context, ownerID OwnerID, id OccurrenceID) error

	// ListOccurrences returns the owner's occurrences ordered by date.
	ListOccurrences(ctx context.Context, ownerID OwnerID) ([]Occurrence, error)

	// OccurrencesByRule returns occurrences generated from the rule, ordered by date.
	OccurrencesByRule(ctx context.Context, ownerID OwnerID, ruleID RuleID) ([]Occurrence, error)

	CountOccurrencesByRule(ctx context.Context, ownerID OwnerID, ruleID RuleID) (int, error)
}

type PlanStore interface {
	// SaveDebt upserts by ID.
	SaveDebt(ctx context.Context, debt Debt) error
	DeleteDebt(ctx context.Context, ownerID OwnerID, id DebtID) error

	// ListDebts returns the owner's debts ordered by due date.
	ListDebts(ctx context.Context, ownerID OwnerID) ([]Debt, error)

	// SaveGoal upserts by ID.
	SaveGoal(ctx context.Context, goal Goal) error
	DeleteGoal(ctx context.Context, ownerID OwnerID, id GoalID) error

	// ListGoals returns the owner's goals ordered by target date.
	ListGoals(ctx context.Context, ownerID OwnerID) ([]Goal, error)
}

// Store is the full persistence boundary.
type Store interface {
	OwnerStore
	AccountStore
	TransactionStore
	RuleStore
	OccurrenceStore
	PlanStore
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the passed Store is rolled back.
	// Concurrent readers observe either none or all of fn's writes.
	WithTx(ctx context.Context, fn func(Store) error) error
}
