/*
Package sqlite provides a SQLite-backed implementation of ledger.TxStore.

PURPOSE:
  Persists owners, accounts, transactions, recurrence rules and upcoming
  charges. The same schema ports to PostgreSQL with minor dialect changes
  (the upserts use the shared ON CONFLICT syntax).

KEY TABLES:
  owners:        Ledger contexts
  accounts:      Running balance per (owner, kind)
  transactions:  Realized income/expense records
  rules:         Recurrence rules, with the last_generated watermark
  occurrences:   Upcoming charges, manual or generated
  debts, goals:  Dashboard plans; never touch balances

INDEXES:
  - idx_unique_occurrence: (owner_id, payee, date, provenance). This is the
    storage-level backstop that keeps concurrent materializers from
    inserting the same charge twice. provenance is the rule ID, or 'manual'.
  - idx_occurrences_owner_rule: per-rule diff and count (hot path)
  - idx_transactions_owner_date: owner ledger listing

DUPLICATES:
  InsertOccurrence uses ON CONFLICT ... DO NOTHING and checks RowsAffected,
  so a duplicate is reported as ledger.ErrDuplicateOccurrence without
  failing the surrounding transaction.

WATERMARK:
  AdvanceWatermark is a single conditional UPDATE
  (last_generated IS NULL OR last_generated < ?); dates are stored as
  YYYY-MM-DD so text comparison is calendar order.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single pooled connection, so
  ":memory:" databases are shared by every call and writers are
  serialized the way SQLite serializes them anyway.

WAL MODE:
  File databases are opened with WAL (Write-Ahead Logging) and a busy
  timeout, so a CLI sweep can run next to a serving process.

USAGE:
  store, err := sqlite.New("./ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/finance-ledger/ledger"
)

// timestampLayout is fixed-width so stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ ledger.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS owners (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES owners(id),
		kind TEXT NOT NULL,
		balance TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(owner_id, kind)
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES owners(id),
		date TEXT NOT NULL,
		payee TEXT NOT NULL,
		amount TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		account_kind TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_owner_date
		ON transactions(owner_id, date);

	CREATE TABLE IF NOT EXISTS rules (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES owners(id),
		start_date TEXT NOT NULL,
		payee TEXT NOT NULL,
		amount TEXT NOT NULL,
		category TEXT NOT NULL,
		cadence TEXT NOT NULL,
		interval_n INTEGER NOT NULL CHECK (interval_n >= 1),
		end_date TEXT,
		count_n INTEGER CHECK (count_n IS NULL OR count_n >= 1),
		last_generated TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rules_owner
		ON rules(owner_id, created_at);

	-- rule_id is a plain lookup, not a foreign key: deleting a rule
	-- leaves its occurrences in place.
	CREATE TABLE IF NOT EXISTS occurrences (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES owners(id),
		date TEXT NOT NULL,
		payee TEXT NOT NULL,
		amount TEXT NOT NULL,
		category TEXT NOT NULL,
		recurring INTEGER NOT NULL DEFAULT 0,
		rule_id TEXT,
		provenance TEXT NOT NULL,
		cadence TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- CRITICAL: one upcoming charge per (owner, payee, date, provenance)
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_occurrence
		ON occurrences(owner_id, payee, date, provenance);

	CREATE INDEX IF NOT EXISTS idx_occurrences_owner_rule
		ON occurrences(owner_id, rule_id);

	CREATE INDEX IF NOT EXISTS idx_occurrences_owner_date
		ON occurrences(owner_id, date);

	CREATE TABLE IF NOT EXISTS debts (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES owners(id),
		payee TEXT NOT NULL,
		current_paid TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		due_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_debts_owner_due
		ON debts(owner_id, due_date);

	CREATE TABLE IF NOT EXISTS goals (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES owners(id),
		title TEXT NOT NULL,
		target_date TEXT NOT NULL,
		current_amount TEXT NOT NULL,
		target_amount TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_goals_owner_target
		ON goals(owner_id, target_date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LOCKED ENTRY POINTS
// =============================================================================

func (s *Store) read() (*queries, func()) {
	s.mu.RLock()
	return &queries{q: s.db}, s.mu.RUnlock
}

func (s *Store) write() (*queries, func()) {
	s.mu.Lock()
	return &queries{q: s.db}, s.mu.Unlock
}

// WithTx executes fn within a database transaction. Every read and write
// made through the ledger.Store handed to fn goes through the transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

func (s *Store) SaveOwner(ctx context.Context, owner ledger.Owner) error {
	q, done := s.write()
	defer done()
	return q.SaveOwner(ctx, owner)
}

func (s *Store) GetOwner(ctx context.Context, id ledger.OwnerID) (*ledger.Owner, error) {
	q, done := s.read()
	defer done()
	return q.GetOwner(ctx, id)
}

func (s *Store) GetAccount(ctx context.Context, ownerID ledger.OwnerID, kind ledger.AccountKind) (*ledger.Account, error) {
	q, done := s.read()
	defer done()
	return q.GetAccount(ctx, ownerID, kind)
}

func (s *Store) SaveAccount(ctx context.Context, account ledger.Account) error {
	q, done := s.write()
	defer done()
	return q.SaveAccount(ctx, account)
}

func (s *Store) ListAccounts(ctx context.Context, ownerID ledger.OwnerID) ([]ledger.Account, error) {
	q, done := s.read()
	defer done()
	return q.ListAccounts(ctx, ownerID)
}

func (s *Store) GetTransaction(ctx context.Context, ownerID ledger.OwnerID, id ledger.TransactionID) (*ledger.Transaction, error) {
	q, done := s.read()
	defer done()
	return q.GetTransaction(ctx, ownerID, id)
}

func (s *Store) SaveTransaction(ctx context.Context, tx ledger.Transaction) error {
	q, done := s.write()
	defer done()
	return q.SaveTransaction(ctx, tx)
}

func (s *Store) DeleteTransaction(ctx context.Context, ownerID ledger.OwnerID, id ledger.TransactionID) error {
	q, done := s.write()
	defer done()
	return q.DeleteTransaction(ctx, ownerID, id)
}

func (s *Store) ListTransactions(ctx context.Context, ownerID ledger.OwnerID) ([]ledger.Transaction, error) {
	q, done := s.read()
	defer done()
	return q.ListTransactions(ctx, ownerID)
}

func (s *Store) CreateRule(ctx context.Context, rule ledger.Rule) error {
	q, done := s.write()
	defer done()
	return q.CreateRule(ctx, rule)
}

func (s *Store) GetRule(ctx context.Context, ownerID ledger.OwnerID, id ledger.RuleID) (*ledger.Rule, error) {
	q, done := s.read()
	defer done()
	return q.GetRule(ctx, ownerID, id)
}

func (s *Store) AdvanceWatermark(ctx context.Context, ownerID ledger.OwnerID, id ledger.RuleID, at ledger.Date) (bool, error) {
	q, done := s.write()
	defer done()
	return q.AdvanceWatermark(ctx, ownerID, id, at)
}

func (s *Store) DeleteRule(ctx context.Context, ownerID ledger.OwnerID, id ledger.RuleID) error {
	q, done := s.write()
	defer done()
	return q.DeleteRule(ctx, ownerID, id)
}

func (s *Store) ListRules(ctx context.Context, ownerID ledger.OwnerID) ([]ledger.Rule, error) {
	q, done := s.read()
	defer done()
	return q.ListRules(ctx, ownerID)
}

func (s *Store) ListAllRules(ctx context.Context) ([]ledger.Rule, error) {
	q, done := s.read()
	defer done()
	return q.ListAllRules(ctx)
}

func (s *Store) InsertOccurrence(ctx context.Context, occ ledger.Occurrence) error {
	q, done := s.write()
	defer done()
	return q.InsertOccurrence(ctx, occ)
}

func (s *Store) UpdateOccurrence(ctx context.Context, occ ledger.Occurrence) error {
	q, done := s.write()
	defer done()
	return q.UpdateOccurrence(ctx, occ)
}

func (s *Store) GetOccurrence(ctx context.Context, ownerID ledger.OwnerID, id ledger.OccurrenceID) (*ledger.Occurrence, error) {
	q, done := s.read()
	defer done()
	return q.GetOccurrence(ctx, ownerID, id)
}

func (s *Store) DeleteOccurrence(ctx context.Context, ownerID ledger.OwnerID, id ledger.OccurrenceID) error {
	q, done := s.write()
	defer done()
	return q.DeleteOccurrence(ctx, ownerID, id)
}

func (s *Store) ListOccurrences(ctx context.Context, ownerID ledger.OwnerID) ([]ledger.Occurrence, error) {
	q, done := s.read()
	defer done()
	return q.ListOccurrences(ctx, ownerID)
}

func (s *Store) OccurrencesByRule(ctx context.Context, ownerID ledger.OwnerID, ruleID ledger.RuleID) ([]ledger.Occurrence, error) {
	q, done := s.read()
	defer done()
	return q.OccurrencesByRule(ctx, ownerID, ruleID)
}

func (s *Store) CountOccurrencesByRule(ctx context.Context, ownerID ledger.OwnerID, ruleID ledger.RuleID) (int, error) {
	q, done := s.read()
	defer done()
	return q.CountOccurrencesByRule(ctx, ownerID, ruleID)
}

func (s *Store) SaveDebt(ctx context.Context, debt ledger.Debt) error {
	q, done := s.write()
	defer done()
	return q.SaveDebt(ctx, debt)
}

func (s *Store) DeleteDebt(ctx context.Context, ownerID ledger.OwnerID, id ledger.DebtID) error {
	q, done := s.write()
	defer done()
	return q.DeleteDebt(ctx, ownerID, id)
}

func (s *Store) ListDebts(ctx context.Context, ownerID ledger.OwnerID) ([]ledger.Debt, error) {
	q, done := s.read()
	defer done()
	return q.ListDebts(ctx, ownerID)
}

func (s *Store) SaveGoal(ctx context.Context, goal ledger.Goal) error {
	q, done := s.write()
	defer done()
	return q.SaveGoal(ctx, goal)
}

func (s *Store) DeleteGoal(ctx context.Context, ownerID ledger.OwnerID, id ledger.GoalID) error {
	q, done := s.write()
	defer done()
	return q.DeleteGoal(ctx, ownerID, id)
}

func (s *Store) ListGoals(ctx context.Context, ownerID ledger.OwnerID) ([]ledger.Goal, error) {
	q, done := s.read()
	defer done()
	return q.ListGoals(ctx, ownerID)
}

// =============================================================================
// QUERIES - Shared by *sql.DB and *sql.Tx
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements ledger.Store over a querier. The caller holds the lock.
type queries struct {
	q querier
}

type rowScanner interface {
	Scan(dest ...any) error
}

// -----------------------------------------------------------------------------
// Owners
// -----------------------------------------------------------------------------

func (q *queries) SaveOwner(ctx context.Context, owner ledger.Owner) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO owners (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, owner.ID, owner.Name, formatTime(owner.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save owner: %w", err)
	}
	return nil
}

func (q *queries) GetOwner(ctx context.Context, id ledger.OwnerID) (*ledger.Owner, error) {
	var (
		o       ledger.Owner
		created string
	)
	err := q.q.QueryRowContext(ctx, `SELECT id, name, created_at FROM owners WHERE id = ?`, id).
		Scan(&o.ID, &o.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("owner %s: %w", id, ledger.ErrOwnerContextMissing)
	}
	if err != nil {
		return nil, err
	}
	if o.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &o, nil
}

// -----------------------------------------------------------------------------
// Accounts
// -----------------------------------------------------------------------------

const accountColumns = `id, owner_id, kind, balance, created_at, updated_at`

func (q *queries) GetAccount(ctx context.Context, ownerID ledger.OwnerID, kind ledger.AccountKind) (*ledger.Account, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE owner_id = ? AND kind = ?`, ownerID, kind)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// SaveAccount upserts by (owner_id, kind); the stored id and created_at win.
func (q *queries) SaveAccount(ctx context.Context, a ledger.Account) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, kind) DO UPDATE SET
			balance = excluded.balance,
			updated_at = excluded.updated_at
	`, a.ID, a.OwnerID, a.Kind, a.Balance.String(), formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

func (q *queries) ListAccounts(ctx context.Context, ownerID ledger.OwnerID) ([]ledger.Account, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE owner_id = ? ORDER BY kind`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAccount(r rowScanner) (ledger.Account, error) {
	var (
		a                         ledger.Account
		balance, created, updated string
		err                       error
	)
	if err = r.Scan(&a.ID, &a.OwnerID, &a.Kind, &balance, &created, &updated); err != nil {
		return a, err
	}
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return a, fmt.Errorf("account %s balance: %w", a.ID, err)
	}
	if a.CreatedAt, err = parseTime(created); err != nil {
		return a, err
	}
	a.UpdatedAt, err = parseTime(updated)
	return a, err
}

// -----------------------------------------------------------------------------
// Transactions
// -----------------------------------------------------------------------------

const transactionColumns = `id, owner_id, date, payee, amount, tx_type, category, account_kind, created_at, updated_at`

func (q *queries) GetTransaction(ctx context.Context, ownerID ledger.OwnerID, id ledger.TransactionID) (*ledger.Transaction, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND owner_id = ?`, id, ownerID)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (q *queries) SaveTransaction(ctx context.Context, tx ledger.Transaction) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date,
			payee = excluded.payee,
			amount = excluded.amount,
			tx_type = excluded.tx_type,
			category = excluded.category,
			account_kind = excluded.account_kind,
			updated_at = excluded.updated_at
	`,
		tx.ID, tx.OwnerID, tx.Date.String(), tx.Payee, tx.Amount.String(), tx.Type,
		tx.Category, tx.Account, formatTime(tx.CreatedAt), formatTime(tx.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	return nil
}

func (q *queries) DeleteTransaction(ctx context.Context, ownerID ledger.OwnerID, id ledger.TransactionID) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return requireRow(res, ledger.ErrTransactionNotFound)
}

func (q *queries) ListTransactions(ctx context.Context, ownerID ledger.OwnerID) ([]ledger.Transaction, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE owner_id = ? ORDER BY date, id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func scanTransaction(r rowScanner) (ledger.Transaction, error) {
	var (
		tx                             ledger.Transaction
		date, amount, created, updated string
		err                            error
	)
	if err = r.Scan(&tx.ID, &tx.OwnerID, &date, &tx.Payee, &amount, &tx.Type,
		&tx.Category, &tx.Account, &created, &updated); err != nil {
		return tx, err
	}
	if tx.Date, err = ledger.ParseDate(date); err != nil {
		return tx, err
	}
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return tx, fmt.Errorf("transaction %s amount: %w", tx.ID, err)
	}
	if tx.CreatedAt, err = parseTime(created); err != nil {
		return tx, err
	}
	tx.UpdatedAt, err = parseTime(updated)
	return tx, err
}

// -----------------------------------------------------------------------------
// Rules
// -----------------------------------------------------------------------------

const ruleColumns = `id, owner_id, start_date, payee, amount, category, cadence, interval_n, end_date, count_n, last_generated, created_at`

func (q *queries) CreateRule(ctx context.Context, r ledger.Rule) error {
	var count sql.NullInt64
	if r.Count != nil {
		count = sql.NullInt64{Int64: int64(*r.Count), Valid: true}
	}
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO rules (`+ruleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.OwnerID, r.StartDate.String(), r.Payee, r.Amount.String(), r.Category,
		r.Cadence, r.Interval, nullDate(r.EndDate), count, nullDate(r.LastGenerated),
		formatTime(r.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("rule %s already exists", r.ID)
		}
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

func (q *queries) GetRule(ctx context.Context, ownerID ledger.OwnerID, id ledger.RuleID) (*ledger.Rule, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM rules WHERE id = ? AND owner_id = ?`, id, ownerID)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrRuleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (q *queries) AdvanceWatermark(ctx context.Context, ownerID ledger.OwnerID, id ledger.RuleID, at ledger.Date) (bool, error) {
	res, err := q.q.ExecContext(ctx, `
		UPDATE rules SET last_generated = ?
		WHERE id = ? AND owner_id = ? AND (last_generated IS NULL OR last_generated < ?)
	`, at.String(), id, ownerID, at.String())
	if err != nil {
		return false, fmt.Errorf("failed to advance watermark: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	// Not moved: either already at or past `at`, or the rule is gone.
	var exists int
	err = q.q.QueryRowContext(ctx, `SELECT 1 FROM rules WHERE id = ? AND owner_id = ?`, id, ownerID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ledger.ErrRuleNotFound
	}
	return false, err
}

func (q *queries) DeleteRule(ctx context.Context, ownerID ledger.OwnerID, id ledger.RuleID) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM rules WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return requireRow(res, ledger.ErrRuleNotFound)
}

func (q *queries) ListRules(ctx context.Context, ownerID ledger.OwnerID) ([]ledger.Rule, error) {
	return q.queryRules(ctx,
		`SELECT `+ruleColumns+` FROM rules WHERE owner_id = ? ORDER BY created_at, id`, ownerID)
}

func (q *queries) ListAllRules(ctx context.Context) ([]ledger.Rule, error) {
	return q.queryRules(ctx,
		`SELECT `+ruleColumns+` FROM rules ORDER BY owner_id, created_at, id`)
}

func (q *queries) queryRules(ctx context.Context, query string, args ...any) ([]ledger.Rule, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRule(s rowScanner) (ledger.Rule, error) {
	var (
		r                      ledger.Rule
		start, amount, created string
		endDate, lastGenerated sql.NullString
		count                  sql.NullInt64
		err                    error
	)
	if err = s.Scan(&r.ID, &r.OwnerID, &start, &r.Payee, &amount, &r.Category, &r.Cadence,
		&r.Interval, &endDate, &count, &lastGenerated, &created); err != nil {
		return r, err
	}
	if r.StartDate, err = ledger.ParseDate(start); err != nil {
		return r, err
	}
	if r.Amount, err = decimal.NewFromString(amount); err != nil {
		return r, fmt.Errorf("rule %s amount: %w", r.ID, err)
	}
	if r.EndDate, err = parseNullDate(endDate); err != nil {
		return r, err
	}
	if r.LastGenerated, err = parseNullDate(lastGenerated); err != nil {
		return r, err
	}
	if count.Valid {
		n := int(count.Int64)
		r.Count = &n
	}
	r.CreatedAt, err = parseTime(created)
	return r, err
}

// -----------------------------------------------------------------------------
// Debts & goals
// -----------------------------------------------------------------------------

const debtColumns = `id, owner_id, payee, current_paid, total_amount, due_date, created_at`

// SaveDebt upserts; the owner_id guard keeps one owner from overwriting
// another owner's debt through a reused ID.
func (q *queries) SaveDebt(ctx context.Context, d ledger.Debt) error {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO debts (`+debtColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payee = excluded.payee,
			current_paid = excluded.current_paid,
			total_amount = excluded.total_amount,
			due_date = excluded.due_date
		WHERE debts.owner_id = excluded.owner_id
	`,
		d.ID, d.OwnerID, d.Payee, d.CurrentPaid.String(), d.TotalAmount.String(),
		d.DueDate.String(), formatTime(d.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save debt: %w", err)
	}
	return requireRow(res, ledger.ErrDebtNotFound)
}

func (q *queries) DeleteDebt(ctx context.Context, ownerID ledger.OwnerID, id ledger.DebtID) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM debts WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete debt: %w", err)
	}
	return requireRow(res, ledger.ErrDebtNotFound)
}

func (q *queries) ListDebts(ctx context.Context, ownerID ledger.OwnerID) ([]ledger.Debt, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+debtColumns+` FROM debts WHERE owner_id = ? ORDER BY due_date, id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Debt
	for rows.Next() {
		var (
			d                         ledger.Debt
			paid, total, due, created string
		)
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.Payee, &paid, &total, &due, &created); err != nil {
			return nil, err
		}
		if d.CurrentPaid, err = decimal.NewFromString(paid); err != nil {
			return nil, fmt.Errorf("debt %s current_paid: %w", d.ID, err)
		}
		if d.TotalAmount, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("debt %s total_amount: %w", d.ID, err)
		}
		if d.DueDate, err = ledger.ParseDate(due); err != nil {
			return nil, err
		}
		if d.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const goalColumns = `id, owner_id, title, target_date, current_amount, target_amount, created_at`

func (q *queries) SaveGoal(ctx context.Context, g ledger.Goal) error {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO goals (`+goalColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			target_date = excluded.target_date,
			current_amount = excluded.current_amount,
			target_amount = excluded.target_amount
		WHERE goals.owner_id = excluded.owner_id
	`,
		g.ID, g.OwnerID, g.Title, g.TargetDate.String(), g.CurrentAmount.String(),
		g.TargetAmount.String(), formatTime(g.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save goal: %w", err)
	}
	return requireRow(res, ledger.ErrGoalNotFound)
}

func (q *queries) DeleteGoal(ctx context.Context, ownerID ledger.OwnerID, id ledger.GoalID) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM goals WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete goal: %w", err)
	}
	return requireRow(res, ledger.ErrGoalNotFound)
}

func (q *queries) ListGoals(ctx context.Context, ownerID ledger.OwnerID) ([]ledger.Goal, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE owner_id = ? ORDER BY target_date, id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Goal
	for rows.Next() {
		var (
			g                                 ledger.Goal
			target, current, amount, created string
		)
		if err := rows.Scan(&g.ID, &g.OwnerID, &g.Title, &target, &current, &amount, &created); err != nil {
			return nil, err
		}
		if g.TargetDate, err = ledger.ParseDate(target); err != nil {
			return nil, err
		}
		if g.CurrentAmount, err = decimal.NewFromString(current); err != nil {
			return nil, fmt.Errorf("goal %s current_amount: %w", g.ID, err)
		}
		if g.TargetAmount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("goal %s target_amount: %w", g.ID, err)
		}
		if g.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------
// Occurrences
// -----------------------------------------------------------------------------

const occurrenceColumns = `id, owner_id, date, payee, amount, category, recurring, rule_id, cadence, created_at`

// InsertOccurrence inserts occ unless its dedupe key is taken, in which
// case it returns a *ledger.DuplicateOccurrenceError.
func (q *queries) InsertOccurrence(ctx context.Context, occ ledger.Occurrence) error {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO occurrences (`+occurrenceColumns+`, provenance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, payee, date, provenance) DO NOTHING
	`,
		occ.ID, occ.OwnerID, occ.Date.String(), occ.Payee, occ.Amount.String(), occ.Category,
		occ.Recurring, nullString(string(occ.RuleID)), occ.Cadence, formatTime(occ.CreatedAt),
		occ.Key().Provenance,
	)
	if err != nil {
		return fmt.Errorf("failed to insert occurrence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.NewDuplicateOccurrenceError(occ)
	}
	return nil
}

func (q *queries) UpdateOccurrence(ctx context.Context, occ ledger.Occurrence) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE occurrences SET
			date = ?, payee = ?, amount = ?, category = ?,
			recurring = ?, rule_id = ?, provenance = ?, cadence = ?
		WHERE id = ? AND owner_id = ?
	`,
		occ.Date.String(), occ.Payee, occ.Amount.String(), occ.Category,
		occ.Recurring, nullString(string(occ.RuleID)), occ.Key().Provenance, occ.Cadence,
		occ.ID, occ.OwnerID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.NewDuplicateOccurrenceError(occ)
		}
		return fmt.Errorf("failed to update occurrence: %w", err)
	}
	return requireRow(res, ledger.ErrOccurrenceNotFound)
}

func (q *queries) GetOccurrence(ctx context.Context, ownerID ledger.OwnerID, id ledger.OccurrenceID) (*ledger.Occurrence, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+occurrenceColumns+` FROM occurrences WHERE id = ? AND owner_id = ?`, id, ownerID)
	o, err := scanOccurrence(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrOccurrenceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (q *queries) DeleteOccurrence(ctx context.Context, ownerID ledger.OwnerID, id ledger.OccurrenceID) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM occurrences WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete occurrence: %w", err)
	}
	return requireRow(res, ledger.ErrOccurrenceNotFound)
}

func (q *queries) ListOccurrences(ctx context.Context, ownerID ledger.OwnerID) ([]ledger.Occurrence, error) {
	return q.queryOccurrences(ctx,
		`SELECT `+occurrenceColumns+` FROM occurrences WHERE owner_id = ? ORDER BY date, id`, ownerID)
}

func (q *queries) OccurrencesByRule(ctx context.Context, ownerID ledger.OwnerID, ruleID ledger.RuleID) ([]ledger.Occurrence, error) {
	return q.queryOccurrences(ctx,
		`SELECT `+occurrenceColumns+` FROM occurrences WHERE owner_id = ? AND rule_id = ? ORDER BY date, id`,
		ownerID, ruleID)
}

func (q *queries) CountOccurrencesByRule(ctx context.Context, ownerID ledger.OwnerID, ruleID ledger.RuleID) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM occurrences WHERE owner_id = ? AND rule_id = ?`, ownerID, ruleID).Scan(&n)
	return n, err
}

func (q *queries) queryOccurrences(ctx context.Context, query string, args ...any) ([]ledger.Occurrence, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Occurrence
	for rows.Next() {
		o, err := scanOccurrence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOccurrence(s rowScanner) (ledger.Occurrence, error) {
	var (
		o                     ledger.Occurrence
		date, amount, created string
		ruleID                sql.NullString
		err                   error
	)
	if err = s.Scan(&o.ID, &o.OwnerID, &date, &o.Payee, &amount, &o.Category,
		&o.Recurring, &ruleID, &o.Cadence, &created); err != nil {
		return o, err
	}
	if o.Date, err = ledger.ParseDate(date); err != nil {
		return o, err
	}
	if o.Amount, err = decimal.NewFromString(amount); err != nil {
		return o, fmt.Errorf("occurrence %s amount: %w", o.ID, err)
	}
	o.RuleID = ledger.RuleID(ruleID.String)
	o.CreatedAt, err = parseTime(created)
	return o, err
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(d *ledger.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDate(s sql.NullString) (*ledger.Date, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := ledger.ParseDate(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
