// Package store provides in-memory ledger.TxStore implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/finance-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements ledger.TxStore. All writes go through one mutex, so
// WithTx units are atomic with respect to every other reader and writer.
type Memory struct {
	mu sync.RWMutex
	s  *state
}

type state struct {
	owners       map[ledger.OwnerID]ledger.Owner
	accounts     map[accountKey]ledger.Account
	transactions map[ledger.TransactionID]ledger.Transaction
	rules        map[ledger.RuleID]ledger.Rule
	occurrences  map[ledger.OccurrenceID]ledger.Occurrence
	occByKey     map[occKey]ledger.OccurrenceID
	debts        map[ledger.DebtID]ledger.Debt
	goals        map[ledger.GoalID]ledger.Goal
}

type accountKey struct {
	OwnerID ledger.OwnerID
	Kind    ledger.AccountKind
}

type occKey struct {
	OwnerID    ledger.OwnerID
	Payee      string
	Date       string
	Provenance string
}

func keyOf(o ledger.Occurrence) occKey {
	k := o.Key()
	return occKey{OwnerID: k.OwnerID, Payee: k.Payee, Date: k.Date.String(), Provenance: k.Provenance}
}

func NewMemory() *Memory {
	return &Memory{s: newState()}
}

func newState() *state {
	return &state{
		owners:       make(map[ledger.OwnerID]ledger.Owner),
		accounts:     make(map[accountKey]ledger.Account),
		transactions: make(map[ledger.TransactionID]ledger.Transaction),
		rules:        make(map[ledger.RuleID]ledger.Rule),
		occurrences:  make(map[ledger.OccurrenceID]ledger.Occurrence),
		occByKey:     make(map[occKey]ledger.OccurrenceID),
		debts:        make(map[ledger.DebtID]ledger.Debt),
		goals:        make(map[ledger.GoalID]ledger.Goal),
	}
}

// clone deep-copies the maps; record values are copied by value.
func (s *state) clone() *state {
	c := newState()
	for k, v := range s.owners {
		c.owners[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for k, v := range s.rules {
		c.rules[k] = v
	}
	for k, v := range s.occurrences {
		c.occurrences[k] = v
	}
	for k, v := range s.occByKey {
		c.occByKey[k] = v
	}
	for k, v := range s.debts {
		c.debts[k] = v
	}
	for k, v := range s.goals {
		c.goals[k] = v
	}
	return c
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction, simulated with snapshot + rollback.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.s.clone()
	if err := fn(&view{s: m.s}); err != nil {
		m.s = snapshot
		return err
	}
	return nil
}

// read runs fn under the read lock.
func (m *Memory) read(fn func(v *view) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&view{s: m.s})
}

// write runs fn under the write lock.
func (m *Memory) write(fn func(v *view) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&view{s: m.s})
}

// =============================================================================
// LOCKED ENTRY POINTS (ledger.Store)
// =============================================================================

func (m *Memory) SaveOwner(ctx context.Context, owner ledger.Owner) error {
	return m.write(func(v *view) error { return v.SaveOwner(ctx, owner) })
}

func (m *Memory) GetOwner(ctx context.Context, id ledger.OwnerID) (out *ledger.Owner, err error) {
	err = m.read(func(v *view) error { out, err = v.GetOwner(ctx, id); return err })
	return out, err
}

func (m *Memory) GetAccount(ctx context.Context, ownerID ledger.OwnerID, kind ledger.AccountKind) (out *ledger.Account, err error) {
	err = m.read(func(v *view) error { out, err = v.GetAccount(ctx, ownerID, kind); return err })
	return out, err
}

func (m *Memory) SaveAccount(ctx context.Context, account ledger.Account) error {
	return m.write(func(v *view) error { return v.SaveAccount(ctx, account) })
}

func (m *Memory) ListAccounts(ctx context.Context, ownerID ledger.OwnerID) (out []ledger.Account, err error) {
	err = m.read(func(v *view) error { out, err = v.ListAccounts(ctx, ownerID); return err })
	return out, err
}

func (m *Memory) GetTransaction(ctx context.Context, ownerID ledger.OwnerID, id ledger.TransactionID) (out *ledger.Transaction, err error) {
	err = m.read(func(v *view) error { out, err = v.GetTransaction(ctx, ownerID, id); return err })
	return out, err
}

func (m *Memory) SaveTransaction(ctx context.Context, tx ledger.Transaction) error {
	return m.write(func(v *view) error { return v.SaveTransaction(ctx, tx) })
}

func (m *Memory) DeleteTransaction(ctx context.Context, ownerID ledger.OwnerID, id ledger.TransactionID) error {
	return m.write(func(v *view) error { return v.DeleteTransaction(ctx, ownerID, id) })
}

func (m *Memory) ListTransactions(ctx context.Context, ownerID ledger.OwnerID) (out []ledger.Transaction, err error) {
	err = m.read(func(v *view) error { out, err = v.ListTransactions(ctx, ownerID); return err })
	return out, err
}

func (m *Memory) CreateRule(ctx context.Context, rule ledger.Rule) error {
	return m.write(func(v *view) error { return v.CreateRule(ctx, rule) })
}

func (m *Memory) GetRule(ctx context.Context, ownerID ledger.OwnerID, id ledger.RuleID) (out *ledger.Rule, err error) {
	err = m.read(func(v *view) error { out, err = v.GetRule(ctx, ownerID, id); return err })
	return out, err
}

func (m *Memory) AdvanceWatermark(ctx context.Context, ownerID ledger.OwnerID, id ledger.RuleID, at ledger.Date) (advanced bool, err error) {
	err = m.write(func(v *view) error { advanced, err = v.AdvanceWatermark(ctx, ownerID, id, at); return err })
	return advanced, err
}

func (m *Memory) DeleteRule(ctx context.Context, ownerID ledger.OwnerID, id ledger.RuleID) error {
	return m.write(func(v *view) error { return v.DeleteRule(ctx, ownerID, id) })
}

func (m *Memory) ListRules(ctx context.Context, ownerID ledger.OwnerID) (out []ledger.Rule, err error) {
	err = m.read(func(v *view) error { out, err = v.ListRules(ctx, ownerID); return err })
	return out, err
}

func (m *Memory) ListAllRules(ctx context.Context) (out []ledger.Rule, err error) {
	err = m.read(func(v *view) error { out, err = v.ListAllRules(ctx); return err })
	return out, err
}

func (m *Memory) InsertOccurrence(ctx context.Context, occ ledger.Occurrence) error {
	return m.write(func(v *view) error { return v.InsertOccurrence(ctx, occ) })
}

func (m *Memory) UpdateOccurrence(ctx context.Context, occ ledger.Occurrence) error {
	return m.write(func(v *view) error { return v.UpdateOccurrence(ctx, occ) })
}

func (m *Memory) GetOccurrence(ctx context.Context, ownerID ledger.OwnerID, id ledger.OccurrenceID) (out *ledger.Occurrence, err error) {
	err = m.read(func(v *view) error { out, err = v.GetOccurrence(ctx, ownerID, id); return err })
	return out, err
}

func (m *Memory) DeleteOccurrence(ctx context.Context, ownerID ledger.OwnerID, id ledger.OccurrenceID) error {
	return m.write(func(v *view) error { return v.DeleteOccurrence(ctx, ownerID, id) })
}

func (m *Memory) ListOccurrences(ctx context.Context, ownerID ledger.OwnerID) (out []ledger.Occurrence, err error) {
	err = m.read(func(v *view) error { out, err = v.ListOccurrences(ctx, ownerID); return err })
	return out, err
}

func (m *Memory) OccurrencesByRule(ctx context.Context, ownerID ledger.OwnerID, ruleID ledger.RuleID) (out []ledger.Occurrence, err error) {
	err = m.read(func(v *view) error { out, err = v.OccurrencesByRule(ctx, ownerID, ruleID); return err })
	return out, err
}

func (m *Memory) CountOccurrencesByRule(ctx context.Context, ownerID ledger.OwnerID, ruleID ledger.RuleID) (n int, err error) {
	err = m.read(func(v *view) error { n, err = v.CountOccurrencesByRule(ctx, ownerID, ruleID); return err })
	return n, err
}

func (m *Memory) SaveDebt(ctx context.Context, debt ledger.Debt) error {
	return m.write(func(v *view) error { return v.SaveDebt(ctx, debt) })
}

func (m *Memory) DeleteDebt(ctx context.Context, ownerID ledger.OwnerID, id ledger.DebtID) error {
	return m.write(func(v *view) error { return v.DeleteDebt(ctx, ownerID, id) })
}

func (m *Memory) ListDebts(ctx context.Context, ownerID ledger.OwnerID) (out []ledger.Debt, err error) {
	err = m.read(func(v *view) error { out, err = v.ListDebts(ctx, ownerID); return err })
	return out, err
}

func (m *Memory) SaveGoal(ctx context.Context, goal ledger.Goal) error {
	return m.write(func(v *view) error { return v.SaveGoal(ctx, goal) })
}

func (m *Memory) DeleteGoal(ctx context.Context, ownerID ledger.OwnerID, id ledger.GoalID) error {
	return m.write(func(v *view) error { return v.DeleteGoal(ctx, ownerID, id) })
}

func (m *Memory) ListGoals(ctx context.Context, ownerID ledger.OwnerID) (out []ledger.Goal, err error) {
	err = m.read(func(v *view) error { out, err = v.ListGoals(ctx, ownerID); return err })
	return out, err
}

// =============================================================================
// VIEW - Unlocked operations; the caller holds the lock
// =============================================================================

type view struct {
	s *state
}

func (v *view) SaveOwner(_ context.Context, owner ledger.Owner) error {
	v.s.owners[owner.ID] = owner
	return nil
}

func (v *view) GetOwner(_ context.Context, id ledger.OwnerID) (*ledger.Owner, error) {
	o, ok := v.s.owners[id]
	if !ok {
		return nil, fmt.Errorf("owner %s: %w", id, ledger.ErrOwnerContextMissing)
	}
	return &o, nil
}

func (v *view) GetAccount(_ context.Context, ownerID ledger.OwnerID, kind ledger.AccountKind) (*ledger.Account, error) {
	a, ok := v.s.accounts[accountKey{OwnerID: ownerID, Kind: kind}]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	return &a, nil
}

func (v *view) SaveAccount(_ context.Context, account ledger.Account) error {
	k := accountKey{OwnerID: account.OwnerID, Kind: account.Kind}
	if existing, ok := v.s.accounts[k]; ok {
		// (owner, kind) is the identity; keep the original ID and creation time.
		account.ID = existing.ID
		account.CreatedAt = existing.CreatedAt
	}
	v.s.accounts[k] = account
	return nil
}

func (v *view) ListAccounts(_ context.Context, ownerID ledger.OwnerID) ([]ledger.Account, error) {
	var out []ledger.Account
	for _, a := range v.s.accounts {
		if a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out, nil
}

func (v *view) GetTransaction(_ context.Context, ownerID ledger.OwnerID, id ledger.TransactionID) (*ledger.Transaction, error) {
	tx, ok := v.s.transactions[id]
	if !ok || tx.OwnerID != ownerID {
		return nil, ledger.ErrTransactionNotFound
	}
	return &tx, nil
}

func (v *view) SaveTransaction(_ context.Context, tx ledger.Transaction) error {
	v.s.transactions[tx.ID] = tx
	return nil
}

func (v *view) DeleteTransaction(_ context.Context, ownerID ledger.OwnerID, id ledger.TransactionID) error {
	tx, ok := v.s.transactions[id]
	if !ok || tx.OwnerID != ownerID {
		return ledger.ErrTransactionNotFound
	}
	delete(v.s.transactions, id)
	return nil
}

func (v *view) ListTransactions(_ context.Context, ownerID ledger.OwnerID) ([]ledger.Transaction, error) {
	var out []ledger.Transaction
	for _, tx := range v.s.transactions {
		if tx.OwnerID == ownerID {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID < out[j].ID
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

func (v *view) CreateRule(_ context.Context, rule ledger.Rule) error {
	if _, exists := v.s.rules[rule.ID]; exists {
		return fmt.Errorf("rule %s already exists", rule.ID)
	}
	v.s.rules[rule.ID] = rule
	return nil
}

func (v *view) GetRule(_ context.Context, ownerID ledger.OwnerID, id ledger.RuleID) (*ledger.Rule, error) {
	r, ok := v.s.rules[id]
	if !ok || r.OwnerID != ownerID {
		return nil, ledger.ErrRuleNotFound
	}
	return &r, nil
}

func (v *view) AdvanceWatermark(_ context.Context, ownerID ledger.OwnerID, id ledger.RuleID, at ledger.Date) (bool, error) {
	r, ok := v.s.rules[id]
	if !ok || r.OwnerID != ownerID {
		return false, ledger.ErrRuleNotFound
	}
	if r.LastGenerated != nil && !at.After(*r.LastGenerated) {
		return false, nil
	}
	r.LastGenerated = at.Ptr()
	v.s.rules[id] = r
	return true, nil
}

func (v *view) DeleteRule(_ context.Context, ownerID ledger.OwnerID, id ledger.RuleID) error {
	r, ok := v.s.rules[id]
	if !ok || r.OwnerID != ownerID {
		return ledger.ErrRuleNotFound
	}
	delete(v.s.rules, id)
	return nil
}

func (v *view) ListRules(_ context.Context, ownerID ledger.OwnerID) ([]ledger.Rule, error) {
	var out []ledger.Rule
	for _, r := range v.s.rules {
		if r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	sortRules(out)
	return out, nil
}

func (v *view) ListAllRules(_ context.Context) ([]ledger.Rule, error) {
	out := make([]ledger.Rule, 0, len(v.s.rules))
	for _, r := range v.s.rules {
		out = append(out, r)
	}
	sortRules(out)
	return out, nil
}

func sortRules(rules []ledger.Rule) {
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].OwnerID != rules[j].OwnerID {
			return rules[i].OwnerID < rules[j].OwnerID
		}
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.Before(rules[j].CreatedAt)
		}
		return rules[i].ID < rules[j].ID
	})
}

func (v *view) InsertOccurrence(_ context.Context, occ ledger.Occurrence) error {
	k := keyOf(occ)
	if _, taken := v.s.occByKey[k]; taken {
		return ledger.NewDuplicateOccurrenceError(occ)
	}
	if _, exists := v.s.occurrences[occ.ID]; exists {
		return fmt.Errorf("occurrence %s already exists", occ.ID)
	}
	v.s.occurrences[occ.ID] = occ
	v.s.occByKey[k] = occ.ID
	return nil
}

func (v *view) UpdateOccurrence(_ context.Context, occ ledger.Occurrence) error {
	old, ok := v.s.occurrences[occ.ID]
	if !ok || old.OwnerID != occ.OwnerID {
		return ledger.ErrOccurrenceNotFound
	}
	k := keyOf(occ)
	if holder, taken := v.s.occByKey[k]; taken && holder != occ.ID {
		return ledger.NewDuplicateOccurrenceError(occ)
	}
	delete(v.s.occByKey, keyOf(old))
	v.s.occurrences[occ.ID] = occ
	v.s.occByKey[k] = occ.ID
	return nil
}

func (v *view) GetOccurrence(_ context.Context, ownerID ledger.OwnerID, id ledger.OccurrenceID) (*ledger.Occurrence, error) {
	o, ok := v.s.occurrences[id]
	if !ok || o.OwnerID != ownerID {
		return nil, ledger.ErrOccurrenceNotFound
	}
	return &o, nil
}

func (v *view) DeleteOccurrence(_ context.Context, ownerID ledger.OwnerID, id ledger.OccurrenceID) error {
	o, ok := v.s.occurrences[id]
	if !ok || o.OwnerID != ownerID {
		return ledger.ErrOccurrenceNotFound
	}
	delete(v.s.occurrences, id)
	delete(v.s.occByKey, keyOf(o))
	return nil
}

func (v *view) ListOccurrences(_ context.Context, ownerID ledger.OwnerID) ([]ledger.Occurrence, error) {
	return v.filterOccurrences(func(o ledger.Occurrence) bool { return o.OwnerID == ownerID }), nil
}

func (v *view) OccurrencesByRule(_ context.Context, ownerID ledger.OwnerID, ruleID ledger.RuleID) ([]ledger.Occurrence, error) {
	return v.filterOccurrences(func(o ledger.Occurrence) bool {
		return o.OwnerID == ownerID && o.RuleID == ruleID
	}), nil
}

func (v *view) CountOccurrencesByRule(_ context.Context, ownerID ledger.OwnerID, ruleID ledger.RuleID) (int, error) {
	n := 0
	for _, o := range v.s.occurrences {
		if o.OwnerID == ownerID && o.RuleID == ruleID {
			n++
		}
	}
	return n, nil
}

func (v *view) filterOccurrences(keep func(ledger.Occurrence) bool) []ledger.Occurrence {
	var out []ledger.Occurrence
	for _, o := range v.s.occurrences {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID < out[j].ID
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

func (v *view) SaveDebt(_ context.Context, debt ledger.Debt) error {
	if old, ok := v.s.debts[debt.ID]; ok && old.OwnerID != debt.OwnerID {
		return ledger.ErrDebtNotFound
	}
	v.s.debts[debt.ID] = debt
	return nil
}

func (v *view) DeleteDebt(_ context.Context, ownerID ledger.OwnerID, id ledger.DebtID) error {
	d, ok := v.s.debts[id]
	if !ok || d.OwnerID != ownerID {
		return ledger.ErrDebtNotFound
	}
	delete(v.s.debts, id)
	return nil
}

func (v *view) ListDebts(_ context.Context, ownerID ledger.OwnerID) ([]ledger.Debt, error) {
	var out []ledger.Debt
	for _, d := range v.s.debts {
		if d.OwnerID == ownerID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].DueDate.Before(out[j].DueDate)
	})
	return out, nil
}

func (v *view) SaveGoal(_ context.Context, goal ledger.Goal) error {
	if old, ok := v.s.goals[goal.ID]; ok && old.OwnerID != goal.OwnerID {
		return ledger.ErrGoalNotFound
	}
	v.s.goals[goal.ID] = goal
	return nil
}

func (v *view) DeleteGoal(_ context.Context, ownerID ledger.OwnerID, id ledger.GoalID) error {
	g, ok := v.s.goals[id]
	if !ok || g.OwnerID != ownerID {
		return ledger.ErrGoalNotFound
	}
	delete(v.s.goals, id)
	return nil
}

func (v *view) ListGoals(_ context.Context, ownerID ledger.OwnerID) ([]ledger.Goal, error) {
	var out []ledger.Goal
	for _, g := range v.s.goals {
		if g.OwnerID == ownerID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TargetDate.Equal(out[j].TargetDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].TargetDate.Before(out[j].TargetDate)
	})
	return out, nil
}
