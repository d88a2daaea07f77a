/*
materializer.go - Expands a rule into persisted occurrences, idempotently

ALGORITHM:
  1. Resolve the owner's ledger context (missing = ErrOwnerContextMissing, no writes)
  2. Start at the rule's StartDate, or one step past the watermark
  3. Bound by EndDate (or the caller's horizon) and by the remaining count,
     where remaining is re-derived from persisted occurrences, never trusted
     from caller state
  4. Drop dates already persisted for this rule (fresh read, no cache)
  5. In one store transaction: insert the rest, treating
     ErrDuplicateOccurrence as "someone else already did it", then move the
     watermark to the last inserted date

IDEMPOTENCE:
  With no intervening deletions, a second call with the same inputs
  inserts nothing and leaves the rule untouched.

CONCURRENCY:
  Calls for the same rule are serialized by an in-process lock. Across
  processes (or separate Materializer values) the store's uniqueness
  constraint is the backstop: the loser of a race sees only duplicate
  rejections and commits nothing.

FAILURE:
  Inserts and the watermark move commit together. A failed call leaves no
  trace and is safe to retry. If the rule is deleted between planning and
  commit the watermark move fails and the whole unit rolls back.
*/
package recurrence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/warp/finance-ledger/ledger"
)

// DefaultInitialBatch is the number of occurrences created with a new rule.
const DefaultInitialBatch = 12

// Options bound a single materialization call.
type Options struct {
	// Horizon is the inclusive date bound used when the rule has no EndDate.
	// nil means unbounded (only Limit and Count apply).
	Horizon *ledger.Date

	// Limit caps newly created occurrences. <= 0 means MaxOccurrencesPerCall.
	Limit int
}

// Result reports what a call changed.
type Result struct {
	RuleID     ledger.RuleID
	Created    []ledger.Occurrence
	Duplicates int
	Watermark  *ledger.Date
	Advanced   bool
}

// Materializer creates occurrences for rules.
type Materializer struct {
	Store  ledger.TxStore
	Logger zerolog.Logger
	Now    func() time.Time

	locks ruleLocks
}

// NewMaterializer creates a materializer over store.
func NewMaterializer(store ledger.TxStore) *Materializer {
	return &Materializer{
		Store:  store,
		Logger: zerolog.Nop(),
		Now:    time.Now,
	}
}

// Materialize generates the rule's missing occurrences within opts.
func (m *Materializer) Materialize(ctx context.Context, ownerID ledger.OwnerID, ruleID ledger.RuleID, opts Options) (Result, error) {
	unlock := m.locks.lock(ruleID)
	defer unlock()

	result := Result{RuleID: ruleID}

	if _, err := m.Store.GetOwner(ctx, ownerID); err != nil {
		return result, fmt.Errorf("materialize rule %s: %w", ruleID, err)
	}
	rule, err := m.Store.GetRule(ctx, ownerID, ruleID)
	if err != nil {
		return result, fmt.Errorf("materialize rule %s: %w", ruleID, err)
	}
	result.Watermark = rule.LastGenerated

	dates, err := m.plan(ctx, *rule, opts)
	if err != nil {
		return result, fmt.Errorf("plan rule %s: %w", ruleID, err)
	}
	if len(dates) == 0 {
		return result, nil
	}

	var (
		created    []ledger.Occurrence
		duplicates int
		advanced   bool
	)
	err = m.Store.WithTx(ctx, func(s ledger.Store) error {
		created, duplicates, advanced = nil, 0, false

		remaining := -1
		if rule.Count != nil {
			n, err := s.CountOccurrencesByRule(ctx, ownerID, ruleID)
			if err != nil {
				return err
			}
			remaining = *rule.Count - n
		}

		now := m.Now().UTC()
		for _, d := range dates {
			if remaining == 0 {
				break
			}
			occ := occurrenceFor(*rule, d, now)
			if err := s.InsertOccurrence(ctx, occ); err != nil {
				if errors.Is(err, ledger.ErrDuplicateOccurrence) {
					duplicates++
					continue
				}
				return fmt.Errorf("insert occurrence %s: %w", d, err)
			}
			created = append(created, occ)
			if remaining > 0 {
				remaining--
			}
		}

		if len(created) == 0 {
			return nil
		}
		last := created[len(created)-1].Date
		ok, err := s.AdvanceWatermark(ctx, ownerID, ruleID, last)
		if err != nil {
			return fmt.Errorf("advance watermark: %w", err)
		}
		advanced = ok
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("materialize rule %s: %w", ruleID, err)
	}

	result.Created = created
	result.Duplicates = duplicates
	result.Advanced = advanced
	if advanced {
		result.Watermark = created[len(created)-1].Date.Ptr()
	}

	m.Logger.Debug().
		Str("owner_id", string(ownerID)).
		Str("rule_id", string(ruleID)).
		Int("created", len(created)).
		Int("duplicates", duplicates).
		Msg("materialized rule")

	return result, nil
}

// plan computes the dates to insert, without writing.
func (m *Materializer) plan(ctx context.Context, rule ledger.Rule, opts Options) ([]ledger.Date, error) {
	start := rule.StartDate
	if rule.LastGenerated != nil {
		next, err := Advance(*rule.LastGenerated, rule.Cadence, rule.Interval)
		if err != nil {
			return nil, err
		}
		start = next
	}

	until := opts.Horizon
	if rule.EndDate != nil {
		until = rule.EndDate
	}

	limit := clampCount(opts.Limit)
	if rule.Count != nil {
		generated, err := m.Store.CountOccurrencesByRule(ctx, rule.OwnerID, rule.ID)
		if err != nil {
			return nil, err
		}
		remaining := *rule.Count - generated
		if remaining <= 0 {
			return nil, nil
		}
		if remaining < limit {
			limit = remaining
		}
	}

	// Generate a full capped window and trim after de-duplication, so
	// dates persisted past a lagging watermark do not consume the limit.
	candidates, err := Generate(SequenceParams{
		Start:    start,
		Cadence:  rule.Cadence,
		Interval: rule.Interval,
		MaxCount: MaxOccurrencesPerCall,
		Until:    until,
	})
	if err != nil {
		return nil, err
	}

	existing, err := m.Store.OccurrencesByRule(ctx, rule.OwnerID, rule.ID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(existing))
	for _, o := range existing {
		seen[o.Date.String()] = true
	}

	dates := make([]ledger.Date, 0, limit)
	for _, d := range candidates {
		if len(dates) == limit {
			break
		}
		if seen[d.String()] {
			continue
		}
		dates = append(dates, d)
	}
	return dates, nil
}

func occurrenceFor(rule ledger.Rule, date ledger.Date, now time.Time) ledger.Occurrence {
	return ledger.Occurrence{
		ID:        ledger.OccurrenceID(uuid.New().String()),
		OwnerID:   rule.OwnerID,
		Date:      date,
		Payee:     rule.Payee,
		Amount:    rule.Amount,
		Category:  rule.Category,
		Recurring: true,
		RuleID:    rule.ID,
		Cadence:   rule.Cadence,
		CreatedAt: now,
	}
}

// =============================================================================
// RULE LOCKS - One mutex per rule, dropped when unused
// =============================================================================

type ruleLocks struct {
	mu    sync.Mutex
	locks map[ledger.RuleID]*ruleLock
}

type ruleLock struct {
	mu   sync.Mutex
	refs int
}

func (l *ruleLocks) lock(id ledger.RuleID) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[ledger.RuleID]*ruleLock)
	}
	rl, ok := l.locks[id]
	if !ok {
		rl = &ruleLock{}
		l.locks[id] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
