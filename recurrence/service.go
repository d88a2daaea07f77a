package recurrence

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/finance-ledger/ledger"
)

// Service is the user-facing rule lifecycle: create (with an initial
// batch), list, delete, and on-demand materialization.
type Service struct {
	Store        ledger.TxStore
	Materializer *Materializer
	InitialBatch int
	Now          func() time.Time
}

// NewService wires a service around a shared materializer.
func NewService(store ledger.TxStore, m *Materializer) *Service {
	return &Service{
		Store:        store,
		Materializer: m,
		InitialBatch: DefaultInitialBatch,
		Now:          time.Now,
	}
}

// CreateRule validates and stores the rule, then materializes the initial
// batch. Validation failures happen before any write. If the initial batch
// fails, the rule is still returned: it is persisted and the next sweep
// picks it up.
func (s *Service) CreateRule(ctx context.Context, ownerID ledger.OwnerID, req CreateRuleRequest) (ledger.Rule, Result, error) {
	rule, err := NewRule(ownerID, req, s.Now())
	if err != nil {
		return ledger.Rule{}, Result{}, err
	}
	if _, err := s.Store.GetOwner(ctx, ownerID); err != nil {
		return ledger.Rule{}, Result{}, err
	}
	if err := s.Store.CreateRule(ctx, rule); err != nil {
		return ledger.Rule{}, Result{}, fmt.Errorf("create rule: %w", err)
	}

	res, err := s.Materializer.Materialize(ctx, ownerID, rule.ID, Options{Limit: s.InitialBatch})
	if err != nil {
		return rule, res, err
	}
	rule.LastGenerated = res.Watermark
	return rule, res, nil
}

// MaterializeThrough runs the materializer with a horizon of days from today.
func (s *Service) MaterializeThrough(ctx context.Context, ownerID ledger.OwnerID, ruleID ledger.RuleID, horizonDays int) (Result, error) {
	opts := Options{}
	if horizonDays > 0 {
		opts.Horizon = ledger.DateOf(s.Now().UTC()).AddDays(horizonDays).Ptr()
	}
	return s.Materializer.Materialize(ctx, ownerID, ruleID, opts)
}

// DeleteRule removes the rule. Occurrences it generated stay in place.
func (s *Service) DeleteRule(ctx context.Context, ownerID ledger.OwnerID, ruleID ledger.RuleID) error {
	return s.Store.DeleteRule(ctx, ownerID, ruleID)
}

func (s *Service) GetRule(ctx context.Context, ownerID ledger.OwnerID, ruleID ledger.RuleID) (*ledger.Rule, error) {
	return s.Store.GetRule(ctx, ownerID, ruleID)
}

func (s *Service) ListRules(ctx context.Context, ownerID ledger.OwnerID) ([]ledger.Rule, error) {
	return s.Store.ListRules(ctx, ownerID)
}
