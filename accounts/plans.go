package accounts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/finance-ledger/ledger"
)

// =============================================================================
// DEBTS & GOALS - Dashboard plans kept next to the ledger
// =============================================================================

// DebtInput is the user-supplied part of a debt.
type DebtInput struct {
	Payee       string
	CurrentPaid decimal.Decimal
	TotalAmount decimal.Decimal
	DueDate     ledger.Date
}

func (in DebtInput) Validate() error {
	if strings.TrimSpace(in.Payee) == "" {
		return &ledger.ValidationError{Field: "payee", Message: "required"}
	}
	if !in.TotalAmount.IsPositive() {
		return &ledger.ValidationError{Field: "total_amount", Message: "must be positive"}
	}
	if in.CurrentPaid.IsNegative() {
		return &ledger.ValidationError{Field: "current_paid", Message: "must not be negative"}
	}
	if in.CurrentPaid.GreaterThan(in.TotalAmount) {
		return &ledger.ValidationError{Field: "current_paid", Message: "exceeds total_amount"}
	}
	if in.DueDate.IsZero() {
		return &ledger.ValidationError{Field: "due_date", Message: "required"}
	}
	return nil
}

// GoalInput is the user-supplied part of a savings goal.
type GoalInput struct {
	Title         string
	TargetDate    ledger.Date
	CurrentAmount decimal.Decimal
	TargetAmount  decimal.Decimal
}

func (in GoalInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return &ledger.ValidationError{Field: "title", Message: "required"}
	}
	if !in.TargetAmount.IsPositive() {
		return &ledger.ValidationError{Field: "target_amount", Message: "must be positive"}
	}
	if in.CurrentAmount.IsNegative() {
		return &ledger.ValidationError{Field: "current_amount", Message: "must not be negative"}
	}
	if in.TargetDate.IsZero() {
		return &ledger.ValidationError{Field: "target_date", Message: "required"}
	}
	return nil
}

// AddDebt records a debt for an existing owner.
func AddDebt(ctx context.Context, store ledger.TxStore, ownerID ledger.OwnerID, in DebtInput, now time.Time) (ledger.Debt, error) {
	if err := in.Validate(); err != nil {
		return ledger.Debt{}, err
	}
	debt := ledger.Debt{
		ID:          ledger.DebtID(uuid.New().String()),
		OwnerID:     ownerID,
		Payee:       strings.TrimSpace(in.Payee),
		CurrentPaid: in.CurrentPaid,
		TotalAmount: in.TotalAmount,
		DueDate:     in.DueDate,
		CreatedAt:   now.UTC(),
	}
	err := store.WithTx(ctx, func(s ledger.Store) error {
		if _, err := s.GetOwner(ctx, ownerID); err != nil {
			return err
		}
		return s.SaveDebt(ctx, debt)
	})
	if err != nil {
		return ledger.Debt{}, fmt.Errorf("add debt: %w", err)
	}
	return debt, nil
}

func ListDebts(ctx context.Context, store ledger.Store, ownerID ledger.OwnerID) ([]ledger.Debt, error) {
	if _, err := store.GetOwner(ctx, ownerID); err != nil {
		return nil, err
	}
	return store.ListDebts(ctx, ownerID)
}

// AddGoal records a savings goal for an existing owner.
func AddGoal(ctx context.Context, store ledger.TxStore, ownerID ledger.OwnerID, in GoalInput, now time.Time) (ledger.Goal, error) {
	if err := in.Validate(); err != nil {
		return ledger.Goal{}, err
	}
	goal := ledger.Goal{
		ID:            ledger.GoalID(uuid.New().String()),
		OwnerID:       ownerID,
		Title:         strings.TrimSpace(in.Title),
		TargetDate:    in.TargetDate,
		CurrentAmount: in.CurrentAmount,
		TargetAmount:  in.TargetAmount,
		CreatedAt:     now.UTC(),
	}
	err := store.WithTx(ctx, func(s ledger.Store) error {
		if _, err := s.GetOwner(ctx, ownerID); err != nil {
			return err
		}
		return s.SaveGoal(ctx, goal)
	})
	if err != nil {
		return ledger.Goal{}, fmt.Errorf("add goal: %w", err)
	}
	return goal, nil
}

func ListGoals(ctx context.Context, store ledger.Store, ownerID ledger.OwnerID) ([]ledger.Goal, error) {
	if _, err := store.GetOwner(ctx, ownerID); err != nil {
		return nil, err
	}
	return store.ListGoals(ctx, ownerID)
}

// ListIncome returns the owner's income transactions ordered by date.
func ListIncome(ctx context.Context, store ledger.Store, ownerID ledger.OwnerID) ([]ledger.Transaction, error) {
	if _, err := store.GetOwner(ctx, ownerID); err != nil {
		return nil, err
	}
	txs, err := store.ListTransactions(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	income := make([]ledger.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Type == ledger.TxIncome {
			income = append(income, tx)
		}
	}
	return income, nil
}
