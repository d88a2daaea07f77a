/*
Package accounts keeps account balances consistent with transactions.

PURPOSE:
  Every transaction create, edit and delete is paired with exactly one
  balance adjustment on the account it is routed to. Each pair runs inside
  a single store transaction, so a concurrent reader sees a balance either
  fully before or fully after a given transaction's effect.

INVARIANT:
  For every owner and account kind:
    balance == sum of Effect() over existing transactions routed to that kind

TRANSITIONS:
  Create:  balance(kind) += effect
  Edit:    balance(oldKind) -= oldEffect; balance(newKind) += newEffect
           (both commit together or neither does)
  Delete:  balance(kind) -= effect; remove transaction

ON-DEMAND ACCOUNTS:
  A transition that targets a kind the owner does not hold yet creates the
  account at zero before applying the delta. For Create this is the same
  as seeding the account with the effect.

SEE ALSO:
  - ledger/types.go: Transaction.Effect
  - ledger/store.go: AccountStore, TxStore
*/
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/finance-ledger/ledger"
)

// TransactionInput is the user-supplied part of a transaction.
type TransactionInput struct {
	Date     ledger.Date
	Payee    string
	Amount   decimal.Decimal
	Type     ledger.TransactionType
	Category ledger.Category
	Account  ledger.AccountKind // empty means cash
}

// Validate checks the input without side effects.
func (in *TransactionInput) Validate() error {
	if in.Account == "" {
		in.Account = ledger.AccountCash
	}
	if in.Date.IsZero() {
		return &ledger.ValidationError{Field: "date", Message: "required"}
	}
	if strings.TrimSpace(in.Payee) == "" {
		return &ledger.ValidationError{Field: "payee", Message: "required"}
	}
	if !in.Amount.IsPositive() {
		return &ledger.ValidationError{Field: "amount", Message: "must be positive"}
	}
	if !in.Type.Valid() {
		return &ledger.ValidationError{Field: "type", Message: fmt.Sprintf("must be income or expense, got %q", in.Type)}
	}
	switch in.Type {
	case ledger.TxExpense:
		if !in.Category.Valid() {
			return &ledger.ValidationError{Field: "category", Message: fmt.Sprintf("expense needs a valid category, got %q", in.Category)}
		}
	case ledger.TxIncome:
		if in.Category != "" {
			return &ledger.ValidationError{Field: "category", Message: "income has no category"}
		}
	}
	if !in.Account.Valid() {
		return &ledger.ValidationError{Field: "account", Message: fmt.Sprintf("unknown account kind %q", in.Account)}
	}
	return nil
}

// =============================================================================
// BALANCE UPDATER
// =============================================================================

// BalanceUpdater applies transaction transitions to account balances.
type BalanceUpdater struct {
	Store  ledger.TxStore
	Logger zerolog.Logger
	Now    func() time.Time
}

func NewBalanceUpdater(store ledger.TxStore) *BalanceUpdater {
	return &BalanceUpdater{Store: store, Logger: zerolog.Nop(), Now: time.Now}
}

// Create records a transaction and applies its effect.
func (u *BalanceUpdater) Create(ctx context.Context, ownerID ledger.OwnerID, in TransactionInput) (ledger.Transaction, error) {
	if err := in.Validate(); err != nil {
		return ledger.Transaction{}, err
	}

	now := u.Now().UTC()
	tx := ledger.Transaction{
		ID:        ledger.TransactionID(uuid.New().String()),
		OwnerID:   ownerID,
		Date:      in.Date,
		Payee:     strings.TrimSpace(in.Payee),
		Amount:    in.Amount,
		Type:      in.Type,
		Category:  in.Category,
		Account:   in.Account,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := u.Store.WithTx(ctx, func(s ledger.Store) error {
		if _, err := s.GetOwner(ctx, ownerID); err != nil {
			return err
		}
		if err := u.adjust(ctx, s, ownerID, tx.Account, tx.Effect()); err != nil {
			return err
		}
		return s.SaveTransaction(ctx, tx)
	})
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	u.Logger.Debug().Str("owner_id", string(ownerID)).Str("tx_id", string(tx.ID)).
		Str("effect", tx.Effect().String()).Str("account", string(tx.Account)).Msg("transaction created")
	return tx, nil
}

// Edit replaces a transaction, reversing the old effect on the old account
// and applying the new effect on the (possibly different) new account.
func (u *BalanceUpdater) Edit(ctx context.Context, ownerID ledger.OwnerID, id ledger.TransactionID, in TransactionInput) (ledger.Transaction, error) {
	if err := in.Validate(); err != nil {
		return ledger.Transaction{}, err
	}

	var updated ledger.Transaction
	err := u.Store.WithTx(ctx, func(s ledger.Store) error {
		old, err := s.GetTransaction(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if err := u.adjust(ctx, s, ownerID, old.Account, old.Effect().Neg()); err != nil {
			return err
		}

		updated = *old
		updated.Date = in.Date
		updated.Payee = strings.TrimSpace(in.Payee)
		updated.Amount = in.Amount
		updated.Type = in.Type
		updated.Category = in.Category
		updated.Account = in.Account
		updated.UpdatedAt = u.Now().UTC()

		if err := u.adjust(ctx, s, ownerID, updated.Account, updated.Effect()); err != nil {
			return err
		}
		return s.SaveTransaction(ctx, updated)
	})
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("edit transaction %s: %w", id, err)
	}
	return updated, nil
}

// Delete reverses a transaction's effect and removes it.
func (u *BalanceUpdater) Delete(ctx context.Context, ownerID ledger.OwnerID, id ledger.TransactionID) error {
	err := u.Store.WithTx(ctx, func(s ledger.Store) error {
		old, err := s.GetTransaction(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if err := u.adjust(ctx, s, ownerID, old.Account, old.Effect().Neg()); err != nil {
			return err
		}
		return s.DeleteTransaction(ctx, ownerID, id)
	})
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	return nil
}

// adjust is the single read-modify-write on one account.
func (u *BalanceUpdater) adjust(ctx context.Context, s ledger.Store, ownerID ledger.OwnerID, kind ledger.AccountKind, delta decimal.Decimal) error {
	now := u.Now().UTC()
	acc, err := s.GetAccount(ctx, ownerID, kind)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		acc = &ledger.Account{
			ID:        ledger.AccountID(uuid.New().String()),
			OwnerID:   ownerID,
			Kind:      kind,
			Balance:   decimal.Zero,
			CreatedAt: now,
		}
		u.Logger.Debug().Str("owner_id", string(ownerID)).Str("account", string(kind)).Msg("account created on demand")
	} else if err != nil {
		return err
	}

	acc.Balance = acc.Balance.Add(delta)
	acc.UpdatedAt = now
	return s.SaveAccount(ctx, *acc)
}

// =============================================================================
// VERIFICATION
// =============================================================================

// Mismatch is an account whose stored balance disagrees with its transactions.
type Mismatch struct {
	Kind     ledger.AccountKind
	Stored   decimal.Decimal
	Expected decimal.Decimal
}

// ExpectedBalances sums transaction effects per account kind.
func ExpectedBalances(txs []ledger.Transaction) map[ledger.AccountKind]decimal.Decimal {
	out := make(map[ledger.AccountKind]decimal.Decimal)
	for _, tx := range txs {
		out[tx.Account] = out[tx.Account].Add(tx.Effect())
	}
	return out
}

// Verify compares stored balances with the transaction set, in one
// consistent read.
func (u *BalanceUpdater) Verify(ctx context.Context, ownerID ledger.OwnerID) ([]Mismatch, error) {
	var mismatches []Mismatch
	err := u.Store.WithTx(ctx, func(s ledger.Store) error {
		txs, err := s.ListTransactions(ctx, ownerID)
		if err != nil {
			return err
		}
		accounts, err := s.ListAccounts(ctx, ownerID)
		if err != nil {
			return err
		}

		expected := ExpectedBalances(txs)
		for _, acc := range accounts {
			want := expected[acc.Kind]
			if !acc.Balance.Equal(want) {
				mismatches = append(mismatches, Mismatch{Kind: acc.Kind, Stored: acc.Balance, Expected: want})
			}
			delete(expected, acc.Kind)
		}
		for kind, want := range expected {
			if !want.IsZero() {
				mismatches = append(mismatches, Mismatch{Kind: kind, Stored: decimal.Zero, Expected: want})
			}
		}
		return nil
	})
	return mismatches, err
}
