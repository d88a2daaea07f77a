package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/finance-ledger/ledger"
)

// Overview is the dashboard summary of an owner's accounts.
type Overview struct {
	OwnerID      ledger.OwnerID
	TotalBalance decimal.Decimal
	Accounts     []ledger.Account
}

// OpenLedger creates the owner's ledger context with a cash account at zero.
// An empty id gets a generated one; an id already in use is rejected with
// ledger.ErrOwnerExists and the existing owner is left untouched.
func OpenLedger(ctx context.Context, store ledger.TxStore, id ledger.OwnerID, name string, now time.Time) (ledger.Owner, error) {
	if strings.TrimSpace(name) == "" {
		return ledger.Owner{}, &ledger.ValidationError{Field: "name", Message: "required"}
	}
	if id == "" {
		id = ledger.OwnerID(uuid.New().String())
	}
	owner := ledger.Owner{ID: id, Name: strings.TrimSpace(name), CreatedAt: now.UTC()}

	err := store.WithTx(ctx, func(s ledger.Store) error {
		_, err := s.GetOwner(ctx, id)
		switch {
		case err == nil:
			return fmt.Errorf("owner %s: %w", id, ledger.ErrOwnerExists)
		case !errors.Is(err, ledger.ErrOwnerContextMissing):
			return err
		}
		if err := s.SaveOwner(ctx, owner); err != nil {
			return err
		}
		return s.SaveAccount(ctx, ledger.Account{
			ID:        ledger.AccountID(uuid.New().String()),
			OwnerID:   id,
			Kind:      ledger.AccountCash,
			Balance:   decimal.Zero,
			CreatedAt: now.UTC(),
			UpdatedAt: now.UTC(),
		})
	})
	if err != nil {
		return ledger.Owner{}, fmt.Errorf("open ledger: %w", err)
	}
	return owner, nil
}

// GetOverview sums all account balances of the owner.
func GetOverview(ctx context.Context, store ledger.Store, ownerID ledger.OwnerID) (Overview, error) {
	if _, err := store.GetOwner(ctx, ownerID); err != nil {
		return Overview{}, err
	}
	accs, err := store.ListAccounts(ctx, ownerID)
	if err != nil {
		return Overview{}, err
	}
	total := decimal.Zero
	for _, a := range accs {
		total = total.Add(a.Balance)
	}
	return Overview{OwnerID: ownerID, TotalBalance: total, Accounts: accs}, nil
}
