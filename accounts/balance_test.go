package accounts

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/finance-ledger/ledger"
	"github.com/warp/finance-ledger/ledger/store"
)

const owner = ledger.OwnerID("owner-1")

func setup(t *testing.T) (*store.Memory, *BalanceUpdater) {
	t.Helper()
	mem := store.NewMemory()
	_, err := OpenLedger(context.Background(), mem, owner, "Alex", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return mem, NewBalanceUpdater(mem)
}

func balance(t *testing.T, s ledger.Store, kind ledger.AccountKind) string {
	t.Helper()
	acc, err := s.GetAccount(context.Background(), owner, kind)
	require.NoError(t, err)
	return acc.Balance.String()
}

func expense(amount int64, kind ledger.AccountKind) TransactionInput {
	return TransactionInput{
		Date:     ledger.NewDate(2025, 3, 1),
		Payee:    "Grocer",
		Amount:   decimal.NewFromInt(amount),
		Type:     ledger.TxExpense,
		Category: ledger.CategoryOther,
		Account:  kind,
	}
}

func income(amount int64, kind ledger.AccountKind) TransactionInput {
	return TransactionInput{
		Date:    ledger.NewDate(2025, 3, 1),
		Payee:   "Employer",
		Amount:  decimal.NewFromInt(amount),
		Type:    ledger.TxIncome,
		Account: kind,
	}
}

func TestOpenLedger_SeedsCashAtZero(t *testing.T) {
	mem, _ := setup(t)

	accs, err := mem.ListAccounts(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, accs, 1)
	assert.Equal(t, ledger.AccountCash, accs[0].Kind)
	assert.True(t, accs[0].Balance.IsZero())
}

func TestOpenLedger_RejectsExistingOwner(t *testing.T) {
	ctx := context.Background()
	mem, u := setup(t)
	_, err := u.Create(ctx, owner, income(250, ledger.AccountCash))
	require.NoError(t, err)

	// WHEN: the same owner id is opened again under another name
	_, err = OpenLedger(ctx, mem, owner, "Someone else", time.Now())

	// THEN: it conflicts and the original owner and balance are kept
	assert.ErrorIs(t, err, ledger.ErrOwnerExists)
	assert.True(t, ledger.IsConflict(err))

	got, err := mem.GetOwner(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "Alex", got.Name)
	assert.Equal(t, "250", balance(t, mem, ledger.AccountCash))
}

func TestOpenLedger_RequiresName(t *testing.T) {
	_, err := OpenLedger(context.Background(), store.NewMemory(), "", "  ", time.Now())
	assert.True(t, ledger.IsClientError(err))
}

// Expense, edit to income, delete: the balance follows every step.
func TestBalanceUpdater_CreateEditDelete(t *testing.T) {
	ctx := context.Background()
	mem, u := setup(t)

	// GIVEN: a $100 cash expense
	tx, err := u.Create(ctx, owner, expense(100, ledger.AccountCash))
	require.NoError(t, err)
	assert.Equal(t, "-100", balance(t, mem, ledger.AccountCash))

	// WHEN: it is edited into a $40 income
	_, err = u.Edit(ctx, owner, tx.ID, income(40, ledger.AccountCash))
	require.NoError(t, err)

	// THEN: the old effect is reversed and the new one applied
	assert.Equal(t, "40", balance(t, mem, ledger.AccountCash))

	// WHEN: deleted
	require.NoError(t, u.Delete(ctx, owner, tx.ID))

	// THEN: back to zero and gone
	assert.Equal(t, "0", balance(t, mem, ledger.AccountCash))
	_, err = mem.GetTransaction(ctx, owner, tx.ID)
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
}

func TestBalanceUpdater_EditMovesAcrossAccounts(t *testing.T) {
	ctx := context.Background()
	mem, u := setup(t)

	tx, err := u.Create(ctx, owner, expense(25, ledger.AccountCash))
	require.NoError(t, err)

	// WHEN: routed to savings, which does not exist yet
	_, err = u.Edit(ctx, owner, tx.ID, expense(30, ledger.AccountSavings))
	require.NoError(t, err)

	// THEN: cash is restored and savings is created and debited
	assert.Equal(t, "0", balance(t, mem, ledger.AccountCash))
	assert.Equal(t, "-30", balance(t, mem, ledger.AccountSavings))
}

func TestBalanceUpdater_CreateOnMissingAccountSeedsEffect(t *testing.T) {
	ctx := context.Background()
	mem, u := setup(t)

	_, err := u.Create(ctx, owner, income(1200, ledger.AccountChecking))
	require.NoError(t, err)

	assert.Equal(t, "1200", balance(t, mem, ledger.AccountChecking))
}

func TestBalanceUpdater_DefaultsToCash(t *testing.T) {
	ctx := context.Background()
	mem, u := setup(t)

	tx, err := u.Create(ctx, owner, expense(5, ""))
	require.NoError(t, err)

	assert.Equal(t, ledger.AccountCash, tx.Account)
	assert.Equal(t, "-5", balance(t, mem, ledger.AccountCash))
}

func TestBalanceUpdater_Validation(t *testing.T) {
	ctx := context.Background()
	mem, u := setup(t)

	tests := []struct {
		name  string
		input TransactionInput
		field string
	}{
		{"zero amount", expense(0, ledger.AccountCash), "amount"},
		{"negative amount", expense(-3, ledger.AccountCash), "amount"},
		{"unknown account", expense(3, "brokerage"), "account"},
		{"expense without category", func() TransactionInput { in := expense(3, ledger.AccountCash); in.Category = ""; return in }(), "category"},
		{"income with category", func() TransactionInput { in := income(3, ledger.AccountCash); in.Category = ledger.CategoryBill; return in }(), "category"},
		{"missing payee", func() TransactionInput { in := expense(3, ledger.AccountCash); in.Payee = " "; return in }(), "payee"},
		{"bad type", func() TransactionInput { in := expense(3, ledger.AccountCash); in.Type = "refund"; return in }(), "type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := u.Create(ctx, owner, tt.input)
			var ve *ledger.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	// Nothing was written.
	txs, err := mem.ListTransactions(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, txs)
	assert.Equal(t, "0", balance(t, mem, ledger.AccountCash))
}

func TestBalanceUpdater_UnknownOwner(t *testing.T) {
	ctx := context.Background()
	mem, u := setup(t)

	_, err := u.Create(ctx, "ghost", expense(10, ledger.AccountCash))
	assert.ErrorIs(t, err, ledger.ErrOwnerContextMissing)

	accs, err := mem.ListAccounts(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, accs)
}

func TestBalanceUpdater_MissingTransaction(t *testing.T) {
	ctx := context.Background()
	_, u := setup(t)

	_, err := u.Edit(ctx, owner, "nope", expense(1, ledger.AccountCash))
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
	assert.ErrorIs(t, u.Delete(ctx, owner, "nope"), ledger.ErrTransactionNotFound)
}

// failingStore fails SaveTransaction inside WithTx after the balance has
// already been adjusted in the same unit.
type failingStore struct {
	*store.Memory
}

type failingView struct {
	ledger.Store
}

func (failingView) SaveTransaction(context.Context, ledger.Transaction) error {
	return errors.New("disk full")
}

func (f failingStore) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	return f.Memory.WithTx(ctx, func(s ledger.Store) error { return fn(failingView{s}) })
}

func TestBalanceUpdater_RollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	mem, _ := setup(t)
	u := NewBalanceUpdater(failingStore{mem})

	_, err := u.Create(ctx, owner, expense(100, ledger.AccountCash))
	require.Error(t, err)

	// THEN: the adjustment did not survive the failed save
	assert.Equal(t, "0", balance(t, mem, ledger.AccountCash))
	txs, err := mem.ListTransactions(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

// Random create/edit/delete sequences never break the balance invariant.
func TestBalanceUpdater_RandomOperationsKeepInvariant(t *testing.T) {
	ctx := context.Background()
	mem, u := setup(t)
	rng := rand.New(rand.NewSource(42))

	randomInput := func() TransactionInput {
		kind := ledger.AccountKinds[rng.Intn(len(ledger.AccountKinds))]
		amount := decimal.New(int64(rng.Intn(100000)+1), -2)
		if rng.Intn(2) == 0 {
			in := income(0, kind)
			in.Amount = amount
			return in
		}
		in := expense(0, kind)
		in.Amount = amount
		return in
	}

	var live []ledger.TransactionID
	for i := 0; i < 500; i++ {
		switch op := rng.Intn(3); {
		case op == 0 || len(live) == 0:
			tx, err := u.Create(ctx, owner, randomInput())
			require.NoError(t, err)
			live = append(live, tx.ID)
		case op == 1:
			id := live[rng.Intn(len(live))]
			_, err := u.Edit(ctx, owner, id, randomInput())
			require.NoError(t, err)
		default:
			idx := rng.Intn(len(live))
			require.NoError(t, u.Delete(ctx, owner, live[idx]))
			live = append(live[:idx], live[idx+1:]...)
		}
	}

	mismatches, err := u.Verify(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, mismatches)

	txs, err := mem.ListTransactions(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, txs, len(live))
}

func TestVerify_DetectsDrift(t *testing.T) {
	ctx := context.Background()
	mem, u := setup(t)

	_, err := u.Create(ctx, owner, expense(10, ledger.AccountCash))
	require.NoError(t, err)

	acc, err := mem.GetAccount(ctx, owner, ledger.AccountCash)
	require.NoError(t, err)
	acc.Balance = decimal.NewFromInt(7)
	require.NoError(t, mem.SaveAccount(ctx, *acc))

	mismatches, err := u.Verify(ctx, owner)
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, "-10", mismatches[0].Expected.String())
	assert.Equal(t, "7", mismatches[0].Stored.String())
}

func TestGetOverview(t *testing.T) {
	ctx := context.Background()
	mem, u := setup(t)

	_, err := u.Create(ctx, owner, income(500, ledger.AccountChecking))
	require.NoError(t, err)
	_, err = u.Create(ctx, owner, expense(120, ledger.AccountCredit))
	require.NoError(t, err)

	ov, err := GetOverview(ctx, mem, owner)
	require.NoError(t, err)
	assert.Equal(t, "380", ov.TotalBalance.String())
	assert.Len(t, ov.Accounts, 3)

	_, err = GetOverview(ctx, mem, "ghost")
	assert.ErrorIs(t, err, ledger.ErrOwnerContextMissing)
}
