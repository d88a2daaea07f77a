package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebts_CreateListDelete(t *testing.T) {
	s := newTestServer(t)
	base := s.createOwner()

	rr := s.do("POST", base+"/debts", map[string]any{
		"payee": "Card Co", "current_paid": "250", "total_amount": "1000", "due_date": "2025-06-30",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	debt := decode[DebtDTO](t, rr)
	assert.Equal(t, "750", debt.Remaining.String())

	rr = s.do("GET", base+"/debts", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	debts := decode[[]DebtDTO](t, rr)
	require.Len(t, debts, 1)
	assert.Equal(t, "Card Co", debts[0].Payee)

	// Debts are not transactions; the balance stays put.
	assert.Equal(t, "0", s.totalBalance(base))

	rr = s.do("DELETE", base+"/debts/"+debt.ID, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = s.do("DELETE", base+"/debts/"+debt.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDebts_Validation(t *testing.T) {
	s := newTestServer(t)
	base := s.createOwner()

	rr := s.do("POST", base+"/debts", map[string]any{
		"payee": "Card Co", "current_paid": "1200", "total_amount": "1000", "due_date": "2025-06-30",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do("POST", "/api/owners/ghost/debts", map[string]any{
		"payee": "Card Co", "total_amount": "1000", "due_date": "2025-06-30",
	})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGoals_CreateListDelete(t *testing.T) {
	s := newTestServer(t)
	base := s.createOwner()

	rr := s.do("POST", base+"/goals", map[string]any{
		"title": "Emergency fund", "target_date": "2025-12-31", "current_amount": "1500", "target_amount": "6000",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	goal := decode[GoalDTO](t, rr)
	assert.Equal(t, "25", goal.Progress.String())

	rr = s.do("GET", base+"/goals", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, decode[[]GoalDTO](t, rr), 1)

	rr = s.do("POST", base+"/goals", map[string]any{"title": "", "target_date": "2025-12-31", "target_amount": "10"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do("DELETE", base+"/goals/"+goal.ID, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = s.do("GET", base+"/goals", nil)
	assert.Empty(t, decode[[]GoalDTO](t, rr))
}

func TestIncome_ListsIncomeOnly(t *testing.T) {
	s := newTestServer(t)
	base := s.createOwner()

	for _, body := range []map[string]any{
		{"date": "2025-01-03", "payee": "Employer", "amount": "3200", "type": "income", "account": "checking"},
		{"date": "2025-01-04", "payee": "Grocer", "amount": "60", "type": "expense", "category": "other"},
		{"date": "2025-01-02", "payee": "Refund", "amount": "15", "type": "income"},
	} {
		rr := s.do("POST", base+"/transactions", body)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}

	rr := s.do("GET", base+"/income", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	income := decode[[]IncomeDTO](t, rr)
	require.Len(t, income, 2)
	assert.Equal(t, "Refund", income[0].Payee)
	assert.Equal(t, "Employer", income[1].Payee)
	assert.Equal(t, "checking", income[1].Account)
}
