package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/warp/finance-ledger/accounts"
	"github.com/warp/finance-ledger/ledger"
)

// =============================================================================
// DEBTS, GOALS & INCOME
// =============================================================================

func (h *Handler) ListDebts(w http.ResponseWriter, r *http.Request) {
	debts, err := accounts.ListDebts(r.Context(), h.Store, ownerParam(r))
	if err != nil {
		h.writeDomainError(w, "Failed to list debts", err)
		return
	}
	out := make([]DebtDTO, 0, len(debts))
	for _, d := range debts {
		out = append(out, toDebtDTO(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateDebt(w http.ResponseWriter, r *http.Request) {
	var req DebtRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	debt, err := accounts.AddDebt(r.Context(), h.Store, ownerParam(r), req.input(), h.Now())
	if err != nil {
		h.writeDomainError(w, "Failed to add debt", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDebtDTO(debt))
}

func (h *Handler) DeleteDebt(w http.ResponseWriter, r *http.Request) {
	id := ledger.DebtID(chi.URLParam(r, "id"))
	if err := h.Store.DeleteDebt(r.Context(), ownerParam(r), id); err != nil {
		h.writeDomainError(w, "Failed to delete debt", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := accounts.ListGoals(r.Context(), h.Store, ownerParam(r))
	if err != nil {
		h.writeDomainError(w, "Failed to list goals", err)
		return
	}
	out := make([]GoalDTO, 0, len(goals))
	for _, g := range goals {
		out = append(out, toGoalDTO(g))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateGoal(w http.ResponseWriter, r *http.Request) {
	var req GoalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	goal, err := accounts.AddGoal(r.Context(), h.Store, ownerParam(r), req.input(), h.Now())
	if err != nil {
		h.writeDomainError(w, "Failed to add goal", err)
		return
	}
	writeJSON(w, http.StatusCreated, toGoalDTO(goal))
}

func (h *Handler) DeleteGoal(w http.ResponseWriter, r *http.Request) {
	id := ledger.GoalID(chi.URLParam(r, "id"))
	if err := h.Store.DeleteGoal(r.Context(), ownerParam(r), id); err != nil {
		h.writeDomainError(w, "Failed to delete goal", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListIncome is the income view: income transactions only, oldest first.
func (h *Handler) ListIncome(w http.ResponseWriter, r *http.Request) {
	txs, err := accounts.ListIncome(r.Context(), h.Store, ownerParam(r))
	if err != nil {
		h.writeDomainError(w, "Failed to list income", err)
		return
	}
	out := make([]IncomeDTO, 0, len(txs))
	for _, t := range txs {
		out = append(out, IncomeDTO{ID: string(t.ID), Date: t.Date, Payee: t.Payee, Amount: t.Amount, Account: string(t.Account)})
	}
	writeJSON(w, http.StatusOK, out)
}
