/*
handlers.go - HTTP API handlers for the finance ledger

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the accounts and recurrence packages.

ENDPOINTS:
  Owners:
    POST   /api/owners                          Create owner (+ cash account)
    GET    /api/owners/{ownerID}                Get owner
    GET    /api/owners/{ownerID}/overview       Total balance + accounts
    GET    /api/owners/{ownerID}/accounts       List accounts
    GET    /api/owners/{ownerID}/accounts/verify Recompute balances from transactions

  Transactions:
    GET    /api/owners/{ownerID}/transactions       List
    POST   /api/owners/{ownerID}/transactions       Record (adjusts balance)
    PUT    /api/owners/{ownerID}/transactions/{id}  Edit (reverse old, apply new)
    DELETE /api/owners/{ownerID}/transactions/{id}  Delete (reverse effect)

  Recurrence rules:
    GET    /api/owners/{ownerID}/rules                   List
    POST   /api/owners/{ownerID}/rules                   Create + initial batch
    GET    /api/owners/{ownerID}/rules/{id}              Get
    DELETE /api/owners/{ownerID}/rules/{id}              Delete (occurrences stay)
    POST   /api/owners/{ownerID}/rules/{id}/materialize  Materialize now

  Upcoming charges:
    GET    /api/owners/{ownerID}/occurrences       List
    POST   /api/owners/{ownerID}/occurrences       Manual charge
    PUT    /api/owners/{ownerID}/occurrences/{id}  Edit
    DELETE /api/owners/{ownerID}/occurrences/{id}  Delete

  Scenarios:
    GET    /api/scenarios       List demo scenarios
    POST   /api/scenarios/load  Seed a new owner with a scenario

  Admin:
    POST   /api/admin/sweep   Run one sweep now
    GET    /api/admin/sweep   Scheduler state + last report

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Database access (reads)
  - Balances: transaction transitions
  - Rules: rule lifecycle and manual charges
  - Scheduler: sweep trigger and state (optional)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Owner, rule, transaction or occurrence not found
  - 409: Duplicate upcoming charge
  - 500: Internal errors

SECURITY NOTE:
  No authentication. The owner ID in the path is the ledger context.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/warp/finance-ledger/accounts"
	"github.com/warp/finance-ledger/ledger"
	"github.com/warp/finance-ledger/recurrence"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Store     ledger.TxStore
	Balances  *accounts.BalanceUpdater
	Rules     *recurrence.Service
	Scheduler *recurrence.Scheduler
	Logger    zerolog.Logger
	Now       func() time.Time
}

// NewHandler creates a handler. The scheduler may be nil, in which case the
// admin sweep endpoints answer 503.
func NewHandler(store ledger.TxStore, rules *recurrence.Service, balances *accounts.BalanceUpdater, scheduler *recurrence.Scheduler) *Handler {
	return &Handler{
		Store:     store,
		Balances:  balances,
		Rules:     rules,
		Scheduler: scheduler,
		Logger:    zerolog.Nop(),
		Now:       time.Now,
	}
}

func ownerParam(r *http.Request) ledger.OwnerID {
	return ledger.OwnerID(chi.URLParam(r, "ownerID"))
}

// ensureOwner writes a 404 and returns false when the owner does not exist.
func (h *Handler) ensureOwner(w http.ResponseWriter, r *http.Request) (ledger.OwnerID, bool) {
	ownerID := ownerParam(r)
	if _, err := h.Store.GetOwner(r.Context(), ownerID); err != nil {
		h.writeDomainError(w, "Owner not found", err)
		return "", false
	}
	return ownerID, true
}

// =============================================================================
// OWNERS & ACCOUNTS
// =============================================================================

func (h *Handler) CreateOwner(w http.ResponseWriter, r *http.Request) {
	var req CreateOwnerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	owner, err := accounts.OpenLedger(r.Context(), h.Store, ledger.OwnerID(req.ID), req.Name, h.Now())
	if err != nil {
		h.writeDomainError(w, "Failed to create owner", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOwnerDTO(owner))
}

func (h *Handler) GetOwner(w http.ResponseWriter, r *http.Request) {
	owner, err := h.Store.GetOwner(r.Context(), ownerParam(r))
	if err != nil {
		h.writeDomainError(w, "Owner not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toOwnerDTO(*owner))
}

func (h *Handler) GetOverview(w http.ResponseWriter, r *http.Request) {
	ov, err := accounts.GetOverview(r.Context(), h.Store, ownerParam(r))
	if err != nil {
		h.writeDomainError(w, "Failed to load overview", err)
		return
	}
	writeJSON(w, http.StatusOK, OverviewDTO{
		OwnerID:      string(ov.OwnerID),
		TotalBalance: ov.TotalBalance,
		Accounts:     toAccountDTOs(ov.Accounts),
	})
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ensureOwner(w, r)
	if !ok {
		return
	}
	accts, err := h.Store.ListAccounts(r.Context(), ownerID)
	if err != nil {
		h.writeDomainError(w, "Failed to list accounts", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTOs(accts))
}

func (h *Handler) VerifyAccounts(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ensureOwner(w, r)
	if !ok {
		return
	}
	mismatches, err := h.Balances.Verify(r.Context(), ownerID)
	if err != nil {
		h.writeDomainError(w, "Failed to verify balances", err)
		return
	}

	resp := VerifyResponse{Consistent: len(mismatches) == 0, Mismatches: []MismatchDTO{}}
	for _, m := range mismatches {
		resp.Mismatches = append(resp.Mismatches, MismatchDTO{Kind: string(m.Kind), Stored: m.Stored, Expected: m.Expected})
	}
	if !resp.Consistent {
		h.Logger.Warn().Str("owner_id", string(ownerID)).Int("mismatches", len(mismatches)).Msg("balance drift detected")
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ensureOwner(w, r)
	if !ok {
		return
	}
	txs, err := h.Store.ListTransactions(r.Context(), ownerID)
	if err != nil {
		h.writeDomainError(w, "Failed to list transactions", err)
		return
	}
	out := make([]TransactionDTO, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionDTO(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	tx, err := h.Balances.Create(r.Context(), ownerParam(r), req.input())
	if err != nil {
		h.writeDomainError(w, "Failed to record transaction", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	id := ledger.TransactionID(chi.URLParam(r, "id"))
	tx, err := h.Balances.Edit(r.Context(), ownerParam(r), id, req.input())
	if err != nil {
		h.writeDomainError(w, "Failed to update transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := ledger.TransactionID(chi.URLParam(r, "id"))
	if err := h.Balances.Delete(r.Context(), ownerParam(r), id); err != nil {
		h.writeDomainError(w, "Failed to delete transaction", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// RECURRENCE RULES
// =============================================================================

func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ensureOwner(w, r)
	if !ok {
		return
	}
	rules, err := h.Rules.ListRules(r.Context(), ownerID)
	if err != nil {
		h.writeDomainError(w, "Failed to list rules", err)
		return
	}
	out := make([]RuleDTO, 0, len(rules))
	for _, rule := range rules {
		out = append(out, toRuleDTO(rule))
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateRule saves the rule and materializes its first batch. A failed
// first batch is not fatal: the rule exists and the sweep retries it.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rule, res, err := h.Rules.CreateRule(r.Context(), ownerParam(r), req.request())
	if err != nil && rule.ID == "" {
		h.writeDomainError(w, "Failed to create rule", err)
		return
	}

	resp := CreateRuleResponse{Rule: toRuleDTO(rule), Created: toOccurrenceDTOs(res.Created)}
	if err != nil {
		h.Logger.Warn().Err(err).Str("rule_id", string(rule.ID)).Msg("initial materialization failed")
		resp.InitialBatchError = err.Error()
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	id := ledger.RuleID(chi.URLParam(r, "id"))
	rule, err := h.Rules.GetRule(r.Context(), ownerParam(r), id)
	if err != nil {
		h.writeDomainError(w, "Rule not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleDTO(*rule))
}

func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id := ledger.RuleID(chi.URLParam(r, "id"))
	if err := h.Rules.DeleteRule(r.Context(), ownerParam(r), id); err != nil {
		h.writeDomainError(w, "Failed to delete rule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MaterializeRule accepts an empty body; horizon_days defaults to the
// sweep horizon.
func (h *Handler) MaterializeRule(w http.ResponseWriter, r *http.Request) {
	var req MaterializeRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.HorizonDays < 0 {
		writeError(w, http.StatusBadRequest, "horizon_days must not be negative", nil)
		return
	}

	if req.HorizonDays == 0 {
		req.HorizonDays = recurrence.DefaultHorizonDays
	}

	id := ledger.RuleID(chi.URLParam(r, "id"))
	res, err := h.Rules.MaterializeThrough(r.Context(), ownerParam(r), id, req.HorizonDays)
	if err != nil {
		h.writeDomainError(w, "Failed to materialize rule", err)
		return
	}
	writeJSON(w, http.StatusOK, MaterializeResponse{
		RuleID:     string(res.RuleID),
		Created:    toOccurrenceDTOs(res.Created),
		Duplicates: res.Duplicates,
		Watermark:  res.Watermark,
	})
}

// =============================================================================
// UPCOMING CHARGES
// =============================================================================

func (h *Handler) ListOccurrences(w http.ResponseWriter, r *http.Request) {
	occs, err := h.Rules.ListCharges(r.Context(), ownerParam(r))
	if err != nil {
		h.writeDomainError(w, "Failed to list upcoming charges", err)
		return
	}
	writeJSON(w, http.StatusOK, toOccurrenceDTOs(occs))
}

func (h *Handler) CreateOccurrence(w http.ResponseWriter, r *http.Request) {
	var req OccurrenceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	occ, err := h.Rules.AddCharge(r.Context(), ownerParam(r), req.input())
	if err != nil {
		h.writeDomainError(w, "Failed to add upcoming charge", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOccurrenceDTO(occ))
}

func (h *Handler) UpdateOccurrence(w http.ResponseWriter, r *http.Request) {
	var req OccurrenceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	id := ledger.OccurrenceID(chi.URLParam(r, "id"))
	occ, err := h.Rules.EditCharge(r.Context(), ownerParam(r), id, req.input())
	if err != nil {
		h.writeDomainError(w, "Failed to update upcoming charge", err)
		return
	}
	writeJSON(w, http.StatusOK, toOccurrenceDTO(occ))
}

func (h *Handler) DeleteOccurrence(w http.ResponseWriter, r *http.Request) {
	id := ledger.OccurrenceID(chi.URLParam(r, "id"))
	if err := h.Rules.DeleteCharge(r.Context(), ownerParam(r), id); err != nil {
		h.writeDomainError(w, "Failed to delete upcoming charge", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADMIN
// =============================================================================

func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "Scheduler not configured", nil)
		return
	}
	report := h.Scheduler.Sweep(r.Context())
	writeJSON(w, http.StatusOK, toSweepReportDTO(report))
}

func (h *Handler) GetSweepStatus(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "Scheduler not configured", nil)
		return
	}

	status := SweepStatusDTO{
		Enabled:   h.Scheduler.Enabled,
		StartedAt: h.Scheduler.State.StartedAt(),
		Sweeps:    h.Scheduler.State.Sweeps(),
	}
	if at, report, ok := h.Scheduler.State.LastSweep(); ok {
		dto := toSweepReportDTO(report)
		status.LastSweep = &at
		status.Last = &dto
	}
	if h.Scheduler.Enabled {
		next := h.Scheduler.NextRunTime()
		status.NextRun = &next
	}
	writeJSON(w, http.StatusOK, status)
}

// =============================================================================
// HELPERS
// =============================================================================

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps ledger errors onto HTTP statuses. A duplicate
// charge answers with its own message so the client can show it as is.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	var dup *ledger.DuplicateOccurrenceError
	switch {
	case errors.As(err, &dup):
		writeError(w, http.StatusConflict, dup.Error(), nil)
	case ledger.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	default:
		h.Logger.Error().Err(err).Msg(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
