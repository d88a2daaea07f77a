package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/finance-ledger/accounts"
	"github.com/warp/finance-ledger/recurrence"
	"github.com/warp/finance-ledger/store/sqlite"
)

var epoch = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type testServer struct {
	t      *testing.T
	router http.Handler
	h      *Handler
	store  *sqlite.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	now := func() time.Time { return epoch }

	m := recurrence.NewMaterializer(store)
	m.Now = now
	rules := recurrence.NewService(store, m)
	rules.Now = now
	balances := accounts.NewBalanceUpdater(store)
	balances.Now = now
	sched := recurrence.NewScheduler(store, m, fixedClock{epoch})

	h := NewHandler(store, rules, balances, sched)
	h.Now = now
	return &testServer{t: t, router: NewRouter(h, nil), h: h, store: store}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(s.t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

// createOwner opens the ledger "owner-1" and returns its base path.
func (s *testServer) createOwner() string {
	s.t.Helper()
	rr := s.do("POST", "/api/owners", map[string]string{"id": "owner-1", "name": "Ada"})
	require.Equal(s.t, http.StatusCreated, rr.Code, rr.Body.String())
	return "/api/owners/owner-1"
}

func (s *testServer) totalBalance(base string) string {
	s.t.Helper()
	rr := s.do("GET", base+"/overview", nil)
	require.Equal(s.t, http.StatusOK, rr.Code, rr.Body.String())
	return decode[OverviewDTO](s.t, rr).TotalBalance.String()
}

// =============================================================================
// OWNERS & ACCOUNTS
// =============================================================================

func TestCreateOwner(t *testing.T) {
	s := newTestServer(t)
	base := s.createOwner()

	rr := s.do("GET", base, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	owner := decode[OwnerDTO](t, rr)
	assert.Equal(t, "Ada", owner.Name)

	rr = s.do("GET", base+"/accounts", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	accts := decode[[]AccountDTO](t, rr)
	require.Len(t, accts, 1)
	assert.Equal(t, "cash", accts[0].Kind)
	assert.Equal(t, "0", accts[0].Balance.String())
}

func TestCreateOwner_ExistingIDIsConflict(t *testing.T) {
	s := newTestServer(t)
	base := s.createOwner()

	rr := s.do("POST", "/api/owners", map[string]string{"id": "owner-1", "name": "Mallory"})
	require.Equal(t, http.StatusConflict, rr.Code, rr.Body.String())
	assert.Contains(t, decode[ErrorResponse](t, rr).Details, "owner already exists")

	rr = s.do("GET", base, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Ada", decode[OwnerDTO](t, rr).Name)
}

func TestCreateOwner_Validation(t *testing.T) {
	s := newTestServer(t)

	rr := s.do("POST", "/api/owners", map[string]string{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do("POST", "/api/owners", "{not json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid request body", decode[ErrorResponse](t, rr).Error)
}

func TestUnknownOwner(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{
		"/api/owners/ghost",
		"/api/owners/ghost/overview",
		"/api/owners/ghost/accounts",
		"/api/owners/ghost/transactions",
		"/api/owners/ghost/rules",
		"/api/owners/ghost/occurrences",
		"/api/owners/ghost/debts",
		"/api/owners/ghost/goals",
		"/api/owners/ghost/income",
	} {
		rr := s.do("GET", path, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code, path)
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestTransactions_BalanceFollowsCreateEditDelete(t *testing.T) {
	s := newTestServer(t)
	base := s.createOwner()

	// GIVEN: an expense of 100 on cash
	rr := s.do("POST", base+"/transactions", map[string]any{
		"date": "2025-01-05", "payee": "Grocer", "amount": "100", "type": "expense", "category": "other",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	tx := decode[TransactionDTO](t, rr)
	assert.Equal(t, "cash", tx.Account)
	assert.Equal(t, "-100", s.totalBalance(base))

	// WHEN: it is edited into an income of 40
	rr = s.do("PUT", base+"/transactions/"+tx.ID, map[string]any{
		"date": "2025-01-05", "payee": "Refund", "amount": 40, "type": "income",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// THEN: the balance holds only the new effect
	assert.Equal(t, "40", s.totalBalance(base))

	rr = s.do("DELETE", base+"/transactions/"+tx.ID, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "0", s.totalBalance(base))

	rr = s.do("GET", base+"/accounts/verify", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decode[VerifyResponse](t, rr).Consistent)
}

func TestTransactions_Validation(t *testing.T) {
	s := newTestServer(t)
	base := s.createOwner()

	tests := []struct {
		name string
		body map[string]any
	}{
		{"negative amount", map[string]any{"date": "2025-01-05", "payee": "X", "amount": "-1", "type": "expense", "category": "bill"}},
		{"income with category", map[string]any{"date": "2025-01-05", "payee": "X", "amount": "1", "type": "income", "category": "bill"}},
		{"unknown account", map[string]any{"date": "2025-01-05", "payee": "X", "amount": "1", "type": "income", "account": "crypto"}},
		{"missing date", map[string]any{"payee": "X", "amount": "1", "type": "income"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := s.do("POST", base+"/transactions", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
		})
	}

	rr := s.do("POST", base+"/transactions", map[string]any{"date": "05/01/2025"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	assert.Equal(t, "0", s.totalBalance(base))

	rr = s.do("DELETE", base+"/transactions/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// =============================================================================
// RULES
// =============================================================================

func TestRules_CreateMaterializesInitialBatch(t *testing.T) {
	s := newTestServer(t)
	base := s.createOwner()

	rr := s.do("POST", base+"/rules", map[string]any{
		"start_date": "2025-01-31", "payee": "Rent", "amount": "1500", "category": "bill", "cadence": "monthly",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	resp := decode[CreateRuleResponse](t, rr)

	require.Len(t, resp.Created, recurrence.DefaultInitialBatch)
	assert.Equal(t, "2025-01-31", resp.Created[0].Date.String())
	assert.Equal(t, "2025-02-28", resp.Created[1].Date.String())
	assert.Empty(t, resp.InitialBatchError)
	require.NotNil(t, resp.Rule.LastGenerated)

	// A second materialization within the default horizon adds nothing.
	rr = s.do("POST", base+"/rules/"+resp.Rule.ID+"/materialize", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Empty(t, decode[MaterializeResponse](t, rr).Created)

	rr = s.do("GET", base+"/rules/"+resp.Rule.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, resp.Rule.LastGenerated.String(), decode[RuleDTO](t, rr).LastGenerated.String())
}

func TestRules_MaterializeWithHorizon(t *testing.T) {
	s := newTestServer(t)
	base := s.createOwner()

	rr := s.do("POST", base+"/rules", map[string]any{
		"start_date": "2025-01-01", "payee": "Gym", "amount": 30, "category": "subscription", "cadence": "weekly",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	rule := decode[CreateRuleResponse](t, rr).Rule

	// 12 weekly dates end on 2025-03-19; a 100 day horizon reaches 2025-04-11.
	rr = s.do("POST", base+"/rules/"+rule.ID+"/materialize", map[string]int{"horizon_days": 100})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decode[MaterializeResponse](t, rr)
	assert.Len(t, res.Created, 3)
	assert.Equal(t, "2025-04-09", res.Watermark.String())

	rr = s.do("POST", base+"/rules/"+rule.ID+"/materialize", map[string]int{"horizon_days": -1})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRules_Validation(t *testing.T) {
	s := newTestServer(t)
	base := s.createOwner()

	tests := []struct {
		name string
		body map[string]any
	}{
		{"bad cadence", map[string]any{"start_date": "2025-01-01", "payee": "X", "amount": "1", "category": "bill", "cadence": "fortnightly"}},
		{"zero interval", map[string]any{"start_date": "2025-01-01", "payee": "X", "amount": "1", "category": "bill", "cadence": "weekly", "interval": 0}},
		{"zero count", map[string]any{"start_date": "2025-01-01", "payee": "X", "amount": "1", "category": "bill", "cadence": "weekly", "count": 0}},
		{"end before start", map[string]any{"start_date": "2025-02-01", "payee": "X", "amount": "1", "category": "bill", "cadence": "weekly", "end_date": "2025-01-01"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := s.do("POST", base+"/rules", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
		})
	}

	rr := s.do("GET", base+"/rules", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[[]RuleDTO](t, rr))

	rr = s.do("POST", "/api/owners/ghost/rules", tests[0].body)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do("POST", "/api/owners/ghost/rules", map[string]any{
		"start_date": "2025-01-01", "payee": "X", "amount": "1", "category": "bill", "cadence": "weekly",
	})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRules_DeleteKeepsOccurrences(t *testing.T) {
	s := newTestServer(t)
	base := s.createOwner()

	rr := s.do("POST", base+"/rules", map[string]any{
		"start_date": "2025-01-01", "payee": "Netflix", "amount": "15.99", "category": "subscription", "cadence": "monthly", "count": 3,
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	rule := decode[CreateRuleResponse](t, rr).Rule

	rr = s.do("DELETE", base+"/rules/"+rule.ID, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = s.do("GET", base+"/rules/"+rule.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do("GET", base+"/occurrences", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	occs := decode[[]OccurrenceDTO](t, rr)
	require.Len(t, occs, 3)
	assert.True(t, occs[0].Recurring)
	assert.Equal(t, "15.99", occs[0].Amount.String())

	rr = s.do("POST", base+"/rules/"+rule.ID+"/materialize", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// =============================================================================
// UPCOMING CHARGES
// =============================================================================

func TestOccurrences_DuplicateIsConflict(t *testing.T) {
	s := newTestServer(t)
	base := s.createOwner()

	charge := map[string]any{"date": "2025-03-10", "payee": "Dentist", "amount": "80", "category": "other"}
	rr := s.do("POST", base+"/occurrences", charge)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	first := decode[OccurrenceDTO](t, rr)
	assert.False(t, first.Recurring)

	rr = s.do("POST", base+"/occurrences", charge)
	require.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, `an upcoming charge for "Dentist" on 2025-03-10 already exists`, decode[ErrorResponse](t, rr).Error)

	// Editing onto an existing key conflicts too.
	charge["date"] = "2025-03-11"
	rr = s.do("POST", base+"/occurrences", charge)
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = s.do("PUT", base+"/occurrences/"+first.ID, charge)
	assert.Equal(t, http.StatusConflict, rr.Code)

	charge["date"] = "2025-04-01"
	rr = s.do("PUT", base+"/occurrences/"+first.ID, charge)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "2025-04-01", decode[OccurrenceDTO](t, rr).Date.String())

	rr = s.do("DELETE", base+"/occurrences/"+first.ID, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = s.do("DELETE", base+"/occurrences/"+first.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestOccurrences_ManualDoesNotBlockGenerated(t *testing.T) {
	s := newTestServer(t)
	base := s.createOwner()

	rr := s.do("POST", base+"/occurrences", map[string]any{
		"date": "2025-01-01", "payee": "Rent", "amount": "1500", "category": "bill",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = s.do("POST", base+"/rules", map[string]any{
		"start_date": "2025-01-01", "payee": "Rent", "amount": "1500", "category": "bill", "cadence": "monthly", "count": 1,
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Len(t, decode[CreateRuleResponse](t, rr).Created, 1)

	rr = s.do("GET", base+"/occurrences", nil)
	assert.Len(t, decode[[]OccurrenceDTO](t, rr), 2)
}

// =============================================================================
// ADMIN
// =============================================================================

func TestSweep(t *testing.T) {
	s := newTestServer(t)
	base := s.createOwner()

	rr := s.do("GET", "/api/admin/sweep", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	status := decode[SweepStatusDTO](t, rr)
	assert.Nil(t, status.Last)
	assert.Equal(t, 0, status.Sweeps)
	assert.True(t, epoch.Equal(status.StartedAt))

	rr = s.do("POST", base+"/rules", map[string]any{
		"start_date": "2025-01-01", "payee": "Gym", "amount": "30", "category": "subscription", "cadence": "weekly", "count": 20,
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	// 12 already exist; the 90 day horizon (2025-04-01) allows one more week.
	rr = s.do("POST", "/api/admin/sweep", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	report := decode[SweepReportDTO](t, rr)
	assert.Equal(t, 1, report.Rules)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, "2025-04-01", report.Horizon.String())

	rr = s.do("GET", "/api/admin/sweep", nil)
	status = decode[SweepStatusDTO](t, rr)
	assert.Equal(t, 1, status.Sweeps)
	require.NotNil(t, status.Last)
	assert.Equal(t, 1, status.Last.Created)
}

func TestSweep_NoScheduler(t *testing.T) {
	s := newTestServer(t)
	s.h.Scheduler = nil

	rr := s.do("POST", "/api/admin/sweep", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rr := s.do("GET", "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestHealthz_StoreDown(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.store.Close())

	rr := s.do("GET", "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "Store unavailable", decode[ErrorResponse](t, rr).Error)
}
