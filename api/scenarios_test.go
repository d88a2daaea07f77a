package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListScenarios(t *testing.T) {
	s := newTestServer(t)

	rr := s.do("GET", "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	list := decode[[]ScenarioDTO](t, rr)
	var ids []string
	for _, sc := range list {
		ids = append(ids, sc.ID)
	}
	assert.Equal(t, []string{"monthly-bills", "subscriptions", "everyday-spending"}, ids)
}

func TestLoadScenario(t *testing.T) {
	tests := []struct {
		id           string
		rules        int
		transactions int
		upcoming     int
		total        string
	}{
		{"monthly-bills", 3, 0, 36, "0"},
		{"subscriptions", 3, 0, 36, "0"},
		{"everyday-spending", 1, 5, 13, "3083.6"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			s := newTestServer(t)

			rr := s.do("POST", "/api/scenarios/load", map[string]string{"scenario_id": tt.id, "owner_id": "demo"})
			require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
			res := decode[ScenarioResult](t, rr)
			assert.Equal(t, "demo", res.OwnerID)
			assert.Equal(t, tt.rules, res.Rules)
			assert.Equal(t, tt.transactions, res.Transactions)
			assert.Equal(t, tt.upcoming, res.Upcoming)

			rr = s.do("GET", "/api/owners/demo/occurrences", nil)
			assert.Len(t, decode[[]OccurrenceDTO](t, rr), tt.upcoming)
			assert.Equal(t, tt.total, s.totalBalance("/api/owners/demo"))

			rr = s.do("GET", "/api/owners/demo/accounts/verify", nil)
			assert.True(t, decode[VerifyResponse](t, rr).Consistent)
		})
	}
}

func TestLoadScenario_MonthEndRentClamps(t *testing.T) {
	s := newTestServer(t)

	rr := s.do("POST", "/api/scenarios/load", map[string]string{"scenario_id": "monthly-bills", "owner_id": "demo"})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = s.do("GET", "/api/owners/demo/occurrences", nil)
	var rent []string
	for _, o := range decode[[]OccurrenceDTO](t, rr) {
		if o.Payee == "Rent" {
			rent = append(rent, o.Date.String())
		}
	}
	require.Len(t, rent, 12)
	assert.Equal(t, []string{"2025-01-31", "2025-02-28", "2025-03-28"}, rent[:3])
}

func TestLoadScenario_Errors(t *testing.T) {
	s := newTestServer(t)

	rr := s.do("POST", "/api/scenarios/load", map[string]string{"scenario_id": "lottery-win"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	s.createOwner()
	rr = s.do("POST", "/api/scenarios/load", map[string]string{"scenario_id": "subscriptions", "owner_id": "owner-1"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = s.do("POST", "/api/scenarios/load", map[string]string{"scenario_id": "subscriptions"})
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.NotEmpty(t, decode[ScenarioResult](t, rr).OwnerID)
}
