package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnmchuo/agentboard-billing/internal/billing"
)

func newCoreServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestListSessions(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`[
			{"session_id":"sess_001","team_id":"team_eng","agent_name":"code-reviewer","model":"gpt-4o",
			 "input_tokens":5000,"output_tokens":2000,"cached_tokens":500,"started_at":"2025-01-15T10:00:00Z"},
			{"session_id":"sess_002","team_id":"team_eng","agent_name":"bug-fixer","model":"gpt-4o",
			 "input_tokens":3000,"output_tokens":1000,"cached_tokens":200,"started_at":"2025-01-15T14:00:00"}
		]`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", time.Second)
	records, err := c.ListSessions(context.Background(), "team_eng", "completed")
	require.NoError(t, err)

	assert.Equal(t, "status=completed&team_id=team_eng", gotQuery)
	require.Len(t, records, 2)
	assert.Equal(t, "sess_001", records[0].ID)
	assert.Equal(t, int64(5000), records[0].InputTokens)
	assert.Equal(t, time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC), records[0].StartedAt.UTC())
	assert.Equal(t, time.Date(2025, 1, 15, 14, 0, 0, 0, time.UTC), records[1].StartedAt)
}

func TestListSessions_MissingStartedAt(t *testing.T) {
	srv := newCoreServer(t, map[string]string{
		"/api/v1/sessions": `[{"session_id":"sess_001","agent_name":"a","model":"m"}]`,
	})

	_, err := New(srv.URL, time.Second).ListSessions(context.Background(), "team_eng", "")
	assert.ErrorIs(t, err, billing.ErrMissingField)
	assert.ErrorIs(t, err, billing.ErrMalformedInput)
}

func TestListSessions_BadTimestamp(t *testing.T) {
	srv := newCoreServer(t, map[string]string{
		"/api/v1/sessions": `[{"session_id":"sess_001","started_at":"yesterday"}]`,
	})

	_, err := New(srv.URL, time.Second).ListSessions(context.Background(), "", "")
	assert.ErrorIs(t, err, billing.ErrMalformedInput)
}

func TestSession(t *testing.T) {
	srv := newCoreServer(t, map[string]string{
		"/api/v1/sessions/sess_001": `{"session_id":"sess_001","team_id":"team_eng","agent_name":"code-reviewer",
			"model":"gpt-4o","input_tokens":5000,"output_tokens":2000,"cached_tokens":500,
			"started_at":"2025-01-15T10:00:00.123456+02:00"}`,
	})
	c := New(srv.URL, time.Second)

	r, err := c.Session(context.Background(), "sess_001")
	require.NoError(t, err)
	assert.Equal(t, "code-reviewer", r.AgentName)
	assert.Equal(t, time.Date(2025, 1, 15, 8, 0, 0, 123456000, time.UTC), r.StartedAt.UTC())

	_, err = c.Session(context.Background(), "sess_404")
	assert.ErrorIs(t, err, billing.ErrUpstreamUnavailable)
}

func TestTeamsAndCosts(t *testing.T) {
	srv := newCoreServer(t, map[string]string{
		"/api/v1/teams":                  `[{"id":"team_eng","name":"Engineering","plan":"pro","monthly_budget":5000}]`,
		"/api/v1/analytics/cost-by-team": `[{"team_id":"team_eng","total_sessions":2,"total_cost":250.5}]`,
	})
	c := New(srv.URL, time.Second)

	teams, err := c.Teams(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []billing.Team{{ID: "team_eng", Name: "Engineering", MonthlyBudget: 5000}}, teams)

	costs, err := c.CostByTeam(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []billing.TeamCost{{TeamID: "team_eng", TotalSessions: 2, TotalCost: 250.5}}, costs)
}

func TestTeams_NameFallback(t *testing.T) {
	srv := newCoreServer(t, map[string]string{
		"/api/v1/teams": `[{"id":"team_ops","monthly_budget":100},{"id":"team_qa","name":""}]`,
	})

	teams, err := New(srv.URL, time.Second).Teams(context.Background())
	require.NoError(t, err)
	require.Len(t, teams, 2)
	assert.Equal(t, "team_ops", teams[0].Name)
	assert.Equal(t, "", teams[1].Name)
}

func TestTeams_MissingID(t *testing.T) {
	srv := newCoreServer(t, map[string]string{
		"/api/v1/teams": `[{"name":"Nameless"}]`,
	})

	_, err := New(srv.URL, time.Second).Teams(context.Background())
	assert.ErrorIs(t, err, billing.ErrMissingField)
}
