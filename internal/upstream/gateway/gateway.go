// Package gateway is the api-core client: agent sessions, teams and
// per-team cost analytics.
package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/vnmchuo/agentboard-billing/internal/billing"
	"github.com/vnmchuo/agentboard-billing/internal/upstream"
)

const apiPrefix = "/api/v1"

type Client struct {
	api *upstream.Client
}

type sessionPayload struct {
	SessionID    string `json:"session_id"`
	TeamID       string `json:"team_id"`
	AgentName    string `json:"agent_name"`
	Model        string `json:"model"`
	Status       string `json:"status"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	CachedTokens int64  `json:"cached_tokens"`
	StartedAt    string `json:"started_at"`
}

type teamPayload struct {
	ID            string  `json:"id"`
	Name          *string `json:"name"`
	Plan          string  `json:"plan"`
	MonthlyBudget float64 `json:"monthly_budget"`
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{api: upstream.NewClient("api-core", strings.TrimRight(baseURL, "/"), timeout)}
}

func (c *Client) ListSessions(ctx context.Context, teamID, status string) ([]billing.UsageRecord, error) {
	q := url.Values{}
	if teamID != "" {
		q.Set("team_id", teamID)
	}
	if status != "" {
		q.Set("status", status)
	}

	var payload []sessionPayload
	if err := c.api.GetJSON(ctx, apiPrefix+"/sessions", q, &payload); err != nil {
		return nil, err
	}

	records := make([]billing.UsageRecord, 0, len(payload))
	for i, s := range payload {
		r, err := s.toRecord()
		if err != nil {
			return nil, fmt.Errorf("session %d: %w", i, err)
		}
		records = append(records, r)
	}
	return records, nil
}

func (c *Client) Session(ctx context.Context, id string) (billing.UsageRecord, error) {
	var payload sessionPayload
	if err := c.api.GetJSON(ctx, apiPrefix+"/sessions/"+url.PathEscape(id), nil, &payload); err != nil {
		return billing.UsageRecord{}, err
	}
	return payload.toRecord()
}

func (c *Client) Teams(ctx context.Context) ([]billing.Team, error) {
	var payload []teamPayload
	if err := c.api.GetJSON(ctx, apiPrefix+"/teams", nil, &payload); err != nil {
		return nil, err
	}

	teams := make([]billing.Team, 0, len(payload))
	for _, t := range payload {
		if t.ID == "" {
			return nil, fmt.Errorf("%w: team without id", billing.ErrMissingField)
		}
		// An absent name falls back to the id; an empty one is kept.
		name := t.ID
		if t.Name != nil {
			name = *t.Name
		}
		teams = append(teams, billing.Team{ID: t.ID, Name: name, MonthlyBudget: t.MonthlyBudget})
	}
	return teams, nil
}

func (c *Client) CostByTeam(ctx context.Context) ([]billing.TeamCost, error) {
	var costs []billing.TeamCost
	if err := c.api.GetJSON(ctx, apiPrefix+"/analytics/cost-by-team", nil, &costs); err != nil {
		return nil, err
	}
	return costs, nil
}

func (s sessionPayload) toRecord() (billing.UsageRecord, error) {
	if s.StartedAt == "" {
		return billing.UsageRecord{}, fmt.Errorf("%w %q", billing.ErrMissingField, "started_at")
	}
	started, err := parseTimestamp(s.StartedAt)
	if err != nil {
		return billing.UsageRecord{}, fmt.Errorf("%w: started_at %q", billing.ErrMalformedInput, s.StartedAt)
	}
	return billing.UsageRecord{
		ID:           s.SessionID,
		TeamID:       s.TeamID,
		AgentName:    s.AgentName,
		Model:        s.Model,
		InputTokens:  s.InputTokens,
		OutputTokens: s.OutputTokens,
		CachedTokens: s.CachedTokens,
		StartedAt:    started,
	}, nil
}

// parseTimestamp accepts RFC 3339 and offset-less ISO 8601, the latter read as UTC.
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.UTC)
}
