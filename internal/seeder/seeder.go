package seeder

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vnmchuo/agentboard-billing/internal/billing"
)

const (
	DemoTeamID   = "team_eng"
	DemoTeamName = "Engineering"
)

// DemoSessions are two gpt-4o sessions of the demo team in January 2025.
func DemoSessions() []billing.UsageRecord {
	return []billing.UsageRecord{
		{
			ID:           "sess_001",
			TeamID:       DemoTeamID,
			AgentName:    "code-reviewer",
			Model:        "gpt-4o",
			InputTokens:  5000,
			OutputTokens: 2000,
			CachedTokens: 500,
			StartedAt:    time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
		},
		{
			ID:           "sess_002",
			TeamID:       DemoTeamID,
			AgentName:    "bug-fixer",
			Model:        "gpt-4o",
			InputTokens:  3000,
			OutputTokens: 1000,
			CachedTokens: 200,
			StartedAt:    time.Date(2025, 1, 15, 14, 0, 0, 0, time.UTC),
		},
	}
}

// SeedDemoInvoice stores a January 2025 invoice for the demo team.
func SeedDemoInvoice(ctx context.Context, store billing.Store, pricing billing.PricingTable, logger *zap.Logger) (*billing.Invoice, error) {
	inv, err := billing.GenerateInvoice(DemoSessions(), billing.GenerateParams{
		TeamID:      DemoTeamID,
		TeamName:    DemoTeamName,
		PeriodStart: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC),
		TaxRate:     0.1,
		Pricing:     pricing,
	})
	if err != nil {
		logger.Warn("[Seeder] demo invoice not generated", zap.Error(err))
		return nil, err
	}

	if err := store.Create(ctx, inv); err != nil {
		logger.Warn("[Seeder] demo invoice not stored", zap.Error(err))
		return nil, err
	}
	logger.Info("[Seeder] demo invoice created",
		zap.String("invoice_id", inv.ID),
		zap.String("team_id", inv.TeamID),
		zap.Float64("total_amount", inv.TotalAmount),
	)
	return inv, nil
}
