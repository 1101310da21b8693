package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vnmchuo/agentboard-billing/internal/telemetry"
)

// Deps are the collaborators of a Service.
type Deps struct {
	Store    Store
	Usage    UsageSource
	Teams    TeamDirectory
	Payments PaymentSource
	Pricing  PricingTable
	Tracer   trace.Tracer
	Logger   *zap.Logger
	Metrics  *telemetry.Metrics
}

// Service runs the billing use cases over the upstream sources and the
// invoice store. It never retries a failed upstream call.
type Service struct {
	store    Store
	usage    UsageSource
	teams    TeamDirectory
	payments PaymentSource
	pricing  PricingTable
	tracer   trace.Tracer
	logger   *zap.Logger
	metrics  *telemetry.Metrics
}

func NewService(d Deps) *Service {
	return &Service{
		store:    d.Store,
		usage:    d.Usage,
		teams:    d.Teams,
		payments: d.Payments,
		pricing:  d.Pricing,
		tracer:   d.Tracer,
		logger:   d.Logger,
		metrics:  d.Metrics,
	}
}

type GenerateRequest struct {
	TeamID      string
	PeriodStart time.Time
	PeriodEnd   time.Time
	TaxRate     float64
	Notes       *string
}

func (s *Service) GenerateInvoice(ctx context.Context, req GenerateRequest) (*Invoice, error) {
	ctx, span := s.tracer.Start(ctx, "billing.generate_invoice")
	defer span.End()
	span.SetAttributes(attribute.String("team_id", req.TeamID))

	records, err := s.usage.ListSessions(ctx, req.TeamID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sessions: %w", s.upstreamFailed(span, "list_sessions", err))
	}

	inv, err := GenerateInvoice(records, GenerateParams{
		TeamID:      req.TeamID,
		TeamName:    s.teamName(ctx, req.TeamID),
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		TaxRate:     req.TaxRate,
		Pricing:     s.pricing,
		Notes:       req.Notes,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.store.Create(ctx, inv); err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.metrics.InvoicesGenerated.WithLabelValues("usage").Inc()
	span.SetAttributes(
		attribute.String("invoice_id", inv.ID),
		attribute.Int("line_items", len(inv.LineItems)),
	)
	s.logger.Info("invoice generated",
		zap.String("invoice_id", inv.ID),
		zap.String("team_id", inv.TeamID),
		zap.Int("sessions", inv.TotalSessions),
		zap.Float64("total_amount", inv.TotalAmount),
	)
	return inv, nil
}

// teamName resolves a display name, falling back to the id when the
// directory is unreachable or does not know the team.
func (s *Service) teamName(ctx context.Context, teamID string) string {
	teams, err := s.teams.Teams(ctx)
	if err != nil {
		s.metrics.UpstreamErrors.WithLabelValues("teams").Inc()
		s.logger.Warn("team lookup failed, using team id as name", zap.String("team_id", teamID), zap.Error(err))
		return teamID
	}
	for _, t := range teams {
		if t.ID == teamID {
			return t.Name
		}
	}
	return teamID
}

func (s *Service) Get(ctx context.Context, id string) (*Invoice, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter Filter) ([]*Invoice, error) {
	return s.store.List(ctx, filter)
}

// UpdateStatus applies a forward-only status change. Moving to the current
// status is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, id string, to Status) (*Invoice, error) {
	inv, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == to {
		return inv, nil
	}
	if err := ValidateTransition(inv.Status, to); err != nil {
		return nil, err
	}
	if err := s.store.UpdateStatus(ctx, id, inv.Status, to); err != nil {
		return nil, err
	}

	s.metrics.StatusTransitions.WithLabelValues(string(inv.Status), string(to)).Inc()
	s.logger.Info("invoice status updated",
		zap.String("invoice_id", id),
		zap.String("from", string(inv.Status)),
		zap.String("to", string(to)),
	)
	return s.store.Get(ctx, id)
}

// SessionCost is a single session priced with the configured table.
type SessionCost struct {
	SessionID    string  `json:"session_id"`
	TeamID       string  `json:"team_id"`
	AgentName    string  `json:"agent_name"`
	Model        string  `json:"model"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CachedTokens int64   `json:"cached_tokens"`
	Amount       float64 `json:"amount"`
}

func (s *Service) PriceSession(ctx context.Context, sessionID string) (*SessionCost, error) {
	r, err := s.usage.Session(ctx, sessionID)
	if err != nil {
		s.metrics.UpstreamErrors.WithLabelValues("get_session").Inc()
		return nil, fmt.Errorf("failed to fetch session: %w", asUpstream(err))
	}
	return &SessionCost{
		SessionID:    r.ID,
		TeamID:       r.TeamID,
		AgentName:    labelOrUnknown(r.AgentName),
		Model:        labelOrUnknown(r.Model),
		InputTokens:  r.InputTokens,
		OutputTokens: r.OutputTokens,
		CachedTokens: r.CachedTokens,
		Amount:       SessionAmount(r, s.pricing),
	}, nil
}

func (s *Service) InvoiceFromPayment(ctx context.Context, paymentID string) (*Invoice, error) {
	ctx, span := s.tracer.Start(ctx, "billing.invoice_from_payment")
	defer span.End()
	span.SetAttributes(attribute.String("payment_id", paymentID))

	p, err := s.payments.Payment(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payment: %w", s.upstreamFailed(span, "get_payment", err))
	}

	inv, err := InvoiceFromPayment(p)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := s.store.Create(ctx, inv); err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.metrics.InvoicesGenerated.WithLabelValues("payment").Inc()
	s.logger.Info("invoice created from payment",
		zap.String("invoice_id", inv.ID),
		zap.String("reference", p.Reference),
	)
	return inv, nil
}

func (s *Service) AddPayment(ctx context.Context, invoiceID, paymentID string) (*Invoice, error) {
	ctx, span := s.tracer.Start(ctx, "billing.add_payment")
	defer span.End()
	span.SetAttributes(
		attribute.String("invoice_id", invoiceID),
		attribute.String("payment_id", paymentID),
	)

	inv, err := s.store.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	p, err := s.payments.Payment(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payment: %w", s.upstreamFailed(span, "get_payment", err))
	}

	if err := AddPayment(inv, p); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	item := inv.LineItems[len(inv.LineItems)-1]
	if err := s.store.AddLineItem(ctx, inv.ID, &item); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return s.store.Get(ctx, inv.ID)
}

func (s *Service) Reconcile(ctx context.Context) (*Reconciliation, error) {
	ctx, span := s.tracer.Start(ctx, "billing.reconcile")
	defer span.End()

	payments, err := s.payments.CompletedPayments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch completed payments: %w", s.upstreamFailed(span, "list_completed_payments", err))
	}

	rec := Reconcile(payments)
	return &rec, nil
}

// Summary builds the billing rollup. A failed cost or team fetch only
// empties TopTeams; the invoice totals are still returned.
func (s *Service) Summary(ctx context.Context) (*BillingSummary, error) {
	ctx, span := s.tracer.Start(ctx, "billing.summary")
	defer span.End()

	invoices, err := s.store.List(ctx, Filter{})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	costs, teams, err := s.teamCosts(ctx)
	if err != nil {
		s.metrics.SummaryDegraded.Inc()
		span.AddEvent("top teams unavailable")
		s.logger.Warn("billing summary without top teams", zap.Error(err))
		costs, teams = nil, nil
	}

	summary := Summarize(invoices, costs, teams)
	return &summary, nil
}

func (s *Service) teamCosts(ctx context.Context) ([]TeamCost, []Team, error) {
	costs, err := s.teams.CostByTeam(ctx)
	if err != nil {
		s.metrics.UpstreamErrors.WithLabelValues("cost_by_team").Inc()
		return nil, nil, err
	}
	teams, err := s.teams.Teams(ctx)
	if err != nil {
		s.metrics.UpstreamErrors.WithLabelValues("teams").Inc()
		return nil, nil, err
	}
	return costs, teams, nil
}

func (s *Service) upstreamFailed(span trace.Span, operation string, err error) error {
	s.metrics.UpstreamErrors.WithLabelValues(operation).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, operation+" failed")
	return asUpstream(err)
}

// asUpstream tags errors from a collaborator that did not classify them.
func asUpstream(err error) error {
	if errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrMalformedInput) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
}
