package billing

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed schema.sql
var schemaSQL string

type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the invoice tables if they do not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

const invoiceColumns = `id, team_id, team_name, customer_name, period_start, period_end, total_sessions,
	total_input_tokens, total_output_tokens, total_cached_tokens, subtotal, tax_rate, tax_amount,
	total_amount, status, created_at, issued_at, notes`

func (s *PostgresStore) Create(ctx context.Context, inv *Invoice) error {
	insertInvoice := `
		INSERT INTO invoices (` + invoiceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, insertInvoice,
			inv.ID, inv.TeamID, inv.TeamName, inv.CustomerName, inv.PeriodStart, inv.PeriodEnd,
			inv.TotalSessions, inv.TotalInputTokens, inv.TotalOutputTokens, inv.TotalCachedTokens,
			inv.Subtotal, inv.TaxRate, inv.TaxAmount, inv.TotalAmount, string(inv.Status),
			inv.CreatedAt, inv.IssuedAt, inv.Notes,
		)
		if err != nil {
			return err
		}
		for i := range inv.LineItems {
			if err := insertLineItem(ctx, tx, inv.ID, &inv.LineItems[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

// inTx runs fn in a transaction, committing only when fn succeeds.
func (s *PostgresStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func insertLineItem(ctx context.Context, tx pgx.Tx, invoiceID string, item *LineItem) error {
	query := `
		INSERT INTO invoice_line_items (invoice_id, description, agent_name, model, session_count,
			input_tokens, output_tokens, cached_tokens, amount, payment_transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	return tx.QueryRow(ctx, query,
		invoiceID, item.Description, item.AgentName, item.Model, item.SessionCount,
		item.InputTokens, item.OutputTokens, item.CachedTokens, item.Amount, item.PaymentTransactionID,
	).Scan(&item.ID)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	inv, err := scanInvoice(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	if err := s.loadLineItems(ctx, []*Invoice{inv}); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]*Invoice, error) {
	var conds []string
	var args []any
	if filter.TeamID != "" {
		args = append(args, filter.TeamID)
		conds = append(conds, fmt.Sprintf("team_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	invoices := make([]*Invoice, 0)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoices: %w", err)
	}

	if err := s.loadLineItems(ctx, invoices); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, from, to Status) error {
	query := `
		UPDATE invoices
		SET status = $3::text,
			issued_at = CASE WHEN $3::text = 'issued' THEN COALESCE(issued_at, NOW()) ELSE issued_at END
		WHERE id = $1 AND status = $2
	`
	tag, err := s.db.Exec(ctx, query, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("failed to update invoice status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check invoice: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return fmt.Errorf("%w: invoice %s is no longer %s", ErrInvalidTransition, id, from)
}

func (s *PostgresStore) AddLineItem(ctx context.Context, id string, item *LineItem) error {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		// The increment runs in numeric so 100.1 + 200.2 is stored as 300.3.
		tag, err := tx.Exec(ctx,
			`UPDATE invoices
			 SET subtotal = subtotal::numeric + $2::float8::numeric,
			     total_amount = total_amount::numeric + $2::float8::numeric
			 WHERE id = $1`,
			id, item.Amount,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return insertLineItem(ctx, tx, id, item)
	})
	if errors.Is(err, ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to add line item: %w", err)
	}
	return nil
}

func (s *PostgresStore) loadLineItems(ctx context.Context, invoices []*Invoice) error {
	if len(invoices) == 0 {
		return nil
	}

	ids := make([]string, len(invoices))
	byID := make(map[string]*Invoice, len(invoices))
	for i, inv := range invoices {
		ids[i] = inv.ID
		byID[inv.ID] = inv
		inv.LineItems = make([]LineItem, 0)
	}

	query := `
		SELECT id, invoice_id, description, agent_name, model, session_count,
			input_tokens, output_tokens, cached_tokens, amount, payment_transaction_id
		FROM invoice_line_items
		WHERE invoice_id = ANY($1)
		ORDER BY id
	`
	rows, err := s.db.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("failed to query line items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item LineItem
		var invoiceID string
		err := rows.Scan(
			&item.ID, &invoiceID, &item.Description, &item.AgentName, &item.Model, &item.SessionCount,
			&item.InputTokens, &item.OutputTokens, &item.CachedTokens, &item.Amount, &item.PaymentTransactionID,
		)
		if err != nil {
			return fmt.Errorf("failed to scan line item: %w", err)
		}
		if inv, ok := byID[invoiceID]; ok {
			inv.LineItems = append(inv.LineItems, item)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating line items: %w", err)
	}
	return nil
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var status string
	err := row.Scan(
		&inv.ID, &inv.TeamID, &inv.TeamName, &inv.CustomerName, &inv.PeriodStart, &inv.PeriodEnd,
		&inv.TotalSessions, &inv.TotalInputTokens, &inv.TotalOutputTokens, &inv.TotalCachedTokens,
		&inv.Subtotal, &inv.TaxRate, &inv.TaxAmount, &inv.TotalAmount, &status,
		&inv.CreatedAt, &inv.IssuedAt, &inv.Notes,
	)
	if err != nil {
		return nil, err
	}
	inv.Status = Status(status)
	return &inv, nil
}
