package billing

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryStore keeps invoices in process memory. It backs local runs without
// a database and the package tests.
type MemoryStore struct {
	mu       sync.RWMutex
	invoices map[string]*Invoice
	nextItem int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{invoices: make(map[string]*Invoice)}
}

func (s *MemoryStore) Create(ctx context.Context, inv *Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.invoices[inv.ID]; ok {
		return fmt.Errorf("failed to create invoice: duplicate id %s", inv.ID)
	}
	for i := range inv.LineItems {
		s.nextItem++
		inv.LineItems[i].ID = s.nextItem
	}
	s.invoices[inv.ID] = cloneInvoice(inv)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneInvoice(inv), nil
}

func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]*Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Invoice, 0, len(s.invoices))
	for _, inv := range s.invoices {
		if filter.TeamID != "" && inv.TeamID != filter.TeamID {
			continue
		}
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		out = append(out, cloneInvoice(inv))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, from, to Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok {
		return ErrNotFound
	}
	if inv.Status != from {
		return fmt.Errorf("%w: invoice %s is %s, not %s", ErrInvalidTransition, id, inv.Status, from)
	}
	inv.Status = to
	if to == StatusIssued && inv.IssuedAt == nil {
		now := timeNow()
		inv.IssuedAt = &now
	}
	return nil
}

func (s *MemoryStore) AddLineItem(ctx context.Context, id string, item *LineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok {
		return ErrNotFound
	}
	s.nextItem++
	item.ID = s.nextItem
	amount := decimal.NewFromFloat(item.Amount)
	inv.LineItems = append(inv.LineItems, *item)
	inv.Subtotal = decimal.NewFromFloat(inv.Subtotal).Add(amount).InexactFloat64()
	inv.TotalAmount = decimal.NewFromFloat(inv.TotalAmount).Add(amount).InexactFloat64()
	return nil
}

func cloneInvoice(inv *Invoice) *Invoice {
	c := *inv
	c.LineItems = append([]LineItem(nil), inv.LineItems...)
	if inv.IssuedAt != nil {
		t := *inv.IssuedAt
		c.IssuedAt = &t
	}
	if inv.Notes != nil {
		n := *inv.Notes
		c.Notes = &n
	}
	return &c
}
