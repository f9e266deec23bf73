// Package memory provides an in-process store.Store. It is safe for
// concurrent use and enforces the same uniqueness and conditional-update
// rules as the SQL backends.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/xchpay"
	"github.com/xraph/xchpay/id"
	"github.com/xraph/xchpay/invoice"
	"github.com/xraph/xchpay/payment"
	"github.com/xraph/xchpay/store"
	"github.com/xraph/xchpay/subscription"
	"github.com/xraph/xchpay/types"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	subscriptions map[string]*subscription.Subscription
	invoices      map[string]*invoice.Invoice

	// payments keyed by invoice id, then coin name
	payments map[string]map[string]*payment.Payment
}

func New() *Store {
	return &Store{
		subscriptions: make(map[string]*subscription.Subscription),
		invoices:      make(map[string]*invoice.Invoice),
		payments:      make(map[string]map[string]*payment.Payment),
	}
}

// Subscription Store implementation
func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID.String()]; exists {
		return xchpay.ErrAlreadyExists
	}
	cp := *sub
	s.subscriptions[sub.ID.String()] = &cp
	return nil
}

func (s *Store) GetSubscription(_ context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[subID.String()]; ok {
		cp := *sub
		return &cp, nil
	}
	return nil, xchpay.ErrSubscriptionNotFound
}

func (s *Store) ListSubscriptions(_ context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if opts.UserID != "" && sub.UserID != opts.UserID {
			continue
		}
		if opts.Status != "" && sub.Status != opts.Status {
			continue
		}
		if !opts.EndFrom.IsZero() && sub.EndDate.Before(opts.EndFrom) {
			continue
		}
		if !opts.EndBefore.IsZero() && !sub.EndDate.Before(opts.EndBefore) {
			continue
		}
		cp := *sub
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].EndDate.Equal(result[j].EndDate) {
			return result[i].EndDate.Before(result[j].EndDate)
		}
		return result[i].ID.String() < result[j].ID.String()
	})
	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID.String()]; !exists {
		return xchpay.ErrSubscriptionNotFound
	}
	cp := *sub
	s.subscriptions[sub.ID.String()] = &cp
	return nil
}

func (s *Store) SetSubscriptionStatus(_ context.Context, subID id.SubscriptionID, from, to subscription.Status, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subID.String()]
	if !ok {
		return false, xchpay.ErrSubscriptionNotFound
	}
	if sub.Status != from {
		return false, nil
	}
	sub.Status = to
	sub.TouchAt(at)
	return true, nil
}

// Invoice Store implementation
func (s *Store) CreateInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invoices[inv.ID.String()]; exists {
		return xchpay.ErrAlreadyExists
	}
	s.invoices[inv.ID.String()] = cloneInvoice(inv)
	return nil
}

func (s *Store) GetInvoice(_ context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if inv, ok := s.invoices[invID.String()]; ok {
		return cloneInvoice(inv), nil
	}
	return nil, xchpay.ErrInvoiceNotFound
}

func (s *Store) ListInvoices(_ context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*invoice.Invoice, 0)
	for _, inv := range s.invoices {
		if !opts.SubscriptionID.IsNil() && inv.SubscriptionID.String() != opts.SubscriptionID.String() {
			continue
		}
		if opts.Status != "" && inv.Status != opts.Status {
			continue
		}
		if !opts.IssuedFrom.IsZero() && inv.IssueDate.Before(opts.IssuedFrom) {
			continue
		}
		result = append(result, cloneInvoice(inv))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].IssueDate.Equal(result[j].IssueDate) {
			return result[i].IssueDate.Before(result[j].IssueDate)
		}
		return result[i].ID.String() < result[j].ID.String()
	})
	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) SyncAmountPaid(_ context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[invID.String()]
	if !ok {
		return nil, xchpay.ErrInvoiceNotFound
	}
	var total int64
	for _, p := range s.payments[invID.String()] {
		total += p.Amount.Amount
	}
	if inv.AmountPaid.Amount != total {
		inv.AmountPaid = types.Money{Amount: total, Currency: inv.TotalAmountDue.Currency}
		inv.Touch()
	}
	return cloneInvoice(inv), nil
}

func (s *Store) MarkInvoicePaid(_ context.Context, invID id.InvoiceID, paidAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[invID.String()]
	if !ok {
		return xchpay.ErrInvoiceNotFound
	}
	if inv.Status != invoice.StatusUnpaid {
		return xchpay.ErrInvoicePaid
	}
	at := paidAt.UTC()
	inv.Status = invoice.StatusPaid
	inv.PaidAt = &at
	inv.TouchAt(at)
	return nil
}

// Payment Store implementation
func (s *Store) RecordPayments(_ context.Context, payments []*payment.Payment) ([]*payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := make([]*payment.Payment, 0, len(payments))
	for _, p := range payments {
		byCoin, ok := s.payments[p.InvoiceID.String()]
		if !ok {
			byCoin = make(map[string]*payment.Payment)
			s.payments[p.InvoiceID.String()] = byCoin
		}
		if _, dup := byCoin[p.CoinName]; dup {
			continue
		}
		cp := *p
		byCoin[p.CoinName] = &cp
		inserted = append(inserted, p)
	}
	return inserted, nil
}

func (s *Store) ListPayments(_ context.Context, invID id.InvoiceID, opts payment.ListOpts) ([]*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*payment.Payment, 0)
	for _, p := range s.payments[invID.String()] {
		cp := *p
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ConfirmedAtHeight != result[j].ConfirmedAtHeight {
			return result[i].ConfirmedAtHeight < result[j].ConfirmedAtHeight
		}
		return result[i].CoinName < result[j].CoinName
	})
	return page(result, opts.Offset, opts.Limit), nil
}

// Store management
func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	return nil // Always available
}

func (s *Store) Close() error {
	return nil // Nothing to close
}

// Helper functions
func cloneInvoice(inv *invoice.Invoice) *invoice.Invoice {
	cp := *inv
	if inv.PaidAt != nil {
		t := *inv.PaidAt
		cp.PaidAt = &t
	}
	return &cp
}

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
