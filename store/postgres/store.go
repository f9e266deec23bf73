package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate" // registers the postgres migration executor
	"github.com/xraph/grove/migrate"

	"github.com/xraph/xchpay"
	"github.com/xraph/xchpay/id"
	"github.com/xraph/xchpay/invoice"
	"github.com/xraph/xchpay/payment"
	xchstore "github.com/xraph/xchpay/store"
	"github.com/xraph/xchpay/subscription"
)

// compile-time interface check
var _ xchstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("xchpay/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("xchpay/postgres: %w: %w", xchpay.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m, err := toSubscriptionModel(sub)
	if err != nil {
		return fmt.Errorf("xchpay/postgres: create subscription: %w", err)
	}
	if _, err := s.pg.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("xchpay/postgres: create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", subID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, xchpay.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("xchpay/postgres: get subscription: %w", err)
	}
	return fromSubscriptionModel(m)
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.UserID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("user_id = $%d", argIdx), opts.UserID)
	}
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	if !opts.EndFrom.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("end_date >= $%d", argIdx), opts.EndFrom)
	}
	if !opts.EndBefore.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("end_date < $%d", argIdx), opts.EndBefore)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("end_date ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("xchpay/postgres: list subscriptions: %w", err)
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m, err := toSubscriptionModel(sub)
	if err != nil {
		return fmt.Errorf("xchpay/postgres: update subscription: %w", err)
	}
	m.UpdatedAt = now()
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("xchpay/postgres: update subscription: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return xchpay.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) SetSubscriptionStatus(ctx context.Context, subID id.SubscriptionID, from, to subscription.Status, at time.Time) (bool, error) {
	res, err := s.pg.NewUpdate((*subscriptionModel)(nil)).
		Set("status = $1", string(to)).
		Set("updated_at = $2", at.UTC()).
		Where("id = $3", subID.String()).
		Where("status = $4", string(from)).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("xchpay/postgres: set subscription status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows > 0 {
		return true, nil
	}

	// Distinguish a lost guard from a missing row.
	if _, err := s.GetSubscription(ctx, subID); err != nil {
		return false, err
	}
	return false, nil
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	m := toInvoiceModel(inv)
	if _, err := s.pg.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("xchpay/postgres: create invoice: %w", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	m := new(invoiceModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", invID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, xchpay.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("xchpay/postgres: get invoice: %w", err)
	}
	return fromInvoiceModel(m)
}

func (s *Store) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var models []invoiceModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if !opts.SubscriptionID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("subscription_id = $%d", argIdx), opts.SubscriptionID.String())
	}
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	if !opts.IssuedFrom.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("issue_date >= $%d", argIdx), opts.IssuedFrom)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("issue_date ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("xchpay/postgres: list invoices: %w", err)
	}

	result := make([]*invoice.Invoice, len(models))
	for i := range models {
		inv, err := fromInvoiceModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = inv
	}
	return result, nil
}

// SyncAmountPaid recomputes amount_paid from the payments table in one
// statement, so a credit lost after its payments were inserted is restored
// on the next call. Payments are never deleted, so the sum only grows;
// GREATEST keeps a sync racing on an older snapshot from lowering it.
func (s *Store) SyncAmountPaid(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	_, err := s.pg.NewUpdate((*invoiceModel)(nil)).
		Set("amount_paid = GREATEST(amount_paid, (SELECT COALESCE(SUM(p.amount), 0) FROM xchpay_payments p WHERE p.invoice_id = $1))", invID.String()).
		Set("updated_at = $2", now()).
		Where("id = $3", invID.String()).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("xchpay/postgres: sync amount paid: %w", err)
	}
	return s.GetInvoice(ctx, invID)
}

func (s *Store) MarkInvoicePaid(ctx context.Context, invID id.InvoiceID, paidAt time.Time) error {
	t := paidAt.UTC()
	res, err := s.pg.NewUpdate((*invoiceModel)(nil)).
		Set("status = $1", string(invoice.StatusPaid)).
		Set("paid_at = $2", t).
		Set("updated_at = $3", t).
		Where("id = $4", invID.String()).
		Where("status = $5", string(invoice.StatusUnpaid)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("xchpay/postgres: mark invoice paid: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	if _, err := s.GetInvoice(ctx, invID); err != nil {
		return err
	}
	return xchpay.ErrInvoicePaid
}

// ==================== Payment Store ====================

// RecordPayments inserts each payment with ON CONFLICT DO NOTHING so that
// the affected-row count tells which ones are new.
func (s *Store) RecordPayments(ctx context.Context, payments []*payment.Payment) ([]*payment.Payment, error) {
	inserted := make([]*payment.Payment, 0, len(payments))
	for _, p := range payments {
		res, err := s.pg.NewInsert(toPaymentModel(p)).
			OnConflict("(invoice_id, coin_name) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return inserted, fmt.Errorf("xchpay/postgres: record payment %s: %w", p.Key(), err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return inserted, err
		}
		if rows > 0 {
			inserted = append(inserted, p)
		}
	}
	return inserted, nil
}

func (s *Store) ListPayments(ctx context.Context, invID id.InvoiceID, opts payment.ListOpts) ([]*payment.Payment, error) {
	var models []paymentModel
	q := s.pg.NewSelect(&models).
		Where("invoice_id = $1", invID.String()).
		OrderExpr("confirmed_at_height ASC, coin_name ASC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("xchpay/postgres: list payments: %w", err)
	}

	result := make([]*payment.Payment, len(models))
	for i := range models {
		p, err := fromPaymentModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
