package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/xchpay"
	"github.com/xraph/xchpay/id"
	"github.com/xraph/xchpay/invoice"
	"github.com/xraph/xchpay/payment"
	xchstore "github.com/xraph/xchpay/store"
	"github.com/xraph/xchpay/subscription"
)

// Collection name constants.
const (
	colSubscriptions = "xchpay_subscriptions"
	colInvoices      = "xchpay_invoices"
	colPayments      = "xchpay_payments"
)

// compile-time interface check
var _ xchstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all xchpay collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("xchpay/mongo: %w: %s indexes: %w", xchpay.ErrMigrationFailed, col, err)
		}
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
	m := toSubscriptionModel(sub)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return xchpay.ErrAlreadyExists
		}
		return fmt.Errorf("xchpay/mongo: create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": subID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, xchpay.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("xchpay/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	filter := bson.M{}
	if opts.UserID != "" {
		filter["user_id"] = opts.UserID
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	end := bson.M{}
	if !opts.EndFrom.IsZero() {
		end["$gte"] = opts.EndFrom
	}
	if !opts.EndBefore.IsZero() {
		end["$lt"] = opts.EndBefore
	}
	if len(end) > 0 {
		filter["end_date"] = end
	}

	var models []subscriptionModel
	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "end_date", Value: 1}, {Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("xchpay/mongo: list subscriptions: %w", err)
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
	m := toSubscriptionModel(sub)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("xchpay/mongo: update subscription: %w", err)
	}
	if res.MatchedCount() == 0 {
		return xchpay.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) SetSubscriptionStatus(ctx context.Context, subID id.SubscriptionID, from, to subscription.Status, at time.Time) (bool, error) {
	res, err := s.mdb.NewUpdate((*subscriptionModel)(nil)).
		Filter(bson.M{"_id": subID.String(), "status": string(from)}).
		Set("status", string(to)).
		Set("updated_at", at.UTC()).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("xchpay/mongo: set subscription status: %w", err)
	}
	if res.MatchedCount() > 0 {
		return true, nil
	}

	if _, err := s.GetSubscription(ctx, subID); err != nil {
		return false, err
	}
	return false, nil
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	m := toInvoiceModel(inv)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return xchpay.ErrAlreadyExists
		}
		return fmt.Errorf("xchpay/mongo: create invoice: %w", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	var m invoiceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": invID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, xchpay.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("xchpay/mongo: get invoice: %w", err)
	}
	return fromInvoiceModel(&m)
}

func (s *Store) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	filter := bson.M{}
	if !opts.SubscriptionID.IsNil() {
		filter["subscription_id"] = opts.SubscriptionID.String()
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if !opts.IssuedFrom.IsZero() {
		filter["issue_date"] = bson.M{"$gte": opts.IssuedFrom}
	}

	var models []invoiceModel
	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "issue_date", Value: 1}, {Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("xchpay/mongo: list invoices: %w", err)
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

// SyncAmountPaid sums the invoice's payments with an aggregation and
// raises amount_paid to the result. $max keeps a sync that read an older
// sum from lowering it.
func (s *Store) SyncAmountPaid(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	cur, err := s.mdb.Collection(colPayments).Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "invoice_id", Value: invID.String()}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$amount"}}},
		}}},
	})
	if err != nil {
		return nil, fmt.Errorf("xchpay/mongo: sum payments: %w", err)
	}
	var sums []struct {
		Total int64 `bson:"total"`
	}
	if err := cur.All(ctx, &sums); err != nil {
		return nil, fmt.Errorf("xchpay/mongo: sum payments: %w", err)
	}
	var total int64
	if len(sums) > 0 {
		total = sums[0].Total
	}

	res, err := s.mdb.NewUpdate((*invoiceModel)(nil)).
		Filter(bson.M{"_id": invID.String()}).
		SetUpdate(bson.M{
			"$max": bson.M{"amount_paid": total},
			"$set": bson.M{"updated_at": now()},
		}).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("xchpay/mongo: sync amount paid: %w", err)
	}
	if res.MatchedCount() == 0 {
		return nil, xchpay.ErrInvoiceNotFound
	}
	return s.GetInvoice(ctx, invID)
}

func (s *Store) MarkInvoicePaid(ctx context.Context, invID id.InvoiceID, paidAt time.Time) error {
	t := paidAt.UTC()
	res, err := s.mdb.NewUpdate((*invoiceModel)(nil)).
		Filter(bson.M{"_id": invID.String(), "status": string(invoice.StatusUnpaid)}).
		Set("status", string(invoice.StatusPaid)).
		Set("paid_at", t).
		Set("updated_at", t).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("xchpay/mongo: mark invoice paid: %w", err)
	}
	if res.MatchedCount() > 0 {
		return nil
	}

	if _, err := s.GetInvoice(ctx, invID); err != nil {
		return err
	}
	return xchpay.ErrInvoicePaid
}

// ==================== Payment Store ====================

func (s *Store) RecordPayments(ctx context.Context, payments []*payment.Payment) ([]*payment.Payment, error) {
	inserted := make([]*payment.Payment, 0, len(payments))
	for _, p := range payments {
		_, err := s.mdb.NewInsert(toPaymentModel(p)).Exec(ctx)
		if err != nil {
			// Skip duplicates for idempotency
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			return inserted, fmt.Errorf("xchpay/mongo: record payment %s: %w", p.Key(), err)
		}
		inserted = append(inserted, p)
	}
	return inserted, nil
}

func (s *Store) ListPayments(ctx context.Context, invID id.InvoiceID, opts payment.ListOpts) ([]*payment.Payment, error) {
	var models []paymentModel
	q := s.mdb.NewFind(&models).
		Filter(bson.M{"invoice_id": invID.String()}).
		Sort(bson.D{{Key: "confirmed_at_height", Value: 1}, {Key: "coin_name", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("xchpay/mongo: list payments: %w", err)
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

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all xchpay collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colSubscriptions: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "end_date", Value: 1}}},
		},
		colInvoices: {
			{Keys: bson.D{{Key: "subscription_id", Value: 1}, {Key: "issue_date", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		colPayments: {
			{
				Keys:    bson.D{{Key: "invoice_id", Value: 1}, {Key: "coin_name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}
}
