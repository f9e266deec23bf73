package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/xchpay/id"
	"github.com/xraph/xchpay/invoice"
	"github.com/xraph/xchpay/payment"
	"github.com/xraph/xchpay/subscription"
	"github.com/xraph/xchpay/types"
)

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:xchpay_subscriptions"`

	ID         string          `grove:"id,pk"`
	UserID     string          `grove:"user_id"`
	ProductKey string          `grove:"product_key"`
	StartDate  time.Time       `grove:"start_date"`
	EndDate    time.Time       `grove:"end_date"`
	Status     string          `grove:"status"`
	Activation json.RawMessage `grove:"activation,type:jsonb"`
	CreatedAt  time.Time       `grove:"created_at"`
	UpdatedAt  time.Time       `grove:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) (*subscriptionModel, error) {
	activation, err := json.Marshal(s.Activation)
	if err != nil {
		return nil, fmt.Errorf("encode activation: %w", err)
	}

	return &subscriptionModel{
		ID:         s.ID.String(),
		UserID:     s.UserID,
		ProductKey: s.ProductKey,
		StartDate:  s.StartDate,
		EndDate:    s.EndDate,
		Status:     string(s.Status),
		Activation: activation,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}, nil
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, err
	}

	var activation subscription.Activation
	if len(m.Activation) > 0 {
		if err := json.Unmarshal(m.Activation, &activation); err != nil {
			return nil, fmt.Errorf("decode activation of %s: %w", m.ID, err)
		}
	}

	return &subscription.Subscription{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:         subID,
		UserID:     m.UserID,
		ProductKey: m.ProductKey,
		StartDate:  m.StartDate,
		EndDate:    m.EndDate,
		Status:     subscription.Status(m.Status),
		Activation: activation,
	}, nil
}

// ==================== Invoice models ====================

type invoiceModel struct {
	grove.BaseModel `grove:"table:xchpay_invoices"`

	ID             string     `grove:"id,pk"`
	SubscriptionID string     `grove:"subscription_id"`
	IssueDate      time.Time  `grove:"issue_date"`
	DueDate        time.Time  `grove:"due_date"`
	TotalAmountDue int64      `grove:"total_amount_due"`
	AmountPaid     int64      `grove:"amount_paid"`
	Currency       string     `grove:"currency"`
	PaymentAddress string     `grove:"payment_address"`
	Status         string     `grove:"status"`
	PaidAt         *time.Time `grove:"paid_at"`
	CreatedAt      time.Time  `grove:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"`
}

func toInvoiceModel(inv *invoice.Invoice) *invoiceModel {
	return &invoiceModel{
		ID:             inv.ID.String(),
		SubscriptionID: inv.SubscriptionID.String(),
		IssueDate:      inv.IssueDate,
		DueDate:        inv.DueDate,
		TotalAmountDue: inv.TotalAmountDue.Amount,
		AmountPaid:     inv.AmountPaid.Amount,
		Currency:       inv.TotalAmountDue.Currency,
		PaymentAddress: inv.PaymentAddress,
		Status:         string(inv.Status),
		PaidAt:         inv.PaidAt,
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
	}
}

func fromInvoiceModel(m *invoiceModel) (*invoice.Invoice, error) {
	invID, err := id.ParseInvoiceID(m.ID)
	if err != nil {
		return nil, err
	}
	subID, err := id.ParseSubscriptionID(m.SubscriptionID)
	if err != nil {
		return nil, err
	}

	return &invoice.Invoice{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             invID,
		SubscriptionID: subID,
		IssueDate:      m.IssueDate,
		DueDate:        m.DueDate,
		TotalAmountDue: types.Money{Amount: m.TotalAmountDue, Currency: m.Currency},
		AmountPaid:     types.Money{Amount: m.AmountPaid, Currency: m.Currency},
		PaymentAddress: m.PaymentAddress,
		Status:         invoice.Status(m.Status),
		PaidAt:         m.PaidAt,
	}, nil
}

// ==================== Payment models ====================

type paymentModel struct {
	grove.BaseModel `grove:"table:xchpay_payments"`

	InvoiceID         string    `grove:"invoice_id,pk"`
	CoinName          string    `grove:"coin_name,pk"`
	Amount            int64     `grove:"amount"`
	Fee               int64     `grove:"fee"`
	Currency          string    `grove:"currency"`
	ConfirmedAtHeight int64     `grove:"confirmed_at_height"`
	CreatedAt         time.Time `grove:"created_at"`
}

func toPaymentModel(p *payment.Payment) *paymentModel {
	return &paymentModel{
		InvoiceID:         p.InvoiceID.String(),
		CoinName:          p.CoinName,
		Amount:            p.Amount.Amount,
		Fee:               p.Fee.Amount,
		Currency:          p.Amount.Currency,
		ConfirmedAtHeight: int64(p.ConfirmedAtHeight), //nolint:gosec // block heights fit in int64
		CreatedAt:         p.CreatedAt,
	}
}

func fromPaymentModel(m *paymentModel) (*payment.Payment, error) {
	invID, err := id.ParseInvoiceID(m.InvoiceID)
	if err != nil {
		return nil, err
	}

	return &payment.Payment{
		InvoiceID:         invID,
		CoinName:          m.CoinName,
		Amount:            types.Money{Amount: m.Amount, Currency: m.Currency},
		Fee:               types.Money{Amount: m.Fee, Currency: m.Currency},
		ConfirmedAtHeight: uint64(m.ConfirmedAtHeight), //nolint:gosec // stored from a uint64
		CreatedAt:         m.CreatedAt,
	}, nil
}
