package mongo

import (
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

	ID         string          `grove:"id,pk"       bson:"_id"`
	UserID     string          `grove:"user_id"     bson:"user_id"`
	ProductKey string          `grove:"product_key" bson:"product_key"`
	StartDate  time.Time       `grove:"start_date"  bson:"start_date"`
	EndDate    time.Time       `grove:"end_date"    bson:"end_date"`
	Status     string          `grove:"status"      bson:"status"`
	Activation activationModel `grove:"activation"  bson:"activation"`
	CreatedAt  time.Time       `grove:"created_at"  bson:"created_at"`
	UpdatedAt  time.Time       `grove:"updated_at"  bson:"updated_at"`
}

type activationModel struct {
	Command    string `bson:"cmd"`
	Region     string `bson:"region,omitempty"`
	Size       string `bson:"size,omitempty"`
	CapacityGB int    `bson:"capacity_gb,omitempty"`
	Domain     string `bson:"domain,omitempty"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:         s.ID.String(),
		UserID:     s.UserID,
		ProductKey: s.ProductKey,
		StartDate:  s.StartDate,
		EndDate:    s.EndDate,
		Status:     string(s.Status),
		Activation: activationModel{
			Command:    string(s.Activation.Command),
			Region:     s.Activation.Params.Region,
			Size:       s.Activation.Params.Size,
			CapacityGB: s.Activation.Params.CapacityGB,
			Domain:     s.Activation.Params.Domain,
		},
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, err
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
		Activation: subscription.Activation{
			Command: subscription.Command(m.Activation.Command),
			Params: subscription.Params{
				Region:     m.Activation.Region,
				Size:       m.Activation.Size,
				CapacityGB: m.Activation.CapacityGB,
				Domain:     m.Activation.Domain,
			},
		},
	}, nil
}

// ==================== Invoice models ====================

type invoiceModel struct {
	grove.BaseModel `grove:"table:xchpay_invoices"`

	ID             string     `grove:"id,pk"            bson:"_id"`
	SubscriptionID string     `grove:"subscription_id"  bson:"subscription_id"`
	IssueDate      time.Time  `grove:"issue_date"       bson:"issue_date"`
	DueDate        time.Time  `grove:"due_date"         bson:"due_date"`
	TotalAmountDue int64      `grove:"total_amount_due" bson:"total_amount_due"`
	AmountPaid     int64      `grove:"amount_paid"      bson:"amount_paid"`
	Currency       string     `grove:"currency"         bson:"currency"`
	PaymentAddress string     `grove:"payment_address"  bson:"payment_address"`
	Status         string     `grove:"status"           bson:"status"`
	PaidAt         *time.Time `grove:"paid_at"          bson:"paid_at,omitempty"`
	CreatedAt      time.Time  `grove:"created_at"       bson:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"       bson:"updated_at"`
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

// paymentModel uses "<invoice_id>/<coin_name>" as _id so the primary key
// itself rejects a second insert of the same coin.
type paymentModel struct {
	grove.BaseModel `grove:"table:xchpay_payments"`

	ID                string    `grove:"id,pk"               bson:"_id"`
	InvoiceID         string    `grove:"invoice_id"          bson:"invoice_id"`
	CoinName          string    `grove:"coin_name"           bson:"coin_name"`
	Amount            int64     `grove:"amount"              bson:"amount"`
	Fee               int64     `grove:"fee"                 bson:"fee"`
	Currency          string    `grove:"currency"            bson:"currency"`
	ConfirmedAtHeight int64     `grove:"confirmed_at_height" bson:"confirmed_at_height"`
	CreatedAt         time.Time `grove:"created_at"          bson:"created_at"`
}

func toPaymentModel(p *payment.Payment) *paymentModel {
	return &paymentModel{
		ID:                p.Key(),
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
