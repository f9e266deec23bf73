package xchpay

import "github.com/xraph/xchpay/id"

// ID is the primary identifier type for all xchpay entities.
type ID = id.ID

// SubscriptionID identifies a subscription ("sub_…").
type SubscriptionID = id.SubscriptionID

// InvoiceID identifies an invoice ("inv_…"). It is also the public guid
// embedded in invoice links.
type InvoiceID = id.InvoiceID
