// Package id holds the identifiers of xchpay's two persisted entities,
// subscriptions and invoices.
//
// Both are TypeIDs ("sub_…" and "inv_…"): a UUIDv7 suffix behind a kind
// prefix. The invoice ID doubles as the invoice guid shown to payers and
// embedded in invoice URLs, so it must stay URL-safe and must never parse
// as a subscription ID. Payments have no ID of their own; they are keyed by
// invoice ID and coin name.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix is the kind tag in front of the underscore.
type Prefix string

const (
	PrefixSubscription Prefix = "sub"
	PrefixInvoice      Prefix = "inv"
)

// ID is a subscription or invoice identifier. The zero value is Nil and
// is stored as NULL.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// SubscriptionID identifies a subscription.
type SubscriptionID = ID

// InvoiceID identifies an invoice. Its string form is the invoice guid.
type InvoiceID = ID

// New generates an ID of the given kind. It panics on a prefix TypeID
// rejects, which only a code change can cause.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

func NewSubscriptionID() SubscriptionID { return New(PrefixSubscription) }

func NewInvoiceID() InvoiceID { return New(PrefixInvoice) }

// Parse parses an ID of any kind, e.g. "inv_01h2xcejqtf2nbrexx3vqjhp41".
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseSubscriptionID parses s and rejects anything but a "sub" ID.
func ParseSubscriptionID(s string) (SubscriptionID, error) { return parseKind(s, PrefixSubscription) }

// ParseInvoiceID parses an invoice guid as received from a payer or a URL.
func ParseInvoiceID(s string) (InvoiceID, error) { return parseKind(s, PrefixInvoice) }

func parseKind(s string, want Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if got := parsed.Prefix(); got != want {
		return Nil, fmt.Errorf("id: %q is a %q id, want %q", s, got, want)
	}
	return parsed, nil
}

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the kind of the ID, or "" for Nil.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

func (i ID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler. Nil encodes as "".
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. "" decodes to Nil.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer. Nil is stored as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}
	return i.inner.String(), nil
}

// Scan implements sql.Scanner. NULL and "" both scan to Nil.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
