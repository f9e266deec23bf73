package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/xchpay/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"SubscriptionID", id.NewSubscriptionID, "sub_"},
		{"InvoiceID", id.NewInvoiceID, "inv_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParsePrefixes(t *testing.T) {
	sub := id.NewSubscriptionID()
	inv := id.NewInvoiceID()

	if _, err := id.ParseSubscriptionID(sub.String()); err != nil {
		t.Fatalf("ParseSubscriptionID(%q): %v", sub, err)
	}
	if _, err := id.ParseInvoiceID(inv.String()); err != nil {
		t.Fatalf("ParseInvoiceID(%q): %v", inv, err)
	}

	// An invoice guid must never be accepted where a subscription is expected.
	if _, err := id.ParseSubscriptionID(inv.String()); err == nil {
		t.Errorf("ParseSubscriptionID accepted invoice guid %q", inv)
	}
	if _, err := id.ParseInvoiceID(sub.String()); err == nil {
		t.Errorf("ParseInvoiceID accepted subscription id %q", sub)
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
}

func TestTextRoundTrip(t *testing.T) {
	original := id.NewInvoiceID()
	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}

	var restored id.ID
	if err := restored.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if restored.String() != original.String() {
		t.Errorf("mismatch: %q != %q", restored.String(), original.String())
	}
}

func TestValueScan(t *testing.T) {
	original := id.NewSubscriptionID()
	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var scanned id.ID
	if err := scanned.Scan(val); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if scanned.String() != original.String() {
		t.Errorf("mismatch: %q != %q", scanned.String(), original.String())
	}

	var fromNull id.ID
	if err := fromNull.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) failed: %v", err)
	}
	if !fromNull.IsNil() {
		t.Error("expected nil after scan of NULL")
	}
}

func TestUniqueness(t *testing.T) {
	a := id.NewInvoiceID()
	b := id.NewInvoiceID()
	if a.String() == b.String() {
		t.Errorf("two consecutive NewInvoiceID() calls returned the same guid: %q", a.String())
	}
}

func TestParseKindError(t *testing.T) {
	inv := id.NewInvoiceID()

	_, err := id.ParseSubscriptionID(inv.String())
	if err == nil || !strings.Contains(err.Error(), `"inv"`) {
		t.Errorf("ParseSubscriptionID(%q) error = %v, want kind mismatch", inv, err)
	}
	if got := inv.Prefix(); got != id.PrefixInvoice {
		t.Errorf("Prefix() = %q, want %q", got, id.PrefixInvoice)
	}
	if got := id.Nil.Prefix(); got != "" {
		t.Errorf("Nil.Prefix() = %q, want empty", got)
	}
}

func TestScanEmptyString(t *testing.T) {
	i := id.NewInvoiceID()
	if err := i.Scan(""); err != nil {
		t.Fatalf("Scan(\"\") failed: %v", err)
	}
	if !i.IsNil() {
		t.Error("expected nil after scan of empty string")
	}
	if err := i.Scan(42); err == nil {
		t.Error("expected error scanning an int")
	}
}
