package payment

import (
	"testing"

	"github.com/xraph/xchpay/id"
	"github.com/xraph/xchpay/types"
)

func TestTotal(t *testing.T) {
	inv := id.NewInvoiceID()
	ps := []*Payment{
		{InvoiceID: inv, CoinName: "0xaa", Amount: types.XCH(6)},
		{InvoiceID: inv, CoinName: "0xbb", Amount: types.Mojos(5)},
	}

	got := Total(types.CurrencyXCH, ps)
	want := types.Mojos(6*types.MojoPerXCH + 5)
	if !got.Equal(want) {
		t.Errorf("Total: got %v, want %v", got, want)
	}

	if empty := Total(types.CurrencyXCH, nil); !empty.IsZero() {
		t.Errorf("Total(nil): got %v, want zero", empty)
	}
}

func TestKey(t *testing.T) {
	inv := id.NewInvoiceID()
	a := &Payment{InvoiceID: inv, CoinName: "0xaa"}
	b := &Payment{InvoiceID: inv, CoinName: "0xaa"}
	c := &Payment{InvoiceID: inv, CoinName: "0xbb"}

	if a.Key() != b.Key() {
		t.Error("same invoice and coin should share a key")
	}
	if a.Key() == c.Key() {
		t.Error("different coins should not share a key")
	}
}
