package xchpay

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestFanOut_CollectsFailures(t *testing.T) {
	errOdd := errors.New("odd")
	items := []int{1, 2, 3, 4, 5, 6, 7}

	res := fanOut(context.Background(), 3, items, func(_ context.Context, n int) error {
		if n%2 == 1 {
			return fmt.Errorf("item %d: %w", n, errOdd)
		}
		return nil
	})

	if res.Scanned != 7 || res.Succeeded != 3 || res.Failed() != 4 {
		t.Fatalf("result = %d scanned, %d ok, %d failed", res.Scanned, res.Succeeded, res.Failed())
	}
	if !errors.Is(res.Err(), errOdd) {
		t.Errorf("Err() = %v, want wrapping %v", res.Err(), errOdd)
	}
}

func TestFanOut_RespectsLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	items := make([]int, 20)

	fanOut(context.Background(), 4, items, func(context.Context, int) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})

	if peak.Load() > 4 {
		t.Errorf("peak concurrency = %d, want <= 4", peak.Load())
	}
}

func TestFanOut_Empty(t *testing.T) {
	res := fanOut(context.Background(), 8, []string(nil), func(context.Context, string) error {
		t.Fatal("fn called for empty batch")
		return nil
	})
	if res.Scanned != 0 || res.Err() != nil {
		t.Errorf("empty batch result = %+v", res)
	}
}
