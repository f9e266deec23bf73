package xchpay_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/xchpay"
	chainmem "github.com/xraph/xchpay/chain/memory"
	"github.com/xraph/xchpay/id"
	"github.com/xraph/xchpay/invoice"
	"github.com/xraph/xchpay/notify"
	"github.com/xraph/xchpay/product"
	"github.com/xraph/xchpay/provision"
	"github.com/xraph/xchpay/store"
	"github.com/xraph/xchpay/store/memory"
	"github.com/xraph/xchpay/subscription"
	"github.com/xraph/xchpay/types"
)

// ──────────────────────────────────────────────────
// Test harness
// ──────────────────────────────────────────────────

var testStart = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type provisionCall struct {
	SubID      id.SubscriptionID
	Activation subscription.Activation
}

type provisionLog struct {
	mu    sync.Mutex
	calls []provisionCall
	err   error
}

func (p *provisionLog) Provision(_ context.Context, act subscription.Activation, subID id.SubscriptionID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, provisionCall{SubID: subID, Activation: act})
	return p.err
}

func (p *provisionLog) Calls() []provisionCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]provisionCall, len(p.calls))
	copy(out, p.calls)
	return out
}

func (p *provisionLog) Fail(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// hookCounter counts plugin events by name.
type hookCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func newHookCounter() *hookCounter { return &hookCounter{counts: make(map[string]int)} }

func (h *hookCounter) inc(name string) {
	h.mu.Lock()
	h.counts[name]++
	h.mu.Unlock()
}

func (h *hookCounter) Count(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[name]
}

func (h *hookCounter) Name() string { return "hook-counter" }

func (h *hookCounter) OnSubscriptionCreated(context.Context, *subscription.Subscription) error {
	h.inc("subscription_created")
	return nil
}

func (h *hookCounter) OnSubscriptionActivated(context.Context, *subscription.Subscription) error {
	h.inc("subscription_activated")
	return nil
}

func (h *hookCounter) OnSubscriptionRenewed(context.Context, *subscription.Subscription) error {
	h.inc("subscription_renewed")
	return nil
}

func (h *hookCounter) OnSubscriptionGracePeriod(context.Context, *subscription.Subscription) error {
	h.inc("subscription_grace_period")
	return nil
}

func (h *hookCounter) OnSubscriptionTerminated(context.Context, *subscription.Subscription) error {
	h.inc("subscription_terminated")
	return nil
}

func (h *hookCounter) OnInvoiceCreated(context.Context, *invoice.Invoice) error {
	h.inc("invoice_created")
	return nil
}

func (h *hookCounter) OnInvoicePaid(context.Context, *invoice.Invoice) error {
	h.inc("invoice_paid")
	return nil
}

func (h *hookCounter) OnActivationFailed(context.Context, id.SubscriptionID, subscription.Activation, error) error {
	h.inc("activation_failed")
	return nil
}

type harness struct {
	engine    *xchpay.Engine
	store     *memory.Store
	gateway   *chainmem.Gateway
	notifier  *notify.Recorder
	directory *notify.MapDirectory
	clock     *fakeClock
	provision *provisionLog
	hooks     *hookCounter
}

func testCatalog(t *testing.T) *product.StaticCatalog {
	t.Helper()
	c, err := product.NewCatalog(
		product.Product{Key: "node-small", Name: "Small node", Cost: types.XCH(10), Command: subscription.CommandProvisionNode},
		product.Product{Key: "domain", Name: "Domain name", Cost: types.Mojos(500_000_000_000), Command: subscription.CommandAllocateDomain},
		product.Product{Key: "support", Name: "Support plan", Cost: types.XCH(1), Command: subscription.CommandNone},
	)
	require.NoError(t, err)
	return c
}

func newHarness(t *testing.T, opts ...xchpay.Option) *harness {
	t.Helper()
	return newWrappedHarness(t, nil, opts...)
}

// newWrappedHarness builds a harness whose engine talks to the memory store
// through wrap, when set.
func newWrappedHarness(t *testing.T, wrap func(store.Store) store.Store, opts ...xchpay.Option) *harness {
	t.Helper()

	h := &harness{
		store:     memory.New(),
		gateway:   chainmem.New("txch"),
		notifier:  &notify.Recorder{},
		directory: notify.NewMapDirectory(map[string]string{"alice": "alice@example.com", "bob": "bob@example.com"}),
		clock:     &fakeClock{now: testStart},
		provision: &provisionLog{},
		hooks:     newHookCounter(),
	}

	base := []xchpay.Option{
		xchpay.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		xchpay.WithConfig(xchpay.Config{InvoiceURLBase: "https://pay.example.com/invoice/"}),
		xchpay.WithClock(h.clock.Now),
		xchpay.WithGateway(h.gateway),
		xchpay.WithNotifier(h.notifier),
		xchpay.WithDirectory(h.directory),
		xchpay.WithProvisioner(h.provision),
		xchpay.WithCatalog(testCatalog(t)),
		xchpay.WithPlugin(h.hooks),
	}
	var st store.Store = h.store
	if wrap != nil {
		st = wrap(h.store)
	}
	h.engine = xchpay.New(st, append(base, opts...)...)
	return h
}

var nodeParams = subscription.Params{Region: "eu-west", Size: "small"}

// subscribe creates a node subscription for alice and returns it with its
// first invoice.
func (h *harness) subscribe(t *testing.T) (*subscription.Subscription, *invoice.Invoice) {
	t.Helper()
	ctx := context.Background()

	sub, err := h.engine.CreateSubscription(ctx, "alice", "node-small", nodeParams)
	require.NoError(t, err)

	invs, err := h.engine.ListInvoices(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, invs, 1)
	return sub, invs[0]
}

// pay deposits a confirmed coin to the invoice address and polls it.
func (h *harness) pay(t *testing.T, inv *invoice.Invoice, coin string, amount types.Money) *invoice.Invoice {
	t.Helper()
	h.gateway.Deposit(inv.PaymentAddress, coin, amount, true)
	updated, err := h.engine.CheckForPayment(context.Background(), inv.ID)
	require.NoError(t, err)
	return updated
}

// activeSubscription returns a paid, active node subscription.
func (h *harness) activeSubscription(t *testing.T) *subscription.Subscription {
	t.Helper()
	sub, inv := h.subscribe(t)
	h.pay(t, inv, "coin-initial", types.XCH(10))

	got, err := h.engine.GetSubscription(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Equal(t, subscription.StatusActive, got.Status)
	return got
}

// ──────────────────────────────────────────────────
// Engine lifecycle
// ──────────────────────────────────────────────────

func TestEngine_StartStop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.engine.Start(ctx))
	// A second Start is a no-op.
	require.NoError(t, h.engine.Start(ctx))
	require.NoError(t, h.engine.Stop())
}

func TestEngine_StartRejectsInvalidSchedule(t *testing.T) {
	h := newHarness(t, xchpay.WithConfig(xchpay.Config{PollSchedule: "every now and then"}))

	err := h.engine.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll schedule")
}

func TestEngine_ConfigDefaults(t *testing.T) {
	h := newHarness(t)
	cfg := h.engine.Config()

	assert.Equal(t, 1, cfg.BillingPeriod)
	assert.Equal(t, 15*24*time.Hour, cfg.ExpirationWindow)
	assert.Equal(t, 15*24*time.Hour, cfg.GracePeriod)
	assert.Equal(t, 8, cfg.BatchConcurrency)
	assert.False(t, cfg.AutoTerminateAfterGrace)
	assert.Equal(t, "https://pay.example.com/invoice/", cfg.InvoiceURLBase)
}

// ──────────────────────────────────────────────────
// Invoice Manager
// ──────────────────────────────────────────────────

func TestCreateInvoice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p, err := testCatalog(t).Get("support")
	require.NoError(t, err)

	subID := id.NewSubscriptionID()
	inv, err := h.engine.CreateInvoice(ctx, "bob", subID, p)
	require.NoError(t, err)

	assert.Equal(t, invoice.StatusUnpaid, inv.Status)
	assert.Equal(t, subID.String(), inv.SubscriptionID.String())
	assert.True(t, inv.TotalAmountDue.Equal(types.XCH(1)))
	assert.True(t, inv.AmountPaid.IsZero())
	assert.Equal(t, "txch1q1", inv.PaymentAddress)
	assert.Equal(t, testStart, inv.IssueDate)
	assert.Equal(t, testStart.AddDate(1, 0, 0), inv.DueDate)

	stored, err := h.engine.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.ID.String(), stored.ID.String())

	sent := h.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "bob@example.com", sent[0].To)
	assert.Contains(t, sent[0].Body, "https://pay.example.com/invoice/"+inv.ID.String())
	assert.Contains(t, sent[0].Body, "txch1q1")
	assert.Equal(t, 1, h.hooks.Count("invoice_created"))
}

func TestCreateInvoice_AddressUnavailable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p, err := testCatalog(t).Get("support")
	require.NoError(t, err)

	h.gateway.FailAddresses(errors.New("wallet locked"))
	subID := id.NewSubscriptionID()

	inv, err := h.engine.CreateInvoice(ctx, "bob", subID, p)
	require.ErrorIs(t, err, xchpay.ErrAddressUnavailable)
	assert.Nil(t, inv)
	assert.True(t, xchpay.IsRetryable(err))

	invs, err := h.engine.ListInvoices(ctx, subID)
	require.NoError(t, err)
	assert.Empty(t, invs)
	assert.Empty(t, h.notifier.Sent())
}

func TestCreateInvoice_NotificationFailureKeepsInvoice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p, err := testCatalog(t).Get("support")
	require.NoError(t, err)

	h.notifier.Fail(errors.New("smtp down"))
	subID := id.NewSubscriptionID()

	inv, err := h.engine.CreateInvoice(ctx, "bob", subID, p)
	require.NoError(t, err)

	_, err = h.engine.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)

	// No contact address is logged, not returned.
	_, err = h.engine.CreateInvoice(ctx, "mallory", subID, p)
	require.NoError(t, err)
}

func TestCreateInvoice_WithoutGateway(t *testing.T) {
	e := xchpay.New(memory.New(),
		xchpay.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	p := &product.Product{Key: "support", Name: "Support", Cost: types.XCH(1), Command: subscription.CommandNone}

	_, err := e.CreateInvoice(context.Background(), "bob", id.NewSubscriptionID(), p)
	require.ErrorIs(t, err, xchpay.ErrAddressUnavailable)
}

// ──────────────────────────────────────────────────
// Read APIs
// ──────────────────────────────────────────────────

func TestReadAPIs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sub, inv := h.subscribe(t)
	_, err := h.engine.CreateSubscription(ctx, "bob", "support", subscription.Params{})
	require.NoError(t, err)

	subs, err := h.engine.ListSubscriptions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, sub.ID.String(), subs[0].ID.String())

	h.pay(t, inv, "coin-a", types.XCH(4))
	h.pay(t, inv, "coin-b", types.XCH(6))

	payments, err := h.engine.ListPayments(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, "coin-a", payments[0].CoinName)
	assert.Equal(t, "coin-b", payments[1].CoinName)

	_, err = h.engine.GetSubscription(ctx, id.NewSubscriptionID())
	require.ErrorIs(t, err, xchpay.ErrSubscriptionNotFound)
	assert.True(t, xchpay.IsNotFound(err))

	_, err = h.engine.GetInvoice(ctx, id.NewInvoiceID())
	require.ErrorIs(t, err, xchpay.ErrInvoiceNotFound)

	assert.Equal(t, "https://pay.example.com/invoice/"+inv.ID.String(), h.engine.InvoiceURL(inv.ID))
}

var _ provision.Provisioner = (*provisionLog)(nil)
