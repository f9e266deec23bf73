package xchpay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/xraph/xchpay/chain"
	"github.com/xraph/xchpay/id"
	"github.com/xraph/xchpay/invoice"
	"github.com/xraph/xchpay/notify"
	"github.com/xraph/xchpay/payment"
	"github.com/xraph/xchpay/plugin"
	"github.com/xraph/xchpay/product"
	"github.com/xraph/xchpay/provision"
	"github.com/xraph/xchpay/store"
	"github.com/xraph/xchpay/subscription"
)

// Config holds the billing policy of an Engine.
type Config struct {
	// InvoiceURLBase is prefixed to an invoice id to build the link sent
	// to users, e.g. "https://pay.example.com/invoice/".
	InvoiceURLBase string

	// BillingPeriod is the subscription term in years.
	BillingPeriod int

	// ExpirationWindow is how long before the end date renewal invoices
	// and expiration notices go out.
	ExpirationWindow time.Duration

	// GracePeriod is how long an expired subscription stays in
	// grace_period before it may be terminated.
	GracePeriod time.Duration

	// AutoTerminateAfterGrace lets TerminateExpiredGracePeriods terminate
	// subscriptions whose grace period has run out.
	AutoTerminateAfterGrace bool

	// BatchConcurrency bounds the per-row fan-out of batch scans.
	BatchConcurrency int

	// PollSchedule is the cron spec for ReconcileUnpaid. Empty disables it.
	PollSchedule string

	// LifecycleSchedule is the cron spec for the lifecycle sweeps. Empty
	// disables it.
	LifecycleSchedule string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BillingPeriod:     1,
		ExpirationWindow:  15 * 24 * time.Hour,
		GracePeriod:       15 * 24 * time.Hour,
		BatchConcurrency:  8,
		PollSchedule:      "@every 1m",
		LifecycleSchedule: "@daily",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BillingPeriod <= 0 {
		c.BillingPeriod = d.BillingPeriod
	}
	if c.ExpirationWindow <= 0 {
		c.ExpirationWindow = d.ExpirationWindow
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = d.GracePeriod
	}
	if c.BatchConcurrency <= 0 {
		c.BatchConcurrency = d.BatchConcurrency
	}
	return c
}

// Engine is the subscription billing engine. It issues invoices, reconciles
// on-chain payments against them and drives subscriptions through their
// lifecycle.
type Engine struct {
	store       store.Store
	plugins     *plugin.Registry
	logger      *slog.Logger
	config      Config
	now         func() time.Time
	gateway     chain.Gateway
	notifier    notify.Notifier
	directory   notify.Directory
	provisioner provision.Provisioner
	catalog     product.Catalog

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

// New creates a new Engine backed by s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:       s,
		plugins:     plugin.NewRegistry(),
		logger:      slog.Default(),
		config:      DefaultConfig(),
		now:         time.Now,
		notifier:    notify.NewLogNotifier(nil),
		directory:   notify.IdentityDirectory{},
		provisioner: provision.Noop,
		catalog:     emptyCatalog{},
	}

	for _, opt := range opts {
		opt(e)
	}
	e.config = e.config.withDefaults()

	return e
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithConfig replaces the billing policy. Zero durations and counts fall
// back to defaults; an empty schedule disables its job.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.config = cfg }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithGateway sets the chain gateway used for addresses and transactions.
func WithGateway(g chain.Gateway) Option {
	return func(e *Engine) { e.gateway = g }
}

// WithNotifier sets the outbound notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithDirectory sets the user contact directory.
func WithDirectory(d notify.Directory) Option {
	return func(e *Engine) { e.directory = d }
}

// WithProvisioner sets the collaborator that fulfils activations.
func WithProvisioner(p provision.Provisioner) Option {
	return func(e *Engine) { e.provisioner = p }
}

// WithCatalog sets the product catalog.
func WithCatalog(c product.Catalog) Option {
	return func(e *Engine) { e.catalog = c }
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.config }

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Start migrates the store, initializes plugins and starts the scheduler.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}

	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c, err := e.newScheduler(runCtx)
	if err != nil {
		cancel()
		return err
	}
	c.Start()

	e.cron = c
	e.cancel = cancel
	e.running = true

	e.logger.Info("xchpay started",
		"poll_schedule", e.config.PollSchedule,
		"lifecycle_schedule", e.config.LifecycleSchedule,
		"batch_concurrency", e.config.BatchConcurrency,
	)
	return nil
}

// Stop halts the scheduler, waits for running jobs and closes the store.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		<-e.cron.Stop().Done()
		e.cancel()
		e.running = false
	}

	e.plugins.EmitShutdown(context.Background())

	return e.store.Close()
}

// ──────────────────────────────────────────────────
// Read APIs
// ──────────────────────────────────────────────────

// GetSubscription retrieves a subscription by ID.
func (e *Engine) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	return e.store.GetSubscription(ctx, subID)
}

// ListSubscriptions returns the subscriptions owned by userID.
func (e *Engine) ListSubscriptions(ctx context.Context, userID string) ([]*subscription.Subscription, error) {
	return e.store.ListSubscriptions(ctx, subscription.ListOpts{UserID: userID})
}

// GetInvoice retrieves an invoice by its guid.
func (e *Engine) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	return e.store.GetInvoice(ctx, invID)
}

// ListInvoices returns every invoice issued for a subscription, oldest first.
func (e *Engine) ListInvoices(ctx context.Context, subID id.SubscriptionID) ([]*invoice.Invoice, error) {
	return e.store.ListInvoices(ctx, invoice.ListOpts{SubscriptionID: subID})
}

// ListPayments returns the payments credited to an invoice.
func (e *Engine) ListPayments(ctx context.Context, invID id.InvoiceID) ([]*payment.Payment, error) {
	return e.store.ListPayments(ctx, invID, payment.ListOpts{})
}

// InvoiceURL returns the user-facing link for an invoice.
func (e *Engine) InvoiceURL(invID id.InvoiceID) string {
	return e.config.InvoiceURLBase + invID.String()
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// extend moves t forward by one billing period.
func (e *Engine) extend(t time.Time) time.Time {
	return t.AddDate(e.config.BillingPeriod, 0, 0)
}

// notify delivers msg to the user. Failures are logged and swallowed.
func (e *Engine) notify(ctx context.Context, userID string, msg notify.Message) {
	to, err := e.directory.ContactAddress(ctx, userID)
	if err != nil {
		e.logger.Warn("no contact address for user",
			"user_id", userID,
			"subject", msg.Subject,
			"error", err,
		)
		return
	}
	msg.To = to
	if err := e.notifier.Send(ctx, msg); err != nil {
		e.logger.Warn("failed to send notification",
			"user_id", userID,
			"subject", msg.Subject,
			"error", err,
		)
	}
}

func (e *Engine) lookupProduct(key string) (*product.Product, error) {
	p, err := e.catalog.Get(key)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrProductNotFound, key)
		}
		return nil, err
	}
	return p, nil
}

func (e *Engine) requireGateway() error {
	if e.gateway == nil {
		return errors.New("xchpay: no chain gateway configured")
	}
	return nil
}

// emptyCatalog is the catalog of an engine built without WithCatalog.
type emptyCatalog struct{}

func (emptyCatalog) Get(key string) (*product.Product, error) {
	return nil, fmt.Errorf("%w: %q", product.ErrNotFound, key)
}
