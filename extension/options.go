package extension

import (
	"time"

	"github.com/xraph/xchpay"
	"github.com/xraph/xchpay/chain"
	"github.com/xraph/xchpay/notify"
	"github.com/xraph/xchpay/plugin"
	"github.com/xraph/xchpay/product"
	"github.com/xraph/xchpay/provision"
	"github.com/xraph/xchpay/store"
)

// Option configures the xchpay Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes an xchpay.Option through to the underlying engine.
// Pass-through options are applied after the config-derived ones.
func WithEngineOption(opt xchpay.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers an xchpay plugin.
func WithPlugin(p plugin.Plugin) Option {
	return WithEngineOption(xchpay.WithPlugin(p))
}

// WithGateway sets the chain gateway, overriding Config.Wallet.
func WithGateway(g chain.Gateway) Option {
	return WithEngineOption(xchpay.WithGateway(g))
}

// WithNotifier sets the notifier, overriding Config.Brevo.
func WithNotifier(n notify.Notifier) Option {
	return WithEngineOption(xchpay.WithNotifier(n))
}

// WithDirectory sets the user contact directory.
func WithDirectory(d notify.Directory) Option {
	return WithEngineOption(xchpay.WithDirectory(d))
}

// WithProvisioner sets the activation provisioner.
func WithProvisioner(p provision.Provisioner) Option {
	return WithEngineOption(xchpay.WithProvisioner(p))
}

// WithCatalog sets the product catalog, overriding Config.CatalogFile.
func WithCatalog(c product.Catalog) Option {
	return WithEngineOption(xchpay.WithCatalog(c))
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithInvoiceURLBase sets the prefix of invoice links.
func WithInvoiceURLBase(base string) Option {
	return func(e *Extension) { e.config.InvoiceURLBase = base }
}

// WithCatalogFile sets the path of the YAML product catalog.
func WithCatalogFile(path string) Option {
	return func(e *Extension) { e.config.CatalogFile = path }
}

// WithExpirationWindow sets how long before the end date renewals go out.
func WithExpirationWindow(d time.Duration) Option {
	return func(e *Extension) { e.config.ExpirationWindow = d }
}

// WithGracePeriod sets the grace period length.
func WithGracePeriod(d time.Duration) Option {
	return func(e *Extension) { e.config.GracePeriod = d }
}

// WithAutoTerminateAfterGrace enables termination after the grace period.
func WithAutoTerminateAfterGrace() Option {
	return func(e *Extension) { e.config.AutoTerminateAfterGrace = true }
}

// WithDisableScheduler keeps the engine from scheduling jobs.
func WithDisableScheduler() Option {
	return func(e *Extension) { e.config.DisableScheduler = true }
}

// WithMetrics registers the Prometheus metrics plugin.
func WithMetrics() Option {
	return func(e *Extension) { e.config.Metrics = true }
}
