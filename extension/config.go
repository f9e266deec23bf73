package extension

import (
	"time"

	"github.com/xraph/xchpay"
	"github.com/xraph/xchpay/chain/rpc"
	"github.com/xraph/xchpay/notify"
)

// Config holds the xchpay extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.xchpay" or "xchpay" keys).
type Config struct {
	// InvoiceURLBase is prefixed to invoice ids in the links sent to users.
	InvoiceURLBase string `json:"invoice_url_base" mapstructure:"invoice_url_base" yaml:"invoice_url_base"`

	// BillingPeriod is the subscription term in years (default: 1).
	BillingPeriod int `json:"billing_period" mapstructure:"billing_period" yaml:"billing_period"`

	// ExpirationWindow is how long before the end date renewal invoices go
	// out (default: 15 days).
	ExpirationWindow time.Duration `json:"expiration_window" mapstructure:"expiration_window" yaml:"expiration_window"`

	// GracePeriod is how long an expired subscription stays in grace_period
	// (default: 15 days).
	GracePeriod time.Duration `json:"grace_period" mapstructure:"grace_period" yaml:"grace_period"`

	// AutoTerminateAfterGrace terminates subscriptions once their grace
	// period has run out.
	AutoTerminateAfterGrace bool `json:"auto_terminate_after_grace" mapstructure:"auto_terminate_after_grace" yaml:"auto_terminate_after_grace"`

	// BatchConcurrency bounds the fan-out of batch scans (default: 8).
	BatchConcurrency int `json:"batch_concurrency" mapstructure:"batch_concurrency" yaml:"batch_concurrency"`

	// PollSchedule is the cron spec for payment polling (default: "@every 1m").
	PollSchedule string `json:"poll_schedule" mapstructure:"poll_schedule" yaml:"poll_schedule"`

	// LifecycleSchedule is the cron spec for the lifecycle sweeps (default: "@daily").
	LifecycleSchedule string `json:"lifecycle_schedule" mapstructure:"lifecycle_schedule" yaml:"lifecycle_schedule"`

	// DisableScheduler keeps the engine from scheduling any job. Polling
	// and sweeps must then be driven by the host application.
	DisableScheduler bool `json:"disable_scheduler" mapstructure:"disable_scheduler" yaml:"disable_scheduler"`

	// CatalogFile is the path of the YAML product catalog.
	CatalogFile string `json:"catalog_file" mapstructure:"catalog_file" yaml:"catalog_file"`

	// Wallet configures the wallet RPC gateway. Nil leaves the engine
	// without a gateway unless one is set with WithGateway.
	Wallet *rpc.Config `json:"wallet" mapstructure:"wallet" yaml:"wallet"`

	// Brevo configures email delivery through Brevo. Nil keeps the log
	// notifier unless one is set with WithNotifier.
	Brevo *notify.BrevoConfig `json:"brevo" mapstructure:"brevo" yaml:"brevo"`

	// Metrics registers the Prometheus metrics plugin with the default
	// registerer.
	Metrics bool `json:"metrics" mapstructure:"metrics" yaml:"metrics"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	d := xchpay.DefaultConfig()
	return Config{
		BillingPeriod:     d.BillingPeriod,
		ExpirationWindow:  d.ExpirationWindow,
		GracePeriod:       d.GracePeriod,
		BatchConcurrency:  d.BatchConcurrency,
		PollSchedule:      d.PollSchedule,
		LifecycleSchedule: d.LifecycleSchedule,
	}
}

// EngineConfig returns the engine policy described by c.
func (c Config) EngineConfig() xchpay.Config {
	cfg := xchpay.Config{
		InvoiceURLBase:          c.InvoiceURLBase,
		BillingPeriod:           c.BillingPeriod,
		ExpirationWindow:        c.ExpirationWindow,
		GracePeriod:             c.GracePeriod,
		AutoTerminateAfterGrace: c.AutoTerminateAfterGrace,
		BatchConcurrency:        c.BatchConcurrency,
		PollSchedule:            c.PollSchedule,
		LifecycleSchedule:       c.LifecycleSchedule,
	}
	if c.DisableScheduler {
		cfg.PollSchedule = ""
		cfg.LifecycleSchedule = ""
	}
	return cfg
}
