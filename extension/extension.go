// Package extension provides the Forge extension adapter for xchpay.
//
// It implements the forge.Extension interface to integrate the billing
// engine into a Forge application with DI registration and lifecycle
// management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.xchpay" or "xchpay" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/xchpay"
	"github.com/xraph/xchpay/chain/rpc"
	"github.com/xraph/xchpay/notify"
	"github.com/xraph/xchpay/observability"
	"github.com/xraph/xchpay/product"
	"github.com/xraph/xchpay/store"
	"github.com/xraph/xchpay/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "xchpay"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "XCH subscription billing and payment reconciliation"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the xchpay engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *xchpay.Engine
	store      store.Store
	engineOpts []xchpay.Option
}

// New creates a new xchpay Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *xchpay.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	opts, err := e.buildEngineOpts()
	if err != nil {
		return err
	}

	e.engine = xchpay.New(e.store, opts...)

	return vessel.Provide(fapp.Container(), func() (*xchpay.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("xchpay: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("xchpay: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs xchpay.Option values from the resolved config.
func (e *Extension) buildEngineOpts() ([]xchpay.Option, error) {
	opts := make([]xchpay.Option, 0, len(e.engineOpts)+5)
	opts = append(opts, xchpay.WithConfig(e.config.EngineConfig()))

	if e.config.CatalogFile != "" {
		catalog, err := product.LoadFile(e.config.CatalogFile)
		if err != nil {
			return nil, fmt.Errorf("xchpay: load catalog: %w", err)
		}
		opts = append(opts, xchpay.WithCatalog(catalog))
	}

	if e.config.Wallet != nil {
		wallet, err := rpc.New(*e.config.Wallet)
		if err != nil {
			return nil, fmt.Errorf("xchpay: wallet gateway: %w", err)
		}
		opts = append(opts, xchpay.WithGateway(wallet))
	}

	if e.config.Brevo != nil {
		opts = append(opts, xchpay.WithNotifier(notify.NewBrevoNotifier(*e.config.Brevo, nil)))
	}

	if e.config.Metrics {
		factory := observability.NewPrometheusFactory(nil)
		opts = append(opts, xchpay.WithPlugin(observability.NewMetricsExtension(factory)))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts, nil
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("xchpay: configuration is required but not found in config files; " +
				"ensure 'extensions.xchpay' or 'xchpay' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("xchpay: configuration loaded",
		forge.F("invoice_url_base", e.config.InvoiceURLBase),
		forge.F("billing_period", e.config.BillingPeriod),
		forge.F("expiration_window", e.config.ExpirationWindow),
		forge.F("grace_period", e.config.GracePeriod),
		forge.F("auto_terminate_after_grace", e.config.AutoTerminateAfterGrace),
		forge.F("poll_schedule", e.config.PollSchedule),
		forge.F("lifecycle_schedule", e.config.LifecycleSchedule),
		forge.F("disable_scheduler", e.config.DisableScheduler),
		forge.F("catalog_file", e.config.CatalogFile),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.xchpay" first (namespaced pattern).
	if cm.IsSet("extensions.xchpay") {
		if err := cm.Bind("extensions.xchpay", &cfg); err == nil {
			e.Logger().Debug("xchpay: loaded config from file",
				forge.F("key", "extensions.xchpay"),
			)
			return cfg, true
		}
		e.Logger().Warn("xchpay: failed to bind extensions.xchpay config",
			forge.F("error", "bind failed"),
		)
	}

	// Try top-level "xchpay" key.
	if cm.IsSet("xchpay") {
		if err := cm.Bind("xchpay", &cfg); err == nil {
			e.Logger().Debug("xchpay: loaded config from file",
				forge.F("key", "xchpay"),
			)
			return cfg, true
		}
		e.Logger().Warn("xchpay: failed to bind xchpay config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BillingPeriod == 0 {
		cfg.BillingPeriod = defaults.BillingPeriod
	}
	if cfg.ExpirationWindow == 0 {
		cfg.ExpirationWindow = defaults.ExpirationWindow
	}
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = defaults.GracePeriod
	}
	if cfg.BatchConcurrency == 0 {
		cfg.BatchConcurrency = defaults.BatchConcurrency
	}
	if cfg.PollSchedule == "" {
		cfg.PollSchedule = defaults.PollSchedule
	}
	if cfg.LifecycleSchedule == "" {
		cfg.LifecycleSchedule = defaults.LifecycleSchedule
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.AutoTerminateAfterGrace {
		yamlConfig.AutoTerminateAfterGrace = true
	}
	if programmaticConfig.DisableScheduler {
		yamlConfig.DisableScheduler = true
	}
	if programmaticConfig.Metrics {
		yamlConfig.Metrics = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.InvoiceURLBase == "" {
		yamlConfig.InvoiceURLBase = programmaticConfig.InvoiceURLBase
	}
	if yamlConfig.CatalogFile == "" {
		yamlConfig.CatalogFile = programmaticConfig.CatalogFile
	}
	if yamlConfig.PollSchedule == "" {
		yamlConfig.PollSchedule = programmaticConfig.PollSchedule
	}
	if yamlConfig.LifecycleSchedule == "" {
		yamlConfig.LifecycleSchedule = programmaticConfig.LifecycleSchedule
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.BillingPeriod == 0 {
		yamlConfig.BillingPeriod = programmaticConfig.BillingPeriod
	}
	if yamlConfig.ExpirationWindow == 0 {
		yamlConfig.ExpirationWindow = programmaticConfig.ExpirationWindow
	}
	if yamlConfig.GracePeriod == 0 {
		yamlConfig.GracePeriod = programmaticConfig.GracePeriod
	}
	if yamlConfig.BatchConcurrency == 0 {
		yamlConfig.BatchConcurrency = programmaticConfig.BatchConcurrency
	}

	// Nested adapters: YAML takes precedence.
	if yamlConfig.Wallet == nil {
		yamlConfig.Wallet = programmaticConfig.Wallet
	}
	if yamlConfig.Brevo == nil {
		yamlConfig.Brevo = programmaticConfig.Brevo
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
