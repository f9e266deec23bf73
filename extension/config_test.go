package extension

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/xchpay"
	"github.com/xraph/xchpay/chain/rpc"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{GracePeriod: 48 * time.Hour})

	assert.Equal(t, 1, cfg.BillingPeriod)
	assert.Equal(t, 15*24*time.Hour, cfg.ExpirationWindow)
	assert.Equal(t, 48*time.Hour, cfg.GracePeriod)
	assert.Equal(t, 8, cfg.BatchConcurrency)
	assert.Equal(t, "@every 1m", cfg.PollSchedule)
	assert.Equal(t, "@daily", cfg.LifecycleSchedule)
}

func TestMergeConfigurations(t *testing.T) {
	wallet := rpc.DefaultConfig()
	yamlCfg := Config{
		InvoiceURLBase: "https://billing.example.com/i/",
		GracePeriod:    7 * 24 * time.Hour,
	}
	programmatic := Config{
		InvoiceURLBase:          "https://ignored.example.com/",
		GracePeriod:             time.Hour,
		CatalogFile:             "products.yaml",
		AutoTerminateAfterGrace: true,
		Wallet:                  &wallet,
	}

	cfg := mergeConfigurations(yamlCfg, programmatic)

	assert.Equal(t, "https://billing.example.com/i/", cfg.InvoiceURLBase)
	assert.Equal(t, 7*24*time.Hour, cfg.GracePeriod)
	assert.Equal(t, "products.yaml", cfg.CatalogFile)
	assert.True(t, cfg.AutoTerminateAfterGrace)
	require.NotNil(t, cfg.Wallet)
	assert.Equal(t, wallet.URL, cfg.Wallet.URL)
	assert.Equal(t, 8, cfg.BatchConcurrency)
}

func TestConfig_EngineConfig(t *testing.T) {
	cfg := mergeWithDefaults(Config{InvoiceURLBase: "https://pay.example.com/"})

	ec := cfg.EngineConfig()
	assert.Equal(t, xchpay.DefaultConfig().PollSchedule, ec.PollSchedule)
	assert.Equal(t, "https://pay.example.com/", ec.InvoiceURLBase)

	cfg.DisableScheduler = true
	ec = cfg.EngineConfig()
	assert.Empty(t, ec.PollSchedule)
	assert.Empty(t, ec.LifecycleSchedule)
}

func TestBuildEngineOpts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.yaml")
	require.NoError(t, os.WriteFile(path, []byte("support:\n  name: Support\n  cost: 1\n  cmd: none\n"), 0o600))

	e := New(WithCatalogFile(path), WithDisableScheduler())
	e.config = mergeWithDefaults(e.config)

	opts, err := e.buildEngineOpts()
	require.NoError(t, err)

	eng := xchpay.New(nil, opts...)
	assert.Empty(t, eng.Config().PollSchedule)

	e = New(WithCatalogFile(filepath.Join(dir, "missing.yaml")))
	_, err = e.buildEngineOpts()
	require.Error(t, err)
}
