package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBillingConfigDefaultsWhenFileMissing(t *testing.T) {
	holder, err := NewBillingConfigHolder(Config{BillingConfigPaths: []string{t.TempDir()}}, zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 20, cfg.CycleDay)
	assert.Equal(t, int64(1000), cfg.Pricing.Debt.FreeBWThreshold)
	assert.Equal(t, "0.20", cfg.Pricing.Invoice.TaxRate)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestBillingConfigReadsFile(t *testing.T) {
	dir := t.TempDir()
	content := `billing:
  cycle_day: 15
  device_fetch_timeout: 2s
  pricing:
    invoice:
      bw_unit_price: "0.04"
      color_unit_price: "0.12"
      tax_rate: "0.2"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "billing.yml"), []byte(content), 0o600))

	v := viper.New()
	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath(dir)

	holder, err := newBillingConfigHolder(v, zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 15, cfg.CycleDay)
	assert.Equal(t, 2*time.Second, cfg.DeviceFetchTimeout)
	assert.Equal(t, "0.04", cfg.Pricing.Invoice.BWUnitPrice)
	assert.Equal(t, "0.12", cfg.Pricing.Invoice.ColorUnitPrice)
	// untouched keys keep their defaults
	assert.Equal(t, "EUR", cfg.Pricing.Invoice.Currency)
	assert.Equal(t, int64(1000), cfg.Pricing.Debt.FreeBWThreshold)
}

func TestBillingConfigRejectsNonNumericPrice(t *testing.T) {
	dir := t.TempDir()
	content := `billing:
  pricing:
    debt:
      bw_unit_price: "cheap"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "billing.yml"), []byte(content), 0o600))

	_, err := NewBillingConfigHolder(Config{BillingConfigPaths: []string{dir}}, zap.NewNop())
	require.ErrorIs(t, err, ErrInvalidBillingConfig)
}

func TestBillingConfigTrimsPaddedPrices(t *testing.T) {
	t.Setenv("COPYBILL_BILLING_PRICING_DEBT_BW_UNIT_PRICE", " 0.05")
	t.Setenv("COPYBILL_BILLING_PRICING_INVOICE_TAX_RATE", "0.2\t")

	holder, err := NewBillingConfigHolder(Config{BillingConfigPaths: []string{t.TempDir()}}, zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, "0.05", cfg.Pricing.Debt.BWUnitPrice)
	assert.Equal(t, "0.2", cfg.Pricing.Invoice.TaxRate)
}

func TestValidateBillingConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*BillingConfig)
	}{
		{"cycle day zero", func(c *BillingConfig) { c.CycleDay = 0 }},
		{"cycle day past 28", func(c *BillingConfig) { c.CycleDay = 31 }},
		{"unknown timezone", func(c *BillingConfig) { c.Timezone = "Mars/Olympus" }},
		{"no concurrency", func(c *BillingConfig) { c.MaxConcurrency = 0 }},
		{"no fetch timeout", func(c *BillingConfig) { c.DeviceFetchTimeout = 0 }},
		{"short forecast window", func(c *BillingConfig) { c.ForecastWindow = 1 }},
		{"negative threshold", func(c *BillingConfig) { c.Pricing.Debt.FreeBWThreshold = -1 }},
		{"negative price", func(c *BillingConfig) { c.Pricing.Invoice.ColorUnitPrice = "-0.1" }},
		{"tax rate above one", func(c *BillingConfig) { c.Pricing.Invoice.TaxRate = "20" }},
		{"missing currency", func(c *BillingConfig) { c.Pricing.Debt.Currency = " " }},
	}

	require.NoError(t, ValidateBillingConfig(DefaultBillingConfig()))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultBillingConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, ValidateBillingConfig(cfg), ErrInvalidBillingConfig)
		})
	}
}
