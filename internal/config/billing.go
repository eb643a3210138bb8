package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ErrInvalidBillingConfig marks a billing configuration that cannot be used.
var ErrInvalidBillingConfig = errors.New("invalid_billing_config")

// BillingConfig carries every tunable of the billing engine.
type BillingConfig struct {
	CycleDay           int           `mapstructure:"cycle_day"`
	Timezone           string        `mapstructure:"timezone"`
	MaxConcurrency     int           `mapstructure:"max_concurrency"`
	DeviceFetchTimeout time.Duration `mapstructure:"device_fetch_timeout"`
	ForecastWindow     int           `mapstructure:"forecast_window"`
	ResultCacheTTL     time.Duration `mapstructure:"result_cache_ttl"`
	RegistryCacheTTL   time.Duration `mapstructure:"registry_cache_ttl"`
	Pricing            PricingConfig `mapstructure:"pricing"`
}

// PricingConfig holds the two rule sets used by the engine.
type PricingConfig struct {
	Debt    RuleSetConfig `mapstructure:"debt"`
	Invoice RuleSetConfig `mapstructure:"invoice"`
}

// RuleSetConfig is the raw form of a pricing rule set. Prices and rates are
// decimal strings so that no float rounding happens before pricing.
type RuleSetConfig struct {
	Currency        string `mapstructure:"currency"`
	FreeBWThreshold int64  `mapstructure:"free_bw_threshold"`
	BWUnitPrice     string `mapstructure:"bw_unit_price"`
	ColorUnitPrice  string `mapstructure:"color_unit_price"`
	TaxRate         string `mapstructure:"tax_rate"`
}

// Normalized trims the string fields so that what validation accepts is exactly
// what pricing parses.
func (r RuleSetConfig) Normalized() RuleSetConfig {
	r.Currency = strings.TrimSpace(r.Currency)
	r.BWUnitPrice = strings.TrimSpace(r.BWUnitPrice)
	r.ColorUnitPrice = strings.TrimSpace(r.ColorUnitPrice)
	r.TaxRate = strings.TrimSpace(r.TaxRate)
	return r
}

// Normalized returns cfg with trimmed timezone and rule sets.
func (c BillingConfig) Normalized() BillingConfig {
	c.Timezone = strings.TrimSpace(c.Timezone)
	c.Pricing.Debt = c.Pricing.Debt.Normalized()
	c.Pricing.Invoice = c.Pricing.Invoice.Normalized()
	return c
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		CycleDay:           20,
		Timezone:           "UTC",
		MaxConcurrency:     8,
		DeviceFetchTimeout: 5 * time.Second,
		ForecastWindow:     6,
		ResultCacheTTL:     10 * time.Minute,
		RegistryCacheTTL:   time.Minute,
		Pricing: PricingConfig{
			Debt: RuleSetConfig{
				Currency:        "EUR",
				FreeBWThreshold: 1000,
				BWUnitPrice:     "0.05",
				ColorUnitPrice:  "0.09",
				TaxRate:         "0",
			},
			Invoice: RuleSetConfig{
				Currency:        "EUR",
				FreeBWThreshold: 1000,
				BWUnitPrice:     "0.05",
				ColorUnitPrice:  "0.09",
				TaxRate:         "0.20",
			},
		},
	}
}

// Location resolves the configured timezone; validation guarantees it loads.
func (c BillingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(c.Timezone))
	if err != nil {
		return time.UTC
	}
	return loc
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewBillingConfigHolder reads billing.yml from the configured paths, falling
// back to defaults when no file exists. Invalid configuration fails startup.
func NewBillingConfigHolder(cfg Config, log *zap.Logger) (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	for _, path := range cfg.BillingConfigPaths {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix("COPYBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return newBillingConfigHolder(v, log)
}

// NewStaticBillingConfigHolder wraps an already built configuration.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg.Normalized())
	return holder
}

func newBillingConfigHolder(v *viper.Viper, log *zap.Logger) (*BillingConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("billing.config")

	setBillingDefaults(v, DefaultBillingConfig())

	watch := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBillingConfig, err)
		}
		log.Info("billing config file not found, using defaults")
		watch = false
	}

	cfg, err := decodeBillingConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(cfg)

	if watch {
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeBillingConfig(v)
			if err != nil {
				log.Warn("invalid billing config ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("billing config reloaded", zap.String("file", e.Name))
		})
		v.WatchConfig()
	}

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func decodeBillingConfig(v *viper.Viper) (BillingConfig, error) {
	// Unmarshal (not UnmarshalKey) so nested defaults merge with a partial file.
	var root struct {
		Billing BillingConfig `mapstructure:"billing"`
	}
	if err := v.Unmarshal(&root); err != nil {
		return BillingConfig{}, fmt.Errorf("%w: %v", ErrInvalidBillingConfig, err)
	}
	cfg := root.Billing.Normalized()
	if err := ValidateBillingConfig(cfg); err != nil {
		return BillingConfig{}, err
	}
	return cfg, nil
}

func setBillingDefaults(v *viper.Viper, d BillingConfig) {
	v.SetDefault("billing.cycle_day", d.CycleDay)
	v.SetDefault("billing.timezone", d.Timezone)
	v.SetDefault("billing.max_concurrency", d.MaxConcurrency)
	v.SetDefault("billing.device_fetch_timeout", d.DeviceFetchTimeout)
	v.SetDefault("billing.forecast_window", d.ForecastWindow)
	v.SetDefault("billing.result_cache_ttl", d.ResultCacheTTL)
	v.SetDefault("billing.registry_cache_ttl", d.RegistryCacheTTL)
	setRuleSetDefaults(v, "billing.pricing.debt", d.Pricing.Debt)
	setRuleSetDefaults(v, "billing.pricing.invoice", d.Pricing.Invoice)
}

func setRuleSetDefaults(v *viper.Viper, prefix string, r RuleSetConfig) {
	v.SetDefault(prefix+".currency", r.Currency)
	v.SetDefault(prefix+".free_bw_threshold", r.FreeBWThreshold)
	v.SetDefault(prefix+".bw_unit_price", r.BWUnitPrice)
	v.SetDefault(prefix+".color_unit_price", r.ColorUnitPrice)
	v.SetDefault(prefix+".tax_rate", r.TaxRate)
}

// ValidateBillingConfig reports the first problem found in cfg.
func ValidateBillingConfig(cfg BillingConfig) error {
	cfg = cfg.Normalized()
	if cfg.CycleDay < 1 || cfg.CycleDay > 28 {
		return fmt.Errorf("%w: billing.cycle_day must be between 1 and 28", ErrInvalidBillingConfig)
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("%w: billing.timezone: %v", ErrInvalidBillingConfig, err)
	}
	if cfg.MaxConcurrency <= 0 {
		return fmt.Errorf("%w: billing.max_concurrency must be positive", ErrInvalidBillingConfig)
	}
	if cfg.DeviceFetchTimeout <= 0 {
		return fmt.Errorf("%w: billing.device_fetch_timeout must be positive", ErrInvalidBillingConfig)
	}
	if cfg.ForecastWindow < 2 {
		return fmt.Errorf("%w: billing.forecast_window must be at least 2", ErrInvalidBillingConfig)
	}
	if cfg.ResultCacheTTL < 0 || cfg.RegistryCacheTTL < 0 {
		return fmt.Errorf("%w: cache ttl cannot be negative", ErrInvalidBillingConfig)
	}
	if err := validateRuleSet("billing.pricing.debt", cfg.Pricing.Debt); err != nil {
		return err
	}
	return validateRuleSet("billing.pricing.invoice", cfg.Pricing.Invoice)
}

func validateRuleSet(prefix string, r RuleSetConfig) error {
	if r.Currency == "" {
		return fmt.Errorf("%w: %s.currency cannot be empty", ErrInvalidBillingConfig, prefix)
	}
	if r.FreeBWThreshold < 0 {
		return fmt.Errorf("%w: %s.free_bw_threshold cannot be negative", ErrInvalidBillingConfig, prefix)
	}
	prices := []struct {
		key   string
		value string
	}{
		{"bw_unit_price", r.BWUnitPrice},
		{"color_unit_price", r.ColorUnitPrice},
		{"tax_rate", r.TaxRate},
	}
	for _, p := range prices {
		parsed, err := decimal.NewFromString(p.value)
		if err != nil {
			return fmt.Errorf("%w: %s.%s is not numeric", ErrInvalidBillingConfig, prefix, p.key)
		}
		if parsed.IsNegative() {
			return fmt.Errorf("%w: %s.%s cannot be negative", ErrInvalidBillingConfig, prefix, p.key)
		}
	}
	tax, _ := decimal.NewFromString(r.TaxRate)
	if tax.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: %s.tax_rate must be a fraction below 1", ErrInvalidBillingConfig, prefix)
	}
	return nil
}
