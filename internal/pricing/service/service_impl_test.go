package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/copybill/internal/config"
	consumptiondomain "github.com/smallbiznis/copybill/internal/consumption/domain"
	pricingdomain "github.com/smallbiznis/copybill/internal/pricing/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func rules(tax string) pricingdomain.Rules {
	return pricingdomain.Rules{
		Currency:        "EUR",
		FreeBWThreshold: 1000,
		BWUnitPrice:     dec("0.05"),
		ColorUnitPrice:  dec("0.09"),
		TaxRate:         dec(tax),
	}
}

func TestPriceFreeThresholdIsExclusive(t *testing.T) {
	cases := []struct {
		name string
		bw   int64
		want string
	}{
		{"zero", 0, "0"},
		{"at threshold", 1000, "0"},
		{"one above threshold bills everything", 1001, "50.05"},
		{"well above", 2500, "125"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			amount := Price(consumptiondomain.Counters{BW: tc.bw}, rules("0"))
			assert.True(t, dec(tc.want).Equal(amount.BWHT), "got %s", amount.BWHT)
		})
	}
}

func TestPriceColorFromFirstPage(t *testing.T) {
	amount := Price(consumptiondomain.Counters{BW: 10, Color: 1}, rules("0"))
	assert.True(t, amount.BWHT.IsZero())
	assert.True(t, dec("0.09").Equal(amount.ColorHT))
	assert.True(t, dec("0.09").Equal(amount.TotalTTC))
}

func TestPriceHTAndTTC(t *testing.T) {
	amount := Price(consumptiondomain.Counters{BW: 1500, Color: 100}, rules("0.20"))

	assert.Equal(t, "EUR", amount.Currency)
	assert.True(t, dec("75").Equal(amount.BWHT))
	assert.True(t, dec("9").Equal(amount.ColorHT))
	assert.True(t, dec("84").Equal(amount.TotalHT))
	assert.True(t, dec("16.8").Equal(amount.Tax))
	assert.True(t, dec("100.8").Equal(amount.TotalTTC))
	assert.True(t, amount.TotalHT.Mul(dec("1.20")).Equal(amount.TotalTTC))
}

func TestUnitPricesFor(t *testing.T) {
	under := UnitPricesFor(1000, rules("0.20"))
	assert.True(t, under.BWHT.IsZero())
	assert.True(t, under.BWTTC.IsZero())
	assert.True(t, dec("0.108").Equal(under.ColorTTC))

	over := UnitPricesFor(1001, rules("0.20"))
	assert.True(t, dec("0.05").Equal(over.BWHT))
	assert.True(t, dec("0.06").Equal(over.BWTTC))
}

func TestRulesFromHolder(t *testing.T) {
	engine := NewService(ServiceParam{Config: config.NewStaticBillingConfigHolder(config.DefaultBillingConfig())})

	debt, err := engine.Rules(pricingdomain.RuleSetDebt)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), debt.FreeBWThreshold)
	assert.True(t, debt.TaxRate.IsZero())

	invoice, err := engine.Rules(pricingdomain.RuleSetInvoice)
	require.NoError(t, err)
	assert.True(t, dec("0.20").Equal(invoice.TaxRate))

	_, err = engine.Rules(pricingdomain.RuleSet("promo"))
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidRuleSet)
}

func TestRulesAcceptWhatValidationAccepts(t *testing.T) {
	cfg := config.DefaultBillingConfig()
	cfg.Pricing.Debt.BWUnitPrice = " 0.05"
	cfg.Pricing.Debt.TaxRate = "0 "
	require.NoError(t, config.ValidateBillingConfig(cfg))

	engine := NewService(ServiceParam{Config: config.NewStaticBillingConfigHolder(cfg)})
	debt, err := engine.Rules(pricingdomain.RuleSetDebt)
	require.NoError(t, err)
	assert.True(t, dec("0.05").Equal(debt.BWUnitPrice))

	direct, err := RulesFromConfig(pricingdomain.RuleSetDebt, cfg.Pricing.Debt)
	require.NoError(t, err)
	assert.True(t, dec("0.05").Equal(direct.BWUnitPrice))
}

func TestRulesFromConfigRejectsGarbage(t *testing.T) {
	_, err := RulesFromConfig(pricingdomain.RuleSetDebt, config.RuleSetConfig{BWUnitPrice: "five cents", ColorUnitPrice: "0", TaxRate: "0"})
	assert.ErrorIs(t, err, config.ErrInvalidBillingConfig)
}

func TestAmountAdd(t *testing.T) {
	a := Price(consumptiondomain.Counters{BW: 2000}, rules("0.20"))
	b := Price(consumptiondomain.Counters{Color: 10}, rules("0.20"))
	sum := pricingdomain.ZeroAmount("").Add(a).Add(b)

	assert.Equal(t, "EUR", sum.Currency)
	assert.True(t, dec("100.9").Equal(sum.TotalHT))
}
