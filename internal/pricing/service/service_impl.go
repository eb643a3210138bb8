package service

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/copybill/internal/config"
	consumptiondomain "github.com/smallbiznis/copybill/internal/consumption/domain"
	pricingdomain "github.com/smallbiznis/copybill/internal/pricing/domain"
	"go.uber.org/fx"
)

type ServiceParam struct {
	fx.In

	Config *config.BillingConfigHolder
}

type Service struct {
	config *config.BillingConfigHolder
}

func NewService(p ServiceParam) pricingdomain.Engine {
	return &Service{config: p.Config}
}

// Rules returns the named rule set from the live billing configuration.
func (s *Service) Rules(ruleSet pricingdomain.RuleSet) (pricingdomain.Rules, error) {
	cfg := s.config.Get()
	switch ruleSet {
	case pricingdomain.RuleSetDebt:
		return RulesFromConfig(ruleSet, cfg.Pricing.Debt)
	case pricingdomain.RuleSetInvoice:
		return RulesFromConfig(ruleSet, cfg.Pricing.Invoice)
	default:
		return pricingdomain.Rules{}, pricingdomain.ErrInvalidRuleSet
	}
}

func (s *Service) Price(delta consumptiondomain.Counters, rules pricingdomain.Rules) pricingdomain.Amount {
	return Price(delta, rules)
}

func (s *Service) UnitPrices(bwQuantity int64, rules pricingdomain.Rules) pricingdomain.UnitPrices {
	return UnitPricesFor(bwQuantity, rules)
}

// Price converts page deltas into money. Amounts are exact; rounding is left to renderers.
func Price(delta consumptiondomain.Counters, rules pricingdomain.Rules) pricingdomain.Amount {
	bwHT := decimal.NewFromInt(BillableBW(delta.BW, rules)).Mul(rules.BWUnitPrice)
	colorHT := decimal.NewFromInt(max(0, delta.Color)).Mul(rules.ColorUnitPrice)
	totalHT := bwHT.Add(colorHT)
	tax := totalHT.Mul(rules.TaxRate)

	return pricingdomain.Amount{
		Currency: rules.Currency,
		BWHT:     bwHT,
		ColorHT:  colorHT,
		TotalHT:  totalHT,
		Tax:      tax,
		TotalTTC: totalHT.Add(tax),
	}
}

// BillableBW applies the exclusive free threshold: nothing up to it, everything above.
func BillableBW(bw int64, rules pricingdomain.Rules) int64 {
	if bw > rules.FreeBWThreshold {
		return bw
	}
	return 0
}

// UnitPricesFor returns the per-page prices that apply at the given black/white quantity.
func UnitPricesFor(bwQuantity int64, rules pricingdomain.Rules) pricingdomain.UnitPrices {
	factor := decimal.NewFromInt(1).Add(rules.TaxRate)
	bwHT := decimal.Zero
	if BillableBW(bwQuantity, rules) > 0 {
		bwHT = rules.BWUnitPrice
	}
	return pricingdomain.UnitPrices{
		BWHT:     bwHT,
		BWTTC:    bwHT.Mul(factor),
		ColorHT:  rules.ColorUnitPrice,
		ColorTTC: rules.ColorUnitPrice.Mul(factor),
	}
}

// RulesFromConfig parses a configured rule set. Configuration is validated at load, so
// an error here means the holder was bypassed.
func RulesFromConfig(name pricingdomain.RuleSet, rc config.RuleSetConfig) (pricingdomain.Rules, error) {
	rc = rc.Normalized()
	bw, err := decimal.NewFromString(rc.BWUnitPrice)
	if err != nil {
		return pricingdomain.Rules{}, fmt.Errorf("%w: %s.bw_unit_price: %v", config.ErrInvalidBillingConfig, name, err)
	}
	color, err := decimal.NewFromString(rc.ColorUnitPrice)
	if err != nil {
		return pricingdomain.Rules{}, fmt.Errorf("%w: %s.color_unit_price: %v", config.ErrInvalidBillingConfig, name, err)
	}
	tax, err := decimal.NewFromString(rc.TaxRate)
	if err != nil {
		return pricingdomain.Rules{}, fmt.Errorf("%w: %s.tax_rate: %v", config.ErrInvalidBillingConfig, name, err)
	}
	return pricingdomain.Rules{
		Name:            name,
		Currency:        rc.Currency,
		FreeBWThreshold: rc.FreeBWThreshold,
		BWUnitPrice:     bw,
		ColorUnitPrice:  color,
		TaxRate:         tax,
	}, nil
}
