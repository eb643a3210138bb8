package domain

import (
	"github.com/shopspring/decimal"
)

// RuleSet names a configured pricing table.
type RuleSet string

const (
	// RuleSetDebt prices balance figures shown to clients.
	RuleSetDebt RuleSet = "debt"
	// RuleSetInvoice prices formal invoices, HT and TTC.
	RuleSetInvoice RuleSet = "invoice"
)

func ParseRuleSet(v string) (RuleSet, error) {
	switch RuleSet(v) {
	case RuleSetDebt, RuleSetInvoice:
		return RuleSet(v), nil
	default:
		return "", ErrInvalidRuleSet
	}
}

// Rules is one pricing table. Black/white pages are billed only when the period
// quantity exceeds FreeBWThreshold, and then in full. Color is billed from page one.
type Rules struct {
	Name            RuleSet         `json:"name"`
	Currency        string          `json:"currency"`
	FreeBWThreshold int64           `json:"free_bw_threshold"`
	BWUnitPrice     decimal.Decimal `json:"bw_unit_price"`
	ColorUnitPrice  decimal.Decimal `json:"color_unit_price"`
	TaxRate         decimal.Decimal `json:"tax_rate"`
}

// Amount is a priced consumption. HT amounts exclude tax; TTC includes it.
type Amount struct {
	Currency string          `json:"currency"`
	BWHT     decimal.Decimal `json:"bw_ht"`
	ColorHT  decimal.Decimal `json:"color_ht"`
	TotalHT  decimal.Decimal `json:"total_ht"`
	Tax      decimal.Decimal `json:"tax"`
	TotalTTC decimal.Decimal `json:"total_ttc"`
}

func (a Amount) Add(o Amount) Amount {
	currency := a.Currency
	if currency == "" {
		currency = o.Currency
	}
	return Amount{
		Currency: currency,
		BWHT:     a.BWHT.Add(o.BWHT),
		ColorHT:  a.ColorHT.Add(o.ColorHT),
		TotalHT:  a.TotalHT.Add(o.TotalHT),
		Tax:      a.Tax.Add(o.Tax),
		TotalTTC: a.TotalTTC.Add(o.TotalTTC),
	}
}

func ZeroAmount(currency string) Amount {
	return Amount{
		Currency: currency,
		BWHT:     decimal.Zero,
		ColorHT:  decimal.Zero,
		TotalHT:  decimal.Zero,
		Tax:      decimal.Zero,
		TotalTTC: decimal.Zero,
	}
}

// UnitPrices are the effective per-page prices for one quantity.
type UnitPrices struct {
	BWHT     decimal.Decimal `json:"bw_ht"`
	BWTTC    decimal.Decimal `json:"bw_ttc"`
	ColorHT  decimal.Decimal `json:"color_ht"`
	ColorTTC decimal.Decimal `json:"color_ttc"`
}
