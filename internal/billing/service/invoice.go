package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/copybill/internal/billing/domain"
	billingperioddomain "github.com/smallbiznis/copybill/internal/billingperiod/domain"
	consumptiondomain "github.com/smallbiznis/copybill/internal/consumption/domain"
	obscontext "github.com/smallbiznis/copybill/internal/observability/context"
	pricingdomain "github.com/smallbiznis/copybill/internal/pricing/domain"
	"go.opentelemetry.io/otel/attribute"
)

// InvoiceLines prices the period containing req.Date with the invoice rules.
// The free black/white threshold applies to the client's whole fleet, so every
// line shares the unit prices derived from the aggregate quantity.
func (s *Service) InvoiceLines(ctx context.Context, req billingdomain.InvoiceRequest) (invoice *billingdomain.Invoice, err error) {
	ctx, finish := s.start(ctx, "invoice_lines", attribute.String("client_id", req.ClientID.String()))
	defer finish(&err)

	if req.ClientID <= 0 {
		return nil, billingdomain.ErrInvalidClient
	}
	rules, err := s.pricing.Rules(pricingdomain.RuleSetInvoice)
	if err != nil {
		return nil, err
	}
	period := s.resolver.Resolve(s.referenceDate(req.Date))
	ctx = obscontext.WithClientID(ctx, req.ClientID.String())

	scope, err := s.loadClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	series, failures, err := s.computeDevices(ctx, scope.devices, []billingperioddomain.Period{period}, consumptiondomain.ConventionPeriod)
	if err != nil {
		return nil, err
	}

	total, devices := sumPeriod(series, 0)
	unit := s.pricing.UnitPrices(total.BW, rules)
	tax := decimal.NewFromInt(1).Add(rules.TaxRate)

	lines := make([]billingdomain.InvoiceLine, 0, len(devices)*2)
	for _, device := range devices {
		lines = append(lines,
			invoiceLine(fmt.Sprintf("%s black/white pages", device.Label), device.DeviceID, billingdomain.ChannelBW, device.Delta.BW, unit.BWHT, unit.BWTTC, tax),
			invoiceLine(fmt.Sprintf("%s color pages", device.Label), device.DeviceID, billingdomain.ChannelColor, device.Delta.Color, unit.ColorHT, unit.ColorTTC, tax),
		)
	}

	amount := s.pricing.Price(total, rules)
	totals := billingdomain.InvoiceLine{
		Description:  fmt.Sprintf("%s total %s", scope.client.Name, period.Key()),
		Channel:      billingdomain.ChannelTotal,
		Quantity:     total.Total(),
		UnitPriceHT:  decimal.Zero,
		UnitPriceTTC: decimal.Zero,
		TotalHT:      amount.TotalHT,
		TotalTTC:     amount.TotalTTC,
	}

	return &billingdomain.Invoice{
		ClientID:   scope.client.ID,
		ClientName: scope.client.Name,
		Period:     period,
		Currency:   rules.Currency,
		Lines:      lines,
		Totals:     totals,
		Amount:     amount,
		Failures:   uniqueFailures(failures),
	}, nil
}

func invoiceLine(description, deviceID string, channel billingdomain.Channel, quantity int64, unitHT, unitTTC, taxFactor decimal.Decimal) billingdomain.InvoiceLine {
	totalHT := unitHT.Mul(decimal.NewFromInt(quantity))
	return billingdomain.InvoiceLine{
		Description:  description,
		DeviceID:     deviceID,
		Channel:      channel,
		Quantity:     quantity,
		UnitPriceHT:  unitHT,
		UnitPriceTTC: unitTTC,
		TotalHT:      totalHT,
		TotalTTC:     totalHT.Mul(taxFactor),
	}
}
