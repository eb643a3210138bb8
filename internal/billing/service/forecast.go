package service

import (
	"context"
	"math"

	billingdomain "github.com/smallbiznis/copybill/internal/billing/domain"
	billingperioddomain "github.com/smallbiznis/copybill/internal/billingperiod/domain"
	consumptiondomain "github.com/smallbiznis/copybill/internal/consumption/domain"
	obscontext "github.com/smallbiznis/copybill/internal/observability/context"
	pricingdomain "github.com/smallbiznis/copybill/internal/pricing/domain"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
)

const maxForecastAhead = 24

// ClientForecast fits a linear trend over the configured window of periods and
// projects page counts forward, priced with the debt rules.
func (s *Service) ClientForecast(ctx context.Context, req billingdomain.ForecastRequest) (result *billingdomain.ForecastResult, err error) {
	ctx, finish := s.start(ctx, "client_forecast", attribute.String("client_id", req.ClientID.String()))
	defer finish(&err)

	if req.ClientID <= 0 {
		return nil, billingdomain.ErrInvalidClient
	}
	if req.Ahead < 1 || req.Ahead > maxForecastAhead {
		return nil, billingdomain.ErrInvalidForecast
	}
	rules, err := s.pricing.Rules(pricingdomain.RuleSetDebt)
	if err != nil {
		return nil, err
	}

	window := s.config.Get().ForecastWindow
	periods, err := s.resolver.Enumerate(s.referenceDate(req.Date), window, billingperioddomain.OrderOldestFirst)
	if err != nil {
		return nil, err
	}
	ctx = obscontext.WithClientID(ctx, req.ClientID.String())

	scope, err := s.loadClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	convention := consumptiondomain.ConventionPeriod
	series, failures, err := s.computeDevices(ctx, scope.devices, periods, convention)
	if err != nil {
		return nil, err
	}

	basis := make([]billingdomain.DebtResult, 0, len(periods))
	for i, period := range periods {
		basis = append(basis, s.buildDebt(scope, period, convention, rules, series, i, failures))
	}

	bw := lo.Map(basis, func(d billingdomain.DebtResult, _ int) float64 { return float64(d.BW) })
	color := lo.Map(basis, func(d billingdomain.DebtResult, _ int) float64 { return float64(d.Color) })
	bwIntercept, bwSlope := leastSquares(bw)
	colorIntercept, colorSlope := leastSquares(color)

	projections := make([]billingdomain.Projection, 0, req.Ahead)
	period := periods[len(periods)-1]
	for k := 1; k <= req.Ahead; k++ {
		period = s.resolver.Next(period)
		x := float64(len(basis) - 1 + k)
		delta := consumptiondomain.Counters{
			BW:    projectPages(bwIntercept, bwSlope, x),
			Color: projectPages(colorIntercept, colorSlope, x),
		}
		projections = append(projections, billingdomain.Projection{
			Period:    period,
			Aggregate: billingdomain.NewAggregate(delta, s.pricing.Price(delta, rules)),
		})
	}

	return &billingdomain.ForecastResult{
		ClientID:    scope.client.ID,
		Basis:       basis,
		Projections: projections,
		Trend:       billingdomain.Trend{BWSlope: bwSlope, ColorSlope: colorSlope},
		Failures:    uniqueFailures(failures),
	}, nil
}

// leastSquares fits y = a + b*x over x = 0..n-1.
func leastSquares(ys []float64) (intercept, slope float64) {
	n := float64(len(ys))
	if n == 0 {
		return 0, 0
	}
	if n == 1 {
		return ys[0], 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return sumY / n, 0
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return intercept, slope
}

func projectPages(intercept, slope, x float64) int64 {
	v := math.Round(intercept + slope*x)
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return int64(v)
}
