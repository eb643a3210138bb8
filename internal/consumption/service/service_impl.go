package service

import (
	"context"

	billingperioddomain "github.com/smallbiznis/copybill/internal/billingperiod/domain"
	consumptiondomain "github.com/smallbiznis/copybill/internal/consumption/domain"
	"github.com/smallbiznis/copybill/internal/observability/metrics"
	readingdomain "github.com/smallbiznis/copybill/internal/reading/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log     *zap.Logger
	Store   readingdomain.Store
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	store   readingdomain.Store
	metrics *metrics.Metrics
}

func NewService(p ServiceParam) consumptiondomain.Calculator {
	return &Service{
		log:     p.Log.Named("consumption.service"),
		store:   p.Store,
		metrics: p.Metrics,
	}
}

func (s *Service) LifetimeDelta(ctx context.Context, deviceID string, period billingperioddomain.Period) (*consumptiondomain.Result, error) {
	return s.single(ctx, deviceID, period, consumptiondomain.ConventionLifetime)
}

func (s *Service) PeriodDelta(ctx context.Context, deviceID string, period billingperioddomain.Period) (*consumptiondomain.Result, error) {
	return s.single(ctx, deviceID, period, consumptiondomain.ConventionPeriod)
}

func (s *Service) Series(ctx context.Context, deviceID string, periods []billingperioddomain.Period, convention consumptiondomain.Convention) ([]*consumptiondomain.Result, error) {
	if _, err := consumptiondomain.ParseConvention(string(convention)); err != nil {
		return nil, err
	}
	for _, p := range periods {
		if !p.End.After(p.Start) {
			return nil, billingperioddomain.ErrInvalidPeriod
		}
	}

	// Baseline needs the full history, so no range is pushed down to the store.
	readings, err := s.store.Readings(ctx, deviceID, readingdomain.Range{})
	if err != nil {
		return nil, err
	}

	results := make([]*consumptiondomain.Result, len(periods))
	for i, p := range periods {
		results[i] = Compute(readings, p, convention)
		if results[i] != nil {
			s.metrics.RecordDeviceComputation(ctx, string(convention), string(results[i].Status))
		}
	}
	return results, nil
}

func (s *Service) single(ctx context.Context, deviceID string, period billingperioddomain.Period, convention consumptiondomain.Convention) (*consumptiondomain.Result, error) {
	results, err := s.Series(ctx, deviceID, []billingperioddomain.Period{period}, convention)
	if err != nil {
		return nil, err
	}
	return results[0], nil
}
