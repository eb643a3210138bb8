package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/copybill/internal/billing/domain"
	billingperioddomain "github.com/smallbiznis/copybill/internal/billingperiod/domain"
	"github.com/smallbiznis/copybill/internal/cache"
	"github.com/smallbiznis/copybill/internal/clock"
	"github.com/smallbiznis/copybill/internal/config"
	consumptiondomain "github.com/smallbiznis/copybill/internal/consumption/domain"
	devicedomain "github.com/smallbiznis/copybill/internal/device/domain"
	obscontext "github.com/smallbiznis/copybill/internal/observability/context"
	"github.com/smallbiznis/copybill/internal/observability/logger"
	"github.com/smallbiznis/copybill/internal/observability/metrics"
	"github.com/smallbiznis/copybill/internal/observability/tracing"
	pricingdomain "github.com/smallbiznis/copybill/internal/pricing/domain"
	readingdomain "github.com/smallbiznis/copybill/internal/reading/domain"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log        *zap.Logger
	Config     *config.BillingConfigHolder
	Clock      clock.Clock
	Resolver   billingperioddomain.Resolver
	Registry   devicedomain.Registry
	Readings   readingdomain.Store
	Calculator consumptiondomain.Calculator
	Pricing    pricingdomain.Engine
	Cache      cache.ResultCache `optional:"true"`
	Metrics    *metrics.Metrics  `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	config   *config.BillingConfigHolder
	clock    clock.Clock
	resolver billingperioddomain.Resolver
	registry devicedomain.Registry
	readings readingdomain.Store
	calc     consumptiondomain.Calculator
	pricing  pricingdomain.Engine
	cache    cache.ResultCache
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

func NewService(p ServiceParam) billingdomain.Service {
	resultCache := p.Cache
	if resultCache == nil {
		resultCache = cache.NoopResultCache{}
	}
	return &Service{
		log:      p.Log.Named("billing.service"),
		config:   p.Config,
		clock:    p.Clock,
		resolver: p.Resolver,
		registry: p.Registry,
		readings: p.Readings,
		calc:     p.Calculator,
		pricing:  p.Pricing,
		cache:    resultCache,
		metrics:  p.Metrics,
		tracer:   tracing.Tracer("billing"),
	}
}

// start opens a span and returns a finisher that records the outcome.
func (s *Service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	ctx, span := s.tracer.Start(ctx, "billing."+op, trace.WithAttributes(tracing.SafeAttributes(attrs...)...))
	begin := time.Now()
	return ctx, func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}
		s.metrics.RecordOperation(ctx, op, time.Since(begin), err)
		tracing.EndSpan(span, err)
	}
}

func (s *Service) referenceDate(d time.Time) time.Time {
	if d.IsZero() {
		return s.clock.Now()
	}
	return d
}

type clientScope struct {
	client  devicedomain.Client
	devices []devicedomain.Device
}

func (s *Service) loadClient(ctx context.Context, clientID snowflake.ID) (*clientScope, error) {
	if clientID <= 0 {
		return nil, billingdomain.ErrInvalidClient
	}
	client, err := s.registry.FindClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	devices, err := s.registry.ListByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return &clientScope{client: *client, devices: devices}, nil
}

// deviceSeries is one device's results aligned with the requested periods.
// A nil entry means the device has never reported.
type deviceSeries struct {
	device  devicedomain.Device
	results []*consumptiondomain.Result
}

// computeDevices runs each device independently under the configured fetch deadline.
// A device that fails is reported and skipped; only cancellation of ctx aborts.
func (s *Service) computeDevices(
	ctx context.Context,
	devices []devicedomain.Device,
	periods []billingperioddomain.Period,
	convention consumptiondomain.Convention,
) ([]deviceSeries, []billingdomain.Failure, error) {
	timeout := s.config.Get().DeviceFetchTimeout
	out := make([]deviceSeries, 0, len(devices))
	var failures []billingdomain.Failure

	for _, device := range devices {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		results, err := s.deviceResults(ctx, device, periods, convention, timeout)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, ctxErr
			}
			reason := failureReason(err)
			failures = append(failures, billingdomain.Failure{ID: deviceKey(device), Reason: reason})
			s.metrics.RecordDeviceFailure(ctx, reason)
			logger.WithContext(ctx, s.log).Warn("device excluded from aggregate",
				zap.String("device_id", deviceKey(device)),
				zap.String("reason", reason),
				zap.Error(err),
			)
			continue
		}
		out = append(out, deviceSeries{device: device, results: results})
	}
	return out, failures, nil
}

func (s *Service) deviceResults(
	ctx context.Context,
	device devicedomain.Device,
	periods []billingperioddomain.Period,
	convention consumptiondomain.Convention,
	timeout time.Duration,
) ([]*consumptiondomain.Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	ctx = obscontext.WithDeviceID(ctx, device.DeviceID)
	return s.calc.Series(ctx, device.DeviceID, periods, convention)
}

// sumPeriod adds up the devices' deltas for the period at index i.
func sumPeriod(series []deviceSeries, i int) (consumptiondomain.Counters, []billingdomain.DeviceConsumption) {
	var total consumptiondomain.Counters
	devices := make([]billingdomain.DeviceConsumption, 0, len(series))
	for _, ds := range series {
		entry := billingdomain.DeviceConsumption{
			DeviceID: ds.device.DeviceID,
			Label:    ds.device.Label(),
			Status:   billingdomain.StatusNoData,
		}
		if res := ds.results[i]; res != nil {
			entry.Status = res.Status
			entry.Delta = res.Delta
			total = total.Add(res.Delta)
		}
		devices = append(devices, entry)
	}
	return total, devices
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, readingdomain.ErrDataUnavailable), errors.Is(err, context.DeadlineExceeded):
		return readingdomain.ErrDataUnavailable.Error()
	case errors.Is(err, readingdomain.ErrInvalidDeviceID):
		return readingdomain.ErrInvalidDeviceID.Error()
	case errors.Is(err, devicedomain.ErrClientNotFound):
		return devicedomain.ErrClientNotFound.Error()
	default:
		return "internal_error"
	}
}

func deviceKey(d devicedomain.Device) string {
	if d.DeviceID != "" {
		return d.DeviceID
	}
	return d.ID.String()
}

// nonNil keeps JSON output as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// uniqueFailures keeps the first failure reported per id.
func uniqueFailures(failures []billingdomain.Failure) []billingdomain.Failure {
	return nonNil(lo.UniqBy(failures, func(f billingdomain.Failure) string { return f.ID }))
}
