package service

import (
	"context"
	"errors"
	"fmt"

	billingdomain "github.com/smallbiznis/copybill/internal/billing/domain"
	billingperioddomain "github.com/smallbiznis/copybill/internal/billingperiod/domain"
	consumptiondomain "github.com/smallbiznis/copybill/internal/consumption/domain"
	devicedomain "github.com/smallbiznis/copybill/internal/device/domain"
	obscontext "github.com/smallbiznis/copybill/internal/observability/context"
	pricingdomain "github.com/smallbiznis/copybill/internal/pricing/domain"
	readingdomain "github.com/smallbiznis/copybill/internal/reading/domain"
	"go.opentelemetry.io/otel/attribute"
)

// DeviceConsumption reports a single device over the period containing req.Date.
// Identifiers seen only in readings are answered as unregistered devices.
func (s *Service) DeviceConsumption(ctx context.Context, req billingdomain.DeviceRequest) (result *billingdomain.DeviceUsage, err error) {
	deviceID := readingdomain.NormalizeDeviceID(req.DeviceID)
	ctx, finish := s.start(ctx, "device_consumption", attribute.String("device_id", deviceID))
	defer finish(&err)

	convention, err := consumptiondomain.ParseConvention(string(req.Convention))
	if err != nil {
		return nil, err
	}
	if deviceID == "" {
		return nil, readingdomain.ErrInvalidDeviceID
	}
	rules, err := s.pricing.Rules(pricingdomain.RuleSetDebt)
	if err != nil {
		return nil, err
	}

	device, err := s.registry.FindByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	period := s.resolver.Resolve(s.referenceDate(req.Date))

	res, err := s.deviceDelta(ctx, deviceID, period, convention)
	if err != nil {
		return nil, err
	}
	if device == nil && res == nil {
		return nil, billingdomain.ErrDeviceNotFound
	}

	usage := &billingdomain.DeviceUsage{
		DeviceID:   deviceID,
		Label:      deviceID,
		Registered: device != nil,
		Period:     period,
		Convention: convention,
		Status:     billingdomain.StatusNoData,
		Result:     res,
	}
	var delta consumptiondomain.Counters
	if res != nil {
		usage.Status = res.Status
		delta = res.Delta
	}

	amount := pricingdomain.ZeroAmount(rules.Currency)
	if device != nil {
		usage.Label = device.Label()
		client, err := s.owner(ctx, device)
		if err != nil {
			return nil, err
		}
		if client != nil {
			usage.ClientID = &client.ID
			usage.ClientName = client.Name
			amount = s.pricing.Price(delta, rules)
		}
	}
	usage.Aggregate = billingdomain.NewAggregate(delta, amount)
	return usage, nil
}

// deviceDelta runs the calculator for one convention under the fetch deadline. A
// deadline hit while the caller is still waiting counts as missing data.
func (s *Service) deviceDelta(
	ctx context.Context,
	deviceID string,
	period billingperioddomain.Period,
	convention consumptiondomain.Convention,
) (*consumptiondomain.Result, error) {
	fetchCtx := obscontext.WithDeviceID(ctx, deviceID)
	if timeout := s.config.Get().DeviceFetchTimeout; timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(fetchCtx, timeout)
		defer cancel()
	}

	var (
		res *consumptiondomain.Result
		err error
	)
	switch convention {
	case consumptiondomain.ConventionLifetime:
		res, err = s.calc.LifetimeDelta(fetchCtx, deviceID, period)
	default:
		res, err = s.calc.PeriodDelta(fetchCtx, deviceID, period)
	}
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: device %s fetch timed out", readingdomain.ErrDataUnavailable, deviceID)
	}
	return res, err
}

// owner returns nil for devices no known client owns.
func (s *Service) owner(ctx context.Context, device *devicedomain.Device) (*devicedomain.Client, error) {
	if !device.Attributed() {
		return nil, nil
	}
	client, err := s.registry.FindClient(ctx, *device.ClientID)
	if errors.Is(err, devicedomain.ErrClientNotFound) {
		return nil, nil
	}
	return client, err
}
