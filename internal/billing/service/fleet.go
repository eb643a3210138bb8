package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/copybill/internal/billing/domain"
	billingperioddomain "github.com/smallbiznis/copybill/internal/billingperiod/domain"
	consumptiondomain "github.com/smallbiznis/copybill/internal/consumption/domain"
	devicedomain "github.com/smallbiznis/copybill/internal/device/domain"
	"github.com/smallbiznis/copybill/internal/observability/logger"
	pricingdomain "github.com/smallbiznis/copybill/internal/pricing/domain"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	maxSeriesBuckets = 3700
	// readingSourcesID labels the failure reported when orphan discovery cannot run.
	readingSourcesID = "reading_sources"
)

// fleetScope groups every known device by owner. Devices attributed to an unknown
// client and devices that only appear in readings are unattributed.
type fleetScope struct {
	clients      []devicedomain.Client
	byClient     map[snowflake.ID][]devicedomain.Device
	unattributed []devicedomain.Device
	failures     []billingdomain.Failure
}

func (s *Service) loadFleet(ctx context.Context) (*fleetScope, error) {
	clients, err := s.registry.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	devices, err := s.registry.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	known := lo.SliceToMap(clients, func(c devicedomain.Client) (snowflake.ID, struct{}) { return c.ID, struct{}{} })
	scope := &fleetScope{clients: clients, byClient: map[snowflake.ID][]devicedomain.Device{}}
	registered := make(map[string]struct{}, len(devices))
	for _, d := range devices {
		if d.DeviceID != "" {
			registered[d.DeviceID] = struct{}{}
		}
		if d.Attributed() {
			if _, ok := known[*d.ClientID]; ok {
				scope.byClient[*d.ClientID] = append(scope.byClient[*d.ClientID], d)
				continue
			}
		}
		scope.unattributed = append(scope.unattributed, d)
	}

	ids, err := s.readings.DeviceIDs(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.WithContext(ctx, s.log).Warn("orphan device discovery skipped", zap.Error(err))
		scope.failures = append(scope.failures, billingdomain.Failure{ID: readingSourcesID, Reason: failureReason(err)})
		return scope, nil
	}
	for _, id := range ids {
		if _, ok := registered[id]; ok {
			continue
		}
		scope.unattributed = append(scope.unattributed, devicedomain.Device{DeviceID: id, MacAddress: id})
	}
	return scope, nil
}

// FleetConsumption reports period consumption per client, plus what no client owns.
// Unattributed pages count toward the totals but carry no amount.
func (s *Service) FleetConsumption(ctx context.Context, req billingdomain.FleetRequest) (result *billingdomain.FleetResult, err error) {
	ctx, finish := s.start(ctx, "fleet_consumption")
	defer finish(&err)

	rules, err := s.pricing.Rules(pricingdomain.RuleSetDebt)
	if err != nil {
		return nil, err
	}
	period := s.resolver.Resolve(s.referenceDate(req.Date))
	periods := []billingperioddomain.Period{period}
	convention := consumptiondomain.ConventionPeriod

	var (
		clients      []devicedomain.Client
		byClient     = map[snowflake.ID][]devicedomain.Device{}
		unattributed []devicedomain.Device
		failures     []billingdomain.Failure
	)
	if req.ClientID != nil {
		scope, err := s.loadClient(ctx, *req.ClientID)
		if err != nil {
			return nil, err
		}
		clients = []devicedomain.Client{scope.client}
		byClient[scope.client.ID] = scope.devices
	} else {
		fleet, err := s.loadFleet(ctx)
		if err != nil {
			return nil, err
		}
		clients, byClient, unattributed, failures = fleet.clients, fleet.byClient, fleet.unattributed, fleet.failures
	}

	result = &billingdomain.FleetResult{
		Period:  period,
		Clients: make([]billingdomain.ClientConsumption, 0, len(clients)),
	}
	var grand consumptiondomain.Counters
	totalAmount := pricingdomain.ZeroAmount(rules.Currency)

	for _, client := range clients {
		devices := byClient[client.ID]
		series, deviceFailures, err := s.computeDevices(ctx, devices, periods, convention)
		if err != nil {
			return nil, err
		}
		failures = append(failures, deviceFailures...)
		delta, _ := sumPeriod(series, 0)
		amount := s.pricing.Price(delta, rules)
		grand = grand.Add(delta)
		totalAmount = totalAmount.Add(amount)
		result.Clients = append(result.Clients, billingdomain.ClientConsumption{
			ClientID:    client.ID,
			Name:        client.Name,
			DeviceCount: len(devices),
			Aggregate:   billingdomain.NewAggregate(delta, amount),
		})
	}

	series, deviceFailures, err := s.computeDevices(ctx, unattributed, periods, convention)
	if err != nil {
		return nil, err
	}
	failures = append(failures, deviceFailures...)
	orphanDelta, _ := sumPeriod(series, 0)
	grand = grand.Add(orphanDelta)
	result.Unattributed = billingdomain.UnattributedConsumption{
		DeviceCount: len(unattributed),
		Aggregate:   billingdomain.NewAggregate(orphanDelta, pricingdomain.ZeroAmount(rules.Currency)),
	}

	result.Total = billingdomain.NewAggregate(grand, totalAmount)
	result.Failures = uniqueFailures(failures)
	return result, nil
}

// FleetUsageSeries buckets page counts by calendar day, month or year in the billing location.
func (s *Service) FleetUsageSeries(ctx context.Context, req billingdomain.SeriesRequest) (result *billingdomain.Series, err error) {
	ctx, finish := s.start(ctx, "fleet_usage_series")
	defer finish(&err)

	granularity, err := billingdomain.ParseGranularity(string(req.Granularity))
	if err != nil {
		return nil, err
	}
	buckets, err := calendarBuckets(req.From, req.To, granularity, s.resolver.Location())
	if err != nil {
		return nil, err
	}

	var (
		devices  []devicedomain.Device
		failures []billingdomain.Failure
	)
	if req.ClientID != nil {
		scope, err := s.loadClient(ctx, *req.ClientID)
		if err != nil {
			return nil, err
		}
		devices = scope.devices
	} else {
		fleet, err := s.loadFleet(ctx)
		if err != nil {
			return nil, err
		}
		for _, client := range fleet.clients {
			devices = append(devices, fleet.byClient[client.ID]...)
		}
		devices = append(devices, fleet.unattributed...)
		failures = fleet.failures
	}

	series, deviceFailures, err := s.computeDevices(ctx, devices, buckets, consumptiondomain.ConventionPeriod)
	if err != nil {
		return nil, err
	}
	failures = append(failures, deviceFailures...)

	result = &billingdomain.Series{
		Granularity: granularity,
		Buckets:     make([]billingdomain.Bucket, 0, len(buckets)),
	}
	for i, bucket := range buckets {
		delta, _ := sumPeriod(series, i)
		result.Buckets = append(result.Buckets, billingdomain.Bucket{
			Start:      bucket.Start,
			End:        bucket.End,
			BW:         delta.BW,
			Color:      delta.Color,
			TotalPages: delta.Total(),
		})
	}
	result.Failures = uniqueFailures(failures)
	return result, nil
}

// calendarBuckets covers [from, to) with buckets aligned on the granularity.
// The first bucket starts at the boundary at or before from.
func calendarBuckets(from, to time.Time, g billingdomain.Granularity, loc *time.Location) ([]billingperioddomain.Period, error) {
	if from.IsZero() || to.IsZero() || !to.After(from) {
		return nil, billingperioddomain.ErrInvalidPeriod
	}
	if loc == nil {
		loc = time.UTC
	}

	from = from.In(loc)
	var start time.Time
	var step func(time.Time) time.Time
	switch g {
	case billingdomain.GranularityDay:
		start = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
		step = func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
	case billingdomain.GranularityMonth:
		start = time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, loc)
		step = func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }
	case billingdomain.GranularityYear:
		start = time.Date(from.Year(), time.January, 1, 0, 0, 0, 0, loc)
		step = func(t time.Time) time.Time { return t.AddDate(1, 0, 0) }
	default:
		return nil, billingdomain.ErrInvalidGranularity
	}

	var buckets []billingperioddomain.Period
	for start.Before(to) {
		if len(buckets) >= maxSeriesBuckets {
			return nil, billingperioddomain.ErrInvalidPeriodCount
		}
		end := step(start)
		buckets = append(buckets, billingperioddomain.Period{Start: start, End: end})
		start = end
	}
	return buckets, nil
}

