package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/copybill/internal/billing/domain"
	billingperiodservice "github.com/smallbiznis/copybill/internal/billingperiod/service"
	"github.com/smallbiznis/copybill/internal/cache"
	"github.com/smallbiznis/copybill/internal/clock"
	"github.com/smallbiznis/copybill/internal/config"
	consumptiondomain "github.com/smallbiznis/copybill/internal/consumption/domain"
	consumptionservice "github.com/smallbiznis/copybill/internal/consumption/service"
	devicedomain "github.com/smallbiznis/copybill/internal/device/domain"
	pricingdomain "github.com/smallbiznis/copybill/internal/pricing/domain"
	pricingservice "github.com/smallbiznis/copybill/internal/pricing/service"
	readingdomain "github.com/smallbiznis/copybill/internal/reading/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	acmeID  = snowflake.ID(10)
	emptyID = snowflake.ID(20)
)

var now = time.Date(2025, time.March, 25, 12, 0, 0, 0, time.UTC)

type registryStub struct {
	clients     []devicedomain.Client
	devices     []devicedomain.Device
	errByClient map[snowflake.ID]error
	// removed clients are still listed but no longer found, as after a mid-batch delete.
	removed map[snowflake.ID]bool
}

func (r *registryStub) FindByDeviceID(_ context.Context, deviceID string) (*devicedomain.Device, error) {
	for _, d := range r.devices {
		if d.DeviceID == deviceID {
			return &d, nil
		}
	}
	return nil, nil
}

func (r *registryStub) ListByClient(_ context.Context, clientID snowflake.ID) ([]devicedomain.Device, error) {
	if err := r.errByClient[clientID]; err != nil {
		return nil, err
	}
	var out []devicedomain.Device
	for _, d := range r.devices {
		if d.ClientID != nil && *d.ClientID == clientID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *registryStub) ListAll(context.Context) ([]devicedomain.Device, error) {
	return r.devices, nil
}

func (r *registryStub) FindClient(_ context.Context, clientID snowflake.ID) (*devicedomain.Client, error) {
	if r.removed[clientID] {
		return nil, devicedomain.ErrClientNotFound
	}
	for _, c := range r.clients {
		if c.ID == clientID {
			return &c, nil
		}
	}
	return nil, devicedomain.ErrClientNotFound
}

func (r *registryStub) ListClients(context.Context) ([]devicedomain.Client, error) {
	return r.clients, nil
}

type storeStub struct {
	mu       sync.Mutex
	readings map[string][]readingdomain.Reading
	errs     map[string]error
	// hang makes a device's fetch wait until its context ends.
	hang  map[string]bool
	calls int
}

func (s *storeStub) Readings(ctx context.Context, deviceID string, _ readingdomain.Range) ([]readingdomain.Reading, error) {
	s.mu.Lock()
	s.calls++
	hang, err, readings := s.hang[deviceID], s.errs[deviceID], s.readings[deviceID]
	s.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return readings, nil
}

func (s *storeStub) DeviceIDs(context.Context) ([]string, error) {
	ids := make([]string, 0, len(s.readings))
	for id := range s.readings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *storeStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func at(month time.Month, day int, bw, color int64) readingdomain.Reading {
	return readingdomain.Reading{
		ID:         snowflake.ID(int64(month)*100 + int64(day)),
		RecordedAt: time.Date(2025, month, day, 8, 0, 0, 0, time.UTC),
		BW:         bw,
		Color:      color,
		Source:     readingdomain.SourceCurrent,
	}
}

func owned(id int64, deviceID, name string, clientID snowflake.ID) devicedomain.Device {
	return devicedomain.Device{ID: snowflake.ID(id), DeviceID: deviceID, MacAddress: deviceID, Name: name, ClientID: &clientID}
}

func fixture() (*registryStub, *storeStub) {
	registry := &registryStub{
		clients: []devicedomain.Client{{ID: acmeID, Name: "Acme"}, {ID: emptyID, Name: "Empty Corp"}},
		devices: []devicedomain.Device{
			owned(1, "aabbcc000001", "Reception", acmeID),
			owned(2, "aabbcc000002", "Accounting", acmeID),
			owned(3, "aabbcc000003", "Warehouse", snowflake.ID(99)),
		},
	}
	store := &storeStub{readings: map[string][]readingdomain.Reading{
		"aabbcc000001": {at(time.March, 1, 100, 10), at(time.March, 21, 600, 10), at(time.April, 10, 1700, 60)},
		"aabbcc000002": {at(time.March, 22, 200, 0), at(time.April, 5, 500, 30)},
		"aabbcc000003": {at(time.March, 19, 0, 0), at(time.April, 1, 50, 5)},
		"deadbeef0001": {at(time.March, 21, 10, 0), at(time.April, 2, 20, 0)},
	}}
	return registry, store
}

type option func(*ServiceParam)

func withCache(c cache.ResultCache) option {
	return func(p *ServiceParam) { p.Cache = c }
}

func withFetchTimeout(d time.Duration) option {
	return func(p *ServiceParam) {
		cfg := config.DefaultBillingConfig()
		cfg.DeviceFetchTimeout = d
		p.Config = config.NewStaticBillingConfigHolder(cfg)
	}
}

func newService(registry devicedomain.Registry, store readingdomain.Store, opts ...option) billingdomain.Service {
	holder := config.NewStaticBillingConfigHolder(config.DefaultBillingConfig())
	p := ServiceParam{
		Log:        zap.NewNop(),
		Config:     holder,
		Clock:      clock.NewFakeClock(now),
		Resolver:   billingperiodservice.NewStaticResolver(20, time.UTC),
		Registry:   registry,
		Readings:   store,
		Calculator: consumptionservice.NewService(consumptionservice.ServiceParam{Log: zap.NewNop(), Store: store}),
		Pricing:    pricingservice.NewService(pricingservice.ServiceParam{Config: holder}),
	}
	for _, opt := range opts {
		opt(&p)
	}
	return NewService(p)
}

func debtRequest(clientID snowflake.ID) billingdomain.DebtRequest {
	return billingdomain.DebtRequest{ClientID: clientID, Convention: consumptiondomain.ConventionPeriod}
}

func TestClientDebt(t *testing.T) {
	registry, store := fixture()
	svc := newService(registry, store)

	debt, err := svc.ClientDebt(context.Background(), debtRequest(acmeID))
	require.NoError(t, err)

	assert.Equal(t, "Acme", debt.ClientName)
	assert.Equal(t, time.Date(2025, time.March, 20, 0, 0, 0, 0, time.UTC), debt.Period.Start)
	assert.Equal(t, 2, debt.DeviceCount)
	assert.Equal(t, int64(1900), debt.BW)
	assert.Equal(t, int64(80), debt.Color)
	assert.Equal(t, int64(1980), debt.TotalPages)
	assert.True(t, decimal.RequireFromString("102.2").Equal(debt.Amount.TotalHT), debt.Amount.TotalHT.String())
	assert.Equal(t, pricingdomain.RuleSetDebt, debt.RuleSet)
	assert.Empty(t, debt.Failures)
	require.Len(t, debt.Devices, 2)
	assert.Equal(t, int64(1600), debt.Devices[0].Delta.BW)
}

func TestClientDebtLifetime(t *testing.T) {
	registry, store := fixture()
	store.readings["aabbcc000001"] = append(
		[]readingdomain.Reading{at(time.January, 5, 0, 0)},
		store.readings["aabbcc000001"]...,
	)
	svc := newService(registry, store)

	period, err := svc.ClientDebt(context.Background(), debtRequest(acmeID))
	require.NoError(t, err)
	assert.Equal(t, int64(1900), period.BW)

	req := debtRequest(acmeID)
	req.Convention = consumptiondomain.ConventionLifetime
	lifetime, err := svc.ClientDebt(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int64(1700+300), lifetime.BW)
	assert.Equal(t, int64(60+30), lifetime.Color)
	assert.Equal(t, consumptiondomain.ConventionLifetime, lifetime.Convention)
}

func TestClientDebtZeroDevices(t *testing.T) {
	registry, store := fixture()
	svc := newService(registry, store)

	debt, err := svc.ClientDebt(context.Background(), debtRequest(emptyID))
	require.NoError(t, err)

	assert.Equal(t, 0, debt.DeviceCount)
	assert.Equal(t, int64(0), debt.TotalPages)
	assert.True(t, debt.Amount.TotalTTC.IsZero())
	assert.NotNil(t, debt.Devices)
	assert.NotNil(t, debt.Failures)
}

func TestClientDebtValidation(t *testing.T) {
	registry, store := fixture()
	svc := newService(registry, store)
	ctx := context.Background()

	_, err := svc.ClientDebt(ctx, debtRequest(0))
	assert.ErrorIs(t, err, billingdomain.ErrInvalidClient)

	_, err = svc.ClientDebt(ctx, debtRequest(snowflake.ID(404)))
	assert.ErrorIs(t, err, devicedomain.ErrClientNotFound)

	_, err = svc.ClientDebt(ctx, billingdomain.DebtRequest{ClientID: acmeID})
	assert.ErrorIs(t, err, consumptiondomain.ErrInvalidConvention)

	req := debtRequest(acmeID)
	req.RuleSet = "wholesale"
	_, err = svc.ClientDebt(ctx, req)
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidRuleSet)

	assert.Zero(t, store.callCount())
}

func TestClientDebtIsolatesDeviceFailure(t *testing.T) {
	registry, store := fixture()
	store.errs = map[string]error{"aabbcc000002": readingdomain.ErrDataUnavailable}
	svc := newService(registry, store)

	debt, err := svc.ClientDebt(context.Background(), debtRequest(acmeID))
	require.NoError(t, err)

	assert.Equal(t, int64(1600), debt.BW)
	assert.Equal(t, []billingdomain.Failure{{ID: "aabbcc000002", Reason: "data_unavailable"}}, debt.Failures)
	assert.Equal(t, 2, debt.DeviceCount)
	assert.Len(t, debt.Devices, 1)
}

func TestClientDebtDeviceFetchDeadline(t *testing.T) {
	registry, store := fixture()
	store.hang = map[string]bool{"aabbcc000002": true}
	svc := newService(registry, store, withFetchTimeout(20*time.Millisecond))

	debt, err := svc.ClientDebt(context.Background(), debtRequest(acmeID))
	require.NoError(t, err)

	assert.Equal(t, []billingdomain.Failure{{ID: "aabbcc000002", Reason: "data_unavailable"}}, debt.Failures)
	require.Len(t, debt.Devices, 1)
	assert.Equal(t, "aabbcc000001", debt.Devices[0].DeviceID)
	assert.Equal(t, int64(1600), debt.BW)
	assert.Equal(t, int64(50), debt.Color)
}

func TestClientDebtCanceled(t *testing.T) {
	registry, store := fixture()
	svc := newService(registry, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.ClientDebt(ctx, debtRequest(acmeID))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClientDebtUsesResultCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	registry, store := fixture()
	svc := newService(registry, store, withCache(cache.NewRedisResultCache(client, "test:")))
	ctx := context.Background()

	first, err := svc.ClientDebt(ctx, debtRequest(acmeID))
	require.NoError(t, err)
	calls := store.callCount()

	second, err := svc.ClientDebt(ctx, debtRequest(acmeID))
	require.NoError(t, err)
	assert.Equal(t, calls, store.callCount())
	assert.Equal(t, first.BW, second.BW)
	assert.True(t, first.Amount.TotalHT.Equal(second.Amount.TotalHT))

	lifetime := debtRequest(acmeID)
	lifetime.Convention = consumptiondomain.ConventionLifetime
	_, err = svc.ClientDebt(ctx, lifetime)
	require.NoError(t, err)
	assert.Greater(t, store.callCount(), calls)
}

func TestClientDebtSkipsCacheOnFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	registry, store := fixture()
	store.errs = map[string]error{"aabbcc000001": readingdomain.ErrDataUnavailable}
	svc := newService(registry, store, withCache(cache.NewRedisResultCache(client, "test:")))
	ctx := context.Background()

	_, err := svc.ClientDebt(ctx, debtRequest(acmeID))
	require.NoError(t, err)
	calls := store.callCount()

	_, err = svc.ClientDebt(ctx, debtRequest(acmeID))
	require.NoError(t, err)
	assert.Greater(t, store.callCount(), calls)
}

func TestClientDebtCacheOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	registry, store := fixture()
	svc := newService(registry, store, withCache(cache.NewRedisResultCache(client, "test:")))

	debt, err := svc.ClientDebt(context.Background(), debtRequest(acmeID))
	require.NoError(t, err)
	assert.Equal(t, int64(1900), debt.BW)
}

func TestClientHistory(t *testing.T) {
	registry, store := fixture()
	svc := newService(registry, store)

	history, err := svc.ClientHistory(context.Background(), billingdomain.HistoryRequest{
		ClientID:   acmeID,
		Periods:    2,
		Convention: consumptiondomain.ConventionPeriod,
	})
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, time.Date(2025, time.March, 20, 0, 0, 0, 0, time.UTC), history[0].Period.Start)
	assert.Equal(t, int64(1900), history[0].BW)
	assert.Equal(t, time.Date(2025, time.February, 20, 0, 0, 0, 0, time.UTC), history[1].Period.Start)
	assert.Equal(t, int64(0), history[1].BW)
	assert.Equal(t, 2, store.callCount())

	_, err = svc.ClientHistory(context.Background(), billingdomain.HistoryRequest{
		ClientID:   acmeID,
		Periods:    0,
		Convention: consumptiondomain.ConventionPeriod,
	})
	assert.Error(t, err)
}

func TestClientForecast(t *testing.T) {
	var readings []readingdomain.Reading
	cumulative := int64(0)
	start := time.Date(2024, time.October, 20, 0, 0, 0, 0, time.UTC)
	for i := 0; i <= 6; i++ {
		readings = append(readings, readingdomain.Reading{
			ID:         snowflake.ID(i + 1),
			RecordedAt: start.AddDate(0, i, 0),
			BW:         cumulative,
			Source:     readingdomain.SourceCurrent,
		})
		cumulative += int64(100 * (i + 1))
	}
	// The last sample closes the current period just before its end.
	readings[6].RecordedAt = readings[6].RecordedAt.Add(-time.Hour)

	registry := &registryStub{
		clients: []devicedomain.Client{{ID: acmeID, Name: "Acme"}},
		devices: []devicedomain.Device{owned(1, "aabbcc000001", "Reception", acmeID)},
	}
	store := &storeStub{readings: map[string][]readingdomain.Reading{"aabbcc000001": readings}}
	svc := newService(registry, store)

	forecast, err := svc.ClientForecast(context.Background(), billingdomain.ForecastRequest{ClientID: acmeID, Ahead: 2})
	require.NoError(t, err)

	require.Len(t, forecast.Basis, 6)
	for i, basis := range forecast.Basis {
		assert.Equal(t, int64(100*(i+1)), basis.BW, "period %d", i)
	}
	assert.InDelta(t, 100, forecast.Trend.BWSlope, 1e-9)
	assert.InDelta(t, 0, forecast.Trend.ColorSlope, 1e-9)

	require.Len(t, forecast.Projections, 2)
	assert.Equal(t, time.Date(2025, time.April, 20, 0, 0, 0, 0, time.UTC), forecast.Projections[0].Period.Start)
	assert.Equal(t, int64(700), forecast.Projections[0].BW)
	assert.Equal(t, int64(800), forecast.Projections[1].BW)
	assert.True(t, forecast.Projections[1].Amount.TotalHT.IsZero())

	_, err = svc.ClientForecast(context.Background(), billingdomain.ForecastRequest{ClientID: acmeID})
	assert.ErrorIs(t, err, billingdomain.ErrInvalidForecast)
}

func TestLeastSquares(t *testing.T) {
	a, b := leastSquares([]float64{5})
	assert.Equal(t, 5.0, a)
	assert.Equal(t, 0.0, b)

	a, b = leastSquares([]float64{10, 8, 6})
	assert.InDelta(t, 10, a, 1e-9)
	assert.InDelta(t, -2, b, 1e-9)

	assert.Equal(t, int64(0), projectPages(10, -2, 9))
}

func TestInvoiceLinesRoundTrip(t *testing.T) {
	registry, store := fixture()
	svc := newService(registry, store)

	invoice, err := svc.InvoiceLines(context.Background(), billingdomain.InvoiceRequest{ClientID: acmeID})
	require.NoError(t, err)

	require.Len(t, invoice.Lines, 4)
	assert.Equal(t, "EUR", invoice.Currency)

	sumHT, sumTTC := decimal.Zero, decimal.Zero
	for _, line := range invoice.Lines {
		sumHT = sumHT.Add(line.TotalHT)
		sumTTC = sumTTC.Add(line.TotalTTC)
	}
	assert.True(t, sumHT.Equal(invoice.Totals.TotalHT), "%s != %s", sumHT, invoice.Totals.TotalHT)
	assert.True(t, sumTTC.Equal(invoice.Totals.TotalTTC), "%s != %s", sumTTC, invoice.Totals.TotalTTC)
	assert.True(t, invoice.Amount.TotalHT.Equal(invoice.Totals.TotalHT))
	assert.True(t, decimal.RequireFromString("102.2").Equal(invoice.Amount.TotalHT))
	assert.True(t, decimal.RequireFromString("122.64").Equal(invoice.Amount.TotalTTC))
	assert.Equal(t, billingdomain.ChannelTotal, invoice.Totals.Channel)
	assert.Equal(t, int64(1980), invoice.Totals.Quantity)
}

func TestInvoiceLinesBelowThreshold(t *testing.T) {
	registry, store := fixture()
	store.readings["aabbcc000001"] = []readingdomain.Reading{at(time.March, 21, 0, 0), at(time.April, 10, 400, 0)}
	svc := newService(registry, store)

	invoice, err := svc.InvoiceLines(context.Background(), billingdomain.InvoiceRequest{ClientID: acmeID})
	require.NoError(t, err)

	for _, line := range invoice.Lines {
		if line.Channel == billingdomain.ChannelBW {
			assert.True(t, line.UnitPriceHT.IsZero())
			assert.True(t, line.TotalHT.IsZero())
		}
	}
	assert.True(t, invoice.Amount.BWHT.IsZero())
}

func TestFleetConsumption(t *testing.T) {
	registry, store := fixture()
	svc := newService(registry, store)

	fleet, err := svc.FleetConsumption(context.Background(), billingdomain.FleetRequest{})
	require.NoError(t, err)

	require.Len(t, fleet.Clients, 2)
	assert.Equal(t, acmeID, fleet.Clients[0].ClientID)
	assert.Equal(t, int64(1900), fleet.Clients[0].BW)
	assert.Equal(t, 0, fleet.Clients[1].DeviceCount)

	assert.Equal(t, 2, fleet.Unattributed.DeviceCount)
	assert.Equal(t, int64(60), fleet.Unattributed.BW)
	assert.Equal(t, int64(5), fleet.Unattributed.Color)
	assert.True(t, fleet.Unattributed.Amount.TotalHT.IsZero())

	assert.Equal(t, int64(1960), fleet.Total.BW)
	assert.Equal(t, int64(85), fleet.Total.Color)
	assert.Equal(t, int64(2045), fleet.Total.TotalPages)
	assert.True(t, fleet.Clients[0].Amount.TotalHT.Equal(fleet.Total.Amount.TotalHT))
	assert.Empty(t, fleet.Failures)
}

func TestFleetConsumptionSingleClient(t *testing.T) {
	registry, store := fixture()
	svc := newService(registry, store)

	id := acmeID
	fleet, err := svc.FleetConsumption(context.Background(), billingdomain.FleetRequest{ClientID: &id})
	require.NoError(t, err)

	require.Len(t, fleet.Clients, 1)
	assert.Equal(t, 0, fleet.Unattributed.DeviceCount)
	assert.Equal(t, int64(1900), fleet.Total.BW)
}

func TestFleetConsumptionEmptyFleet(t *testing.T) {
	svc := newService(&registryStub{}, &storeStub{})

	fleet, err := svc.FleetConsumption(context.Background(), billingdomain.FleetRequest{})
	require.NoError(t, err)

	assert.Empty(t, fleet.Clients)
	assert.Equal(t, 0, fleet.Unattributed.DeviceCount)
	assert.Equal(t, int64(0), fleet.Total.TotalPages)
	assert.True(t, fleet.Total.Amount.TotalHT.IsZero())
	assert.Empty(t, fleet.Failures)
}

func TestDeviceConsumption(t *testing.T) {
	registry, store := fixture()
	store.readings["aabbcc000001"] = append(
		[]readingdomain.Reading{at(time.January, 5, 0, 0)},
		store.readings["aabbcc000001"]...,
	)
	svc := newService(registry, store)
	ctx := context.Background()

	usage, err := svc.DeviceConsumption(ctx, billingdomain.DeviceRequest{
		DeviceID:   "AA:BB:CC:00:00:01",
		Convention: consumptiondomain.ConventionPeriod,
	})
	require.NoError(t, err)
	assert.Equal(t, "aabbcc000001", usage.DeviceID)
	assert.Equal(t, "Reception", usage.Label)
	assert.True(t, usage.Registered)
	require.NotNil(t, usage.ClientID)
	assert.Equal(t, acmeID, *usage.ClientID)
	assert.Equal(t, "Acme", usage.ClientName)
	assert.Equal(t, consumptiondomain.StatusOK, usage.Status)
	assert.Equal(t, int64(1600), usage.BW)
	assert.Equal(t, int64(50), usage.Color)
	assert.True(t, decimal.RequireFromString("84.5").Equal(usage.Amount.TotalHT), usage.Amount.TotalHT.String())
	require.NotNil(t, usage.Result)
	assert.Equal(t, consumptiondomain.ConventionPeriod, usage.Result.Convention)

	lifetime, err := svc.DeviceConsumption(ctx, billingdomain.DeviceRequest{
		DeviceID:   "aabbcc000001",
		Convention: consumptiondomain.ConventionLifetime,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1700), lifetime.BW)
	assert.Equal(t, int64(60), lifetime.Color)
}

func TestDeviceConsumptionWithoutOwner(t *testing.T) {
	registry, store := fixture()
	svc := newService(registry, store)
	ctx := context.Background()

	foreign, err := svc.DeviceConsumption(ctx, billingdomain.DeviceRequest{DeviceID: "aabbcc000003", Convention: consumptiondomain.ConventionPeriod})
	require.NoError(t, err)
	assert.True(t, foreign.Registered)
	assert.Nil(t, foreign.ClientID)
	assert.Equal(t, int64(50), foreign.BW)
	assert.Equal(t, int64(5), foreign.Color)
	assert.True(t, foreign.Amount.TotalHT.IsZero())

	orphan, err := svc.DeviceConsumption(ctx, billingdomain.DeviceRequest{DeviceID: "deadbeef0001", Convention: consumptiondomain.ConventionPeriod})
	require.NoError(t, err)
	assert.False(t, orphan.Registered)
	assert.Nil(t, orphan.ClientID)
	assert.Equal(t, "deadbeef0001", orphan.Label)
	assert.NotEqual(t, billingdomain.StatusNoData, orphan.Status)
	assert.True(t, orphan.Amount.TotalHT.IsZero())
}

func TestDeviceConsumptionErrors(t *testing.T) {
	registry, store := fixture()
	store.hang = map[string]bool{"aabbcc000002": true}
	svc := newService(registry, store, withFetchTimeout(20*time.Millisecond))
	ctx := context.Background()
	period := consumptiondomain.ConventionPeriod

	_, err := svc.DeviceConsumption(ctx, billingdomain.DeviceRequest{DeviceID: "ffffffffffff", Convention: period})
	assert.ErrorIs(t, err, billingdomain.ErrDeviceNotFound)

	_, err = svc.DeviceConsumption(ctx, billingdomain.DeviceRequest{DeviceID: " :: ", Convention: period})
	assert.ErrorIs(t, err, readingdomain.ErrInvalidDeviceID)

	_, err = svc.DeviceConsumption(ctx, billingdomain.DeviceRequest{DeviceID: "aabbcc000001"})
	assert.ErrorIs(t, err, consumptiondomain.ErrInvalidConvention)

	_, err = svc.DeviceConsumption(ctx, billingdomain.DeviceRequest{DeviceID: "aabbcc000002", Convention: period})
	assert.ErrorIs(t, err, readingdomain.ErrDataUnavailable)
}

func TestFleetUsageSeries(t *testing.T) {
	registry, store := fixture()
	svc := newService(registry, store)

	id := acmeID
	series, err := svc.FleetUsageSeries(context.Background(), billingdomain.SeriesRequest{
		From:        time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		To:          time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC),
		Granularity: billingdomain.GranularityMonth,
		ClientID:    &id,
	})
	require.NoError(t, err)

	require.Len(t, series.Buckets, 2)
	assert.Equal(t, int64(500), series.Buckets[0].BW)
	assert.Equal(t, int64(0), series.Buckets[0].Color)
	assert.Equal(t, int64(1400), series.Buckets[1].BW)
	assert.Equal(t, int64(80), series.Buckets[1].Color)
	assert.Equal(t, int64(1480), series.Buckets[1].TotalPages)

	_, err = svc.FleetUsageSeries(context.Background(), billingdomain.SeriesRequest{
		From:        time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		To:          time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC),
		Granularity: "week",
	})
	assert.ErrorIs(t, err, billingdomain.ErrInvalidGranularity)
}

func TestCalendarBuckets(t *testing.T) {
	from := time.Date(2024, time.December, 31, 15, 0, 0, 0, time.UTC)
	to := time.Date(2025, time.January, 2, 1, 0, 0, 0, time.UTC)

	days, err := calendarBuckets(from, to, billingdomain.GranularityDay, time.UTC)
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC), days[0].Start)

	years, err := calendarBuckets(from, to, billingdomain.GranularityYear, time.UTC)
	require.NoError(t, err)
	assert.Len(t, years, 2)

	_, err = calendarBuckets(to, from, billingdomain.GranularityDay, time.UTC)
	assert.Error(t, err)
}

func TestAllClientDebts(t *testing.T) {
	registry, store := fixture()
	registry.clients = append(registry.clients, devicedomain.Client{ID: snowflake.ID(5), Name: "Broken"})
	registry.errByClient = map[snowflake.ID]error{snowflake.ID(5): readingdomain.ErrDataUnavailable}
	svc := newService(registry, store)

	batch, err := svc.AllClientDebts(context.Background(), billingdomain.BatchRequest{Convention: consumptiondomain.ConventionPeriod})
	require.NoError(t, err)

	require.Len(t, batch.Results, 2)
	assert.Equal(t, acmeID, batch.Results[0].ClientID)
	assert.Equal(t, emptyID, batch.Results[1].ClientID)
	assert.Equal(t, batch.Results[0].Period, batch.Results[1].Period)
	assert.Equal(t, []billingdomain.Failure{{ID: "5", Reason: "data_unavailable"}}, batch.Failures)

	_, err = svc.AllClientDebts(context.Background(), billingdomain.BatchRequest{})
	assert.ErrorIs(t, err, consumptiondomain.ErrInvalidConvention)
}

func TestAllClientDebtsClientRemovedMidBatch(t *testing.T) {
	registry, store := fixture()
	registry.clients = append(registry.clients, devicedomain.Client{ID: snowflake.ID(5), Name: "Gone"})
	registry.removed = map[snowflake.ID]bool{snowflake.ID(5): true}
	svc := newService(registry, store)

	batch, err := svc.AllClientDebts(context.Background(), billingdomain.BatchRequest{Convention: consumptiondomain.ConventionPeriod})
	require.NoError(t, err)

	require.Len(t, batch.Results, 2)
	assert.Equal(t, []billingdomain.Failure{{ID: "5", Reason: "client_not_found"}}, batch.Failures)
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "data_unavailable", failureReason(context.DeadlineExceeded))
	assert.Equal(t, "client_not_found", failureReason(fmt.Errorf("lookup: %w", devicedomain.ErrClientNotFound)))
	assert.Equal(t, "invalid_device_id", failureReason(readingdomain.ErrInvalidDeviceID))
	assert.Equal(t, "internal_error", failureReason(errors.New("boom")))
}
