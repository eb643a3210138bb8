package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	billingdomain "github.com/smallbiznis/copybill/internal/billing/domain"
	billingperioddomain "github.com/smallbiznis/copybill/internal/billingperiod/domain"
	consumptiondomain "github.com/smallbiznis/copybill/internal/consumption/domain"
	obscontext "github.com/smallbiznis/copybill/internal/observability/context"
	"github.com/smallbiznis/copybill/internal/observability/logger"
	pricingdomain "github.com/smallbiznis/copybill/internal/pricing/domain"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const maxHistoryPeriods = 120

func (s *Service) ClientDebt(ctx context.Context, req billingdomain.DebtRequest) (result *billingdomain.DebtResult, err error) {
	ctx, finish := s.start(ctx, "client_debt", attribute.String("client_id", req.ClientID.String()))
	defer finish(&err)

	convention, rules, err := s.debtInputs(req.Convention, req.RuleSet)
	if err != nil {
		return nil, err
	}
	if req.ClientID <= 0 {
		return nil, billingdomain.ErrInvalidClient
	}
	ctx = obscontext.WithClientID(ctx, req.ClientID.String())

	period := s.resolver.Resolve(s.referenceDate(req.Date))
	key := debtCacheKey(req.ClientID.Int64(), period, convention, rules)
	if cached := s.cachedDebt(ctx, key); cached != nil {
		return cached, nil
	}

	scope, err := s.loadClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	series, failures, err := s.computeDevices(ctx, scope.devices, []billingperioddomain.Period{period}, convention)
	if err != nil {
		return nil, err
	}

	debt := s.buildDebt(scope, period, convention, rules, series, 0, failures)
	if len(failures) == 0 {
		s.storeDebt(ctx, key, debt)
	}
	return &debt, nil
}

func (s *Service) ClientHistory(ctx context.Context, req billingdomain.HistoryRequest) (results []billingdomain.DebtResult, err error) {
	ctx, finish := s.start(ctx, "client_history", attribute.String("client_id", req.ClientID.String()))
	defer finish(&err)

	convention, rules, err := s.debtInputs(req.Convention, req.RuleSet)
	if err != nil {
		return nil, err
	}
	if req.ClientID <= 0 {
		return nil, billingdomain.ErrInvalidClient
	}
	if req.Periods > maxHistoryPeriods {
		return nil, billingperioddomain.ErrInvalidPeriodCount
	}
	order := req.Order
	if order == "" {
		order = billingperioddomain.OrderNewestFirst
	}
	periods, err := s.resolver.Enumerate(s.referenceDate(req.Date), req.Periods, order)
	if err != nil {
		return nil, err
	}
	ctx = obscontext.WithClientID(ctx, req.ClientID.String())

	scope, err := s.loadClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	series, failures, err := s.computeDevices(ctx, scope.devices, periods, convention)
	if err != nil {
		return nil, err
	}

	results = make([]billingdomain.DebtResult, 0, len(periods))
	for i, period := range periods {
		results = append(results, s.buildDebt(scope, period, convention, rules, series, i, failures))
	}
	return results, nil
}

func (s *Service) AllClientDebts(ctx context.Context, req billingdomain.BatchRequest) (result *billingdomain.BatchResult, err error) {
	ctx, finish := s.start(ctx, "all_client_debts")
	defer finish(&err)

	if _, _, err = s.debtInputs(req.Convention, req.RuleSet); err != nil {
		return nil, err
	}

	clients, err := s.registry.ListClients(ctx)
	if err != nil {
		return nil, err
	}

	// Every client is priced against the same period even if the clock rolls over mid-batch.
	date := s.referenceDate(req.Date)

	type outcome struct {
		debt    *billingdomain.DebtResult
		failure *billingdomain.Failure
		err     error
	}

	workers := s.config.Get().MaxConcurrency
	if workers <= 0 {
		workers = 1
	}
	p := pool.NewWithResults[outcome]().WithMaxGoroutines(workers)
	for _, client := range clients {
		client := client
		p.Go(func() outcome {
			debt, err := s.ClientDebt(ctx, billingdomain.DebtRequest{
				ClientID:   client.ID,
				Date:       date,
				Convention: req.Convention,
				RuleSet:    req.RuleSet,
			})
			if err != nil {
				if ctx.Err() != nil {
					return outcome{err: ctx.Err()}
				}
				logger.WithContext(ctx, s.log).Warn("client excluded from batch",
					zap.String("client_id", client.ID.String()),
					zap.Error(err),
				)
				return outcome{failure: &billingdomain.Failure{ID: client.ID.String(), Reason: failureReason(err)}}
			}
			return outcome{debt: debt}
		})
	}
	outcomes := p.Wait()

	result = &billingdomain.BatchResult{
		Results:  make([]billingdomain.DebtResult, 0, len(outcomes)),
		Failures: []billingdomain.Failure{},
	}
	for _, o := range outcomes {
		switch {
		case o.err != nil:
			return nil, o.err
		case o.failure != nil:
			result.Failures = append(result.Failures, *o.failure)
		default:
			result.Results = append(result.Results, *o.debt)
		}
	}
	sort.Slice(result.Results, func(i, j int) bool { return result.Results[i].ClientID < result.Results[j].ClientID })
	sort.Slice(result.Failures, func(i, j int) bool { return result.Failures[i].ID < result.Failures[j].ID })
	return result, nil
}

func (s *Service) debtInputs(convention consumptiondomain.Convention, ruleSet pricingdomain.RuleSet) (consumptiondomain.Convention, pricingdomain.Rules, error) {
	parsed, err := consumptiondomain.ParseConvention(string(convention))
	if err != nil {
		return "", pricingdomain.Rules{}, err
	}
	if ruleSet == "" {
		ruleSet = pricingdomain.RuleSetDebt
	}
	rules, err := s.pricing.Rules(ruleSet)
	if err != nil {
		return "", pricingdomain.Rules{}, err
	}
	return parsed, rules, nil
}

func (s *Service) buildDebt(
	scope *clientScope,
	period billingperioddomain.Period,
	convention consumptiondomain.Convention,
	rules pricingdomain.Rules,
	series []deviceSeries,
	i int,
	failures []billingdomain.Failure,
) billingdomain.DebtResult {
	delta, devices := sumPeriod(series, i)
	return billingdomain.DebtResult{
		ClientID:    scope.client.ID,
		ClientName:  scope.client.Name,
		Period:      period,
		Convention:  convention,
		RuleSet:     rules.Name,
		Aggregate:   billingdomain.NewAggregate(delta, s.pricing.Price(delta, rules)),
		DeviceCount: len(scope.devices),
		Devices:     devices,
		Failures:    uniqueFailures(failures),
	}
}

func debtCacheKey(clientID int64, period billingperioddomain.Period, convention consumptiondomain.Convention, rules pricingdomain.Rules) string {
	return fmt.Sprintf("debt:%d:%s:%s:%s:%s",
		clientID,
		period.Start.UTC().Format(time.RFC3339),
		convention,
		rules.Name,
		rulesFingerprint(rules),
	)
}

// rulesFingerprint changes whenever a reloaded pricing table would change the figure.
func rulesFingerprint(rules pricingdomain.Rules) string {
	return fmt.Sprintf("%s|%d|%s|%s|%s",
		rules.Currency,
		rules.FreeBWThreshold,
		rules.BWUnitPrice.String(),
		rules.ColorUnitPrice.String(),
		rules.TaxRate.String(),
	)
}

func (s *Service) cachedDebt(ctx context.Context, key string) *billingdomain.DebtResult {
	if s.config.Get().ResultCacheTTL <= 0 {
		return nil
	}
	var cached billingdomain.DebtResult
	ok, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.metrics.RecordResultCache(ctx, "error")
		logger.WithContext(ctx, s.log).Warn("result cache read failed", zap.Error(err))
		return nil
	}
	if !ok {
		s.metrics.RecordResultCache(ctx, "miss")
		return nil
	}
	s.metrics.RecordResultCache(ctx, "hit")
	return &cached
}

func (s *Service) storeDebt(ctx context.Context, key string, debt billingdomain.DebtResult) {
	ttl := s.config.Get().ResultCacheTTL
	if ttl <= 0 {
		return
	}
	if err := s.cache.Set(ctx, key, debt, ttl); err != nil {
		s.metrics.RecordResultCache(ctx, "error")
		logger.WithContext(ctx, s.log).Warn("result cache write failed", zap.Error(err))
	}
}
