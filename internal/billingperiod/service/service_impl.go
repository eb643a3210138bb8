package service

import (
	"time"

	billingperioddomain "github.com/smallbiznis/copybill/internal/billingperiod/domain"
	"github.com/smallbiznis/copybill/internal/config"
	"go.uber.org/fx"
)

type ResolverParam struct {
	fx.In

	Config *config.BillingConfigHolder
}

// Resolver reads the cycle day and location on every call so reloads apply immediately.
type Resolver struct {
	settings func() (int, *time.Location)
}

func NewResolver(p ResolverParam) billingperioddomain.Resolver {
	return &Resolver{
		settings: func() (int, *time.Location) {
			cfg := p.Config.Get()
			return cfg.CycleDay, cfg.Location()
		},
	}
}

// NewStaticResolver fixes the cycle day and location, for tools and tests.
func NewStaticResolver(cycleDay int, loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{
		settings: func() (int, *time.Location) { return cycleDay, loc },
	}
}

func (r *Resolver) Location() *time.Location {
	_, loc := r.settings()
	return loc
}

// Resolve returns the period containing ref. Bounds sit at midnight of the cycle day.
func (r *Resolver) Resolve(ref time.Time) billingperioddomain.Period {
	cycleDay, loc := r.settings()
	local := ref.In(loc)
	year, month, day := local.Date()

	// time.Date normalizes month 0 to December of the previous year.
	if day < cycleDay {
		month--
	}
	start := time.Date(year, month, cycleDay, 0, 0, 0, 0, loc)
	return billingperioddomain.Period{
		Start: start,
		End:   time.Date(year, month+1, cycleDay, 0, 0, 0, 0, loc),
	}
}

// Enumerate returns count consecutive periods ending with the one containing ref.
func (r *Resolver) Enumerate(ref time.Time, count int, order billingperioddomain.Order) ([]billingperioddomain.Period, error) {
	if count <= 0 {
		return nil, billingperioddomain.ErrInvalidPeriodCount
	}
	if order == "" {
		order = billingperioddomain.OrderNewestFirst
	}
	if order != billingperioddomain.OrderNewestFirst && order != billingperioddomain.OrderOldestFirst {
		return nil, billingperioddomain.ErrInvalidOrder
	}

	periods := make([]billingperioddomain.Period, count)
	current := r.Resolve(ref)
	for i := 0; i < count; i++ {
		idx := i
		if order == billingperioddomain.OrderOldestFirst {
			idx = count - 1 - i
		}
		periods[idx] = current
		current = r.Previous(current)
	}
	return periods, nil
}

func (r *Resolver) Next(p billingperioddomain.Period) billingperioddomain.Period {
	return r.Resolve(p.End)
}

func (r *Resolver) Previous(p billingperioddomain.Period) billingperioddomain.Period {
	// The instant before Start belongs to the previous period.
	return r.Resolve(p.Start.Add(-time.Nanosecond))
}
