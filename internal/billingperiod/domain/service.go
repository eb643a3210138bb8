package domain

import (
	"errors"
	"time"
)

// Resolver maps reference dates to billing periods bounded on the cycle day.
type Resolver interface {
	Resolve(ref time.Time) Period
	Enumerate(ref time.Time, count int, order Order) ([]Period, error)
	Next(p Period) Period
	Previous(p Period) Period
	Location() *time.Location
}

var (
	ErrInvalidPeriod      = errors.New("invalid_period")
	ErrInvalidPeriodCount = errors.New("invalid_period_count")
	ErrInvalidOrder       = errors.New("invalid_order")
)
