package domain

import (
	"time"
)

// Period is a half-open billing window [Start, End).
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewPeriod validates that end is strictly after start.
func NewPeriod(start, end time.Time) (Period, error) {
	if !end.After(start) {
		return Period{}, ErrInvalidPeriod
	}
	return Period{Start: start, End: end}, nil
}

// Contains reports whether t falls inside [Start, End).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

func (p Period) IsZero() bool {
	return p.Start.IsZero() && p.End.IsZero()
}

// Key identifies the period by its start date, e.g. "2024-03-20".
func (p Period) Key() string {
	return p.Start.Format(time.DateOnly)
}

func (p Period) String() string {
	return p.Start.Format(time.DateOnly) + "/" + p.End.Format(time.DateOnly)
}

// Order states the direction of an enumerated period list.
type Order string

const (
	OrderNewestFirst Order = "newest_first"
	OrderOldestFirst Order = "oldest_first"
)

func ParseOrder(v string) (Order, error) {
	switch Order(v) {
	case OrderNewestFirst, OrderOldestFirst:
		return Order(v), nil
	case "":
		return OrderNewestFirst, nil
	default:
		return "", ErrInvalidOrder
	}
}
