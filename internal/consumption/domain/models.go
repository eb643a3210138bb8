package domain

import (
	"time"

	billingperioddomain "github.com/smallbiznis/copybill/internal/billingperiod/domain"
)

// Convention selects the reference reading a delta is measured from.
type Convention string

const (
	// ConventionLifetime measures from the device's first-ever reading.
	ConventionLifetime Convention = "lifetime"
	// ConventionPeriod measures from the reading in force at period start.
	ConventionPeriod Convention = "period"
)

// ParseConvention requires callers to name a convention explicitly.
func ParseConvention(v string) (Convention, error) {
	switch Convention(v) {
	case ConventionLifetime, ConventionPeriod:
		return Convention(v), nil
	default:
		return "", ErrInvalidConvention
	}
}

type Status string

const (
	StatusOK Status = "ok"
	// StatusNoActivity: every reading is after the period end.
	StatusNoActivity Status = "no_activity"
	// StatusStale: the last reading before period end predates the period.
	StatusStale Status = "stale"
)

// Counters holds a pair of black/white and color page counts.
type Counters struct {
	BW    int64 `json:"bw"`
	Color int64 `json:"color"`
}

func (c Counters) Total() int64 {
	return c.BW + c.Color
}

func (c Counters) Add(o Counters) Counters {
	return Counters{BW: c.BW + o.BW, Color: c.Color + o.Color}
}

// ClampedSub returns max(0, c-o) per channel.
func (c Counters) ClampedSub(o Counters) Counters {
	return Counters{BW: max(0, c.BW-o.BW), Color: max(0, c.Color-o.Color)}
}

// Result is the consumption of one device over one period.
type Result struct {
	DeviceID   string                     `json:"device_id"`
	Period     billingperioddomain.Period `json:"period"`
	Convention Convention                 `json:"convention"`
	Status     Status                     `json:"status"`

	Baseline Counters `json:"baseline"`
	Start    Counters `json:"start"`
	End      Counters `json:"end"`
	Delta    Counters `json:"delta"`

	BaselineAt time.Time  `json:"baseline_at"`
	StartAt    time.Time  `json:"start_at"`
	EndAt      *time.Time `json:"end_at,omitempty"`
}
