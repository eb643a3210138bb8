package domain

import (
	"context"
	"errors"

	billingperioddomain "github.com/smallbiznis/copybill/internal/billingperiod/domain"
)

// Calculator computes per-device consumption. A nil Result with a nil error means the
// device has never reported a reading.
type Calculator interface {
	LifetimeDelta(ctx context.Context, deviceID string, period billingperioddomain.Period) (*Result, error)
	PeriodDelta(ctx context.Context, deviceID string, period billingperioddomain.Period) (*Result, error)
	// Series computes several periods from a single reading fetch.
	Series(ctx context.Context, deviceID string, periods []billingperioddomain.Period, convention Convention) ([]*Result, error)
}

var ErrInvalidConvention = errors.New("invalid_convention")
