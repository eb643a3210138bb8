package service

import (
	"sort"
	"time"

	billingperioddomain "github.com/smallbiznis/copybill/internal/billingperiod/domain"
	consumptiondomain "github.com/smallbiznis/copybill/internal/consumption/domain"
	readingdomain "github.com/smallbiznis/copybill/internal/reading/domain"
)

// Compute derives one device's consumption over period from its full reading history.
// readings must be ascending by timestamp and free of duplicate instants. It returns nil
// when readings is empty.
func Compute(readings []readingdomain.Reading, period billingperioddomain.Period, convention consumptiondomain.Convention) *consumptiondomain.Result {
	if len(readings) == 0 {
		return nil
	}

	baseline := readings[0]
	result := &consumptiondomain.Result{
		DeviceID:   baseline.DeviceID,
		Period:     period,
		Convention: convention,
		Baseline:   counters(baseline),
		BaselineAt: baseline.RecordedAt,
	}

	// Latest reading at or before start; the device may not have existed yet, in which
	// case the first reading after start stands in (readings[0] is both).
	startIdx := latestAtOrBefore(readings, period.Start)
	if startIdx < 0 {
		startIdx = 0
	}
	start := readings[startIdx]
	result.Start = counters(start)
	result.StartAt = start.RecordedAt

	endIdx := latestAtOrBefore(readings, period.End)
	if endIdx < 0 {
		result.Status = consumptiondomain.StatusNoActivity
		return result
	}
	end := readings[endIdx]
	endAt := end.RecordedAt
	result.End = counters(end)
	result.EndAt = &endAt

	result.Status = consumptiondomain.StatusOK
	if end.RecordedAt.Before(period.Start) {
		result.Status = consumptiondomain.StatusStale
	}

	switch convention {
	case consumptiondomain.ConventionLifetime:
		result.Delta = result.End.ClampedSub(result.Baseline)
	default:
		result.Delta = result.End.ClampedSub(result.Start)
	}
	return result
}

// latestAtOrBefore returns the index of the last reading with RecordedAt <= t, or -1.
func latestAtOrBefore(readings []readingdomain.Reading, t time.Time) int {
	idx := sort.Search(len(readings), func(i int) bool {
		return readings[i].RecordedAt.After(t)
	})
	return idx - 1
}

func counters(r readingdomain.Reading) consumptiondomain.Counters {
	return consumptiondomain.Counters{BW: r.BW, Color: r.Color}
}
