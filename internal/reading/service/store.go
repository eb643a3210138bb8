package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	readingdomain "github.com/smallbiznis/copybill/internal/reading/domain"
	"github.com/smallbiznis/copybill/internal/observability/logger"
	"github.com/smallbiznis/copybill/internal/observability/metrics"
	"github.com/smallbiznis/copybill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type StoreParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Metrics *metrics.Metrics           `optional:"true"`
	Sources []readingdomain.Repository `group:"reading.sources"`
}

// Store merges every reading source into one ascending sequence per device.
type Store struct {
	db      *gorm.DB
	log     *zap.Logger
	metrics *metrics.Metrics
	sources []readingdomain.Repository
}

func NewStore(p StoreParam) readingdomain.Store {
	sources := append([]readingdomain.Repository(nil), p.Sources...)
	// Query order is irrelevant to the result; keep it stable for logs.
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Source().Priority() > sources[j].Source().Priority()
	})
	return &Store{
		db:      p.DB,
		log:     p.Log.Named("reading.store"),
		metrics: p.Metrics,
		sources: sources,
	}
}

// Readings returns the device's readings from every reachable source. A failing source
// is skipped with a warning; only when no source answers is ErrDataUnavailable returned.
func (s *Store) Readings(ctx context.Context, deviceID string, r readingdomain.Range) ([]readingdomain.Reading, error) {
	deviceID = readingdomain.NormalizeDeviceID(deviceID)
	if deviceID == "" {
		return nil, readingdomain.ErrInvalidDeviceID
	}

	var (
		all      []readingdomain.Reading
		failures int
		lastErr  error
	)
	for _, src := range s.sources {
		readings, err := src.ListByDevice(ctx, s.db, deviceID, r)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%w: %v", readingdomain.ErrDataUnavailable, ctxErr)
			}
			failures++
			lastErr = err
			s.sourceFailed(ctx, src.Source(), deviceID, err)
			continue
		}
		all = append(all, readings...)
	}
	if len(s.sources) > 0 && failures == len(s.sources) {
		return nil, fmt.Errorf("%w: %v", readingdomain.ErrDataUnavailable, lastErr)
	}

	return Merge(all), nil
}

// DeviceIDs lists the distinct normalized identifiers seen across sources.
func (s *Store) DeviceIDs(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var failures int
	var lastErr error
	for _, src := range s.sources {
		ids, err := src.ListDeviceIDs(ctx, s.db)
		if err != nil {
			failures++
			lastErr = err
			s.sourceFailed(ctx, src.Source(), "", err)
			continue
		}
		for _, id := range ids {
			if id = strings.TrimSpace(id); id != "" {
				seen[id] = struct{}{}
			}
		}
	}
	if len(s.sources) > 0 && failures == len(s.sources) {
		return nil, fmt.Errorf("%w: %v", readingdomain.ErrDataUnavailable, lastErr)
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) sourceFailed(ctx context.Context, source readingdomain.Source, deviceID string, err error) {
	reason := "query_error"
	if db.IsMissingTable(err) {
		reason = "missing_table"
	}
	fields := []zap.Field{
		zap.String("source", string(source)),
		zap.String("reason", reason),
		zap.Error(err),
	}
	if deviceID != "" {
		fields = append(fields, zap.String("device_id", deviceID))
	}
	logger.WithContext(ctx, s.log).Warn("reading source unavailable, continuing without it", fields...)
	s.metrics.RecordSourceFailure(ctx, string(source))
}

// Merge orders readings by timestamp and collapses duplicate instants. For equal
// timestamps the higher-priority source wins, then the higher id. Readings without a
// device identifier are dropped.
func Merge(readings []readingdomain.Reading) []readingdomain.Reading {
	filtered := make([]readingdomain.Reading, 0, len(readings))
	for _, r := range readings {
		if strings.TrimSpace(r.DeviceID) == "" {
			continue
		}
		filtered = append(filtered, r)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		a, b := filtered[i], filtered[j]
		if !a.RecordedAt.Equal(b.RecordedAt) {
			return a.RecordedAt.Before(b.RecordedAt)
		}
		if a.Source.Priority() != b.Source.Priority() {
			return a.Source.Priority() > b.Source.Priority()
		}
		return a.ID > b.ID
	})

	merged := filtered[:0]
	for _, r := range filtered {
		if n := len(merged); n > 0 && merged[n-1].RecordedAt.Equal(r.RecordedAt) {
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

