package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	readingdomain "github.com/smallbiznis/copybill/internal/reading/domain"
	"gorm.io/gorm"
)

var normalizedMac = readingdomain.DeviceIDExpr("mac_address")

type repo struct {
	table  string
	source readingdomain.Source
}

// ProvideCurrent reads the live counter_readings table.
func ProvideCurrent() readingdomain.Repository {
	return &repo{table: readingdomain.TableCurrent, source: readingdomain.SourceCurrent}
}

// ProvideLegacy reads the counter_readings_archive table.
func ProvideLegacy() readingdomain.Repository {
	return &repo{table: readingdomain.TableLegacy, source: readingdomain.SourceLegacy}
}

type readingRow struct {
	ID         snowflake.ID
	MacAddress string
	RecordedAt time.Time
	BwCount    int64
	ColorCount int64
	TotalCount *int64
}

func (r *repo) Source() readingdomain.Source {
	return r.source
}

func (r *repo) ListByDevice(ctx context.Context, db *gorm.DB, deviceID string, rng readingdomain.Range) ([]readingdomain.Reading, error) {
	query := fmt.Sprintf(
		`SELECT id, mac_address, recorded_at, bw_count, color_count, total_count
		 FROM %s
		 WHERE %s = ?`,
		r.table, normalizedMac,
	)
	args := []any{deviceID}
	if rng.Since != nil {
		query += ` AND recorded_at >= ?`
		args = append(args, rng.Since.UTC())
	}
	if rng.Until != nil {
		query += ` AND recorded_at <= ?`
		args = append(args, rng.Until.UTC())
	}
	query += ` ORDER BY recorded_at ASC, id ASC`

	var rows []readingRow
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}

	readings := make([]readingdomain.Reading, 0, len(rows))
	for _, row := range rows {
		readings = append(readings, readingdomain.Reading{
			ID:         row.ID,
			DeviceID:   readingdomain.NormalizeDeviceID(row.MacAddress),
			RecordedAt: row.RecordedAt,
			BW:         row.BwCount,
			Color:      row.ColorCount,
			Total:      row.TotalCount,
			Source:     r.source,
		})
	}
	return readings, nil
}

func (r *repo) ListDeviceIDs(ctx context.Context, db *gorm.DB) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).Raw(fmt.Sprintf(
		`SELECT DISTINCT %s AS device_id
		 FROM %s
		 WHERE mac_address IS NOT NULL`,
		normalizedMac, r.table,
	)).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
