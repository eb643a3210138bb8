package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
)

// Source tags where a reading was stored.
type Source string

const (
	SourceCurrent Source = "current"
	SourceLegacy  Source = "legacy"
)

// Priority orders sources for duplicate-timestamp resolution; higher wins.
func (s Source) Priority() int {
	switch s {
	case SourceCurrent:
		return 2
	case SourceLegacy:
		return 1
	default:
		return 0
	}
}

// Reading is one cumulative counter snapshot reported by a device.
type Reading struct {
	ID         snowflake.ID `json:"id"`
	DeviceID   string       `json:"device_id"`
	RecordedAt time.Time    `json:"recorded_at"`
	BW         int64        `json:"bw"`
	Color      int64        `json:"color"`
	Total      *int64       `json:"total,omitempty"`
	Source     Source       `json:"source"`
}

// CounterReading maps the current readings table.
type CounterReading struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	MacAddress string       `gorm:"type:text;index"`
	RecordedAt time.Time    `gorm:"not null;index"`
	BwCount    int64        `gorm:"not null"`
	ColorCount int64        `gorm:"not null"`
	TotalCount *int64
}

func (CounterReading) TableName() string { return TableCurrent }

// ArchivedCounterReading maps the legacy readings table; columns match CounterReading.
type ArchivedCounterReading CounterReading

func (ArchivedCounterReading) TableName() string { return TableLegacy }

const (
	TableCurrent = "counter_readings"
	TableLegacy  = "counter_readings_archive"
)

// deviceIDSeparators are dropped from identifiers, in Go and in SQL alike.
var deviceIDSeparators = []string{":", "-", ".", " ", "\t", "\n", "\r"}

var deviceIDStripper = strings.NewReplacer(lo.FlatMap(deviceIDSeparators, func(sep string, _ int) []string {
	return []string{sep, ""}
})...)

// NormalizeDeviceID lower-cases id and strips ':' '-' '.' separators and whitespace.
func NormalizeDeviceID(id string) string {
	return strings.ToLower(deviceIDStripper.Replace(id))
}

// DeviceIDExpr is NormalizeDeviceID written as a SQL expression over column. It only
// uses REPLACE and LOWER so it runs unchanged on postgres, mysql and sqlite.
func DeviceIDExpr(column string) string {
	expr := column
	for _, sep := range deviceIDSeparators {
		expr = fmt.Sprintf("REPLACE(%s, '%s', '')", expr, sep)
	}
	return "LOWER(" + expr + ")"
}

// Range bounds a reading query; both ends are inclusive and optional.
type Range struct {
	Since *time.Time
	Until *time.Time
}
