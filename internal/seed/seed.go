package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	devicedomain "github.com/smallbiznis/copybill/internal/device/domain"
	readingdomain "github.com/smallbiznis/copybill/internal/reading/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const demoMonths = 8

type demoDevice struct {
	mac      string
	model    string
	name     string
	client   int
	bwDaily  int64
	colDaily int64
}

var demoClients = []string{"Cabinet Martin", "Boulangerie Durand"}

var demoDevices = []demoDevice{
	{mac: "00:17:C8:4A:10:01", model: "bizhub C300i", name: "Accueil", client: 0, bwDaily: 60, colDaily: 12},
	{mac: "00:17:C8:4A:10:02", model: "bizhub 4020i", name: "Comptabilite", client: 0, bwDaily: 25},
	{mac: "00:26:73:B1:22:03", model: "MX-2651", name: "Caisse", client: 1, bwDaily: 8, colDaily: 3},
	{mac: "00:26:73:B1:22:04", model: "IM C2000", name: "Stock", client: -1, bwDaily: 15},
}

// EnsureDemoFleet loads a small fleet with daily readings ending at now. It does
// nothing when clients already exist. With archive set, the older half of the history
// goes to the legacy table and the switchover day is written to both.
func EnsureDemoFleet(ctx context.Context, db *gorm.DB, node *snowflake.Node, now time.Time, archive bool) error {
	if db == nil || node == nil {
		return errors.New("seed database handle and id node are required")
	}

	var existing int64
	if err := db.WithContext(ctx).Model(&devicedomain.ClientRecord{}).Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		clientIDs := make([]snowflake.ID, 0, len(demoClients))
		for _, name := range demoClients {
			id := node.Generate()
			if err := tx.Create(&devicedomain.ClientRecord{ID: id, Name: name}).Error; err != nil {
				return err
			}
			clientIDs = append(clientIDs, id)
		}

		end := time.Date(now.Year(), now.Month(), now.Day(), 9, 0, 0, 0, time.UTC)
		start := end.AddDate(0, -demoMonths, 0)
		switchover := start.AddDate(0, demoMonths/2, 0)

		for _, d := range demoDevices {
			record := devicedomain.DeviceRecord{
				ID:         node.Generate(),
				MacAddress: d.mac,
				Model:      d.model,
				Name:       d.name,
				Metadata:   datatypes.JSONMap{"source": "seed"},
			}
			if d.client >= 0 {
				owner := clientIDs[d.client]
				record.ClientID = &owner
			}
			if err := tx.Create(&record).Error; err != nil {
				return err
			}

			var current []readingdomain.CounterReading
			var legacy []readingdomain.ArchivedCounterReading
			var bw, color int64
			for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
				if day.Weekday() != time.Saturday && day.Weekday() != time.Sunday {
					bw += d.bwDaily
					color += d.colDaily
				}
				row := readingdomain.CounterReading{
					MacAddress: d.mac,
					RecordedAt: day,
					BwCount:    bw,
					ColorCount: color,
				}
				if archive && !day.After(switchover) {
					row.ID = node.Generate()
					legacy = append(legacy, readingdomain.ArchivedCounterReading(row))
					if !day.Equal(switchover) {
						continue
					}
				}
				row.ID = node.Generate()
				current = append(current, row)
			}

			if len(legacy) > 0 {
				if err := tx.CreateInBatches(legacy, 200).Error; err != nil {
					return err
				}
			}
			if err := tx.CreateInBatches(current, 200).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
