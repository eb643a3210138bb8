package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	devicedomain "github.com/smallbiznis/copybill/internal/device/domain"
	readingdomain "github.com/smallbiznis/copybill/internal/reading/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const deviceColumns = `id, mac_address, model, serial, name, client_id, metadata`

var normalizedMac = readingdomain.DeviceIDExpr("mac_address")

type repo struct{}

func Provide() devicedomain.Repository {
	return &repo{}
}

type deviceRow struct {
	ID         snowflake.ID
	MacAddress string
	Model      *string
	Serial     *string
	Name       *string
	ClientID   *snowflake.ID
	Metadata   datatypes.JSONMap
}

func (r *repo) FindByDeviceID(ctx context.Context, db *gorm.DB, deviceID string) (*devicedomain.Device, error) {
	var rows []deviceRow
	err := db.WithContext(ctx).Raw(
		`SELECT `+deviceColumns+`
		 FROM devices
		 WHERE `+normalizedMac+` = ?
		 ORDER BY id
		 LIMIT 1`,
		deviceID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	device := toDevice(rows[0])
	return &device, nil
}

func (r *repo) ListByClient(ctx context.Context, db *gorm.DB, clientID snowflake.ID) ([]devicedomain.Device, error) {
	var rows []deviceRow
	err := db.WithContext(ctx).Raw(
		`SELECT `+deviceColumns+` FROM devices WHERE client_id = ? ORDER BY id`,
		clientID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toDevices(rows), nil
}

func (r *repo) ListAll(ctx context.Context, db *gorm.DB) ([]devicedomain.Device, error) {
	var rows []deviceRow
	err := db.WithContext(ctx).Raw(`SELECT ` + deviceColumns + ` FROM devices ORDER BY id`).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toDevices(rows), nil
}

func (r *repo) FindClient(ctx context.Context, db *gorm.DB, clientID snowflake.ID) (*devicedomain.Client, error) {
	var client devicedomain.Client
	err := db.WithContext(ctx).Raw(
		`SELECT id, name FROM clients WHERE id = ?`,
		clientID,
	).Scan(&client).Error
	if err != nil {
		return nil, err
	}
	if client.ID == 0 {
		return nil, nil
	}
	return &client, nil
}

func (r *repo) ListClients(ctx context.Context, db *gorm.DB) ([]devicedomain.Client, error) {
	var clients []devicedomain.Client
	err := db.WithContext(ctx).Raw(`SELECT id, name FROM clients ORDER BY id`).Scan(&clients).Error
	if err != nil {
		return nil, err
	}
	return clients, nil
}

func toDevices(rows []deviceRow) []devicedomain.Device {
	devices := make([]devicedomain.Device, 0, len(rows))
	for _, row := range rows {
		devices = append(devices, toDevice(row))
	}
	return devices
}

func toDevice(row deviceRow) devicedomain.Device {
	device := devicedomain.Device{
		ID:         row.ID,
		DeviceID:   readingdomain.NormalizeDeviceID(row.MacAddress),
		MacAddress: row.MacAddress,
		Model:      deref(row.Model),
		Serial:     deref(row.Serial),
		Name:       deref(row.Name),
		Metadata:   row.Metadata,
	}
	// A zero client_id is how some imports mark an unassigned device.
	if row.ClientID != nil && *row.ClientID != 0 {
		id := *row.ClientID
		device.ClientID = &id
	}
	return device
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

