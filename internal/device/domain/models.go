package domain

import (
	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Device is a photocopier. ClientID is nil for unattributed devices.
type Device struct {
	ID         snowflake.ID      `json:"id"`
	DeviceID   string            `json:"device_id"`
	MacAddress string            `json:"mac_address"`
	Model      string            `json:"model,omitempty"`
	Serial     string            `json:"serial,omitempty"`
	Name       string            `json:"name,omitempty"`
	ClientID   *snowflake.ID     `json:"client_id,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
}

// Attributed reports whether the device has an owning client.
func (d Device) Attributed() bool {
	return d.ClientID != nil && *d.ClientID != 0
}

// Label is the human description used on invoice lines.
func (d Device) Label() string {
	switch {
	case d.Name != "" && d.Model != "":
		return d.Name + " (" + d.Model + ")"
	case d.Name != "":
		return d.Name
	case d.Model != "" && d.Serial != "":
		return d.Model + " " + d.Serial
	case d.Model != "":
		return d.Model
	default:
		return d.MacAddress
	}
}

type Client struct {
	ID   snowflake.ID `json:"id"`
	Name string       `json:"name"`
}

// DeviceRecord maps the devices table.
type DeviceRecord struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	MacAddress string            `gorm:"type:text;not null;index"`
	Model      string            `gorm:"type:text"`
	Serial     string            `gorm:"type:text"`
	Name       string            `gorm:"type:text"`
	ClientID   *snowflake.ID     `gorm:"index"`
	Metadata   datatypes.JSONMap `gorm:"type:json"`
}

func (DeviceRecord) TableName() string { return "devices" }

// ClientRecord maps the clients table.
type ClientRecord struct {
	ID   snowflake.ID `gorm:"primaryKey"`
	Name string       `gorm:"type:text;not null"`
}

func (ClientRecord) TableName() string { return "clients" }
