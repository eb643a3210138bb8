package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByDeviceID(ctx context.Context, db *gorm.DB, deviceID string) (*Device, error)
	ListByClient(ctx context.Context, db *gorm.DB, clientID snowflake.ID) ([]Device, error)
	ListAll(ctx context.Context, db *gorm.DB) ([]Device, error)
	FindClient(ctx context.Context, db *gorm.DB, clientID snowflake.ID) (*Client, error)
	ListClients(ctx context.Context, db *gorm.DB) ([]Client, error)
}
