package domain

import (
	"context"

	"gorm.io/gorm"
)

// Repository is one physical reading source.
type Repository interface {
	Source() Source
	ListByDevice(ctx context.Context, db *gorm.DB, deviceID string, r Range) ([]Reading, error)
	ListDeviceIDs(ctx context.Context, db *gorm.DB) ([]string, error)
}
