package domain

import (
	"context"
	"errors"
)

// Store returns readings merged across every source, ascending by timestamp.
type Store interface {
	Readings(ctx context.Context, deviceID string, r Range) ([]Reading, error)
	DeviceIDs(ctx context.Context) ([]string, error)
}

var (
	ErrDataUnavailable = errors.New("data_unavailable")
	ErrInvalidDeviceID = errors.New("invalid_device_id")
)
