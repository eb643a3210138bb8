package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Registry resolves devices to their owning clients.
type Registry interface {
	FindByDeviceID(ctx context.Context, deviceID string) (*Device, error)
	ListByClient(ctx context.Context, clientID snowflake.ID) ([]Device, error)
	ListAll(ctx context.Context) ([]Device, error)
	FindClient(ctx context.Context, clientID snowflake.ID) (*Client, error)
	ListClients(ctx context.Context) ([]Client, error)
}

var ErrClientNotFound = errors.New("client_not_found")
