package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/copybill/internal/cache"
	"github.com/smallbiznis/copybill/internal/config"
	devicedomain "github.com/smallbiznis/copybill/internal/device/domain"
	"github.com/smallbiznis/copybill/internal/observability/logger"
	readingdomain "github.com/smallbiznis/copybill/internal/reading/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type RegistryParam struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Repo   devicedomain.Repository
	Config *config.BillingConfigHolder
}

type Registry struct {
	db     *gorm.DB
	log    *zap.Logger
	repo   devicedomain.Repository
	config *config.BillingConfigHolder

	byDevice cache.Cache[string, *devicedomain.Device]
	byClient cache.Cache[snowflake.ID, []devicedomain.Device]
}

func NewRegistry(p RegistryParam) devicedomain.Registry {
	return &Registry{
		db:       p.DB,
		log:      p.Log.Named("device.registry"),
		repo:     p.Repo,
		config:   p.Config,
		byDevice: cache.NewTTLCache[string, *devicedomain.Device](),
		byClient: cache.NewTTLCache[snowflake.ID, []devicedomain.Device](),
	}
}

// FindByDeviceID returns nil for identifiers the registry does not know.
func (r *Registry) FindByDeviceID(ctx context.Context, deviceID string) (*devicedomain.Device, error) {
	deviceID = readingdomain.NormalizeDeviceID(deviceID)
	if deviceID == "" {
		return nil, readingdomain.ErrInvalidDeviceID
	}
	if device, ok := r.byDevice.Get(deviceID); ok {
		return device, nil
	}

	device, err := r.repo.FindByDeviceID(ctx, r.db, deviceID)
	if err != nil {
		return nil, r.unavailable(ctx, "find_device", err)
	}
	if ttl := r.ttl(); ttl > 0 {
		r.byDevice.Set(deviceID, device, ttl)
	}
	return device, nil
}

func (r *Registry) ListByClient(ctx context.Context, clientID snowflake.ID) ([]devicedomain.Device, error) {
	if devices, ok := r.byClient.Get(clientID); ok {
		return devices, nil
	}

	devices, err := r.repo.ListByClient(ctx, r.db, clientID)
	if err != nil {
		return nil, r.unavailable(ctx, "list_client_devices", err)
	}
	if ttl := r.ttl(); ttl > 0 {
		r.byClient.Set(clientID, devices, ttl)
	}
	return devices, nil
}

func (r *Registry) ListAll(ctx context.Context) ([]devicedomain.Device, error) {
	devices, err := r.repo.ListAll(ctx, r.db)
	if err != nil {
		return nil, r.unavailable(ctx, "list_devices", err)
	}
	return devices, nil
}

func (r *Registry) FindClient(ctx context.Context, clientID snowflake.ID) (*devicedomain.Client, error) {
	client, err := r.repo.FindClient(ctx, r.db, clientID)
	if err != nil {
		return nil, r.unavailable(ctx, "find_client", err)
	}
	if client == nil {
		return nil, devicedomain.ErrClientNotFound
	}
	return client, nil
}

func (r *Registry) ListClients(ctx context.Context) ([]devicedomain.Client, error) {
	clients, err := r.repo.ListClients(ctx, r.db)
	if err != nil {
		return nil, r.unavailable(ctx, "list_clients", err)
	}
	return clients, nil
}

func (r *Registry) ttl() time.Duration {
	if r.config == nil {
		return 0
	}
	return r.config.Get().RegistryCacheTTL
}

func (r *Registry) unavailable(ctx context.Context, op string, err error) error {
	logger.WithContext(ctx, r.log).Error("device registry query failed",
		zap.String("op", op),
		zap.Error(err),
	)
	return fmt.Errorf("%w: device registry %s: %v", readingdomain.ErrDataUnavailable, op, err)
}
