package device

import (
	"github.com/smallbiznis/copybill/internal/device/repository"
	"github.com/smallbiznis/copybill/internal/device/service"
	"go.uber.org/fx"
)

var Module = fx.Module("device.registry",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewRegistry),
)
