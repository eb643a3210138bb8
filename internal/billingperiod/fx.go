package billingperiod

import (
	"github.com/smallbiznis/copybill/internal/billingperiod/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billingperiod.service",
	fx.Provide(service.NewResolver),
)
