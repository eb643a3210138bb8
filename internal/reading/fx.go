package reading

import (
	"github.com/smallbiznis/copybill/internal/reading/repository"
	"github.com/smallbiznis/copybill/internal/reading/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reading.store",
	fx.Provide(
		fx.Annotate(repository.ProvideCurrent, fx.ResultTags(`group:"reading.sources"`)),
		fx.Annotate(repository.ProvideLegacy, fx.ResultTags(`group:"reading.sources"`)),
	),
	fx.Provide(service.NewStore),
)
