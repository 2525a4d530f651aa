package credits

import (
	"github.com/smallbiznis/creditrail/internal/credits/repository"
	"github.com/smallbiznis/creditrail/internal/credits/service"
	"go.uber.org/fx"
)

var Module = fx.Module("credits.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
