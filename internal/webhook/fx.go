package webhook

import (
	"github.com/smallbiznis/creditrail/internal/events"
	webhookdomain "github.com/smallbiznis/creditrail/internal/webhook/domain"
	"github.com/smallbiznis/creditrail/internal/webhook/repository"
	"github.com/smallbiznis/creditrail/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(provideDispatcher),
)

func provideDispatcher(svc webhookdomain.Service) events.Dispatcher {
	return svc
}
