package balancelock

import "go.uber.org/fx"

var Module = fx.Module("balance.lock",
	fx.Provide(NewGuard),
)
