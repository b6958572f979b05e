package realtime

import "go.uber.org/fx"

// Module provides the publisher. Binaries that serve SSE add RelayModule.
var Module = fx.Module("realtime",
	fx.Provide(
		NewBroadcaster,
		func(b *Broadcaster) Publisher { return b },
	),
)

var RelayModule = fx.Module("realtime.relay",
	fx.Provide(NewHub, NewRelay),
	fx.Invoke(runRelay),
)
