package web

import (
	"context"

	"go.uber.org/fx"
)

// Module provides the relay handlers and server, and ties the server to the app lifecycle.
// It expects *config.Config, *zap.Logger and a Provider in the graph.
var Module = fx.Module("web",
	fx.Provide(
		NewHandlers,
		NewServer,
	),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, s *Server) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return s.Start()
		},
		OnStop: s.Shutdown,
	})
}
