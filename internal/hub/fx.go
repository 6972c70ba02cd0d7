package hub

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/teacurran/planning-poker/internal/bus"
)

var Module = fx.Module("hub",
	fx.Provide(NewRegistryFx),
)

// NewRegistryFx creates the room registry with lifecycle management
func NewRegistryFx(lc fx.Lifecycle, b bus.Bus) *Registry {
	registry := NewRegistry(b)

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			registry.Shutdown()
			slog.Info("room registry stopped")
			return nil
		},
	})

	return registry
}
