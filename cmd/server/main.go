package main

import (
	"go.uber.org/fx"

	"github.com/teacurran/planning-poker/internal/access"
	"github.com/teacurran/planning-poker/internal/auth"
	"github.com/teacurran/planning-poker/internal/blob"
	"github.com/teacurran/planning-poker/internal/bus"
	"github.com/teacurran/planning-poker/internal/config"
	"github.com/teacurran/planning-poker/internal/export"
	"github.com/teacurran/planning-poker/internal/handlers"
	"github.com/teacurran/planning-poker/internal/hub"
	"github.com/teacurran/planning-poker/internal/logger"
	"github.com/teacurran/planning-poker/internal/migration"
	"github.com/teacurran/planning-poker/internal/repository/postgres"
	"github.com/teacurran/planning-poker/internal/voting"
)

func main() {
	// Load logger config early to configure fx logger
	logCfg := logger.LoadConfig()
	logger.Setup(logCfg)

	fx.New(
		// Use our slog-based logger for fx (or NopLogger if FX_LOGS=false)
		logger.FxLogger(logCfg),

		// Supply the already-loaded config
		fx.Supply(logCfg),

		// Modules
		///
		logger.Module,
		config.Module,
		migration.Module,
		postgres.Module,
		auth.Module,
		access.Module,
		bus.Module,
		hub.Module,
		voting.Module,
		blob.Module,
		export.Module,
		handlers.Module,
		handlers.RouterModule,
		handlers.ServerModule,
	).Run()
}
