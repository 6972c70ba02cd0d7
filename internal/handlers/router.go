package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/fx"

	"github.com/teacurran/planning-poker/internal/auth"
	"github.com/teacurran/planning-poker/internal/config"
	"github.com/teacurran/planning-poker/internal/middleware"
)

var RouterModule = fx.Module("router",
	fx.Provide(NewRouter),
)

var ServerModule = fx.Module("server",
	fx.Invoke(StartServer),
)

// NewRouter creates and configures the chi router
func NewRouter(
	cfg *config.Config,
	verifier *auth.Verifier,
	roomHandler *RoomHandler,
	exportHandler *ExportHandler,
	wsHandler *WebSocketHandler,
) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SlogLogger)
	r.Use(chimiddleware.Recoverer)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Finished report artifacts (filesystem blob store)
	r.Handle("/exports/*", http.StripPrefix("/exports/", http.FileServer(http.Dir(cfg.Export.Dir))))

	// API routes (protected)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(30 * time.Second))
		r.Use(middleware.BearerAuth(verifier))

		// Rooms
		r.Route("/rooms", func(r chi.Router) {
			r.Get("/", roomHandler.List)
			r.Post("/", roomHandler.Create)
			r.Route("/{roomId}", func(r chi.Router) {
				r.Get("/", roomHandler.Get)
				r.Delete("/", roomHandler.Delete)
			})
		})

		// Report exports; account required, tier checked in the handler
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser)
			r.Post("/reports/export", exportHandler.Export)
			r.Get("/jobs", exportHandler.ListJobs)
			r.Get("/jobs/{jobId}", exportHandler.GetJob)
		})
	})

	// WebSocket endpoint; token rides the query string
	r.Get("/ws/room/{roomId}", wsHandler.HandleConnection)

	return r
}

// StartServer starts the HTTP server with lifecycle management
func StartServer(lc fx.Lifecycle, cfg *config.Config, router *chi.Mux) {
	srv := &http.Server{
		Addr:        ":" + strconv.Itoa(cfg.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				slog.Info("server starting", "port", cfg.Port)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					slog.Error("server failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			slog.Info("shutting down server...")
			return srv.Shutdown(ctx)
		},
	})
}
