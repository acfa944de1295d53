package api

import (
	"net/http"

	"github.com/Rrens/checkpoint-recovery/internal/api/handler"
	customMiddleware "github.com/Rrens/checkpoint-recovery/internal/api/middleware"
	"github.com/Rrens/checkpoint-recovery/internal/config"
	"github.com/Rrens/checkpoint-recovery/internal/metrics"
	"github.com/Rrens/checkpoint-recovery/internal/security"
	"github.com/Rrens/checkpoint-recovery/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
)

// Deps are the collaborators the router wires into handlers
type Deps struct {
	Checkpoints *service.CheckpointService
	Streams     *service.StreamRecoveryService
	// Limiter is optional; requests are not rate limited when nil
	Limiter customMiddleware.Limiter
	// Ready lists the dependencies /ready pings
	Ready map[string]handler.Pinger
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, deps Deps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.MiddlewareTimeout))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authenticate := customMiddleware.AllowAll
	if cfg.Auth.Enabled {
		jwtManager := security.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
		authenticate = customMiddleware.NewAuthMiddleware(jwtManager).Authenticate
	} else {
		log.Warn().Msg("Authentication disabled, every caller may access every workspace")
	}

	// Initialize handlers
	checkpointHandler := handler.NewCheckpointHandler(deps.Checkpoints)
	preRevertHandler := handler.NewPreRevertHandler(deps.Checkpoints)
	streamHandler := handler.NewStreamHandler(deps.Streams)

	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Health check
		r.Get("/health", handler.HealthCheck)
		r.Get("/ready", handler.ReadyCheck(deps.Ready))

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			if deps.Limiter != nil {
				r.Use(customMiddleware.NewRateLimitMiddleware(deps.Limiter).Limit)
			}

			r.Route("/workspaces/{workspaceID}", func(r chi.Router) {
				r.Use(customMiddleware.WorkspaceContext)

				r.Get("/checkpoints", checkpointHandler.List)
				r.Post("/checkpoints", checkpointHandler.Create)

				r.Route("/prerevert", func(r chi.Router) {
					r.Post("/", preRevertHandler.Capture)
					r.Delete("/", preRevertHandler.Clear)
					r.Post("/restore", preRevertHandler.Restore)
					r.Post("/load", preRevertHandler.Load)
					r.Get("/{messageID}", preRevertHandler.Available)
				})

				r.Route("/sessions/{sessionID}", func(r chi.Router) {
					r.Delete("/messages", checkpointHandler.DeleteMessagesAfter)
					r.Get("/streams", streamHandler.ListForSession)
				})

				r.Get("/streams/interrupted", streamHandler.ListInterrupted)
			})

			r.Post("/checkpoints/{checkpointID}/restore", checkpointHandler.Restore)

			r.Route("/streams", func(r chi.Router) {
				r.Post("/", streamHandler.Start)
				r.Post("/flush", streamHandler.Flush)

				r.Route("/{streamID}", func(r chi.Router) {
					r.Get("/", streamHandler.Get)
					r.Patch("/", streamHandler.Update)
					r.Delete("/", streamHandler.Dismiss)
					r.Post("/abort", streamHandler.Abort)
					r.Post("/interrupt", streamHandler.Interrupt)
					r.Post("/recover", streamHandler.Recover)
					r.Post("/complete", streamHandler.Complete)
				})
			})
		})
	})

	return r
}
