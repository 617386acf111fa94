package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"haruup-service/internal/config"
)

// RateLimiter is both the enforcing and the inspecting side of *service.RateLimiter.
type RateLimiter interface {
	RateLimitEnforcer
	RateLimitInspector
}

// RouterDeps collects what NewRouter mounts.
type RouterDeps struct {
	Characters CharacterUseCases
	Rankings   RankingUseCases
	Limiter    RateLimiter
	// Health reports backend errors by name; nil means always healthy.
	Health func(ctx context.Context) map[string]error
}

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(cfg *config.Config, deps RouterDeps, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	if cfg.Server.EnableTLS {
		router.Use(requireHTTPS)
	}

	// Middleware stack
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", MemberIDHeader, AdminTokenHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	h := responder{logger: logger}
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{}
		status := http.StatusOK
		if deps.Health != nil {
			for name, err := range deps.Health(r.Context()) {
				checks[name] = err.Error()
				status = http.StatusServiceUnavailable
			}
		}
		h.respondWithJSON(w, status, Response{
			Success: status == http.StatusOK,
			Data: map[string]interface{}{
				"service": "haruup-service",
				"errors":  checks,
			},
		})
	})

	limits := map[string]int{
		FeatureMissionComplete: cfg.RateLimit.MissionCompleteDaily,
		FeaturePopularMissions: cfg.RateLimit.PopularMissionsDaily,
	}
	characterHandler := NewCharacterHandler(deps.Characters, logger)
	rankingHandler := NewRankingHandler(deps.Rankings, logger)
	rateLimitHandler := NewRateLimitHandler(deps.Limiter, limits, !cfg.IsProduction(), logger)

	router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(MemberIdentity(logger))
			characterHandler.RegisterRoutes(r,
				RateLimit(deps.Limiter, FeatureMissionComplete, limits[FeatureMissionComplete], logger))
			rankingHandler.RegisterRoutes(r,
				RateLimit(deps.Limiter, FeaturePopularMissions, limits[FeaturePopularMissions], logger))
			rateLimitHandler.RegisterRoutes(r)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin(cfg.Server.AdminToken, cfg.IsProduction(), logger))
			rankingHandler.RegisterAdminRoutes(r)
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.respondWithJSON(w, http.StatusNotFound, Response{Error: "endpoint not found"})
	})

	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.respondWithJSON(w, http.StatusMethodNotAllowed, Response{Error: "method not allowed"})
	})

	return router
}
