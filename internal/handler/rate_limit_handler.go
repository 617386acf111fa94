package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"haruup-service/internal/models"
	"haruup-service/internal/service"
)

// Rate-limited features and the routes they guard.
const (
	FeatureMissionComplete = "mission-complete"
	FeaturePopularMissions = "popular-missions"
)

// RateLimitInspector is implemented by *service.RateLimiter.
type RateLimitInspector interface {
	Status(ctx context.Context, memberID uuid.UUID, feature string, dailyLimit int) (models.RateLimitResult, error)
	Reset(ctx context.Context, memberID uuid.UUID, feature string) error
}

type RateLimitHandler struct {
	responder
	limiter     RateLimitInspector
	limits      map[string]int
	allowResets bool
}

// NewRateLimitHandler serves counters for the features in limits. Resets are only routed when allowResets is set.
func NewRateLimitHandler(limiter RateLimitInspector, limits map[string]int, allowResets bool, logger *zap.Logger) *RateLimitHandler {
	return &RateLimitHandler{
		responder:   responder{logger: logger},
		limiter:     limiter,
		limits:      limits,
		allowResets: allowResets,
	}
}

func (h *RateLimitHandler) RegisterRoutes(router chi.Router) {
	router.Get("/rate-limits/{feature}", h.GetStatus)
	if h.allowResets {
		router.Delete("/rate-limits/{feature}", h.Reset)
	}
}

func (h *RateLimitHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	memberID, _ := MemberFromContext(r.Context())
	feature := chi.URLParam(r, "feature")
	limit, ok := h.limits[feature]
	if !ok {
		err := fmt.Errorf("%w: unknown feature %q", service.ErrNotFound, feature)
		h.respondWithError(w, http.StatusNotFound, err, "Unknown feature")
		return
	}

	status, err := h.limiter.Status(r.Context(), memberID, feature, limit)
	if err != nil {
		h.respondWithError(w, getStatusCode(err), err, "Failed to read rate limit")
		return
	}
	setRateLimitHeaders(w, status)
	h.respondWithJSON(w, http.StatusOK, successResponse(status, "Rate limit status"))
}

func (h *RateLimitHandler) Reset(w http.ResponseWriter, r *http.Request) {
	memberID, _ := MemberFromContext(r.Context())
	feature := chi.URLParam(r, "feature")
	if _, ok := h.limits[feature]; !ok {
		err := fmt.Errorf("%w: unknown feature %q", service.ErrNotFound, feature)
		h.respondWithError(w, http.StatusNotFound, err, "Unknown feature")
		return
	}

	if err := h.limiter.Reset(r.Context(), memberID, feature); err != nil {
		h.respondWithError(w, getStatusCode(err), err, "Failed to reset rate limit")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Rate limit reset"))
}
