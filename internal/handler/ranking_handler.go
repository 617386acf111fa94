package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"haruup-service/internal/models"
	"haruup-service/internal/service"
	"haruup-service/internal/util"
)

// RankingUseCases is implemented by *service.RankingService.
type RankingUseCases interface {
	ParseTargetDate(raw string) (time.Time, error)
	Run(ctx context.Context, targetDate time.Time) (*service.BatchResult, error)
	GetPopularMissions(ctx context.Context, q service.PopularMissionQuery) ([]models.PopularMission, error)
}

type RankingHandler struct {
	responder
	rankings RankingUseCases
}

func NewRankingHandler(rankings RankingUseCases, logger *zap.Logger) *RankingHandler {
	return &RankingHandler{
		responder: responder{logger: logger},
		rankings:  rankings,
	}
}

// GetPopularMissions handles GET /rankings/popular
func (h *RankingHandler) GetPopularMissions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	jobIDs, err := parseIDList(q.Get("jobIds"))
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid jobIds")
		return
	}
	jobDetailIDs, err := parseIDList(q.Get("jobDetailIds"))
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid jobDetailIds")
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid limit")
		return
	}

	missions, err := h.rankings.GetPopularMissions(r.Context(), service.PopularMissionQuery{
		Gender:       q.Get("gender"),
		AgeGroups:    util.SplitCSV(q.Get("ageGroups")),
		JobIDs:       jobIDs,
		JobDetailIDs: jobDetailIDs,
		Interests:    util.SplitCSV(q.Get("interests")),
		Limit:        limit,
	})
	if err != nil {
		h.respondWithError(w, getStatusCode(err), err, "Failed to get popular missions")
		return
	}

	resp := successResponse(missions, "Popular missions retrieved successfully")
	resp.Meta = &Meta{Total: len(missions)}
	h.respondWithJSON(w, http.StatusOK, resp)
}

// RunBatch handles POST /admin/rankings/batch?date=YYYY-MM-DD
func (h *RankingHandler) RunBatch(w http.ResponseWriter, r *http.Request) {
	target, err := h.rankings.ParseTargetDate(r.URL.Query().Get("date"))
	if err != nil {
		h.respondWithError(w, getStatusCode(err), err, "Invalid date")
		return
	}

	started := time.Now()
	result, err := h.rankings.Run(r.Context(), target)
	if err != nil {
		h.respondWithError(w, getStatusCode(err), err, "Ranking batch failed")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(result, "Ranking batch completed"))
	h.logger.Info("Ranking batch triggered via HTTP",
		util.String("target_date", result.TargetDate),
		util.Int("inserted", result.Inserted),
		util.Duration("duration", time.Since(started)))
}

func (h *RankingHandler) RegisterRoutes(router chi.Router, popularLimit func(http.Handler) http.Handler) {
	router.With(popularLimit).Get("/rankings/popular", h.GetPopularMissions)
}

func (h *RankingHandler) RegisterAdminRoutes(router chi.Router) {
	router.Post("/rankings/batch", h.RunBatch)
}

func parseIDList(raw string) ([]int64, error) {
	parts := util.SplitCSV(raw)
	if len(parts) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%w: %q is not a valid id", service.ErrInvalidInput, p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
