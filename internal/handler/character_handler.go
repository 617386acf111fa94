package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"haruup-service/internal/models"
	"haruup-service/internal/service"
	"haruup-service/internal/util"
)

// CharacterUseCases is implemented by *service.CharacterService.
type CharacterUseCases interface {
	InitCharacter(ctx context.Context, memberID uuid.UUID) (*models.MemberCharacter, error)
	GetProgress(ctx context.Context, memberID uuid.UUID) (*models.MemberCharacter, error)
	CompleteMission(ctx context.Context, memberID, memberMissionID uuid.UUID) (*service.CompletionResult, error)
	FailMission(ctx context.Context, memberID, memberMissionID uuid.UUID) (*models.MemberCharacter, error)
	ListHistory(ctx context.Context, memberID uuid.UUID, limit int) ([]models.CompletionEvent, error)
}

// CharacterHandler serves the member's own character and mission results.
type CharacterHandler struct {
	responder
	characters CharacterUseCases
}

func NewCharacterHandler(characters CharacterUseCases, logger *zap.Logger) *CharacterHandler {
	return &CharacterHandler{
		responder:  responder{logger: logger},
		characters: characters,
	}
}

// RegisterRoutes mounts the member routes. completeLimit wraps the completion endpoint.
func (h *CharacterHandler) RegisterRoutes(router chi.Router, completeLimit func(http.Handler) http.Handler) {
	router.Route("/members/me", func(r chi.Router) {
		r.Get("/character", h.GetCharacter)
		r.Post("/character", h.InitCharacter)
		r.Get("/character/history", h.ListHistory)
		r.With(completeLimit).Post("/missions/{memberMissionID}/complete", h.CompleteMission)
		r.Post("/missions/{memberMissionID}/fail", h.FailMission)
	})
}

func (h *CharacterHandler) GetCharacter(w http.ResponseWriter, r *http.Request) {
	memberID, _ := MemberFromContext(r.Context())

	progress, err := h.characters.GetProgress(r.Context(), memberID)
	if err != nil {
		h.respondWithError(w, getStatusCode(err), err, "Failed to get character")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(progress, "Character retrieved successfully"))
}

func (h *CharacterHandler) InitCharacter(w http.ResponseWriter, r *http.Request) {
	memberID, _ := MemberFromContext(r.Context())

	progress, err := h.characters.InitCharacter(r.Context(), memberID)
	if err != nil {
		h.respondWithError(w, getStatusCode(err), err, "Failed to create character")
		return
	}
	h.respondWithJSON(w, http.StatusCreated, successResponse(progress, "Character ready"))
}

func (h *CharacterHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	memberID, _ := MemberFromContext(r.Context())

	limit, err := queryInt(r, "limit")
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid limit")
		return
	}

	events, err := h.characters.ListHistory(r.Context(), memberID, limit)
	if err != nil {
		h.respondWithError(w, getStatusCode(err), err, "Failed to list history")
		return
	}
	resp := successResponse(events, "History retrieved successfully")
	resp.Meta = &Meta{Total: len(events), Limit: limit}
	h.respondWithJSON(w, http.StatusOK, resp)
}

func (h *CharacterHandler) CompleteMission(w http.ResponseWriter, r *http.Request) {
	memberID, _ := MemberFromContext(r.Context())
	memberMissionID, err := uuid.Parse(chi.URLParam(r, "memberMissionID"))
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid member mission ID format")
		return
	}

	result, err := h.characters.CompleteMission(r.Context(), memberID, memberMissionID)
	if err != nil {
		h.respondWithError(w, getStatusCode(err), err, "Failed to complete mission")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(result, "Mission completed"))
	h.logger.Debug("Mission completion served",
		util.String("member_id", memberID.String()),
		util.Bool("leveled_up", result.LeveledUp))
}

func (h *CharacterHandler) FailMission(w http.ResponseWriter, r *http.Request) {
	memberID, _ := MemberFromContext(r.Context())
	memberMissionID, err := uuid.Parse(chi.URLParam(r, "memberMissionID"))
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid member mission ID format")
		return
	}

	progress, err := h.characters.FailMission(r.Context(), memberID, memberMissionID)
	if err != nil {
		h.respondWithError(w, getStatusCode(err), err, "Failed to mark mission failed")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(progress, "Mission marked as failed"))
}

// queryInt parses an optional integer query parameter; absent means 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", service.ErrInvalidInput, name)
	}
	return v, nil
}
