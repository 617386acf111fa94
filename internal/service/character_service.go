package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"haruup-service/internal/models"
	"haruup-service/internal/repository/postgres"
	"haruup-service/internal/util"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	sideEffectTimeout   = 5 * time.Second
)

// MissionProgressStore is the transactional store behind member progression.
type MissionProgressStore interface {
	GetProgress(ctx context.Context, memberID uuid.UUID) (*models.MemberCharacter, error)
	CreateProgress(ctx context.Context, memberID uuid.UUID) (*models.MemberCharacter, error)
	ListLevels(ctx context.Context) ([]models.Level, error)
	WithMissionProgress(ctx context.Context, memberID, memberMissionID uuid.UUID,
		fn func(mission *models.MemberMission, progress *models.MemberCharacter) error) error
}

// HistoryStore keeps the completion log of each member.
type HistoryStore interface {
	AppendCompletion(ctx context.Context, event models.CompletionEvent) error
	ListCompletions(ctx context.Context, memberID uuid.UUID, limit int) ([]models.CompletionEvent, error)
}

// CompletionResult is what a member sees after completing a mission.
type CompletionResult struct {
	Progress  *models.MemberCharacter `json:"character"`
	Level     models.Level            `json:"level"`
	ExpGained int64                   `json:"exp_gained"`
	LeveledUp bool                    `json:"leveled_up"`
}

type CharacterService struct {
	store     MissionProgressStore
	history   HistoryStore
	publisher EventPublisher
	location  *time.Location
	now       func() time.Time
	logger    *zap.Logger
}

// NewCharacterService wires the progression use cases. history and publisher may be nil.
func NewCharacterService(store MissionProgressStore, history HistoryStore, publisher EventPublisher,
	location *time.Location, logger *zap.Logger) *CharacterService {
	if location == nil {
		location = time.UTC
	}
	return &CharacterService{
		store:     store,
		history:   history,
		publisher: publisher,
		location:  location,
		now:       time.Now,
		logger:    logger,
	}
}

func (s *CharacterService) WithClock(now func() time.Time) *CharacterService {
	s.now = now
	return s
}

// InitCharacter creates the starting character, or returns the existing one.
func (s *CharacterService) InitCharacter(ctx context.Context, memberID uuid.UUID) (*models.MemberCharacter, error) {
	progress, err := s.store.CreateProgress(ctx, memberID)
	if err != nil {
		if errors.Is(err, postgres.ErrLevelsMissing) {
			return nil, fmt.Errorf("%w: %v", ErrLevelNotFound, err)
		}
		return nil, fmt.Errorf("failed to create character: %w", err)
	}
	return progress, nil
}

func (s *CharacterService) GetProgress(ctx context.Context, memberID uuid.UUID) (*models.MemberCharacter, error) {
	progress, err := s.store.GetProgress(ctx, memberID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return progress, nil
}

// CompleteMission credits the mission's exp, advances the level and streak, and marks the
// member mission COMPLETED in a single transaction.
func (s *CharacterService) CompleteMission(ctx context.Context, memberID, memberMissionID uuid.UUID) (*CompletionResult, error) {
	levels, err := s.store.ListLevels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load levels: %w", err)
	}

	now := s.now()
	today := CivilDate(now.In(s.location))

	var (
		result        CompletionResult
		previousLevel int64
		completed     models.MemberMission
	)
	err = s.store.WithMissionProgress(ctx, memberID, memberMissionID,
		func(mission *models.MemberMission, progress *models.MemberCharacter) error {
			if err := checkSelectable(mission, memberID); err != nil {
				return err
			}

			totalExp := progress.TotalExp + mission.ExpReward
			level, currentExp, err := ResolveLevel(levels, totalExp)
			if err != nil {
				return err
			}

			previousLevel = progress.LevelID
			ApplyMissionCompletion(progress, level.ID, totalExp, currentExp, today)

			completedAt := now.UTC()
			mission.Status = models.MissionStatusCompleted
			mission.CompletedAt = &completedAt

			result = CompletionResult{
				Progress:  progress,
				Level:     level,
				ExpGained: mission.ExpReward,
				LeveledUp: level.ID != previousLevel,
			}
			completed = *mission
			return nil
		})
	if err != nil {
		return nil, mapStoreError(err)
	}

	s.logger.Info("Mission completed",
		util.String("member_id", memberID.String()),
		util.String("member_mission_id", memberMissionID.String()),
		util.Int64("exp_gained", result.ExpGained),
		util.Int("streak_days", result.Progress.CurrentStreakDays),
		zap.Bool("leveled_up", result.LeveledUp))

	s.recordCompletion(ctx, &completed, &result, previousLevel)
	return &result, nil
}

// FailMission marks a selected mission FAILED and counts it.
func (s *CharacterService) FailMission(ctx context.Context, memberID, memberMissionID uuid.UUID) (*models.MemberCharacter, error) {
	var updated *models.MemberCharacter
	err := s.store.WithMissionProgress(ctx, memberID, memberMissionID,
		func(mission *models.MemberMission, progress *models.MemberCharacter) error {
			if err := checkSelectable(mission, memberID); err != nil {
				return err
			}
			mission.Status = models.MissionStatusFailed
			mission.CompletedAt = nil
			updated = ApplyMissionFailure(progress)
			return nil
		})
	if err != nil {
		return nil, mapStoreError(err)
	}

	s.logger.Info("Mission failed",
		util.String("member_id", memberID.String()),
		util.String("member_mission_id", memberMissionID.String()))
	return updated, nil
}

// ListHistory returns the newest completions first. Without a history backend the list is empty.
func (s *CharacterService) ListHistory(ctx context.Context, memberID uuid.UUID, limit int) ([]models.CompletionEvent, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if s.history == nil {
		return []models.CompletionEvent{}, nil
	}

	events, err := s.history.ListCompletions(ctx, memberID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	if events == nil {
		events = []models.CompletionEvent{}
	}
	return events, nil
}

func checkSelectable(mission *models.MemberMission, memberID uuid.UUID) error {
	if mission.MemberID != memberID {
		return fmt.Errorf("%w: mission %s belongs to another member", ErrInvalidState, mission.ID)
	}
	if mission.Status != models.MissionStatusSelected {
		return fmt.Errorf("%w: mission %s is %s", ErrInvalidState, mission.ID, mission.Status)
	}
	return nil
}

func mapStoreError(err error) error {
	if errors.Is(err, postgres.ErrRecordNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

// recordCompletion writes the history entry and the domain events. None of it can fail the request.
func (s *CharacterService) recordCompletion(ctx context.Context, mission *models.MemberMission, result *CompletionResult, previousLevel int64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	progress := result.Progress
	completedAt := s.now().UTC()
	if mission.CompletedAt != nil {
		completedAt = *mission.CompletedAt
	}

	if s.history != nil {
		event := models.CompletionEvent{
			MemberID:        progress.MemberID,
			CompletedAt:     completedAt,
			EventID:         uuid.New(),
			MemberMissionID: mission.ID,
			ExpGained:       result.ExpGained,
			TotalExp:        progress.TotalExp,
			LevelID:         progress.LevelID,
			StreakDays:      progress.CurrentStreakDays,
		}
		if err := s.history.AppendCompletion(ctx, event); err != nil {
			s.logger.Warn("Failed to record completion history",
				util.String("member_id", progress.MemberID.String()), util.ErrorField(err))
		}
	}

	if s.publisher == nil {
		return
	}
	key := progress.MemberID.String()
	if err := s.publisher.PublishJSON(ctx, EventMissionCompleted, key, MissionCompletedEvent{
		MemberID:        progress.MemberID,
		MemberMissionID: mission.ID,
		MissionID:       mission.MissionID,
		ExpGained:       result.ExpGained,
		TotalExp:        progress.TotalExp,
		LevelID:         progress.LevelID,
		StreakDays:      progress.CurrentStreakDays,
		CompletedAt:     completedAt,
	}); err != nil {
		s.logger.Warn("Failed to publish event",
			util.String("event", EventMissionCompleted), util.ErrorField(err))
	}

	if !result.LeveledUp {
		return
	}
	if err := s.publisher.PublishJSON(ctx, EventLevelUp, key, LevelUpEvent{
		MemberID:      progress.MemberID,
		PreviousLevel: previousLevel,
		LevelID:       result.Level.ID,
		LevelNumber:   result.Level.LevelNumber,
		LevelName:     result.Level.Name,
		TotalExp:      progress.TotalExp,
		OccurredAt:    completedAt,
	}); err != nil {
		s.logger.Warn("Failed to publish event",
			util.String("event", EventLevelUp), util.ErrorField(err))
	}
}
