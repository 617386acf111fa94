package service

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event names; the Kafka producer prefixes them with the configured topic prefix.
const (
	EventMissionCompleted      = "mission.completed"
	EventLevelUp               = "character.level_up"
	EventRankingBatchCompleted = "ranking.batch.completed"
)

// EventPublisher delivers domain events. Publishing is best effort: callers log failures and move on.
type EventPublisher interface {
	PublishJSON(ctx context.Context, event, key string, payload interface{}) error
}

type MissionCompletedEvent struct {
	MemberID        uuid.UUID `json:"member_id"`
	MemberMissionID uuid.UUID `json:"member_mission_id"`
	MissionID       int64     `json:"mission_id"`
	ExpGained       int64     `json:"exp_gained"`
	TotalExp        int64     `json:"total_exp"`
	LevelID         int64     `json:"level_id"`
	StreakDays      int       `json:"streak_days"`
	CompletedAt     time.Time `json:"completed_at"`
}

type LevelUpEvent struct {
	MemberID      uuid.UUID `json:"member_id"`
	PreviousLevel int64     `json:"previous_level_id"`
	LevelID       int64     `json:"level_id"`
	LevelNumber   int       `json:"level_number"`
	LevelName     string    `json:"level_name"`
	TotalExp      int64     `json:"total_exp"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type RankingBatchCompletedEvent struct {
	TargetDate string    `json:"target_date"`
	Candidates int       `json:"candidates"`
	Inserted   int       `json:"inserted"`
	Skipped    int       `json:"skipped"`
	FinishedAt time.Time `json:"finished_at"`
}
