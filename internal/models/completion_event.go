package models

import (
	"time"

	"github.com/google/uuid"
)

// CompletionEvent is one entry of a member's progression history.
type CompletionEvent struct {
	MemberBucket    int       `json:"-" db:"member_bucket"`
	MemberID        uuid.UUID `json:"member_id" db:"member_id"`
	CompletedAt     time.Time `json:"completed_at" db:"completed_at"`
	EventID         uuid.UUID `json:"event_id" db:"event_id"`
	MemberMissionID uuid.UUID `json:"member_mission_id" db:"member_mission_id"`
	ExpGained       int64     `json:"exp_gained" db:"exp_gained"`
	TotalExp        int64     `json:"total_exp" db:"total_exp"`
	LevelID         int64     `json:"level_id" db:"level_id"`
	StreakDays      int       `json:"streak_days" db:"streak_days"`
}
