package models

import (
	"time"

	"github.com/google/uuid"
)

// MemberCharacter is the progression record of a member.
type MemberCharacter struct {
	MemberID          uuid.UUID  `json:"member_id" db:"member_id"`
	LevelID           int64      `json:"level_id" db:"level_id"`
	TotalExp          int64      `json:"total_exp" db:"total_exp"`
	CurrentExp        int64      `json:"current_exp" db:"current_exp"`
	TotalMissions     int        `json:"total_missions" db:"total_missions"`
	CompletedMissions int        `json:"completed_missions" db:"completed_missions"`
	FailedMissions    int        `json:"failed_missions" db:"failed_missions"`
	CurrentStreakDays int        `json:"current_streak_days" db:"current_streak_days"`
	LongestStreakDays int        `json:"longest_streak_days" db:"longest_streak_days"`
	LastMissionDate   *time.Time `json:"last_mission_date,omitempty" db:"last_mission_date"` // date only, midnight UTC
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// Level is a row of the leveling table.
type Level struct {
	ID          int64  `json:"id" db:"id"`
	LevelNumber int    `json:"level_number" db:"level_number"`
	RequiredExp int64  `json:"required_exp" db:"required_exp"` // total exp needed to reach the level
	Name        string `json:"name" db:"name"`
}
