package models

import (
	"time"

	"github.com/google/uuid"
)

type MemberMissionStatus string

const (
	MissionStatusSelected  MemberMissionStatus = "SELECTED"
	MissionStatusCompleted MemberMissionStatus = "COMPLETED"
	MissionStatusFailed    MemberMissionStatus = "FAILED"
)

// MemberMission is a mission a member picked from their recommendations.
type MemberMission struct {
	ID          uuid.UUID           `json:"id" db:"id"`
	MemberID    uuid.UUID           `json:"member_id" db:"member_id"`
	MissionID   int64               `json:"mission_id" db:"mission_id"`
	ExpReward   int64               `json:"exp_reward" db:"exp_reward"`
	Status      MemberMissionStatus `json:"status" db:"status"`
	SelectedAt  time.Time           `json:"selected_at" db:"selected_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty" db:"completed_at"`
}
