package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// InterestPath is the main > middle > sub interest hierarchy of a mission.
type InterestPath struct {
	Main   string `json:"main"`
	Middle string `json:"middle,omitempty"`
	Sub    string `json:"sub,omitempty"`
}

func (p InterestPath) String() string {
	parts := make([]string, 0, 3)
	for _, v := range []string{p.Main, p.Middle, p.Sub} {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " > ")
}

// RankingEntry is one denormalized row of mission_rankings. Rows are append-only.
type RankingEntry struct {
	ID              int64        `json:"id" db:"id"`
	MemberMissionID uuid.UUID    `json:"member_mission_id" db:"member_mission_id"`
	MemberID        uuid.UUID    `json:"member_id" db:"member_id"`
	MissionID       int64        `json:"mission_id" db:"mission_id"`
	MissionContent  string       `json:"mission_content" db:"mission_content"`
	Gender          string       `json:"gender,omitempty" db:"gender"`
	BirthDate       *time.Time   `json:"birth_date,omitempty" db:"birth_date"`
	JobID           *int64       `json:"job_id,omitempty" db:"job_id"`
	JobDetailID     *int64       `json:"job_detail_id,omitempty" db:"job_detail_id"`
	Interest        InterestPath `json:"interest"`
	Label           string       `json:"label" db:"label"`
	SelectedAt      time.Time    `json:"selected_at" db:"selected_at"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
}

// PopularMission is one aggregated row of the popular missions query.
type PopularMission struct {
	Rank           int    `json:"rank"`
	Label          string `json:"label"`
	InterestPath   string `json:"interest_path"`
	SelectionCount int64  `json:"selection_count"`
}

// PopularMissionFilter narrows the popular missions aggregate. Empty fields impose no constraint.
type PopularMissionFilter struct {
	Gender       string
	Ages         []int // concrete ages, expanded from age groups
	JobIDs       []int64
	JobDetailIDs []int64
	Interests    []string // top-level interest names
	AgeReference time.Time
	Since        time.Time
	Limit        int
}
