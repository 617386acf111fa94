package clickhouse

import (
	"context"
	"fmt"
	"time"

	"haruup-service/internal/models"
)

const createRankingEventsTable = `
	CREATE TABLE IF NOT EXISTS mission_ranking_events (
		ranking_id        Int64,
		member_mission_id UUID,
		member_id         UUID,
		mission_id        Int64,
		label             LowCardinality(String),
		interest_main     LowCardinality(String),
		interest_middle   String,
		interest_sub      String,
		gender            LowCardinality(String),
		birth_year        UInt16,
		job_id            Int64,
		job_detail_id     Int64,
		selected_at       DateTime64(3, 'UTC'),
		created_at        DateTime64(3, 'UTC')
	) ENGINE = ReplacingMergeTree(created_at)
	PARTITION BY toYYYYMM(selected_at)
	ORDER BY (selected_at, member_mission_id)`

const insertRankingEvents = `INSERT INTO mission_ranking_events`

// Conn is the part of the ClickHouse client the sink needs.
type Conn interface {
	Exec(ctx context.Context, query string, args ...interface{}) error
	BatchInsert(ctx context.Context, query string, data [][]interface{}) error
}

// RankingSink mirrors ranking rows into ClickHouse. ReplacingMergeTree collapses rows that are
// exported twice for the same member mission.
type RankingSink struct {
	conn Conn
}

func NewRankingSink(conn Conn) *RankingSink {
	return &RankingSink{conn: conn}
}

func (s *RankingSink) EnsureSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, createRankingEventsTable); err != nil {
		return fmt.Errorf("failed to create mission_ranking_events: %w", err)
	}
	return nil
}

func (s *RankingSink) ExportRankingEntries(ctx context.Context, entries []models.RankingEntry) error {
	if len(entries) == 0 {
		return nil
	}

	rows := make([][]interface{}, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, rankingRow(e))
	}

	if err := s.conn.BatchInsert(ctx, insertRankingEvents, rows); err != nil {
		return fmt.Errorf("failed to export %d ranking entries: %w", len(entries), err)
	}
	return nil
}

// rankingRow follows the column order of mission_ranking_events. Missing demographics become zero values.
func rankingRow(e models.RankingEntry) []interface{} {
	var birthYear uint16
	if e.BirthDate != nil {
		birthYear = uint16(e.BirthDate.Year())
	}
	return []interface{}{
		e.ID,
		e.MemberMissionID,
		e.MemberID,
		e.MissionID,
		e.Label,
		e.Interest.Main,
		e.Interest.Middle,
		e.Interest.Sub,
		e.Gender,
		birthYear,
		derefInt64(e.JobID),
		derefInt64(e.JobDetailID),
		e.SelectedAt.UTC(),
		utcOrNow(e.CreatedAt),
	}
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func utcOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
