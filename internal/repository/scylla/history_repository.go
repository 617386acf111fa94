package scylla

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"haruup-service/internal/bucketing"
	"haruup-service/internal/models"
	"haruup-service/internal/util"
)

// Session is the part of *ScyllaClient the repositories use.
type Session interface {
	Exec(ctx context.Context, stmt string, values ...interface{}) error
	Iter(ctx context.Context, stmt string, values ...interface{}) Iter
}

// Iter is satisfied by *gocql.Iter.
type Iter interface {
	Scan(dest ...interface{}) bool
	Close() error
}

const (
	createCompletionsTable = `
		CREATE TABLE IF NOT EXISTS mission_completions (
			member_bucket int,
			member_id uuid,
			completed_at timestamp,
			event_id uuid,
			member_mission_id uuid,
			exp_gained bigint,
			total_exp bigint,
			level_id bigint,
			streak_days int,
			PRIMARY KEY ((member_bucket, member_id), completed_at, event_id)
		) WITH CLUSTERING ORDER BY (completed_at DESC, event_id ASC)`

	insertCompletion = `
		INSERT INTO mission_completions (
			member_bucket, member_id, completed_at, event_id,
			member_mission_id, exp_gained, total_exp, level_id, streak_days
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	listCompletions = `
		SELECT member_bucket, member_id, completed_at, event_id,
			member_mission_id, exp_gained, total_exp, level_id, streak_days
		FROM mission_completions
		WHERE member_bucket = ? AND member_id = ?
		LIMIT ?`
)

// HistoryRepository stores mission completions per member, newest first.
type HistoryRepository struct {
	session      Session
	bucketingMgr *bucketing.BucketingManager
}

func NewHistoryRepository(session Session, bucketingMgr *bucketing.BucketingManager) *HistoryRepository {
	return &HistoryRepository{
		session:      session,
		bucketingMgr: bucketingMgr,
	}
}

// EnsureSchema creates the completions table if it does not exist.
func (r *HistoryRepository) EnsureSchema(ctx context.Context) error {
	if err := r.session.Exec(ctx, createCompletionsTable); err != nil {
		return fmt.Errorf("failed to create mission_completions: %w", err)
	}
	return nil
}

func (r *HistoryRepository) AppendCompletion(ctx context.Context, event models.CompletionEvent) error {
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	event.MemberBucket = r.bucketingMgr.GetMemberBucket(event.MemberID)

	err := r.session.Exec(ctx, insertCompletion,
		event.MemberBucket, gocql.UUID(event.MemberID), event.CompletedAt, gocql.UUID(event.EventID),
		gocql.UUID(event.MemberMissionID), event.ExpGained, event.TotalExp, event.LevelID, event.StreakDays)
	if err != nil {
		util.Error("Failed to append mission completion",
			zap.String("member_id", event.MemberID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to append mission completion: %w", err)
	}
	return nil
}

func (r *HistoryRepository) ListCompletions(ctx context.Context, memberID uuid.UUID, limit int) ([]models.CompletionEvent, error) {
	bucket := r.bucketingMgr.GetMemberBucket(memberID)
	iter := r.session.Iter(ctx, listCompletions, bucket, gocql.UUID(memberID), limit)

	var (
		events                       []models.CompletionEvent
		ev                           models.CompletionEvent
		member, eventID, missionUUID gocql.UUID
	)
	for iter.Scan(&ev.MemberBucket, &member, &ev.CompletedAt, &eventID,
		&missionUUID, &ev.ExpGained, &ev.TotalExp, &ev.LevelID, &ev.StreakDays) {
		ev.MemberID = uuid.UUID(member)
		ev.EventID = uuid.UUID(eventID)
		ev.MemberMissionID = uuid.UUID(missionUUID)
		events = append(events, ev)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list mission completions: %w", err)
	}
	return events, nil
}
