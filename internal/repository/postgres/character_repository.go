package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"haruup-service/internal/client"
	"haruup-service/internal/models"
	"haruup-service/internal/util"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrLevelsMissing  = errors.New("levels table is empty")
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const characterColumns = `member_id, level_id, total_exp, current_exp, total_missions, completed_missions,
	failed_missions, current_streak_days, longest_streak_days, last_mission_date, updated_at`

// CharacterRepository persists member progression and the missions that drive it.
type CharacterRepository struct {
	client *client.PostgresClient
}

func NewCharacterRepository(client *client.PostgresClient) *CharacterRepository {
	return &CharacterRepository{client: client}
}

func (r *CharacterRepository) GetProgress(ctx context.Context, memberID uuid.UUID) (*models.MemberCharacter, error) {
	return getProgress(ctx, r.client.Pool, memberID, false)
}

// CreateProgress inserts the starting character for a member at the lowest level.
func (r *CharacterRepository) CreateProgress(ctx context.Context, memberID uuid.UUID) (*models.MemberCharacter, error) {
	row := r.client.Pool.QueryRow(ctx, `
		INSERT INTO member_characters (member_id, level_id)
		SELECT $1, id FROM levels ORDER BY required_exp ASC LIMIT 1
		ON CONFLICT (member_id) DO NOTHING
		RETURNING `+characterColumns, memberID)
	progress, err := scanCharacter(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// already exists, or no levels configured
			return existingProgress(r.GetProgress(ctx, memberID))
		}
		return nil, fmt.Errorf("create member character: %w", err)
	}
	return progress, nil
}

// existingProgress resolves the lookup that follows a no-op insert. A missing row there means the
// insert selected no level; any other failure is returned as is.
func existingProgress(existing *models.MemberCharacter, err error) (*models.MemberCharacter, error) {
	switch {
	case err == nil:
		return existing, nil
	case errors.Is(err, ErrRecordNotFound):
		return nil, fmt.Errorf("%w: %v", ErrLevelsMissing, err)
	default:
		return nil, fmt.Errorf("load existing member character: %w", err)
	}
}

// ListLevels returns every level ordered by required exp.
func (r *CharacterRepository) ListLevels(ctx context.Context) ([]models.Level, error) {
	rows, err := r.client.Pool.Query(ctx, `
		SELECT id, level_number, required_exp, name
		FROM levels
		ORDER BY required_exp ASC`)
	if err != nil {
		return nil, fmt.Errorf("list levels: %w", err)
	}
	defer rows.Close()

	var levels []models.Level
	for rows.Next() {
		var lvl models.Level
		if err := rows.Scan(&lvl.ID, &lvl.LevelNumber, &lvl.RequiredExp, &lvl.Name); err != nil {
			return nil, fmt.Errorf("scan level: %w", err)
		}
		levels = append(levels, lvl)
	}
	return levels, rows.Err()
}

// WithMissionProgress locks the member mission and the member's character, hands both to fn,
// and persists whatever fn left in them. Nothing is written if fn fails.
func (r *CharacterRepository) WithMissionProgress(
	ctx context.Context,
	memberID, memberMissionID uuid.UUID,
	fn func(mission *models.MemberMission, progress *models.MemberCharacter) error,
) error {
	return r.client.WithTx(ctx, func(tx pgx.Tx) error {
		mission, err := getMemberMissionForUpdate(ctx, tx, memberMissionID)
		if err != nil {
			return err
		}
		progress, err := getProgress(ctx, tx, memberID, true)
		if err != nil {
			return err
		}

		if err := fn(mission, progress); err != nil {
			return err
		}

		progress.UpdatedAt = time.Now().UTC()
		if err := updateProgress(ctx, tx, progress); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE member_missions SET status = $2, completed_at = $3 WHERE id = $1`,
			mission.ID, string(mission.Status), mission.CompletedAt); err != nil {
			return fmt.Errorf("update member mission: %w", err)
		}

		util.Debug("Member progress persisted",
			zap.String("member_id", memberID.String()),
			zap.String("member_mission_id", memberMissionID.String()),
			zap.String("status", string(mission.Status)))
		return nil
	})
}

func getMemberMissionForUpdate(ctx context.Context, db DBTX, id uuid.UUID) (*models.MemberMission, error) {
	var (
		mm          models.MemberMission
		status      string
		completedAt pgtype.Timestamptz
	)
	err := db.QueryRow(ctx, `
		SELECT mm.id, mm.member_id, mm.mission_id, m.exp_reward, mm.status, mm.selected_at, mm.completed_at
		FROM member_missions mm
		JOIN missions m ON m.id = mm.mission_id
		WHERE mm.id = $1
		FOR UPDATE OF mm`, id).
		Scan(&mm.ID, &mm.MemberID, &mm.MissionID, &mm.ExpReward, &status, &mm.SelectedAt, &completedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("member mission %s: %w", id, ErrRecordNotFound)
		}
		return nil, fmt.Errorf("get member mission: %w", err)
	}
	mm.Status = models.MemberMissionStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		mm.CompletedAt = &t
	}
	return &mm, nil
}

func getProgress(ctx context.Context, db DBTX, memberID uuid.UUID, forUpdate bool) (*models.MemberCharacter, error) {
	query := `SELECT ` + characterColumns + ` FROM member_characters WHERE member_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	progress, err := scanCharacter(db.QueryRow(ctx, query, memberID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("member character %s: %w", memberID, ErrRecordNotFound)
		}
		return nil, fmt.Errorf("get member character: %w", err)
	}
	return progress, nil
}

func updateProgress(ctx context.Context, db DBTX, p *models.MemberCharacter) error {
	var lastMission pgtype.Date
	if p.LastMissionDate != nil {
		lastMission = pgtype.Date{Time: *p.LastMissionDate, Valid: true}
	}
	tag, err := db.Exec(ctx, `
		UPDATE member_characters SET
			level_id = $2, total_exp = $3, current_exp = $4,
			total_missions = $5, completed_missions = $6, failed_missions = $7,
			current_streak_days = $8, longest_streak_days = $9, last_mission_date = $10,
			updated_at = $11
		WHERE member_id = $1`,
		p.MemberID, p.LevelID, p.TotalExp, p.CurrentExp,
		p.TotalMissions, p.CompletedMissions, p.FailedMissions,
		p.CurrentStreakDays, p.LongestStreakDays, lastMission, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update member character: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("member character %s: %w", p.MemberID, ErrRecordNotFound)
	}
	return nil
}

func scanCharacter(row pgx.Row) (*models.MemberCharacter, error) {
	var (
		p           models.MemberCharacter
		lastMission pgtype.Date
	)
	if err := row.Scan(&p.MemberID, &p.LevelID, &p.TotalExp, &p.CurrentExp, &p.TotalMissions,
		&p.CompletedMissions, &p.FailedMissions, &p.CurrentStreakDays, &p.LongestStreakDays,
		&lastMission, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if lastMission.Valid {
		d := lastMission.Time
		p.LastMissionDate = &d
	}
	return &p, nil
}
