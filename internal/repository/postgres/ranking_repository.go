package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"haruup-service/internal/client"
	"haruup-service/internal/models"
	"haruup-service/internal/util"
)

// RankingRepository owns the denormalized mission_rankings table.
type RankingRepository struct {
	client *client.PostgresClient
}

func NewRankingRepository(client *client.PostgresClient) *RankingRepository {
	return &RankingRepository{client: client}
}

// ListBatchCandidates returns member missions selected in [from, to) that have no ranking row
// yet, joined with the member's current demographics and the mission's interest path.
// Label is left empty.
func (r *RankingRepository) ListBatchCandidates(ctx context.Context, from, to time.Time) ([]models.RankingEntry, error) {
	rows, err := r.client.Pool.Query(ctx, `
		SELECT mm.id, mm.member_id, mm.mission_id, m.content,
		       mb.gender, mb.birth_date, mb.job_id, mb.job_detail_id,
		       m.interest_main, m.interest_middle, m.interest_sub, mm.selected_at
		FROM member_missions mm
		JOIN missions m ON m.id = mm.mission_id
		JOIN members mb ON mb.id = mm.member_id
		LEFT JOIN mission_rankings mr ON mr.member_mission_id = mm.id
		WHERE mm.selected_at >= $1 AND mm.selected_at < $2
		  AND mr.id IS NULL
		ORDER BY mm.selected_at ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list ranking candidates: %w", err)
	}
	defer rows.Close()

	var entries []models.RankingEntry
	for rows.Next() {
		var (
			e           models.RankingEntry
			gender      pgtype.Text
			birthDate   pgtype.Date
			jobID       pgtype.Int8
			jobDetailID pgtype.Int8
		)
		if err := rows.Scan(&e.MemberMissionID, &e.MemberID, &e.MissionID, &e.MissionContent,
			&gender, &birthDate, &jobID, &jobDetailID,
			&e.Interest.Main, &e.Interest.Middle, &e.Interest.Sub, &e.SelectedAt); err != nil {
			return nil, fmt.Errorf("scan ranking candidate: %w", err)
		}
		e.Gender = normalizeGender(gender.String)
		e.BirthDate = datePtr(birthDate)
		e.JobID = int8Ptr(jobID)
		e.JobDetailID = int8Ptr(jobDetailID)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// A member mission is ranked at most once; conflicting rows return no id and are skipped.
const insertRankingEntrySQL = `
	INSERT INTO mission_rankings (
		member_mission_id, member_id, mission_id, mission_content,
		gender, birth_date, job_id, job_detail_id,
		interest_main, interest_middle, interest_sub, label, selected_at
	) VALUES ($1, $2, $3, $4, NULLIF(UPPER(TRIM($5)), ''), $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (member_mission_id) DO NOTHING
	RETURNING id, created_at`

// InsertEntries writes entries in one transaction. Rows whose member mission is already
// ranked are skipped by the unique constraint; only the rows actually inserted are returned.
func (r *RankingRepository) InsertEntries(ctx context.Context, entries []models.RankingEntry) ([]models.RankingEntry, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	inserted := make([]models.RankingEntry, 0, len(entries))
	err := r.client.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, e := range entries {
			var birthDate pgtype.Date
			if e.BirthDate != nil {
				birthDate = pgtype.Date{Time: *e.BirthDate, Valid: true}
			}
			batch.Queue(insertRankingEntrySQL,
				e.MemberMissionID, e.MemberID, e.MissionID, e.MissionContent,
				e.Gender, birthDate, e.JobID, e.JobDetailID,
				e.Interest.Main, e.Interest.Middle, e.Interest.Sub, e.Label, e.SelectedAt)
		}

		results := tx.SendBatch(ctx, batch)
		for _, e := range entries {
			err := results.QueryRow().Scan(&e.ID, &e.CreatedAt)
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			if err != nil {
				_ = results.Close()
				return fmt.Errorf("insert ranking entry %s: %w", e.MemberMissionID, err)
			}
			inserted = append(inserted, e)
		}
		return results.Close()
	})
	if err != nil {
		return nil, err
	}

	util.Debug("Ranking entries inserted",
		zap.Int("requested", len(entries)),
		zap.Int("inserted", len(inserted)))
	return inserted, nil
}

// PopularMissions aggregates rankings by (label, interest path).
func (r *RankingRepository) PopularMissions(ctx context.Context, filter models.PopularMissionFilter) ([]models.PopularMission, error) {
	query, args := buildPopularMissionsQuery(filter)

	rows, err := r.client.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query popular missions: %w", err)
	}
	defer rows.Close()

	var out []models.PopularMission
	for rows.Next() {
		var (
			pm   models.PopularMission
			path models.InterestPath
		)
		if err := rows.Scan(&pm.Label, &path.Main, &path.Middle, &path.Sub, &pm.SelectionCount); err != nil {
			return nil, fmt.Errorf("scan popular mission: %w", err)
		}
		pm.Rank = len(out) + 1
		pm.InterestPath = path.String()
		out = append(out, pm)
	}
	return out, rows.Err()
}

func buildPopularMissionsQuery(f models.PopularMissionFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	where = append(where, "selected_at >= "+arg(f.Since))
	if f.Gender != "" {
		where = append(where, "gender = "+arg(f.Gender))
	}
	if len(f.Ages) > 0 {
		ref := f.AgeReference
		if ref.IsZero() {
			ref = time.Now()
		}
		where = append(where, fmt.Sprintf(
			"birth_date IS NOT NULL AND date_part('year', age(%s::date, birth_date))::int = ANY(%s)",
			arg(pgtype.Date{Time: ref, Valid: true}), arg(f.Ages)))
	}
	if len(f.JobIDs) > 0 {
		where = append(where, "job_id = ANY("+arg(f.JobIDs)+")")
	}
	if len(f.JobDetailIDs) > 0 {
		where = append(where, "job_detail_id = ANY("+arg(f.JobDetailIDs)+")")
	}
	if len(f.Interests) > 0 {
		where = append(where, "interest_main = ANY("+arg(f.Interests)+")")
	}

	query := `
		SELECT label, interest_main, interest_middle, interest_sub, COUNT(*) AS selection_count
		FROM mission_rankings
		WHERE ` + strings.Join(where, "\n\t\t  AND ") + `
		GROUP BY label, interest_main, interest_middle, interest_sub
		ORDER BY selection_count DESC, label ASC, interest_main ASC, interest_middle ASC, interest_sub ASC
		LIMIT ` + arg(f.Limit)

	return query, args
}

// normalizeGender matches the upper-cased values the popular missions filter compares against.
func normalizeGender(g string) string {
	return strings.ToUpper(strings.TrimSpace(g))
}

func datePtr(d pgtype.Date) *time.Time {
	if !d.Valid {
		return nil
	}
	t := d.Time
	return &t
}

func int8Ptr(v pgtype.Int8) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
