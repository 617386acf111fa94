package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"haruup-service/internal/models"
	"haruup-service/internal/util"
)

const (
	defaultPopularLimit = 10
	maxPopularLimit     = 100
	DateLayout          = "2006-01-02"
)

// RankingStore is the persistence side of the ranking batch and the popular missions query.
type RankingStore interface {
	ListBatchCandidates(ctx context.Context, from, to time.Time) ([]models.RankingEntry, error)
	InsertEntries(ctx context.Context, entries []models.RankingEntry) ([]models.RankingEntry, error)
	PopularMissions(ctx context.Context, filter models.PopularMissionFilter) ([]models.PopularMission, error)
}

// Labeler assigns a semantic label to mission content. An empty label means no match.
type Labeler interface {
	Label(ctx context.Context, content string) (string, error)
}

// RankingSink receives the rows a batch inserted.
type RankingSink interface {
	ExportRankingEntries(ctx context.Context, entries []models.RankingEntry) error
}

type RankingOptions struct {
	DefaultLabel     string
	LabelConcurrency int
	WindowDays       int
}

// BatchResult summarizes one ranking batch run.
type BatchResult struct {
	TargetDate string `json:"target_date"`
	Candidates int    `json:"candidates"`
	Inserted   int    `json:"inserted"`
	Skipped    int    `json:"skipped"`
	Unlabeled  int    `json:"unlabeled"`
}

// PopularMissionQuery is the caller-facing filter; age groups are still in "20s" form.
type PopularMissionQuery struct {
	Gender       string
	AgeGroups    []string
	JobIDs       []int64
	JobDetailIDs []int64
	Interests    []string
	Limit        int
}

type RankingService struct {
	store     RankingStore
	labeler   Labeler
	sink      RankingSink
	publisher EventPublisher
	opts      RankingOptions
	location  *time.Location
	now       func() time.Time
	logger    *zap.Logger
}

// NewRankingService wires the ranking batch. labeler, sink and publisher may be nil; without a
// labeler every row gets the default label.
func NewRankingService(store RankingStore, labeler Labeler, sink RankingSink, publisher EventPublisher,
	opts RankingOptions, location *time.Location, logger *zap.Logger) *RankingService {
	if opts.DefaultLabel == "" {
		opts.DefaultLabel = "기타"
	}
	if opts.LabelConcurrency <= 0 {
		opts.LabelConcurrency = 4
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = 30
	}
	if location == nil {
		location = time.UTC
	}
	return &RankingService{
		store:     store,
		labeler:   labeler,
		sink:      sink,
		publisher: publisher,
		opts:      opts,
		location:  location,
		now:       time.Now,
		logger:    logger,
	}
}

func (s *RankingService) WithClock(now func() time.Time) *RankingService {
	s.now = now
	return s
}

// Today is the current calendar date in the service's zone, as midnight UTC.
func (s *RankingService) Today() time.Time {
	return CivilDate(s.now().In(s.location))
}

// ParseTargetDate parses YYYY-MM-DD. An empty string means today.
func (s *RankingService) ParseTargetDate(raw string) (time.Time, error) {
	if raw == "" {
		return s.Today(), nil
	}
	d, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}
	return d, nil
}

// Run ranks every member mission selected on targetDate (local zone) that is not ranked yet.
// Running it twice for the same date inserts nothing the second time.
func (s *RankingService) Run(ctx context.Context, targetDate time.Time) (*BatchResult, error) {
	y, m, d := targetDate.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, s.location)
	to := from.AddDate(0, 0, 1)
	result := &BatchResult{TargetDate: from.Format(DateLayout)}

	started := time.Now()
	candidates, err := s.store.ListBatchCandidates(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list ranking candidates: %w", err)
	}
	result.Candidates = len(candidates)
	if len(candidates) == 0 {
		s.logger.Info("Ranking batch found no candidates", util.String("target_date", result.TargetDate))
		return result, nil
	}

	unlabeled, err := s.assignLabels(ctx, candidates)
	if err != nil {
		return nil, err
	}
	result.Unlabeled = unlabeled

	inserted, err := s.store.InsertEntries(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to insert ranking entries: %w", err)
	}
	result.Inserted = len(inserted)
	result.Skipped = result.Candidates - result.Inserted

	s.logger.Info("Ranking batch finished",
		util.String("target_date", result.TargetDate),
		util.Int("candidates", result.Candidates),
		util.Int("inserted", result.Inserted),
		util.Int("skipped", result.Skipped),
		util.Int("unlabeled", result.Unlabeled),
		util.Duration("elapsed", time.Since(started)))

	s.export(ctx, inserted, result)
	return result, nil
}

// assignLabels labels candidates in place with bounded concurrency. Classifier failures fall
// back to the default label; only cancellation aborts the batch.
func (s *RankingService) assignLabels(ctx context.Context, candidates []models.RankingEntry) (int, error) {
	if s.labeler == nil {
		for i := range candidates {
			candidates[i].Label = s.opts.DefaultLabel
		}
		return len(candidates), nil
	}

	var unlabeled atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.LabelConcurrency)
	for i := range candidates {
		entry := &candidates[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			label, err := s.labeler.Label(gctx, entry.MissionContent)
			if err != nil {
				s.logger.Warn("Label classification failed, using default",
					util.String("member_mission_id", entry.MemberMissionID.String()),
					util.ErrorField(err))
			}
			if label == "" {
				label = s.opts.DefaultLabel
				unlabeled.Add(1)
			}
			entry.Label = label
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("ranking batch cancelled: %w", err)
	}
	return int(unlabeled.Load()), nil
}

func (s *RankingService) export(ctx context.Context, inserted []models.RankingEntry, result *BatchResult) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if s.sink != nil && len(inserted) > 0 {
		if err := s.sink.ExportRankingEntries(ctx, inserted); err != nil {
			s.logger.Warn("Failed to export ranking entries",
				util.String("target_date", result.TargetDate), util.ErrorField(err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.PublishJSON(ctx, EventRankingBatchCompleted, result.TargetDate, RankingBatchCompletedEvent{
			TargetDate: result.TargetDate,
			Candidates: result.Candidates,
			Inserted:   result.Inserted,
			Skipped:    result.Skipped,
			FinishedAt: s.now().UTC(),
		}); err != nil {
			s.logger.Warn("Failed to publish event",
				util.String("event", EventRankingBatchCompleted), util.ErrorField(err))
		}
	}
}

// GetPopularMissions aggregates the trailing window of rankings under the given filter.
func (s *RankingService) GetPopularMissions(ctx context.Context, q PopularMissionQuery) ([]models.PopularMission, error) {
	filter, err := s.buildFilter(q)
	if err != nil {
		return nil, err
	}

	missions, err := s.store.PopularMissions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query popular missions: %w", err)
	}
	if missions == nil {
		missions = []models.PopularMission{}
	}
	return missions, nil
}

func (s *RankingService) buildFilter(q PopularMissionQuery) (models.PopularMissionFilter, error) {
	now := s.now().In(s.location)

	gender := strings.ToUpper(strings.TrimSpace(q.Gender))
	if gender != "" && gender != "MALE" && gender != "FEMALE" {
		return models.PopularMissionFilter{}, fmt.Errorf("%w: unknown gender %q", ErrInvalidInput, q.Gender)
	}

	ages, err := ParseAgeGroups(q.AgeGroups)
	if err != nil {
		return models.PopularMissionFilter{}, err
	}

	limit := q.Limit
	switch {
	case limit <= 0:
		limit = defaultPopularLimit
	case limit > maxPopularLimit:
		limit = maxPopularLimit
	}

	return models.PopularMissionFilter{
		Gender:       gender,
		Ages:         ages,
		JobIDs:       q.JobIDs,
		JobDetailIDs: q.JobDetailIDs,
		Interests:    q.Interests,
		AgeReference: CivilDate(now),
		Since:        now.AddDate(0, 0, -s.opts.WindowDays),
		Limit:        limit,
	}, nil
}

// ParseAgeGroups expands decade groups such as "20s" into the ages 20..29.
func ParseAgeGroups(groups []string) ([]int, error) {
	var ages []int
	seen := make(map[int]bool)
	for _, g := range groups {
		g = strings.TrimSpace(strings.ToLower(g))
		if g == "" {
			continue
		}
		decade, err := strconv.Atoi(strings.TrimSuffix(g, "s"))
		if err != nil || !strings.HasSuffix(g, "s") || decade < 10 || decade > 90 || decade%10 != 0 {
			return nil, fmt.Errorf("%w: invalid age group %q", ErrInvalidInput, g)
		}
		if seen[decade] {
			continue
		}
		seen[decade] = true
		for age := decade; age < decade+10; age++ {
			ages = append(ages, age)
		}
	}
	return ages, nil
}
