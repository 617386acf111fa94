package service

import (
	"context"
	"sync"
	"time"

	"haruup-service/internal/util"
)

// RankingScheduler runs the ranking batch for the previous day once a day at a fixed local hour.
// A failed run is logged and not retried; the next attempt is the next day's run.
type RankingScheduler struct {
	ranking *RankingService
	hour    int
	done    chan struct{}
	stop    sync.Once
	wg      sync.WaitGroup
}

func NewRankingScheduler(ranking *RankingService, hour int) *RankingScheduler {
	if hour < 0 || hour > 23 {
		hour = 3
	}
	return &RankingScheduler{
		ranking: ranking,
		hour:    hour,
		done:    make(chan struct{}),
	}
}

func (s *RankingScheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
	util.Info("Ranking scheduler started", util.Int("hour", s.hour))
}

// Stop waits for an in-flight run to finish.
func (s *RankingScheduler) Stop() {
	s.stop.Do(func() { close(s.done) })
	s.wg.Wait()
}

func (s *RankingScheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	for {
		next := nextRunAt(s.ranking.now().In(s.ranking.location), s.hour)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.done:
			timer.Stop()
			return
		case <-timer.C:
		}

		yesterday := s.ranking.Today().AddDate(0, 0, -1)
		if _, err := s.ranking.Run(ctx, yesterday); err != nil {
			util.Error("Scheduled ranking batch failed",
				util.String("target_date", yesterday.Format(DateLayout)),
				util.ErrorField(err))
		}
	}
}

// nextRunAt is the first hour:00 in now's location strictly after now.
func nextRunAt(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
