package service

import (
	"go.uber.org/zap"

	"haruup-service/internal/config"
)

// ServiceDeps are the stores and collaborators behind the services. History, Labeler, Sink and
// Publisher are optional and must be left nil (not typed-nil) when their backend is disabled.
type ServiceDeps struct {
	RateLimits RateLimitStore
	Progress   MissionProgressStore
	History    HistoryStore
	Rankings   RankingStore
	Labeler    Labeler
	Sink       RankingSink
	Publisher  EventPublisher
}

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	config *config.Config
	deps   ServiceDeps
	logger *zap.Logger

	rateLimiter      *RateLimiter
	characterService *CharacterService
	rankingService   *RankingService
	rankingScheduler *RankingScheduler
}

func NewServiceFactory(cfg *config.Config, deps ServiceDeps, logger *zap.Logger) *ServiceFactory {
	return &ServiceFactory{
		config: cfg,
		deps:   deps,
		logger: logger,
	}
}

// RateLimiter returns the daily rate limiter instance (singleton)
func (f *ServiceFactory) RateLimiter() *RateLimiter {
	if f.rateLimiter == nil {
		f.rateLimiter = NewRateLimiter(f.deps.RateLimits, f.config.Location(), f.logger)
	}
	return f.rateLimiter
}

// CharacterService returns the character service instance (singleton)
func (f *ServiceFactory) CharacterService() *CharacterService {
	if f.characterService == nil {
		f.characterService = NewCharacterService(
			f.deps.Progress,
			f.deps.History,
			f.deps.Publisher,
			f.config.Location(),
			f.logger,
		)
	}
	return f.characterService
}

// RankingService returns the ranking service instance (singleton)
func (f *ServiceFactory) RankingService() *RankingService {
	if f.rankingService == nil {
		f.rankingService = NewRankingService(
			f.deps.Rankings,
			f.deps.Labeler,
			f.deps.Sink,
			f.deps.Publisher,
			RankingOptions{
				DefaultLabel:     f.config.Ranking.DefaultLabel,
				LabelConcurrency: f.config.Ranking.LabelConcurrency,
				WindowDays:       f.config.Ranking.WindowDays,
			},
			f.config.Location(),
			f.logger,
		)
	}
	return f.rankingService
}

// RankingScheduler returns the daily batch scheduler; it is not started here.
func (f *ServiceFactory) RankingScheduler() *RankingScheduler {
	if f.rankingScheduler == nil {
		f.rankingScheduler = NewRankingScheduler(f.RankingService(), f.config.Ranking.ScheduleHour)
	}
	return f.rankingScheduler
}

// Cleanup stops background work owned by the services
func (f *ServiceFactory) Cleanup() {
	if f.rankingScheduler != nil {
		f.rankingScheduler.Stop()
	}
}
