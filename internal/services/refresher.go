package services

import (
	"context"
	"time"

	"github.com/wordbloom/analytics-backend/internal/config"
	"github.com/wordbloom/analytics-backend/internal/logger"
	"github.com/wordbloom/analytics-backend/internal/repos"
	"github.com/wordbloom/analytics-backend/internal/types"
)

// RefresherService keeps the global leaderboard caches warm so the common
// request path almost never falls through to live aggregation. Class-scoped
// payloads are not materialized here; they are cached on first read.
type RefresherService interface {
	// Start runs an immediate refresh, then one per interval until ctx ends.
	Start(ctx context.Context)
	// RefreshAll refreshes every timeframe, isolating failures per timeframe.
	RefreshAll(ctx context.Context)
}

type refresherService struct {
	log         *logger.Logger
	leaderboard LeaderboardService
	runs        repos.RefreshRunRepo
	interval    time.Duration
	timeout     time.Duration
}

func NewRefresherService(
	baseLog *logger.Logger,
	leaderboard LeaderboardService,
	runs repos.RefreshRunRepo,
	cfg config.RefresherConfig,
) RefresherService {
	serviceLog := baseLog.With("service", "RefresherService")
	interval := cfg.Interval()
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &refresherService{
		log:         serviceLog,
		leaderboard: leaderboard,
		runs:        runs,
		interval:    interval,
		timeout:     timeout,
	}
}

func (s *refresherService) Start(ctx context.Context) {
	go func() {
		s.log.Info("Refresher started", "interval", s.interval.String())
		s.RefreshAll(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.log.Info("Refresher stopped")
				return
			case <-ticker.C:
				s.RefreshAll(ctx)
			}
		}
	}()
}

func (s *refresherService) RefreshAll(ctx context.Context) {
	for _, timeframe := range []string{types.TimeframeAll, types.TimeframeMonth} {
		if ctx.Err() != nil {
			return
		}
		s.refreshOne(ctx, timeframe)
	}
}

// refreshOne refreshes a single timeframe under its own deadline and records
// the outcome. One timeframe failing never blocks the others.
func (s *refresherService) refreshOne(ctx context.Context, timeframe string) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now().UTC()
	err := s.leaderboard.Refresh(runCtx, timeframe)
	finished := time.Now().UTC()

	run := &types.RefreshRun{
		Timeframe:  timeframe,
		Status:     types.RefreshRunSucceeded,
		StartedAt:  started,
		FinishedAt: finished,
		DurationMS: finished.Sub(started).Milliseconds(),
	}
	if err != nil {
		run.Status = types.RefreshRunFailed
		run.Error = err.Error()
		s.log.Error("Leaderboard refresh failed", "timeframe", timeframe, "error", err)
	} else {
		s.log.Info("Leaderboard refreshed", "timeframe", timeframe, "duration_ms", run.DurationMS)
	}

	if s.runs == nil {
		return
	}
	if _, recordErr := s.runs.Create(ctx, nil, run); recordErr != nil {
		s.log.Warn("Failed to record refresh run", "timeframe", timeframe, "error", recordErr)
	}
}
