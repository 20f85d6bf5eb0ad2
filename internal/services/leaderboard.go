package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wordbloom/analytics-backend/internal/clients/rediscache"
	"github.com/wordbloom/analytics-backend/internal/clients/studystore"
	"github.com/wordbloom/analytics-backend/internal/logger"
	"github.com/wordbloom/analytics-backend/internal/repos"
	"github.com/wordbloom/analytics-backend/internal/types"
)

type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeClass  Scope = "class"
)

var (
	ErrUnknownTimeframe = errors.New("unknown timeframe")
	ErrUnknownProfile   = errors.New("unknown user profile")
	ErrNoClass          = errors.New("user has no class")
)

// Cache tier markers reported to callers.
const (
	CachedEdge    = "kv"
	CachedDurable = "db"
)

type LeaderboardResult struct {
	Timeframe  string
	Entries    []types.LeaderboardEntry
	Cached     string // CachedEdge, CachedDurable, or "" when computed live
	CachedAt   *time.Time
	ComputedMS *int64
}

// LeaderboardService serves stars leaderboards through three tiers: edge KV,
// durable cache row, live aggregation. Cache reads that fail degrade to the
// next tier; only a failed live computation fails the request.
type LeaderboardService interface {
	GetStars(ctx context.Context, scope Scope, timeframe, requestingUserID string) (*LeaderboardResult, error)
	// Refresh recomputes the global payload for one timeframe and overwrites
	// both tiers unconditionally. Used by the scheduled refresher.
	Refresh(ctx context.Context, timeframe string) error
}

type leaderboardService struct {
	log       *logger.Logger
	store     studystore.Client
	agg       Aggregator
	edge      rediscache.EdgeCache // nil when redis is unavailable
	cacheRepo repos.LeaderboardCacheRepo
	topN      int
	version   string
	edgeTTL   time.Duration
}

func NewLeaderboardService(
	baseLog *logger.Logger,
	store studystore.Client,
	agg Aggregator,
	edge rediscache.EdgeCache,
	cacheRepo repos.LeaderboardCacheRepo,
	topN int,
	version string,
	edgeTTL time.Duration,
) LeaderboardService {
	serviceLog := baseLog.With("service", "LeaderboardService")
	if topN < 1 {
		topN = 5
	}
	if version == "" {
		version = "v2"
	}
	return &leaderboardService{
		log:       serviceLog,
		store:     store,
		agg:       agg,
		edge:      edge,
		cacheRepo: cacheRepo,
		topN:      topN,
		version:   version,
		edgeTTL:   edgeTTL,
	}
}

func validTimeframe(timeframe string) bool {
	return timeframe == types.TimeframeAll || timeframe == types.TimeframeMonth
}

func (s *leaderboardService) GetStars(ctx context.Context, scope Scope, timeframe, requestingUserID string) (*LeaderboardResult, error) {
	if !validTimeframe(timeframe) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimeframe, timeframe)
	}

	class := ""
	if scope == ScopeClass {
		profile, err := s.store.GetProfile(ctx, requestingUserID)
		if err != nil {
			return nil, fmt.Errorf("resolve class: %w", err)
		}
		if profile == nil {
			return nil, ErrUnknownProfile
		}
		if profile.Class == nil || *profile.Class == "" {
			return nil, ErrNoClass
		}
		class = *profile.Class
	}

	section := s.sectionName(scope, class)
	key := s.edgeKey(scope, class, timeframe)

	// Tier 1: edge KV. Read errors are misses, never request failures.
	if payload := s.readEdge(ctx, key); payload != nil {
		cachedAt := payload.CachedAt
		return &LeaderboardResult{
			Timeframe: timeframe,
			Entries:   Condense(payload, requestingUserID, s.topN),
			Cached:    CachedEdge,
			CachedAt:  &cachedAt,
		}, nil
	}

	// Tier 2: durable cache row. A hit warms the edge on the way out.
	if payload := s.readDurable(ctx, section, timeframe); payload != nil {
		s.fillEdge(ctx, key, payload)
		cachedAt := payload.CachedAt
		return &LeaderboardResult{
			Timeframe: timeframe,
			Entries:   Condense(payload, requestingUserID, s.topN),
			Cached:    CachedDurable,
			CachedAt:  &cachedAt,
		}, nil
	}

	// Tier 3: live aggregation. Concurrent misses may race here; every
	// writer produces a complete payload, so last write wins is safe.
	start := time.Now()
	payload, err := s.materialize(ctx, scope, class, timeframe)
	if err != nil {
		return nil, fmt.Errorf("compute leaderboard: %w", err)
	}
	computedMS := time.Since(start).Milliseconds()

	s.fillDurable(ctx, section, timeframe, payload)
	s.fillEdge(ctx, key, payload)

	cachedAt := payload.CachedAt
	return &LeaderboardResult{
		Timeframe:  timeframe,
		Entries:    Condense(payload, requestingUserID, s.topN),
		Cached:     "",
		CachedAt:   &cachedAt,
		ComputedMS: &computedMS,
	}, nil
}

func (s *leaderboardService) Refresh(ctx context.Context, timeframe string) error {
	if !validTimeframe(timeframe) {
		return fmt.Errorf("%w: %q", ErrUnknownTimeframe, timeframe)
	}
	payload, err := s.materialize(ctx, ScopeGlobal, "", timeframe)
	if err != nil {
		return fmt.Errorf("materialize %s: %w", timeframe, err)
	}
	if err := s.writeDurable(ctx, s.sectionName(ScopeGlobal, ""), timeframe, payload); err != nil {
		return fmt.Errorf("write durable cache: %w", err)
	}
	s.fillEdge(ctx, s.edgeKey(ScopeGlobal, "", timeframe), payload)
	return nil
}

// materialize runs the full pipeline: roster, both aggregation passes
// (concurrently; they touch disjoint tables), then ranking.
func (s *leaderboardService) materialize(ctx context.Context, scope Scope, class, timeframe string) (*types.CachePayload, error) {
	var profiles []types.UserProfile
	var err error
	if scope == ScopeClass {
		profiles, err = s.store.ListClassProfiles(ctx, class)
	} else {
		profiles, err = s.store.ListStudentProfiles(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}

	userIDs := make([]string, 0, len(profiles))
	for _, p := range profiles {
		userIDs = append(userIDs, p.ID)
	}

	var since *time.Time
	if timeframe == types.TimeframeMonth {
		t := time.Now().UTC().AddDate(0, 0, -30)
		since = &t
	}

	var points map[string]float64
	var stars map[string]int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var aggErr error
		points, aggErr = s.agg.AggregatePoints(gctx, userIDs, since)
		return aggErr
	})
	g.Go(func() error {
		var aggErr error
		stars, aggErr = s.agg.AggregateStars(gctx, userIDs, since)
		return aggErr
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := BuildEntries(profiles, points, stars)
	return NewCachePayload(timeframe, entries), nil
}

func (s *leaderboardService) readEdge(ctx context.Context, key string) *types.CachePayload {
	if s.edge == nil {
		return nil
	}
	payload, err := s.edge.GetPayload(ctx, key)
	if err != nil {
		s.log.Warn("Edge cache read failed, treating as miss", "key", key, "error", err)
		return nil
	}
	return payload
}

func (s *leaderboardService) readDurable(ctx context.Context, section, timeframe string) *types.CachePayload {
	if s.cacheRepo == nil {
		return nil
	}
	row, err := s.cacheRepo.Get(ctx, nil, section, timeframe)
	if err != nil {
		s.log.Warn("Durable cache read failed, treating as miss", "section", section, "timeframe", timeframe, "error", err)
		return nil
	}
	if row == nil {
		return nil
	}
	var payload types.CachePayload
	if err := json.Unmarshal(row.Payload, &payload); err != nil {
		s.log.Warn("Durable cache payload malformed, treating as miss", "section", section, "timeframe", timeframe, "error", err)
		return nil
	}
	return &payload
}

// fillEdge is fire-and-forget: a write failure is logged, never surfaced.
func (s *leaderboardService) fillEdge(ctx context.Context, key string, payload *types.CachePayload) {
	if s.edge == nil {
		return
	}
	if err := s.edge.SetPayload(ctx, key, payload, s.edgeTTL); err != nil {
		s.log.Warn("Edge cache write failed", "key", key, "error", err)
	}
}

// fillDurable is the request-path warm write; failures are logged and
// swallowed (the refresher is the freshness guarantee, not this).
func (s *leaderboardService) fillDurable(ctx context.Context, section, timeframe string, payload *types.CachePayload) {
	if err := s.writeDurable(ctx, section, timeframe, payload); err != nil {
		s.log.Warn("Durable cache fill failed", "section", section, "timeframe", timeframe, "error", err)
	}
}

func (s *leaderboardService) writeDurable(ctx context.Context, section, timeframe string, payload *types.CachePayload) error {
	if s.cacheRepo == nil {
		return fmt.Errorf("durable cache unavailable")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.cacheRepo.Upsert(ctx, nil, &types.LeaderboardCache{
		Section:   section,
		Timeframe: timeframe,
		Payload:   raw,
		CachedAt:  payload.CachedAt,
	})
	return err
}

func (s *leaderboardService) sectionName(scope Scope, class string) string {
	if scope == ScopeClass {
		return "leaderboard_stars_class:" + class
	}
	return "leaderboard_stars_global"
}

func (s *leaderboardService) edgeKey(scope Scope, class, timeframe string) string {
	if scope == ScopeClass {
		return fmt.Sprintf("leaderboard_stars_class_%s_%s_%s", class, s.version, timeframe)
	}
	return fmt.Sprintf("leaderboard_stars_global_%s_%s", s.version, timeframe)
}
