package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/wordbloom/analytics-backend/internal/types"
)

type fakeAggregator struct {
	mu     sync.Mutex
	points map[string]float64
	stars  map[string]int
	err    error
	calls  int
}

func (f *fakeAggregator) AggregatePoints(ctx context.Context, userIDs []string, since *time.Time) (map[string]float64, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.points, nil
}

func (f *fakeAggregator) AggregateStars(ctx context.Context, userIDs []string, since *time.Time) (map[string]int, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.stars, nil
}

func (f *fakeAggregator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeEdge struct {
	mu      sync.Mutex
	data    map[string]*types.CachePayload
	getErr  error
	setErr  error
	gets    int
	sets    int
	lastTTL time.Duration
}

func newFakeEdge() *fakeEdge {
	return &fakeEdge{data: map[string]*types.CachePayload{}}
}

func (f *fakeEdge) GetPayload(ctx context.Context, key string) (*types.CachePayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.data[key], nil
}

func (f *fakeEdge) SetPayload(ctx context.Context, key string, payload *types.CachePayload, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	f.lastTTL = ttl
	if f.setErr != nil {
		return f.setErr
	}
	f.data[key] = payload
	return nil
}

func (f *fakeEdge) Close() error { return nil }

type fakeCacheRepo struct {
	mu        sync.Mutex
	rows      map[string]*types.LeaderboardCache
	getErr    error
	upsertErr error
	gets      int
	upserts   int
}

func newFakeCacheRepo() *fakeCacheRepo {
	return &fakeCacheRepo{rows: map[string]*types.LeaderboardCache{}}
}

func cacheKey(section, timeframe string) string { return section + "|" + timeframe }

func (f *fakeCacheRepo) Get(ctx context.Context, tx *gorm.DB, section, timeframe string) (*types.LeaderboardCache, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.rows[cacheKey(section, timeframe)], nil
}

func (f *fakeCacheRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.LeaderboardCache) (*types.LeaderboardCache, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	f.rows[cacheKey(row.Section, row.Timeframe)] = row
	return row, nil
}

func rosterStore() *fakeStore {
	return &fakeStore{
		profiles: []types.UserProfile{
			{ID: "a", Name: "Ann", Role: types.RoleStudent, Class: sptr("3B")},
			{ID: "b", Name: "Ben", Role: types.RoleStudent, Class: sptr("3B")},
			{ID: "c", Name: "Cat", Role: types.RoleStudent},
		},
	}
}

func newTestLeaderboard(t *testing.T, store *fakeStore, agg Aggregator, edge *fakeEdge, repo *fakeCacheRepo) LeaderboardService {
	t.Helper()
	return NewLeaderboardService(newTestLogger(t), store, agg, edge, repo, 5, "v2", 45*time.Minute)
}

func mustDurableRow(t *testing.T, section, timeframe string, payload *types.CachePayload) *types.LeaderboardCache {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &types.LeaderboardCache{
		Section:   section,
		Timeframe: timeframe,
		Payload:   raw,
		CachedAt:  payload.CachedAt,
	}
}

func TestGetStarsEdgeHitShortCircuits(t *testing.T) {
	edge := newFakeEdge()
	repo := newFakeCacheRepo()
	agg := &fakeAggregator{}
	payload := buildTestPayload("a", "b", "c")
	edge.data["leaderboard_stars_global_v2_all"] = payload

	svc := newTestLeaderboard(t, rosterStore(), agg, edge, repo)
	res, err := svc.GetStars(context.Background(), ScopeGlobal, types.TimeframeAll, "a")
	if err != nil {
		t.Fatalf("GetStars: %v", err)
	}
	if res.Cached != CachedEdge {
		t.Errorf("cached = %q, want %q", res.Cached, CachedEdge)
	}
	if res.CachedAt == nil || !res.CachedAt.Equal(payload.CachedAt) {
		t.Errorf("cachedAt = %v, want %v", res.CachedAt, payload.CachedAt)
	}
	if res.ComputedMS != nil {
		t.Error("computedMS set on a cache hit")
	}
	if repo.gets != 0 {
		t.Errorf("durable tier consulted %d times on an edge hit", repo.gets)
	}
	if agg.callCount() != 0 {
		t.Errorf("aggregator invoked %d times on an edge hit", agg.callCount())
	}
}

func TestGetStarsDurableHitWarmsEdge(t *testing.T) {
	edge := newFakeEdge()
	repo := newFakeCacheRepo()
	agg := &fakeAggregator{}
	payload := buildTestPayload("a", "b", "c")
	repo.rows[cacheKey("leaderboard_stars_global", types.TimeframeAll)] =
		mustDurableRow(t, "leaderboard_stars_global", types.TimeframeAll, payload)

	svc := newTestLeaderboard(t, rosterStore(), agg, edge, repo)
	res, err := svc.GetStars(context.Background(), ScopeGlobal, types.TimeframeAll, "a")
	if err != nil {
		t.Fatalf("GetStars: %v", err)
	}
	if res.Cached != CachedDurable {
		t.Errorf("cached = %q, want %q", res.Cached, CachedDurable)
	}
	if edge.sets != 1 {
		t.Errorf("edge backfills = %d, want 1", edge.sets)
	}
	if agg.callCount() != 0 {
		t.Errorf("aggregator invoked %d times on a durable hit", agg.callCount())
	}
}

func TestGetStarsComputesOnDoubleMiss(t *testing.T) {
	edge := newFakeEdge()
	repo := newFakeCacheRepo()
	agg := &fakeAggregator{
		points: map[string]float64{"a": 5, "b": 10},
		stars:  map[string]int{"a": 5, "b": 4},
	}

	svc := newTestLeaderboard(t, rosterStore(), agg, edge, repo)
	res, err := svc.GetStars(context.Background(), ScopeGlobal, types.TimeframeAll, "a")
	if err != nil {
		t.Fatalf("GetStars: %v", err)
	}
	if res.Cached != "" {
		t.Errorf("cached = %q, want empty for a live computation", res.Cached)
	}
	if res.ComputedMS == nil {
		t.Error("computedMS missing on a live computation")
	}

	// Ben leads on points, Ann second, inactive Cat last.
	want := []struct {
		userID string
		points int
		stars  int
		rank   int
	}{
		{"b", 10, 4, 1},
		{"a", 5, 5, 2},
		{"c", 0, 0, 3},
	}
	if len(res.Entries) != len(want) {
		t.Fatalf("entries = %d, want %d", len(res.Entries), len(want))
	}
	for i, w := range want {
		e := res.Entries[i]
		if e.UserID != w.userID || e.Points != w.points || e.Stars != w.stars || e.Rank != w.rank {
			t.Errorf("entry %d = %+v, want %+v", i, e, w)
		}
	}

	if repo.upserts != 1 {
		t.Errorf("durable fills = %d, want 1", repo.upserts)
	}
	if edge.sets != 1 {
		t.Errorf("edge fills = %d, want 1", edge.sets)
	}
	if edge.lastTTL != 45*time.Minute {
		t.Errorf("edge TTL = %v, want 45m", edge.lastTTL)
	}
}

func TestGetStarsEdgeReadErrorIsMiss(t *testing.T) {
	edge := newFakeEdge()
	edge.getErr = fmt.Errorf("connection refused")
	repo := newFakeCacheRepo()
	payload := buildTestPayload("a", "b")
	repo.rows[cacheKey("leaderboard_stars_global", types.TimeframeAll)] =
		mustDurableRow(t, "leaderboard_stars_global", types.TimeframeAll, payload)

	svc := newTestLeaderboard(t, rosterStore(), &fakeAggregator{}, edge, repo)
	res, err := svc.GetStars(context.Background(), ScopeGlobal, types.TimeframeAll, "a")
	if err != nil {
		t.Fatalf("edge failure must not fail the request: %v", err)
	}
	if res.Cached != CachedDurable {
		t.Errorf("cached = %q, want %q", res.Cached, CachedDurable)
	}
}

func TestGetStarsMalformedDurablePayloadIsMiss(t *testing.T) {
	edge := newFakeEdge()
	repo := newFakeCacheRepo()
	repo.rows[cacheKey("leaderboard_stars_global", types.TimeframeAll)] = &types.LeaderboardCache{
		Section:   "leaderboard_stars_global",
		Timeframe: types.TimeframeAll,
		Payload:   []byte("{not json"),
	}
	agg := &fakeAggregator{points: map[string]float64{}, stars: map[string]int{}}

	svc := newTestLeaderboard(t, rosterStore(), agg, edge, repo)
	res, err := svc.GetStars(context.Background(), ScopeGlobal, types.TimeframeAll, "a")
	if err != nil {
		t.Fatalf("GetStars: %v", err)
	}
	if res.Cached != "" {
		t.Errorf("cached = %q, want live computation after bad payload", res.Cached)
	}
	if agg.callCount() == 0 {
		t.Error("aggregator not invoked after malformed durable payload")
	}
}

func TestGetStarsCacheWriteFailuresAreSwallowed(t *testing.T) {
	edge := newFakeEdge()
	edge.setErr = fmt.Errorf("readonly replica")
	repo := newFakeCacheRepo()
	repo.upsertErr = fmt.Errorf("disk full")
	agg := &fakeAggregator{points: map[string]float64{"a": 1}, stars: map[string]int{}}

	svc := newTestLeaderboard(t, rosterStore(), agg, edge, repo)
	res, err := svc.GetStars(context.Background(), ScopeGlobal, types.TimeframeAll, "a")
	if err != nil {
		t.Fatalf("cache write failures must not fail the request: %v", err)
	}
	if len(res.Entries) == 0 {
		t.Error("entries missing despite successful computation")
	}
}

func TestGetStarsComputeFailurePropagates(t *testing.T) {
	agg := &fakeAggregator{err: fmt.Errorf("store down")}

	svc := newTestLeaderboard(t, rosterStore(), agg, newFakeEdge(), newFakeCacheRepo())
	_, err := svc.GetStars(context.Background(), ScopeGlobal, types.TimeframeAll, "a")
	if err == nil {
		t.Fatal("expected error when computation fails with cold caches")
	}
}

func TestGetStarsNilEdgeCache(t *testing.T) {
	agg := &fakeAggregator{points: map[string]float64{}, stars: map[string]int{}}

	svc := NewLeaderboardService(newTestLogger(t), rosterStore(), agg, nil, newFakeCacheRepo(), 5, "v2", time.Minute)
	if _, err := svc.GetStars(context.Background(), ScopeGlobal, types.TimeframeAll, "a"); err != nil {
		t.Fatalf("nil edge cache must degrade, not fail: %v", err)
	}
}

func TestGetStarsUnknownTimeframe(t *testing.T) {
	svc := newTestLeaderboard(t, rosterStore(), &fakeAggregator{}, newFakeEdge(), newFakeCacheRepo())

	_, err := svc.GetStars(context.Background(), ScopeGlobal, "week", "a")
	if !errors.Is(err, ErrUnknownTimeframe) {
		t.Fatalf("err = %v, want ErrUnknownTimeframe", err)
	}
}

func TestGetStarsClassScope(t *testing.T) {
	store := rosterStore()
	agg := &fakeAggregator{
		points: map[string]float64{"a": 3, "b": 9},
		stars:  map[string]int{"a": 1, "b": 2},
	}
	edge := newFakeEdge()
	repo := newFakeCacheRepo()

	svc := newTestLeaderboard(t, store, agg, edge, repo)
	res, err := svc.GetStars(context.Background(), ScopeClass, types.TimeframeAll, "a")
	if err != nil {
		t.Fatalf("GetStars: %v", err)
	}
	// Cat has no class; only Ann and Ben belong to 3B.
	if len(res.Entries) != 2 {
		t.Fatalf("entries = %d, want 2 classmates", len(res.Entries))
	}
	if _, ok := repo.rows[cacheKey("leaderboard_stars_class:3B", types.TimeframeAll)]; !ok {
		t.Error("class payload not written to its own durable section")
	}
	if _, ok := edge.data["leaderboard_stars_class_3B_v2_all"]; !ok {
		t.Error("class payload not written under its own edge key")
	}
}

func TestGetStarsClassScopeWithoutClass(t *testing.T) {
	svc := newTestLeaderboard(t, rosterStore(), &fakeAggregator{}, newFakeEdge(), newFakeCacheRepo())

	_, err := svc.GetStars(context.Background(), ScopeClass, types.TimeframeAll, "c")
	if !errors.Is(err, ErrNoClass) {
		t.Fatalf("err = %v, want ErrNoClass", err)
	}
}

func TestGetStarsClassScopeUnknownUser(t *testing.T) {
	svc := newTestLeaderboard(t, rosterStore(), &fakeAggregator{}, newFakeEdge(), newFakeCacheRepo())

	_, err := svc.GetStars(context.Background(), ScopeClass, types.TimeframeAll, "ghost")
	if !errors.Is(err, ErrUnknownProfile) {
		t.Fatalf("err = %v, want ErrUnknownProfile", err)
	}
}

func TestRefreshWritesBothTiers(t *testing.T) {
	edge := newFakeEdge()
	repo := newFakeCacheRepo()
	agg := &fakeAggregator{points: map[string]float64{"a": 2}, stars: map[string]int{"a": 1}}

	svc := newTestLeaderboard(t, rosterStore(), agg, edge, repo)
	if err := svc.Refresh(context.Background(), types.TimeframeMonth); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if repo.upserts != 1 {
		t.Errorf("durable writes = %d, want 1", repo.upserts)
	}
	if _, ok := edge.data["leaderboard_stars_global_v2_month"]; !ok {
		t.Error("edge key not refreshed")
	}
}

func TestRefreshFailsWhenDurableWriteFails(t *testing.T) {
	repo := newFakeCacheRepo()
	repo.upsertErr = fmt.Errorf("connection reset")
	agg := &fakeAggregator{points: map[string]float64{}, stars: map[string]int{}}

	svc := newTestLeaderboard(t, rosterStore(), agg, newFakeEdge(), repo)
	if err := svc.Refresh(context.Background(), types.TimeframeAll); err == nil {
		t.Fatal("expected refresh to fail when the durable write fails")
	}
}
