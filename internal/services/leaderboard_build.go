package services

import (
	"math"
	"sort"
	"time"

	"github.com/wordbloom/analytics-backend/internal/types"
)

// topEntriesLimit bounds the slice stored in cache payloads. The condensed
// view only ever needs a small prefix; everyone else is reachable through
// the payload's UserPoints map.
const topEntriesLimit = 50

// BuildEntries turns aggregated totals into a ranked leaderboard. Every
// profile gets a row, zeros included: a user with no activity still has a
// rank. Rank is assigned from the points-then-name order before superScore
// is computed; superScore never influences ordering.
func BuildEntries(profiles []types.UserProfile, points map[string]float64, stars map[string]int) []types.LeaderboardEntry {
	entries := make([]types.LeaderboardEntry, 0, len(profiles))
	for _, p := range profiles {
		entries = append(entries, types.LeaderboardEntry{
			UserID: p.ID,
			Name:   p.DisplayName(),
			Avatar: p.Avatar,
			Class:  p.Class,
			Points: int(math.Round(points[p.ID])),
			Stars:  stars[p.ID],
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		return entries[i].Name < entries[j].Name
	})

	for i := range entries {
		entries[i].Rank = i + 1
		entries[i].SuperScore = types.SuperScoreOf(entries[i].Stars, entries[i].Points)
	}
	return entries
}

// NewCachePayload freezes ranked entries into an immutable payload.
func NewCachePayload(timeframe string, entries []types.LeaderboardEntry) *types.CachePayload {
	top := entries
	if len(top) > topEntriesLimit {
		top = top[:topEntriesLimit]
	}
	topCopy := make([]types.LeaderboardEntry, len(top))
	copy(topCopy, top)

	userPoints := make(map[string]types.LeaderboardEntry, len(entries))
	for _, e := range entries {
		userPoints[e.UserID] = e
	}

	return &types.CachePayload{
		Timeframe:  timeframe,
		CachedAt:   time.Now().UTC(),
		TopEntries: topCopy,
		UserPoints: userPoints,
	}
}

// Condense returns the top-N slice with the requesting user's row guaranteed
// present: if they rank outside the slice their row is appended with the
// self marker.
func Condense(payload *types.CachePayload, requestingUserID string, topN int) []types.LeaderboardEntry {
	if payload == nil {
		return nil
	}
	n := topN
	if n > len(payload.TopEntries) {
		n = len(payload.TopEntries)
	}
	out := make([]types.LeaderboardEntry, n)
	copy(out, payload.TopEntries[:n])

	for _, e := range out {
		if e.UserID == requestingUserID {
			return out
		}
	}
	if row, ok := payload.UserPoints[requestingUserID]; ok {
		row.Self = true
		out = append(out, row)
	}
	return out
}
