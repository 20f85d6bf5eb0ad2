package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wordbloom/analytics-backend/internal/logger"
	"github.com/wordbloom/analytics-backend/internal/types"
)

type LeaderboardCacheRepo interface {
	Get(ctx context.Context, tx *gorm.DB, section, timeframe string) (*types.LeaderboardCache, error)
	Upsert(ctx context.Context, tx *gorm.DB, row *types.LeaderboardCache) (*types.LeaderboardCache, error)
}

type leaderboardCacheRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLeaderboardCacheRepo(db *gorm.DB, baseLog *logger.Logger) LeaderboardCacheRepo {
	repoLog := baseLog.With("repo", "LeaderboardCacheRepo")
	return &leaderboardCacheRepo{db: db, log: repoLog}
}

func (r *leaderboardCacheRepo) Get(ctx context.Context, tx *gorm.DB, section, timeframe string) (*types.LeaderboardCache, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.LeaderboardCache
	if err := transaction.WithContext(ctx).
		Where("section = ? AND timeframe = ?", section, timeframe).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

// Upsert replaces the payload for (section, timeframe): last write wins.
func (r *leaderboardCacheRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.LeaderboardCache) (*types.LeaderboardCache, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	now := time.Now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now

	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "section"}, {Name: "timeframe"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "cached_at", "updated_at"}),
		}).
		Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}
