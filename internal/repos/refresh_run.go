package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wordbloom/analytics-backend/internal/logger"
	"github.com/wordbloom/analytics-backend/internal/types"
)

type RefreshRunRepo interface {
	Create(ctx context.Context, tx *gorm.DB, run *types.RefreshRun) (*types.RefreshRun, error)
}

type refreshRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRefreshRunRepo(db *gorm.DB, baseLog *logger.Logger) RefreshRunRepo {
	repoLog := baseLog.With("repo", "RefreshRunRepo")
	return &refreshRunRepo{db: db, log: repoLog}
}

func (r *refreshRunRepo) Create(ctx context.Context, tx *gorm.DB, run *types.RefreshRun) (*types.RefreshRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if err := transaction.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}
