package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"newstrader/src/database"
	"newstrader/src/model"
)

// PortfolioRepository handles read/write operations for daily snapshots.
type PortfolioRepository struct {
	db *gorm.DB
}

// NewPortfolioRepository creates a new repository instance using the main database.
func NewPortfolioRepository() *PortfolioRepository {
	return &PortfolioRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *PortfolioRepository) WithDB(db *gorm.DB) *PortfolioRepository {
	return &PortfolioRepository{db: db}
}

// FindByDate fetches the snapshot for the given calendar date.
// Returns (nil, nil) when no snapshot exists yet.
func (r *PortfolioRepository) FindByDate(ctx context.Context, date string) (*model.DailyPerformance, error) {
	var snapshot model.DailyPerformance

	err := r.db.WithContext(ctx).
		Where("date = ?", date).
		First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithField("date", date).WithError(err).Error("Failed to fetch daily snapshot")
		return nil, err
	}

	return &snapshot, nil
}

// Save persists the snapshot, inserting it when new.
func (r *PortfolioRepository) Save(ctx context.Context, snapshot *model.DailyPerformance) error {
	if err := r.db.WithContext(ctx).Save(snapshot).Error; err != nil {
		logger.WithField("date", snapshot.Date).WithError(err).Error("Failed to save daily snapshot")
		return err
	}
	return nil
}

// FindLatest returns recent snapshots, newest first.
func (r *PortfolioRepository) FindLatest(ctx context.Context, limit int) ([]model.DailyPerformance, error) {
	if limit <= 0 {
		limit = 30
	}

	var snapshots []model.DailyPerformance
	err := r.db.WithContext(ctx).
		Order("date DESC").
		Limit(limit).
		Find(&snapshots).Error
	if err != nil {
		logger.WithError(err).Error("Failed to fetch latest snapshots")
		return nil, err
	}

	return snapshots, nil
}
