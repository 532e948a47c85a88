package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"newstrader/src/database"
	"newstrader/src/model"
)

// SignalRepository handles read/write operations for signals.
type SignalRepository struct {
	db *gorm.DB
}

// NewSignalRepository creates a new repository instance using the main database.
func NewSignalRepository() *SignalRepository {
	return &SignalRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *SignalRepository) WithDB(db *gorm.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// Create inserts a new signal. The given signal is updated with the generated
// ID and timestamps.
func (r *SignalRepository) Create(ctx context.Context, signal *model.Signal) error {
	logger.WithFields(map[string]interface{}{
		"repo":      "SignalRepository",
		"op":        "Create",
		"ticker":    signal.Ticker,
		"direction": signal.Direction,
	}).Debug("Creating signal")

	if err := r.db.WithContext(ctx).Create(signal).Error; err != nil {
		logger.WithField("ticker", signal.Ticker).WithError(err).Error("Failed to create signal")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "SignalRepository",
		"signal_id": signal.ID,
		"ticker":    signal.Ticker,
	}).Info("Signal created")

	return nil
}

// Save persists the full current state of the signal, including status changes
// and the reasoning trail.
func (r *SignalRepository) Save(ctx context.Context, signal *model.Signal) error {
	if err := r.db.WithContext(ctx).Save(signal).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "SignalRepository",
			"op":        "Save",
			"signal_id": signal.ID,
		}).WithError(err).Error("Failed to save signal")
		return err
	}
	return nil
}

// FindByID fetches a single signal by its primary ID.
// Returns (nil, nil) if the signal is not found.
func (r *SignalRepository) FindByID(ctx context.Context, id uint) (*model.Signal, error) {
	var signal model.Signal

	err := r.db.WithContext(ctx).First(&signal, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithField("id", id).WithError(err).Error("Failed to fetch signal by ID")
		return nil, err
	}

	return &signal, nil
}

// FindByStatus returns signals in the given status, oldest first.
func (r *SignalRepository) FindByStatus(ctx context.Context, status string, limit int) ([]model.Signal, error) {
	if limit <= 0 {
		limit = 50
	}

	var signals []model.Signal
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("id ASC").
		Limit(limit).
		Find(&signals).Error
	if err != nil {
		logger.WithField("status", status).WithError(err).Error("Failed to fetch signals by status")
		return nil, err
	}

	return signals, nil
}

// FindActiveByTickerSince returns the most recent non-terminal signal for the
// ticker created at or after the given time. Returns (nil, nil) when none
// exists; used for the per-ticker cooldown dedup.
func (r *SignalRepository) FindActiveByTickerSince(ctx context.Context, ticker string, since time.Time) (*model.Signal, error) {
	var signal model.Signal

	err := r.db.WithContext(ctx).
		Where("ticker = ? AND created_at >= ? AND status NOT IN ?",
			ticker, since,
			[]string{model.SignalStatusRejected, model.SignalStatusExpired}).
		Order("created_at DESC").
		First(&signal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithField("ticker", ticker).WithError(err).Error("Failed to fetch recent signal for ticker")
		return nil, err
	}

	return &signal, nil
}

// FindLatest returns the latest signals ordered from newest to oldest.
func (r *SignalRepository) FindLatest(ctx context.Context, limit int) ([]model.Signal, error) {
	if limit <= 0 {
		limit = 20
	}

	var signals []model.Signal
	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&signals).Error
	if err != nil {
		logger.WithError(err).Error("Failed to fetch latest signals")
		return nil, err
	}

	return signals, nil
}

// ExpireStale marks every non-terminal signal whose expiry has passed as
// expired. Returns the number of rows touched. Expiry is a sweep, never a
// cancellation of in-flight work.
func (r *SignalRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Signal{}).
		Where("expires_at IS NOT NULL AND expires_at < ? AND status NOT IN ?",
			now,
			[]string{model.SignalStatusRejected, model.SignalStatusExpired, model.SignalStatusExecuted}).
		Update("status", model.SignalStatusExpired)
	if res.Error != nil {
		logger.WithError(res.Error).Error("Failed to expire stale signals")
		return 0, res.Error
	}

	if res.RowsAffected > 0 {
		logger.WithField("count", res.RowsAffected).Info("Expired stale signals")
	}

	return res.RowsAffected, nil
}
