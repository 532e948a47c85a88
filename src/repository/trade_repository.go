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

// TradeRepository handles read/write operations for trades.
type TradeRepository struct {
	db *gorm.DB
}

// NewTradeRepository creates a new repository instance using the main database.
func NewTradeRepository() *TradeRepository {
	return &TradeRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *TradeRepository) WithDB(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create inserts a new trade record.
func (r *TradeRepository) Create(ctx context.Context, trade *model.Trade) error {
	logger.WithFields(map[string]interface{}{
		"repo":   "TradeRepository",
		"op":     "Create",
		"ticker": trade.Ticker,
		"side":   trade.Side,
		"qty":    trade.Quantity,
	}).Debug("Creating trade")

	if err := r.db.WithContext(ctx).Create(trade).Error; err != nil {
		logger.WithField("ticker", trade.Ticker).WithError(err).Error("Failed to create trade")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "TradeRepository",
		"trade_id": trade.ID,
		"ticker":   trade.Ticker,
	}).Info("Trade created")

	return nil
}

// Save persists the full current state of the trade.
func (r *TradeRepository) Save(ctx context.Context, trade *model.Trade) error {
	if err := r.db.WithContext(ctx).Save(trade).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "TradeRepository",
			"op":       "Save",
			"trade_id": trade.ID,
		}).WithError(err).Error("Failed to save trade")
		return err
	}
	return nil
}

// FindByID fetches a trade by primary ID. Returns (nil, nil) when not found.
func (r *TradeRepository) FindByID(ctx context.Context, id uint) (*model.Trade, error) {
	var trade model.Trade

	err := r.db.WithContext(ctx).First(&trade, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithField("id", id).WithError(err).Error("Failed to fetch trade by ID")
		return nil, err
	}

	return &trade, nil
}

// FindOpen returns all currently open trades, oldest first.
func (r *TradeRepository) FindOpen(ctx context.Context) ([]model.Trade, error) {
	var trades []model.Trade

	err := r.db.WithContext(ctx).
		Where("status = ?", model.TradeStatusOpen).
		Order("id ASC").
		Find(&trades).Error
	if err != nil {
		logger.WithError(err).Error("Failed to fetch open trades")
		return nil, err
	}

	return trades, nil
}

// FindOpenByTicker returns the open trade for the ticker, or (nil, nil).
func (r *TradeRepository) FindOpenByTicker(ctx context.Context, ticker string) (*model.Trade, error) {
	var trade model.Trade

	err := r.db.WithContext(ctx).
		Where("ticker = ? AND status = ?", ticker, model.TradeStatusOpen).
		First(&trade).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithField("ticker", ticker).WithError(err).Error("Failed to fetch open trade for ticker")
		return nil, err
	}

	return &trade, nil
}

// CountOpenedSince counts trades opened at or after the given time, regardless
// of their current status. Used for the daily trade limit.
func (r *TradeRepository) CountOpenedSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64

	err := r.db.WithContext(ctx).
		Model(&model.Trade{}).
		Where("opened_at >= ?", since).
		Count(&count).Error
	if err != nil {
		logger.WithError(err).Error("Failed to count trades opened since")
		return 0, err
	}

	return count, nil
}

// SumClosedPnlSince sums realized P&L over trades closed at or after the given
// time. Used for the daily loss limit.
func (r *TradeRepository) SumClosedPnlSince(ctx context.Context, since time.Time) (float64, error) {
	var total *float64

	err := r.db.WithContext(ctx).
		Model(&model.Trade{}).
		Select("SUM(pnl)").
		Where("closed_at >= ? AND status = ?", since, model.TradeStatusClosed).
		Scan(&total).Error
	if err != nil {
		logger.WithError(err).Error("Failed to sum closed pnl")
		return 0, err
	}

	if total == nil {
		return 0, nil
	}
	return *total, nil
}

// FindRecentClosed returns the most recently closed trades, newest first.
func (r *TradeRepository) FindRecentClosed(ctx context.Context, limit int) ([]model.Trade, error) {
	if limit <= 0 {
		limit = 10
	}

	var trades []model.Trade
	err := r.db.WithContext(ctx).
		Where("status = ?", model.TradeStatusClosed).
		Order("closed_at DESC").
		Limit(limit).
		Find(&trades).Error
	if err != nil {
		logger.WithError(err).Error("Failed to fetch recent closed trades")
		return nil, err
	}

	return trades, nil
}

// FindClosedBetween returns trades closed inside [from, to), ordered by close
// time. Used by the daily rollup.
func (r *TradeRepository) FindClosedBetween(ctx context.Context, from, to time.Time) ([]model.Trade, error) {
	var trades []model.Trade

	err := r.db.WithContext(ctx).
		Where("status = ? AND closed_at >= ? AND closed_at < ?", model.TradeStatusClosed, from, to).
		Order("closed_at ASC").
		Find(&trades).Error
	if err != nil {
		logger.WithError(err).Error("Failed to fetch closed trades in range")
		return nil, err
	}

	return trades, nil
}

// FindLatest returns the latest trades ordered from newest to oldest.
func (r *TradeRepository) FindLatest(ctx context.Context, limit int) ([]model.Trade, error) {
	if limit <= 0 {
		limit = 20
	}

	var trades []model.Trade
	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&trades).Error
	if err != nil {
		logger.WithError(err).Error("Failed to fetch latest trades")
		return nil, err
	}

	return trades, nil
}
