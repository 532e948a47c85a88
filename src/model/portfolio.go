package model

import "time"

// DailyPerformance is the daily portfolio snapshot, one row per calendar date.
// Rows for past dates are append-only history and never mutated after rollover.
type DailyPerformance struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	Date time.Time `gorm:"type:date;uniqueIndex;not null" json:"date"`

	StartingBalance float64 `gorm:"not null" json:"starting_balance"`
	EndingBalance   float64 `json:"ending_balance"`

	DailyPnl           float64 `gorm:"default:0" json:"daily_pnl"`
	DailyPnlPercentage float64 `gorm:"default:0" json:"daily_pnl_percentage"`

	TotalTrades   int `gorm:"default:0" json:"total_trades"`
	WinningTrades int `gorm:"default:0" json:"winning_trades"`
	LosingTrades  int `gorm:"default:0" json:"losing_trades"`

	WinRate      float64 `gorm:"default:0" json:"win_rate"`
	ProfitFactor float64 `gorm:"default:0" json:"profit_factor"`
	MaxDrawdown  float64 `gorm:"default:0" json:"max_drawdown"`

	TotalFees float64 `gorm:"default:0" json:"total_fees"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (DailyPerformance) TableName() string {
	return "daily_performance"
}

// CalculateDerived fills in the fields that follow from the raw counters:
// ending balance, daily P&L percentage and win rate.
func (d *DailyPerformance) CalculateDerived() {
	d.EndingBalance = d.StartingBalance + d.DailyPnl

	if d.StartingBalance > 0 {
		d.DailyPnlPercentage = (d.DailyPnl / d.StartingBalance) * 100
	}

	if d.TotalTrades > 0 {
		d.WinRate = (float64(d.WinningTrades) / float64(d.TotalTrades)) * 100
	} else {
		d.WinRate = 0
	}
}
