// Package portfolio maintains the daily performance ledger: one snapshot per
// calendar date, recomputed from closed trades.
package portfolio

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"newstrader/src/model"
	"newstrader/src/risk"
)

const dateLayout = "2006-01-02"

// TradeStore is the slice of the trade repository the accountant needs.
type TradeStore interface {
	FindClosedBetween(ctx context.Context, from, to time.Time) ([]model.Trade, error)
}

// SnapshotStore persists daily performance rows.
type SnapshotStore interface {
	FindByDate(ctx context.Context, date string) (*model.DailyPerformance, error)
	Save(ctx context.Context, snapshot *model.DailyPerformance) error
	FindLatest(ctx context.Context, limit int) ([]model.DailyPerformance, error)
}

// Accountant rolls closed trades up into per-day snapshots. Rollup is a full
// recomputation from the trades of the day, so running it again for the same
// date converges on the same numbers.
type Accountant struct {
	cfg       Config
	session   *risk.Session
	trades    TradeStore
	snapshots SnapshotStore
}

func NewAccountant(cfg Config, session *risk.Session, trades TradeStore, snapshots SnapshotStore) *Accountant {
	return &Accountant{
		cfg:       cfg,
		session:   session,
		trades:    trades,
		snapshots: snapshots,
	}
}

// Rollup recomputes the snapshot for the trading day containing t. The
// starting balance chains from the previous snapshot's ending balance, or
// from configured starting capital on the first day.
func (a *Accountant) Rollup(ctx context.Context, t time.Time) (*model.DailyPerformance, error) {
	dayStart := a.session.DayStart(t)
	dayEnd := dayStart.Add(24 * time.Hour)
	dateKey := dayStart.Format(dateLayout)

	log := logger.WithField("date", dateKey)

	trades, err := a.trades.FindClosedBetween(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}

	snapshot, err := a.snapshots.FindByDate(ctx, dateKey)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		starting, err := a.startingBalance(ctx, dayStart)
		if err != nil {
			return nil, err
		}
		snapshot = &model.DailyPerformance{
			Date:            dayStart,
			StartingBalance: starting,
		}
	}

	var (
		dailyPnl, totalFees float64
		grossWin, grossLoss float64
		winning, losing     int
	)
	for i := range trades {
		pnl := trades[i].Pnl
		dailyPnl += pnl
		totalFees += trades[i].Fees

		switch {
		case pnl > 0:
			winning++
			grossWin += pnl
		case pnl < 0:
			losing++
			grossLoss += -pnl
		}
	}

	snapshot.TotalTrades = len(trades)
	snapshot.WinningTrades = winning
	snapshot.LosingTrades = losing
	snapshot.DailyPnl = dailyPnl
	snapshot.TotalFees = totalFees

	if grossLoss > 0 {
		snapshot.ProfitFactor = grossWin / grossLoss
	} else {
		snapshot.ProfitFactor = 0
	}
	snapshot.MaxDrawdown = maxDrawdownPct(snapshot.StartingBalance, trades)
	snapshot.CalculateDerived()

	if err := a.snapshots.Save(ctx, snapshot); err != nil {
		return nil, err
	}

	log.WithFields(map[string]interface{}{
		"trades":   snapshot.TotalTrades,
		"pnl":      snapshot.DailyPnl,
		"win_rate": snapshot.WinRate,
		"ending":   snapshot.EndingBalance,
	}).Info("Daily rollup complete")

	return snapshot, nil
}

func (a *Accountant) startingBalance(ctx context.Context, dayStart time.Time) (float64, error) {
	latest, err := a.snapshots.FindLatest(ctx, 1)
	if err != nil {
		return 0, err
	}
	if len(latest) > 0 && latest[0].Date.Before(dayStart) {
		return latest[0].EndingBalance, nil
	}
	return a.cfg.StartingCapital, nil
}

// maxDrawdownPct walks the day's closes in order and returns the deepest
// peak-to-trough equity drop as a percentage of the peak.
func maxDrawdownPct(starting float64, trades []model.Trade) float64 {
	equity := starting
	peak := starting
	maxDD := 0.0

	for i := range trades {
		equity += trades[i].Pnl
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak * 100; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}
