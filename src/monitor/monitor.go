// Package monitor watches open positions and closes them on stop, target,
// holding-time, or end-of-session conditions.
package monitor

import (
	"context"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"

	"newstrader/src/connectors"
	"newstrader/src/model"
	"newstrader/src/risk"
)

// TradeStore is the slice of the trade repository the monitor needs.
type TradeStore interface {
	FindOpen(ctx context.Context) ([]model.Trade, error)
	Save(ctx context.Context, trade *model.Trade) error
}

// Monitor runs exit checks over every open trade. Ticks run sequentially;
// a slow tick delays the next one rather than overlapping it.
type Monitor struct {
	cfg     Config
	session *risk.Session
	trades  TradeStore
	market  connectors.MarketDataPort
	broker  connectors.BrokerPort

	now func() time.Time
}

func New(cfg Config, session *risk.Session, trades TradeStore, market connectors.MarketDataPort, broker connectors.BrokerPort) *Monitor {
	return &Monitor{
		cfg:     cfg,
		session: session,
		trades:  trades,
		market:  market,
		broker:  broker,
		now:     time.Now,
	}
}

// CheckExit decides whether the trade should close at the given price and
// time. Price conditions are checked before time conditions, so a stop hit in
// the closing minutes is still reported as a stop.
func (m *Monitor) CheckExit(trade *model.Trade, price float64, now time.Time) (string, bool) {
	if trade.Side == model.DirectionBuy {
		if price <= trade.StopLoss {
			return fmt.Sprintf("Stop loss hit @ $%.2f", price), true
		}
		if price >= trade.TargetPrice {
			return fmt.Sprintf("Target reached @ $%.2f", price), true
		}
	} else {
		if price >= trade.StopLoss {
			return fmt.Sprintf("Stop loss hit @ $%.2f", price), true
		}
		if price <= trade.TargetPrice {
			return fmt.Sprintf("Target reached @ $%.2f", price), true
		}
	}

	if trade.OpenedAt != nil && now.Sub(*trade.OpenedAt) >= m.cfg.MaxHolding {
		return fmt.Sprintf("time-based exit (%d hours)", int(m.cfg.MaxHolding.Hours())), true
	}

	if m.session.WithinBeforeClose(now, m.cfg.CloseBuffer) {
		return "market closing soon", true
	}

	return "", false
}

// ClosePosition sends the closing order and settles the trade at the fill.
// A broker failure leaves the trade open for the next tick.
func (m *Monitor) ClosePosition(ctx context.Context, trade *model.Trade, exitPrice float64, reason string) error {
	log := logger.WithFields(map[string]interface{}{
		"trade_id": trade.ID,
		"ticker":   trade.Ticker,
		"reason":   reason,
	})

	closeSide := model.DirectionSell
	if trade.Side == model.DirectionSell {
		closeSide = model.DirectionBuy
	}

	res, err := m.broker.PlaceMarketOrder(ctx, trade.Ticker, trade.Quantity, closeSide)
	if err != nil {
		log.WithError(err).Error("Close order failed, position stays open")
		return err
	}

	filled := exitPrice
	if res != nil && res.FilledPrice > 0 {
		filled = res.FilledPrice
	}

	closedAt := m.now()
	trade.ExitPrice = &filled
	trade.ClosedAt = &closedAt
	trade.Fees += float64(trade.Quantity) * m.cfg.FeePerShare
	trade.Status = model.TradeStatusClosed
	if trade.Notes == "" {
		trade.Notes = reason
	} else {
		trade.Notes = trade.Notes + " | " + reason
	}
	trade.CalculatePnl()

	if err := m.trades.Save(ctx, trade); err != nil {
		log.WithError(err).Error("Failed to persist closed trade")
		return err
	}

	log.WithFields(map[string]interface{}{
		"exit_price": filled,
		"pnl":        trade.Pnl,
		"pnl_pct":    trade.PnlPercentage,
	}).Info("Position closed")

	return nil
}

// RunTick checks every open trade once. A trade whose price cannot be
// fetched is skipped and retried next tick; it is never assumed closed.
func (m *Monitor) RunTick(ctx context.Context) {
	now := m.now()

	open, err := m.trades.FindOpen(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to load open trades")
		return
	}

	for i := range open {
		trade := &open[i]

		price, err := m.market.LatestPrice(ctx, trade.Ticker)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"trade_id": trade.ID,
				"ticker":   trade.Ticker,
			}).WithError(err).Warn("No exit price, retrying next tick")
			continue
		}

		reason, exit := m.CheckExit(trade, price, now)
		if !exit {
			continue
		}

		if err := m.ClosePosition(ctx, trade, price, reason); err != nil {
			continue
		}
	}
}

// StartLoop runs RunTick on every interval until the context is cancelled.
func (m *Monitor) StartLoop(ctx context.Context) {
	logger.WithField("interval", m.cfg.Interval).Info("Position monitor loop started")

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Position monitor loop stopped")
			return
		case <-ticker.C:
			m.RunTick(ctx)
		}
	}
}
