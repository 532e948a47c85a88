package risk

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"newstrader/src/model"
)

// SignalStore persists signal state changes made by the engine.
type SignalStore interface {
	Save(ctx context.Context, signal *model.Signal) error
}

// TradeStore supplies the trade history the hard checks run against.
type TradeStore interface {
	CountOpenedSince(ctx context.Context, since time.Time) (int64, error)
	SumClosedPnlSince(ctx context.Context, since time.Time) (float64, error)
	FindRecentClosed(ctx context.Context, limit int) ([]model.Trade, error)
	FindOpen(ctx context.Context) ([]model.Trade, error)
	FindOpenByTicker(ctx context.Context, ticker string) (*model.Trade, error)
}

// AccountValuer reports current account equity. The broker connector
// satisfies this; the engine falls back to configured starting capital when
// the call fails.
type AccountValuer interface {
	AccountValue(ctx context.Context) (float64, error)
}

// QuoteSource supplies the bid/ask used by the spread check.
type QuoteSource interface {
	LatestQuote(ctx context.Context, ticker string) (*model.Quote, error)
}

// TradeParams is the sized, approved order the pipeline hands to the broker.
type TradeParams struct {
	SignalID        uint
	Ticker          string
	Direction       string
	Shares          int
	EntryPrice      float64
	StopLoss        float64
	TargetPrice     float64
	RiskAmount      float64
	RiskPercentage  float64
	PotentialProfit float64
	RewardRisk      float64
}

// Verdict is the outcome of a risk validation. When Approved is false the
// signal has been moved to rejected with Reason appended to its trail.
type Verdict struct {
	Approved bool
	Reason   string
	Params   *TradeParams
}

// Engine runs the hard risk checks and position sizing for analyzed signals.
// Counting checks and the approval itself run under a single mutex, and an
// approval reserves its daily slot and ticker in memory until Release is
// called. An approved trade has no opened row yet, so without the reservation
// two signals validated back to back could both slip under the daily limit or
// open the same ticker twice.
type Engine struct {
	cfg     Config
	session *Session
	signals SignalStore
	trades  TradeStore
	account AccountValuer
	quotes  QuoteSource

	mu       sync.Mutex
	resDay   time.Time
	reserved map[string]struct{}
	now      func() time.Time
}

func NewEngine(cfg Config, session *Session, signals SignalStore, trades TradeStore, account AccountValuer, quotes QuoteSource) *Engine {
	return &Engine{
		cfg:      cfg,
		session:  session,
		signals:  signals,
		trades:   trades,
		account:  account,
		quotes:   quotes,
		reserved: make(map[string]struct{}),
		now:      time.Now,
	}
}

// Validate runs every hard check in order against the analyzed signal, then
// sizes the position. The first failing check rejects the signal; the engine
// fails closed, so a check that cannot be evaluated rejects too (except the
// spread check, which passes when no quote is available).
func (e *Engine) Validate(ctx context.Context, signal *model.Signal) Verdict {
	log := logger.WithFields(map[string]interface{}{
		"signal_id": signal.ID,
		"ticker":    signal.Ticker,
	})

	if signal.Status != model.SignalStatusAnalyzed {
		log.WithField("status", signal.Status).Warn("Risk validation called on non-analyzed signal")
		return e.reject(ctx, signal, fmt.Sprintf("Signal not in analyzed state (%s)", signal.Status))
	}
	if !signal.HasPriceLevels() {
		return e.reject(ctx, signal, "Signal missing entry/stop/target prices")
	}

	entry := *signal.EntryPrice
	stop := *signal.StopLoss
	target := *signal.TargetPrice
	if entry <= 0 || stop <= 0 || target <= 0 {
		return e.reject(ctx, signal, "Signal has non-positive price levels")
	}
	if stop == entry {
		return e.reject(ctx, signal, "Stop loss equals entry price")
	}

	portfolioValue := e.portfolioValue(ctx)
	now := e.now()
	dayStart := e.session.DayStart(now)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.resDay.Equal(dayStart) {
		e.resDay = dayStart
		e.reserved = make(map[string]struct{})
	}

	// 1. Daily trade limit. Approved-but-not-yet-opened signals hold a
	// reserved slot and count alongside the opened rows.
	openedToday, err := e.trades.CountOpenedSince(ctx, dayStart)
	if err != nil {
		log.WithError(err).Error("Daily trade count check failed")
		return e.reject(ctx, signal, "Validation error: could not count today's trades")
	}
	usedToday := openedToday + int64(len(e.reserved))
	if usedToday >= int64(e.cfg.MaxTradesPerDay) {
		return e.reject(ctx, signal, fmt.Sprintf("Daily trade limit reached (%d/%d)", usedToday, e.cfg.MaxTradesPerDay))
	}

	// 2. Daily loss limit.
	dailyPnl, err := e.trades.SumClosedPnlSince(ctx, dayStart)
	if err != nil {
		log.WithError(err).Error("Daily loss check failed")
		return e.reject(ctx, signal, "Validation error: could not compute today's P&L")
	}
	maxLoss := -e.cfg.MaxDailyLoss * portfolioValue
	if dailyPnl <= maxLoss {
		return e.reject(ctx, signal, fmt.Sprintf("Daily loss limit reached (%.2f / %.2f)", dailyPnl, maxLoss))
	}

	// 3. Consecutive losses.
	recent, err := e.trades.FindRecentClosed(ctx, e.cfg.MaxConsecutiveLosses)
	if err != nil {
		log.WithError(err).Error("Consecutive loss check failed")
		return e.reject(ctx, signal, "Validation error: could not load recent trades")
	}
	if len(recent) >= e.cfg.MaxConsecutiveLosses && allLosses(recent) {
		return e.reject(ctx, signal, fmt.Sprintf("Max consecutive losses reached (%d)", e.cfg.MaxConsecutiveLosses))
	}

	// 4. Market hours with open/close buffers.
	if ok, reason := e.session.CheckEntryWindow(now); !ok {
		return e.reject(ctx, signal, reason)
	}

	// 5. One open position per ticker, reservations included.
	if _, held := e.reserved[signal.Ticker]; held {
		return e.reject(ctx, signal, fmt.Sprintf("Already have open position in %s", signal.Ticker))
	}
	open, err := e.trades.FindOpenByTicker(ctx, signal.Ticker)
	if err != nil {
		log.WithError(err).Error("Open position check failed")
		return e.reject(ctx, signal, "Validation error: could not check open positions")
	}
	if open != nil {
		return e.reject(ctx, signal, fmt.Sprintf("Already have open position in %s", signal.Ticker))
	}

	// 6. Spread. No quote means no spread opinion; the check passes.
	if quote, qErr := e.quotes.LatestQuote(ctx, signal.Ticker); qErr == nil && quote != nil {
		if spread := quote.Spread(); spread > e.cfg.MaxSpreadFraction {
			return e.reject(ctx, signal, fmt.Sprintf("Spread too wide: %.2f%%", spread*100))
		}
	}

	params, sizeReason := e.size(ctx, signal, portfolioValue)
	if params == nil {
		return e.reject(ctx, signal, sizeReason)
	}

	signal.PositionSize = params.Shares
	signal.AppendReasoning(fmt.Sprintf("Risk approved: %.2f%% risk, R:R %.2f", params.RiskPercentage, params.RewardRisk))
	if err := signal.Transition(model.SignalStatusApproved); err != nil {
		log.WithError(err).Error("Failed to approve signal")
		return Verdict{Approved: false, Reason: err.Error()}
	}
	if err := e.signals.Save(ctx, signal); err != nil {
		log.WithError(err).Error("Failed to persist approved signal")
		return Verdict{Approved: false, Reason: "Validation error: could not persist approval"}
	}

	e.reserved[signal.Ticker] = struct{}{}

	log.WithFields(map[string]interface{}{
		"shares":   params.Shares,
		"risk_pct": params.RiskPercentage,
		"rr":       params.RewardRisk,
	}).Info("Signal approved by risk engine")

	return Verdict{Approved: true, Params: params}
}

// Release frees the slot and ticker reserved when a signal was approved. The
// pipeline calls it once execution has settled either way: a filled order is
// counted through its opened trade row from then on, a failed order gives the
// slot back.
func (e *Engine) Release(ticker string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.reserved, ticker)
}

// size computes the confidence-scaled position. Returns (nil, reason) when no
// viable position exists.
func (e *Engine) size(ctx context.Context, signal *model.Signal, portfolioValue float64) (*TradeParams, string) {
	entry := decimal.NewFromFloat(*signal.EntryPrice)
	stop := decimal.NewFromFloat(*signal.StopLoss)
	target := decimal.NewFromFloat(*signal.TargetPrice)

	riskPerShare := entry.Sub(stop).Abs()
	if !riskPerShare.IsPositive() {
		return nil, "Stop loss equals entry price"
	}

	available, err := e.availableCapital(ctx, portfolioValue)
	if err != nil {
		return nil, "Validation error: could not compute available capital"
	}
	if available < e.cfg.MinCapitalPerTrade {
		return nil, fmt.Sprintf("Insufficient capital (%.2f available)", available)
	}

	maxRisk := decimal.NewFromFloat(portfolioValue).Mul(decimal.NewFromFloat(e.cfg.MaxRiskPerTrade))
	confFactor := decimal.NewFromInt(int64(signal.Confidence)).Div(decimal.NewFromInt(100))
	if confFactor.GreaterThan(decimal.NewFromInt(1)) {
		confFactor = decimal.NewFromInt(1)
	}
	effectiveRisk := maxRisk.Mul(confFactor)

	shares := effectiveRisk.Div(riskPerShare).IntPart()

	// Clamp notional to what is actually available.
	availableDec := decimal.NewFromFloat(available)
	if decimal.NewFromInt(shares).Mul(entry).GreaterThan(availableDec) {
		shares = availableDec.Div(entry).IntPart()
	}

	if shares < 1 {
		// Fallback: unscaled risk formula, hard-capped. Used only when the
		// confidence-scaled size rounds to zero.
		shares = maxRisk.Div(riskPerShare).IntPart()
		if shares > int64(e.cfg.FallbackMaxShares) {
			shares = int64(e.cfg.FallbackMaxShares)
		}
		if decimal.NewFromInt(shares).Mul(entry).GreaterThan(availableDec) {
			shares = availableDec.Div(entry).IntPart()
		}
	}
	if shares < 1 {
		return nil, "Position too small (< 1 share)"
	}

	sharesDec := decimal.NewFromInt(shares)
	riskAmount := sharesDec.Mul(riskPerShare)
	potential := sharesDec.Mul(target.Sub(entry).Abs())

	riskAmountF, _ := riskAmount.Float64()
	potentialF, _ := potential.Float64()
	rewardRisk := 0.0
	if riskAmountF > 0 {
		rewardRisk = potentialF / riskAmountF
	}

	return &TradeParams{
		SignalID:        signal.ID,
		Ticker:          signal.Ticker,
		Direction:       signal.Direction,
		Shares:          int(shares),
		EntryPrice:      *signal.EntryPrice,
		StopLoss:        *signal.StopLoss,
		TargetPrice:     *signal.TargetPrice,
		RiskAmount:      riskAmountF,
		RiskPercentage:  riskAmountF / portfolioValue * 100,
		PotentialProfit: potentialF,
		RewardRisk:      rewardRisk,
	}, ""
}

// availableCapital is portfolio value minus the notional tied up in open
// positions.
func (e *Engine) availableCapital(ctx context.Context, portfolioValue float64) (float64, error) {
	open, err := e.trades.FindOpen(ctx)
	if err != nil {
		return 0, err
	}

	committed := 0.0
	for i := range open {
		committed += open[i].Notional()
	}

	available := portfolioValue - committed
	if available < 0 || math.IsNaN(available) {
		available = 0
	}
	return available, nil
}

func (e *Engine) portfolioValue(ctx context.Context) float64 {
	if e.account != nil {
		if v, err := e.account.AccountValue(ctx); err == nil && v > 0 {
			return v
		} else if err != nil {
			logger.WithError(err).Warn("Account value unavailable, using starting capital")
		}
	}
	return e.cfg.StartingCapital
}

func (e *Engine) reject(ctx context.Context, signal *model.Signal, reason string) Verdict {
	logger.WithFields(map[string]interface{}{
		"signal_id": signal.ID,
		"ticker":    signal.Ticker,
		"reason":    reason,
	}).Info("Signal rejected by risk engine")

	signal.AppendReasoning("Risk check failed: " + reason)
	if err := signal.Transition(model.SignalStatusRejected); err != nil {
		logger.WithField("signal_id", signal.ID).WithError(err).Error("Failed to mark signal rejected")
	}
	if err := e.signals.Save(ctx, signal); err != nil {
		logger.WithField("signal_id", signal.ID).WithError(err).Error("Failed to persist rejected signal")
	}

	return Verdict{Approved: false, Reason: reason}
}

func allLosses(trades []model.Trade) bool {
	for i := range trades {
		if trades[i].Pnl >= 0 {
			return false
		}
	}
	return len(trades) > 0
}
