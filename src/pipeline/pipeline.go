// Package pipeline drives a candidate trade from news flow to broker fill:
// ingest news into a pending signal, analyze it into price levels, validate
// it against the risk engine, and execute the approved order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"newstrader/src/connectors"
	"newstrader/src/model"
	"newstrader/src/risk"
)

// SignalStore is the slice of the signal repository the pipeline needs.
type SignalStore interface {
	Create(ctx context.Context, signal *model.Signal) error
	Save(ctx context.Context, signal *model.Signal) error
	FindActiveByTickerSince(ctx context.Context, ticker string, since time.Time) (*model.Signal, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// TradeStore is the slice of the trade repository the pipeline needs.
type TradeStore interface {
	Create(ctx context.Context, trade *model.Trade) error
	Save(ctx context.Context, trade *model.Trade) error
}

// Validator decides whether an analyzed signal may trade. An approval holds a
// daily-slot and ticker reservation that Release must free once execution has
// settled.
type Validator interface {
	Validate(ctx context.Context, signal *model.Signal) risk.Verdict
	Release(ticker string)
}

// Pipeline owns the full signal lifecycle for the watchlist. Work on any one
// ticker is serialized through a per-ticker mutex; different tickers run
// concurrently within a tick.
type Pipeline struct {
	cfg     Config
	session *risk.Session

	signals  SignalStore
	trades   TradeStore
	news     connectors.NewsPort
	market   connectors.MarketDataPort
	broker   connectors.BrokerPort
	reasoner connectors.Reasoner
	risk     Validator

	mu        sync.Mutex
	perTicker map[string]*sync.Mutex

	now func() time.Time
}

func New(cfg Config, session *risk.Session, signals SignalStore, trades TradeStore,
	news connectors.NewsPort, market connectors.MarketDataPort, broker connectors.BrokerPort,
	reasoner connectors.Reasoner, validator Validator) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		session:   session,
		signals:   signals,
		trades:    trades,
		news:      news,
		market:    market,
		broker:    broker,
		reasoner:  reasoner,
		risk:      validator,
		perTicker: make(map[string]*sync.Mutex),
		now:       time.Now,
	}
}

func (p *Pipeline) lockFor(ticker string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	mu, ok := p.perTicker[ticker]
	if !ok {
		mu = &sync.Mutex{}
		p.perTicker[ticker] = mu
	}
	return mu
}

// Ingest pulls recent news for the ticker and turns a clear directional skew
// into a pending signal. Returns (nil, nil) when the flow is quiet, mixed, or
// the ticker is still in cooldown from a recent active signal.
func (p *Pipeline) Ingest(ctx context.Context, ticker string) (*model.Signal, error) {
	now := p.now()
	log := logger.WithField("ticker", ticker)

	items, err := p.news.Fetch(ctx, ticker, p.cfg.LookbackHours)
	if err != nil {
		log.WithError(err).Warn("News fetch failed")
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	bullish, bearish := 0, 0
	for i := range items {
		switch items[i].Sentiment {
		case "positive":
			bullish++
		case "negative":
			bearish++
		}
	}

	direction := ""
	switch {
	case bullish >= p.cfg.MinSameSideItems && bullish > bearish:
		direction = model.DirectionBuy
	case bearish >= p.cfg.MinSameSideItems && bearish > bullish:
		direction = model.DirectionSell
	default:
		log.WithFields(map[string]interface{}{
			"bullish": bullish,
			"bearish": bearish,
		}).Debug("No directional skew in news flow")
		return nil, nil
	}

	existing, err := p.signals.FindActiveByTickerSince(ctx, ticker, now.Add(-p.cfg.CooldownHours))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.WithField("existing_signal", existing.ID).Info("Ticker in cooldown, skipping")
		return nil, nil
	}

	expires := now.Add(p.cfg.SignalTTL)
	signal := &model.Signal{
		Ticker:     ticker,
		Exchange:   model.ExchangeForTicker(ticker),
		Direction:  direction,
		NewsSource: summarizeHeadlines(items, p.cfg.MaxHeadlines),
		Reasoning:  fmt.Sprintf("News flow: %d bullish / %d bearish items over %s", bullish, bearish, p.cfg.LookbackHours),
		Status:     model.SignalStatusPending,
		ExpiresAt:  &expires,
	}

	if err := p.signals.Create(ctx, signal); err != nil {
		return nil, err
	}

	log.WithFields(map[string]interface{}{
		"signal_id": signal.ID,
		"direction": direction,
		"bullish":   bullish,
		"bearish":   bearish,
	}).Info("Signal ingested")

	return signal, nil
}

// Analyze enriches a pending signal with the reasoning step's verdict and
// price levels. Signals under the confidence or materiality threshold are
// rejected; a failed market-data or reasoner call leaves the signal pending
// for the next cycle.
func (p *Pipeline) Analyze(ctx context.Context, signal *model.Signal) error {
	log := logger.WithFields(map[string]interface{}{
		"signal_id": signal.ID,
		"ticker":    signal.Ticker,
	})

	price, err := p.market.LatestPrice(ctx, signal.Ticker)
	if err != nil {
		log.WithError(err).Warn("No current price, leaving signal pending")
		return err
	}

	snapshot := model.MarketSnapshot{Ticker: signal.Ticker, CurrentPrice: price}
	analysis, err := p.reasoner.Analyze(ctx, signal.Ticker, signal.NewsSource, snapshot)
	if err != nil {
		// A reply that arrived but is unusable will not get better on retry.
		if errors.Is(err, connectors.ErrBadAnalysis) {
			log.WithError(err).Info("Unusable analysis, rejecting signal")
			signal.AppendReasoning("Analysis unusable: " + err.Error())
			if tErr := signal.Transition(model.SignalStatusRejected); tErr != nil {
				return tErr
			}
			return p.signals.Save(ctx, signal)
		}
		log.WithError(err).Warn("Reasoner failed, leaving signal pending")
		return err
	}

	if analysis.Direction == model.DirectionHold {
		signal.AppendReasoning("Analysis returned HOLD, no trade")
		if tErr := signal.Transition(model.SignalStatusRejected); tErr != nil {
			return tErr
		}
		return p.signals.Save(ctx, signal)
	}

	signal.Direction = analysis.Direction
	signal.Confidence = analysis.Confidence
	signal.Materiality = analysis.Materiality
	signal.ClampScores()
	signal.AppendReasoning(analysis.Reasoning)

	entry, stop, target := correctPriceLevels(analysis.Direction, analysis.EntryPrice, analysis.StopLoss, analysis.TargetPrice)
	signal.EntryPrice, signal.StopLoss, signal.TargetPrice = &entry, &stop, &target

	if err := signal.Transition(model.SignalStatusAnalyzed); err != nil {
		return err
	}

	if signal.Confidence < p.cfg.ConfidenceThreshold || signal.Materiality < p.cfg.MinMateriality {
		signal.AppendReasoning(fmt.Sprintf("Below thresholds (Confidence: %d%%, Materiality: %d)",
			signal.Confidence, signal.Materiality))
		if tErr := signal.Transition(model.SignalStatusRejected); tErr != nil {
			return tErr
		}
		log.WithFields(map[string]interface{}{
			"confidence":  signal.Confidence,
			"materiality": signal.Materiality,
		}).Info("Signal below thresholds, rejected")
		return p.signals.Save(ctx, signal)
	}

	log.WithFields(map[string]interface{}{
		"direction":   signal.Direction,
		"confidence":  signal.Confidence,
		"materiality": signal.Materiality,
		"entry":       entry,
	}).Info("Signal analyzed")

	return p.signals.Save(ctx, signal)
}

// Execute places the approved order. A broker failure marks the trade failed
// and leaves the signal approved so nothing pretends a position exists. The
// validator's reservation is released whichever way execution ends; on the
// happy path the opened trade row is saved first, so the slot is never free
// while uncounted.
func (p *Pipeline) Execute(ctx context.Context, signal *model.Signal, params *risk.TradeParams) (*model.Trade, error) {
	defer p.risk.Release(signal.Ticker)

	log := logger.WithFields(map[string]interface{}{
		"signal_id": signal.ID,
		"ticker":    signal.Ticker,
		"side":      signal.Direction,
		"qty":       params.Shares,
	})

	trade := &model.Trade{
		SignalID:    &signal.ID,
		Ticker:      signal.Ticker,
		Side:        signal.Direction,
		Quantity:    params.Shares,
		EntryPrice:  params.EntryPrice,
		StopLoss:    params.StopLoss,
		TargetPrice: params.TargetPrice,
		Status:      model.TradeStatusPending,
	}
	if err := p.trades.Create(ctx, trade); err != nil {
		return nil, err
	}

	res, err := p.broker.PlaceMarketOrder(ctx, signal.Ticker, params.Shares, signal.Direction)
	if err != nil {
		trade.Status = model.TradeStatusFailed
		trade.Notes = "Order failed: " + err.Error()
		if sErr := p.trades.Save(ctx, trade); sErr != nil {
			log.WithError(sErr).Error("Failed to persist failed trade")
		}
		log.WithError(err).Error("Order placement failed")
		return nil, err
	}

	filled := res.FilledPrice
	if filled <= 0 {
		filled = params.EntryPrice
	}
	if params.EntryPrice > 0 {
		slippage := (filled - params.EntryPrice) / params.EntryPrice * 100
		log.WithFields(map[string]interface{}{
			"expected":     params.EntryPrice,
			"filled":       filled,
			"slippage_pct": slippage,
		}).Info("Order filled")
	}

	openedAt := res.FilledAt
	if openedAt.IsZero() {
		openedAt = p.now()
	}

	trade.ActualEntryPrice = filled
	trade.BrokerOrderID = res.OrderID
	trade.Fees = float64(params.Shares) * p.cfg.FeePerShare
	trade.OpenedAt = &openedAt
	trade.Status = model.TradeStatusOpen
	if err := p.trades.Save(ctx, trade); err != nil {
		return nil, err
	}

	if err := signal.Transition(model.SignalStatusExecuted); err != nil {
		log.WithError(err).Error("Failed to mark signal executed")
	} else if err := p.signals.Save(ctx, signal); err != nil {
		log.WithError(err).Error("Failed to persist executed signal")
	}

	return trade, nil
}

// ProcessTicker runs the full lifecycle for one ticker. Calls for the same
// ticker never overlap.
func (p *Pipeline) ProcessTicker(ctx context.Context, ticker string) {
	mu := p.lockFor(ticker)
	mu.Lock()
	defer mu.Unlock()

	signal, err := p.Ingest(ctx, ticker)
	if err != nil || signal == nil {
		return
	}

	if err := p.Analyze(ctx, signal); err != nil {
		return
	}
	if signal.Status != model.SignalStatusAnalyzed {
		return
	}

	verdict := p.risk.Validate(ctx, signal)
	if !verdict.Approved {
		return
	}

	if _, err := p.Execute(ctx, signal, verdict.Params); err != nil {
		logger.WithFields(map[string]interface{}{
			"signal_id": signal.ID,
			"ticker":    ticker,
		}).WithError(err).Error("Execution failed, signal stays approved")
	}
}

// RunTick sweeps expired signals, then fans the watchlist out concurrently
// when inside the scan window.
func (p *Pipeline) RunTick(ctx context.Context) {
	now := p.now()

	if _, err := p.signals.ExpireStale(ctx, now); err != nil {
		logger.WithError(err).Error("Expiry sweep failed")
	}

	if !p.session.WithinScanWindow(now) {
		logger.Debug("Outside scan window, skipping tick")
		return
	}

	var wg sync.WaitGroup
	for _, ticker := range p.cfg.Watchlist {
		wg.Add(1)
		go func(tk string) {
			defer wg.Done()
			p.ProcessTicker(ctx, tk)
		}(ticker)
	}
	wg.Wait()
}

// StartLoop runs RunTick immediately and then on every period until the
// context is cancelled.
func (p *Pipeline) StartLoop(ctx context.Context) {
	logger.WithFields(map[string]interface{}{
		"period":    p.cfg.LoopPeriod,
		"watchlist": len(p.cfg.Watchlist),
	}).Info("Signal pipeline loop started")

	p.RunTick(ctx)

	ticker := time.NewTicker(p.cfg.LoopPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Signal pipeline loop stopped")
			return
		case <-ticker.C:
			p.RunTick(ctx)
		}
	}
}

func summarizeHeadlines(items []model.NewsItem, max int) string {
	if max <= 0 {
		max = 5
	}

	headlines := make([]string, 0, max)
	for i := range items {
		if len(headlines) == max {
			break
		}
		h := strings.TrimSpace(items[i].Headline)
		if h != "" {
			headlines = append(headlines, h)
		}
	}
	return strings.Join(headlines, "; ")
}

// correctPriceLevels forces stop and target onto the right side of the entry,
// falling back to 2% and 3% offsets when the analysis got them wrong.
func correctPriceLevels(direction string, entry, stop, target float64) (float64, float64, float64) {
	if direction == model.DirectionBuy {
		if stop >= entry {
			stop = entry * 0.98
		}
		if target <= entry {
			target = entry * 1.03
		}
		return entry, stop, target
	}

	if stop <= entry {
		stop = entry * 1.02
	}
	if target >= entry {
		target = entry * 0.97
	}
	return entry, stop, target
}
