package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newstrader/src/connectors"
	"newstrader/src/model"
	"newstrader/src/risk"
)

type fakeSignalStore struct {
	nextID  uint
	created []*model.Signal
	saved   []*model.Signal
	active  *model.Signal
	expired int64
}

func (f *fakeSignalStore) Create(_ context.Context, signal *model.Signal) error {
	f.nextID++
	signal.ID = f.nextID
	signal.CreatedAt = time.Now()
	f.created = append(f.created, signal)
	return nil
}

func (f *fakeSignalStore) Save(_ context.Context, signal *model.Signal) error {
	f.saved = append(f.saved, signal)
	return nil
}

func (f *fakeSignalStore) FindActiveByTickerSince(context.Context, string, time.Time) (*model.Signal, error) {
	return f.active, nil
}

func (f *fakeSignalStore) ExpireStale(context.Context, time.Time) (int64, error) {
	f.expired++
	return 0, nil
}

type fakeTradeStore struct {
	nextID  uint
	created []*model.Trade
	saved   []*model.Trade
}

func (f *fakeTradeStore) Create(_ context.Context, trade *model.Trade) error {
	f.nextID++
	trade.ID = f.nextID
	f.created = append(f.created, trade)
	return nil
}

func (f *fakeTradeStore) Save(_ context.Context, trade *model.Trade) error {
	f.saved = append(f.saved, trade)
	return nil
}

type fakeNews struct {
	items []model.NewsItem
	err   error
	calls int
}

func (f *fakeNews) Fetch(context.Context, string, time.Duration) ([]model.NewsItem, error) {
	f.calls++
	return f.items, f.err
}

type fakeMarket struct {
	price float64
	err   error
}

func (f *fakeMarket) LatestPrice(context.Context, string) (float64, error) {
	return f.price, f.err
}

func (f *fakeMarket) LatestQuote(context.Context, string) (*model.Quote, error) {
	return nil, errors.New("no quote")
}

type fakeBroker struct {
	result *connectors.OrderResult
	err    error
	orders int
}

func (f *fakeBroker) PlaceMarketOrder(context.Context, string, int, string) (*connectors.OrderResult, error) {
	f.orders++
	return f.result, f.err
}

func (f *fakeBroker) AccountValue(context.Context) (float64, error) {
	return 2000, nil
}

type fakeReasoner struct {
	analysis *model.Analysis
	err      error
}

func (f *fakeReasoner) Analyze(context.Context, string, string, model.MarketSnapshot) (*model.Analysis, error) {
	return f.analysis, f.err
}

type fakeValidator struct {
	verdict  risk.Verdict
	released []string
}

func (f *fakeValidator) Validate(_ context.Context, signal *model.Signal) risk.Verdict {
	if f.verdict.Approved {
		signal.Status = model.SignalStatusApproved
	} else {
		signal.Status = model.SignalStatusRejected
	}
	return f.verdict
}

func (f *fakeValidator) Release(ticker string) {
	f.released = append(f.released, ticker)
}

func testPipelineConfig() Config {
	return Config{
		Watchlist:           []string{"ASML.AS"},
		LoopPeriod:          30 * time.Minute,
		LookbackHours:       4 * time.Hour,
		CooldownHours:       4 * time.Hour,
		SignalTTL:           2 * time.Hour,
		ConfidenceThreshold: 70,
		MinMateriality:      7,
		MinSameSideItems:    2,
		FeePerShare:         0.01,
		MaxHeadlines:        5,
	}
}

func testSession(t *testing.T) *risk.Session {
	t.Helper()
	session, err := risk.NewSession(risk.Config{
		MarketOpenHour:    9,
		MarketCloseHour:   17,
		MarketCloseMinute: 30,
		MarketTimezone:    "Europe/Amsterdam",
		OpenBuffer:        15 * time.Minute,
		CloseBuffer:       15 * time.Minute,
	})
	require.NoError(t, err)
	return session
}

type pipelineFixture struct {
	pipeline  *Pipeline
	signals   *fakeSignalStore
	trades    *fakeTradeStore
	news      *fakeNews
	market    *fakeMarket
	broker    *fakeBroker
	reasoner  *fakeReasoner
	validator *fakeValidator
}

func newFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	f := &pipelineFixture{
		signals: &fakeSignalStore{},
		trades:  &fakeTradeStore{},
		news:    &fakeNews{},
		market:  &fakeMarket{price: 100},
		broker:  &fakeBroker{result: &connectors.OrderResult{OrderID: "ord-1", FilledPrice: 100.05, FilledAt: time.Now()}},
		reasoner: &fakeReasoner{analysis: &model.Analysis{
			Direction:   model.DirectionBuy,
			Confidence:  80,
			Materiality: 8,
			EntryPrice:  100,
			StopLoss:    98,
			TargetPrice: 103,
			Reasoning:   "Strong guidance raise",
		}},
	}

	f.validator = &fakeValidator{verdict: risk.Verdict{Approved: true}}

	session := testSession(t)
	f.pipeline = New(testPipelineConfig(), session, f.signals, f.trades,
		f.news, f.market, f.broker, f.reasoner, f.validator)
	f.pipeline.now = func() time.Time {
		return time.Date(2026, time.January, 6, 13, 0, 0, 0, session.Location())
	}
	return f
}

func newsItems(positive, negative int) []model.NewsItem {
	var items []model.NewsItem
	for i := 0; i < positive; i++ {
		items = append(items, model.NewsItem{Headline: "upgrade", Sentiment: "positive"})
	}
	for i := 0; i < negative; i++ {
		items = append(items, model.NewsItem{Headline: "downgrade", Sentiment: "negative"})
	}
	return items
}

func TestIngestCreatesSignalOnBullishSkew(t *testing.T) {
	f := newFixture(t)
	f.news.items = newsItems(3, 1)

	signal, err := f.pipeline.Ingest(context.Background(), "ASML.AS")
	require.NoError(t, err)
	require.NotNil(t, signal)

	assert.Equal(t, model.DirectionBuy, signal.Direction)
	assert.Equal(t, model.SignalStatusPending, signal.Status)
	assert.Equal(t, "AMS", signal.Exchange)
	assert.Contains(t, signal.Reasoning, "3 bullish / 1 bearish")
	require.NotNil(t, signal.ExpiresAt)
	assert.Equal(t, 2*time.Hour, signal.ExpiresAt.Sub(f.pipeline.now()))
	require.Len(t, f.signals.created, 1)
}

func TestIngestBearishSkew(t *testing.T) {
	f := newFixture(t)
	f.news.items = newsItems(0, 2)

	signal, err := f.pipeline.Ingest(context.Background(), "ASML.AS")
	require.NoError(t, err)
	require.NotNil(t, signal)
	assert.Equal(t, model.DirectionSell, signal.Direction)
}

func TestIngestNoSignalCases(t *testing.T) {
	cases := []struct {
		name     string
		positive int
		negative int
	}{
		{"quiet", 0, 0},
		{"mixed", 2, 2},
		{"single item", 1, 0},
		{"skew but under minimum", 1, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.news.items = newsItems(tc.positive, tc.negative)

			signal, err := f.pipeline.Ingest(context.Background(), "ASML.AS")
			require.NoError(t, err)
			assert.Nil(t, signal)
			assert.Empty(t, f.signals.created)
		})
	}
}

func TestIngestRespectsCooldown(t *testing.T) {
	f := newFixture(t)
	f.news.items = newsItems(3, 0)
	f.signals.active = &model.Signal{ID: 42, Ticker: "ASML.AS", Status: model.SignalStatusExecuted}

	signal, err := f.pipeline.Ingest(context.Background(), "ASML.AS")
	require.NoError(t, err)
	assert.Nil(t, signal)
	assert.Empty(t, f.signals.created)
}

func pendingSignal() *model.Signal {
	return &model.Signal{
		ID:         1,
		Ticker:     "ASML.AS",
		Direction:  model.DirectionBuy,
		NewsSource: "upgrade; upgrade",
		Status:     model.SignalStatusPending,
	}
}

func TestAnalyzePromotesSignal(t *testing.T) {
	f := newFixture(t)
	signal := pendingSignal()

	require.NoError(t, f.pipeline.Analyze(context.Background(), signal))

	assert.Equal(t, model.SignalStatusAnalyzed, signal.Status)
	assert.Equal(t, 80, signal.Confidence)
	assert.Equal(t, 8, signal.Materiality)
	require.True(t, signal.HasPriceLevels())
	assert.Equal(t, 100.0, *signal.EntryPrice)
	assert.Equal(t, 98.0, *signal.StopLoss)
	assert.Equal(t, 103.0, *signal.TargetPrice)
	assert.Contains(t, signal.Reasoning, "Strong guidance raise")
}

func TestAnalyzeCorrectsWrongSideLevels(t *testing.T) {
	f := newFixture(t)
	// Stop above entry and target below entry for a BUY are nonsense; both
	// get replaced with the 2% / 3% defaults.
	f.reasoner.analysis = &model.Analysis{
		Direction:   model.DirectionBuy,
		Confidence:  80,
		Materiality: 8,
		EntryPrice:  100,
		StopLoss:    101,
		TargetPrice: 99,
		Reasoning:   "inverted levels",
	}

	signal := pendingSignal()
	require.NoError(t, f.pipeline.Analyze(context.Background(), signal))

	assert.InDelta(t, 98.0, *signal.StopLoss, 1e-9)
	assert.InDelta(t, 103.0, *signal.TargetPrice, 1e-9)
}

func TestAnalyzeCorrectsSellSideLevels(t *testing.T) {
	f := newFixture(t)
	f.reasoner.analysis = &model.Analysis{
		Direction:   model.DirectionSell,
		Confidence:  80,
		Materiality: 8,
		EntryPrice:  100,
		StopLoss:    99,
		TargetPrice: 101,
		Reasoning:   "inverted levels",
	}

	signal := pendingSignal()
	require.NoError(t, f.pipeline.Analyze(context.Background(), signal))

	assert.InDelta(t, 102.0, *signal.StopLoss, 1e-9)
	assert.InDelta(t, 97.0, *signal.TargetPrice, 1e-9)
}

func TestAnalyzeRejectsBelowThresholds(t *testing.T) {
	f := newFixture(t)
	f.reasoner.analysis.Confidence = 65

	signal := pendingSignal()
	require.NoError(t, f.pipeline.Analyze(context.Background(), signal))

	assert.Equal(t, model.SignalStatusRejected, signal.Status)
	assert.Contains(t, signal.Reasoning, "Below thresholds (Confidence: 65%, Materiality: 8)")
}

func TestAnalyzeRejectsHold(t *testing.T) {
	f := newFixture(t)
	f.reasoner.analysis = &model.Analysis{
		Direction: model.DirectionHold,
		Reasoning: "nothing actionable",
	}

	signal := pendingSignal()
	require.NoError(t, f.pipeline.Analyze(context.Background(), signal))

	assert.Equal(t, model.SignalStatusRejected, signal.Status)
	assert.Contains(t, signal.Reasoning, "HOLD")
}

func TestAnalyzeLeavesPendingOnMarketDataFailure(t *testing.T) {
	f := newFixture(t)
	f.market.err = errors.New("stream down")

	signal := pendingSignal()
	err := f.pipeline.Analyze(context.Background(), signal)

	require.Error(t, err)
	assert.Equal(t, model.SignalStatusPending, signal.Status)
	assert.Empty(t, f.signals.saved)
}

func TestAnalyzeLeavesPendingOnReasonerFailure(t *testing.T) {
	f := newFixture(t)
	f.reasoner.err = errors.New("model overloaded")

	signal := pendingSignal()
	err := f.pipeline.Analyze(context.Background(), signal)

	require.Error(t, err)
	assert.Equal(t, model.SignalStatusPending, signal.Status)
}

func TestAnalyzeRejectsUnusableAnalysis(t *testing.T) {
	f := newFixture(t)
	f.reasoner.err = fmt.Errorf("reasoner call for ASML.AS: no JSON object in reasoner reply: %w", connectors.ErrBadAnalysis)

	signal := pendingSignal()
	err := f.pipeline.Analyze(context.Background(), signal)

	require.NoError(t, err)
	assert.Equal(t, model.SignalStatusRejected, signal.Status)
	assert.Contains(t, signal.Reasoning, "Analysis unusable")
	require.Len(t, f.signals.saved, 1)
}

func approvedSignal() (*model.Signal, *risk.TradeParams) {
	entry, stop, target := 100.0, 98.0, 103.0
	signal := &model.Signal{
		ID:          1,
		Ticker:      "ASML.AS",
		Direction:   model.DirectionBuy,
		Confidence:  80,
		EntryPrice:  &entry,
		StopLoss:    &stop,
		TargetPrice: &target,
		Status:      model.SignalStatusApproved,
	}
	params := &risk.TradeParams{
		SignalID:    1,
		Ticker:      "ASML.AS",
		Direction:   model.DirectionBuy,
		Shares:      16,
		EntryPrice:  entry,
		StopLoss:    stop,
		TargetPrice: target,
	}
	return signal, params
}

func TestExecuteOpensTrade(t *testing.T) {
	f := newFixture(t)
	signal, params := approvedSignal()

	trade, err := f.pipeline.Execute(context.Background(), signal, params)
	require.NoError(t, err)
	require.NotNil(t, trade)

	assert.Equal(t, model.TradeStatusOpen, trade.Status)
	assert.Equal(t, 16, trade.Quantity)
	assert.Equal(t, 100.05, trade.ActualEntryPrice)
	assert.Equal(t, "ord-1", trade.BrokerOrderID)
	assert.InDelta(t, 0.16, trade.Fees, 1e-9)
	require.NotNil(t, trade.OpenedAt)
	assert.Equal(t, model.SignalStatusExecuted, signal.Status)
	assert.Equal(t, 1, f.broker.orders)
	assert.Equal(t, []string{"ASML.AS"}, f.validator.released,
		"opened trade must hand its reservation back")
}

func TestExecuteBrokerFailureLeavesSignalApproved(t *testing.T) {
	f := newFixture(t)
	f.broker.result = nil
	f.broker.err = errors.New("insufficient buying power")

	signal, params := approvedSignal()
	trade, err := f.pipeline.Execute(context.Background(), signal, params)

	require.Error(t, err)
	assert.Nil(t, trade)
	assert.Equal(t, model.SignalStatusApproved, signal.Status)

	require.Len(t, f.trades.saved, 1)
	failed := f.trades.saved[0]
	assert.Equal(t, model.TradeStatusFailed, failed.Status)
	assert.Contains(t, failed.Notes, "insufficient buying power")
	assert.Nil(t, failed.OpenedAt)
	assert.Equal(t, []string{"ASML.AS"}, f.validator.released,
		"failed order must free the daily slot")
}

func TestProcessTickerFullFlow(t *testing.T) {
	f := newFixture(t)
	f.news.items = newsItems(3, 0)

	// The real validator is covered in its own package; here approval routes
	// straight through with sized params.
	_, params := approvedSignal()
	f.pipeline.risk = &fakeValidator{verdict: risk.Verdict{Approved: true, Params: params}}

	f.pipeline.ProcessTicker(context.Background(), "ASML.AS")

	require.Len(t, f.signals.created, 1)
	assert.Equal(t, model.SignalStatusExecuted, f.signals.created[0].Status)
	assert.Equal(t, 1, f.broker.orders)
	require.NotEmpty(t, f.trades.created)
	assert.Equal(t, model.TradeStatusOpen, f.trades.created[0].Status)
}

func TestProcessTickerStopsOnRejection(t *testing.T) {
	f := newFixture(t)
	f.news.items = newsItems(3, 0)
	f.pipeline.risk = &fakeValidator{verdict: risk.Verdict{Approved: false, Reason: "Daily trade limit reached (3/3)"}}

	f.pipeline.ProcessTicker(context.Background(), "ASML.AS")

	assert.Zero(t, f.broker.orders)
	assert.Empty(t, f.trades.created)
}

func TestRunTickOutsideScanWindow(t *testing.T) {
	f := newFixture(t)
	f.news.items = newsItems(3, 0)
	session := testSession(t)
	f.pipeline.now = func() time.Time {
		return time.Date(2026, time.January, 6, 22, 0, 0, 0, session.Location())
	}

	f.pipeline.RunTick(context.Background())

	assert.Equal(t, int64(1), f.signals.expired, "expiry sweep must run even off-hours")
	assert.Zero(t, f.news.calls)
}

func TestRunTickInsideScanWindow(t *testing.T) {
	f := newFixture(t)
	f.news.items = newsItems(0, 0)

	f.pipeline.RunTick(context.Background())

	assert.Equal(t, 1, f.news.calls)
}

func TestLockForIsPerTicker(t *testing.T) {
	f := newFixture(t)

	a := f.pipeline.lockFor("ASML.AS")
	b := f.pipeline.lockFor("SAP.DE")
	assert.NotSame(t, a, b)
	assert.Same(t, a, f.pipeline.lockFor("ASML.AS"))
}
