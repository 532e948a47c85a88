package connectors

import (
	"context"
	"time"

	"newstrader/src/model"
)

// NewsPort supplies raw news items for a ticker over a lookback window.
type NewsPort interface {
	Fetch(ctx context.Context, ticker string, lookback time.Duration) ([]model.NewsItem, error)
}

// MarketDataPort supplies the current price and quote for a ticker.
// Implementations return an error when no fresh data is available; callers
// must treat that as "unknown", never as a price of zero.
type MarketDataPort interface {
	LatestPrice(ctx context.Context, ticker string) (float64, error)
	LatestQuote(ctx context.Context, ticker string) (*model.Quote, error)
}

// OrderResult is the broker's confirmation of a filled market order.
type OrderResult struct {
	OrderID     string
	FilledPrice float64
	FilledAt    time.Time
}

// BrokerPort places orders and reports account equity.
type BrokerPort interface {
	PlaceMarketOrder(ctx context.Context, ticker string, qty int, side string) (*OrderResult, error)
	AccountValue(ctx context.Context) (float64, error)
}

// Reasoner is the external reasoning step that turns news plus market context
// into a structured trade analysis.
type Reasoner interface {
	Analyze(ctx context.Context, ticker, newsText string, snapshot model.MarketSnapshot) (*model.Analysis, error)
}
