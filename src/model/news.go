package model

import "time"

// NewsItem is a single article as delivered by a news backend. Not persisted;
// aggregated items are summarized onto the signal's news provenance instead.
type NewsItem struct {
	Ticker      string    `json:"ticker"`
	Headline    string    `json:"headline"`
	Sentiment   string    `json:"sentiment"`
	Materiality int       `json:"materiality,omitempty"`
	Source      string    `json:"source"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// Quote is a bid/ask pair from the market-data port.
type Quote struct {
	Ticker string    `json:"ticker"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	AsOf   time.Time `json:"as_of"`
}

// Spread returns the bid/ask spread as a fraction of the ask price.
func (q Quote) Spread() float64 {
	if q.Ask <= 0 {
		return 0
	}
	return (q.Ask - q.Bid) / q.Ask
}

// MarketSnapshot is the market context handed to the reasoning step.
type MarketSnapshot struct {
	Ticker       string  `json:"ticker"`
	CurrentPrice float64 `json:"current_price"`
	Volume       int64   `json:"volume,omitempty"`
	DayChangePct float64 `json:"day_change_pct,omitempty"`
}

// Analysis is the structured output of the reasoning step.
type Analysis struct {
	Direction   string   `json:"signal_type"`
	Confidence  int      `json:"confidence"`
	Materiality int      `json:"materiality_score"`
	EntryPrice  float64  `json:"entry_price"`
	StopLoss    float64  `json:"stop_loss"`
	TargetPrice float64  `json:"target_price"`
	Reasoning   string   `json:"reasoning"`
	RiskFactors []string `json:"risk_factors,omitempty"`
	Catalysts   []string `json:"catalysts,omitempty"`
}
