package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"

	"newstrader/src/model"
)

// QuoteStream implements MarketDataPort on top of a websocket quote feed.
// Ticks are read into an in-process cache; LatestPrice/LatestQuote serve from
// the cache and fail when the data is older than the configured max age, so a
// stalled feed surfaces as "unknown" rather than a stale price.
type QuoteStream struct {
	url         string
	tickers     []string
	maxAge      time.Duration
	redialEvery time.Duration

	mu     sync.RWMutex
	quotes map[string]model.Quote

	now func() time.Time
}

type streamTick struct {
	Symbol string  `json:"S"`
	Bid    float64 `json:"bp"`
	Ask    float64 `json:"ap"`
}

// NewQuoteStream builds the cache for the given ticker universe. Run must be
// started for the cache to fill.
func NewQuoteStream(cfg Config, tickers []string) *QuoteStream {
	return &QuoteStream{
		url:         cfg.StreamURL,
		tickers:     tickers,
		maxAge:      cfg.QuoteMaxAge,
		redialEvery: cfg.StreamRedialIn,
		quotes:      make(map[string]model.Quote),
		now:         time.Now,
	}
}

// Run dials the feed and keeps it alive until the context is cancelled,
// redialing after disconnects.
func (s *QuoteStream) Run(ctx context.Context) error {
	for {
		if err := s.connect(ctx); err != nil {
			logger.WithError(err).Warn("quote stream disconnected")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.redialEvery):
			logger.Info("quote stream reconnecting...")
		}
	}
}

func (s *QuoteStream) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := map[string]interface{}{"action": "subscribe", "quotes": s.tickers}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var ticks []streamTick
		if err := json.Unmarshal(msg, &ticks); err != nil {
			continue
		}

		for _, tick := range ticks {
			if tick.Symbol == "" || tick.Ask <= 0 {
				continue
			}
			s.SetQuote(model.Quote{
				Ticker: tick.Symbol,
				Bid:    tick.Bid,
				Ask:    tick.Ask,
				AsOf:   s.now(),
			})
		}
	}
}

// SetQuote stores a quote in the cache. Exported so tests and replay tooling
// can feed the cache without a live socket.
func (s *QuoteStream) SetQuote(q model.Quote) {
	s.mu.Lock()
	s.quotes[q.Ticker] = q
	s.mu.Unlock()
}

// LatestQuote returns the cached quote for the ticker, or an error when the
// cache has nothing fresh.
func (s *QuoteStream) LatestQuote(_ context.Context, ticker string) (*model.Quote, error) {
	s.mu.RLock()
	q, ok := s.quotes[ticker]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no quote for %s", ticker)
	}
	if s.maxAge > 0 && s.now().Sub(q.AsOf) > s.maxAge {
		return nil, fmt.Errorf("quote for %s is stale (as of %s)", ticker, q.AsOf.Format(time.RFC3339))
	}

	return &q, nil
}

// LatestPrice returns the cached mid price for the ticker.
func (s *QuoteStream) LatestPrice(ctx context.Context, ticker string) (float64, error) {
	q, err := s.LatestQuote(ctx, ticker)
	if err != nil {
		return 0, err
	}
	return (q.Bid + q.Ask) / 2, nil
}
