package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newstrader/src/model"
)

func testConnConfig(baseURL string) Config {
	return Config{
		NewsBaseURL:       baseURL,
		NewsAPIKey:        "news-key",
		NewsTimeout:       2 * time.Second,
		NewsSentimentBand: 0.15,
		BrokerBaseURL:     baseURL,
		BrokerTimeout:     2 * time.Second,
		ReasonerBaseURL:   baseURL,
		ReasonerAPIKey:    "reasoner-key",
		ReasonerModel:     "test-model",
		ReasonerTimeout:   2 * time.Second,
		QuoteMaxAge:       2 * time.Minute,
	}
}

func TestNewsClientMapsSentiment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/news/all", r.URL.Path)
		assert.Equal(t, "ASML.AS", r.URL.Query().Get("symbols"))
		assert.Equal(t, "news-key", r.URL.Query().Get("api_token"))

		_, _ = w.Write([]byte(`{"data":[
			{"title":"Guidance raised","source":"wire","entities":[{"symbol":"ASML.AS","sentiment_score":0.4}]},
			{"title":"Probe opened","source":"wire","entities":[{"symbol":"ASML.AS","sentiment_score":-0.3}]},
			{"title":"Sector note","source":"wire","entities":[{"symbol":"ASML.AS","sentiment_score":0.05}]},
			{"title":"Other ticker","source":"wire","entities":[{"symbol":"SAP.DE","sentiment_score":0.9}]}
		]}`))
	}))
	defer srv.Close()

	client := NewNewsClient(testConnConfig(srv.URL))
	items, err := client.Fetch(context.Background(), "ASML.AS", 4*time.Hour)
	require.NoError(t, err)
	require.Len(t, items, 4)

	assert.Equal(t, "positive", items[0].Sentiment)
	assert.Equal(t, "negative", items[1].Sentiment)
	assert.Equal(t, "neutral", items[2].Sentiment, "scores inside the band are neutral")
	assert.Equal(t, "neutral", items[3].Sentiment, "other tickers' entities are ignored")
}

func TestNewsClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewNewsClient(testConnConfig(srv.URL))
	_, err := client.Fetch(context.Background(), "ASML.AS", time.Hour)
	require.Error(t, err)
}

func TestBrokerPlaceMarketOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/orders", r.URL.Path)
		assert.Equal(t, "key-id", r.Header.Get("APCA-API-KEY-ID"))
		assert.Equal(t, "key-secret", r.Header.Get("APCA-API-SECRET-KEY"))

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ASML.AS", req["symbol"])
		assert.Equal(t, "16", req["qty"])
		assert.Equal(t, "buy", req["side"])
		assert.Equal(t, "market", req["type"])
		assert.NotEmpty(t, req["client_order_id"])

		_, _ = w.Write([]byte(`{"id":"ord-1","status":"filled","filled_avg_price":"100.05","filled_at":"2026-01-06T12:00:00Z"}`))
	}))
	defer srv.Close()

	client := NewBrokerClient(testConnConfig(srv.URL), "key-id", "key-secret")
	res, err := client.PlaceMarketOrder(context.Background(), "ASML.AS", 16, model.DirectionBuy)
	require.NoError(t, err)

	assert.Equal(t, "ord-1", res.OrderID)
	assert.Equal(t, 100.05, res.FilledPrice)
	assert.Equal(t, 2026, res.FilledAt.Year())
}

func TestBrokerPlaceMarketOrderRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"insufficient buying power"}`))
	}))
	defer srv.Close()

	client := NewBrokerClient(testConnConfig(srv.URL), "key-id", "key-secret")
	_, err := client.PlaceMarketOrder(context.Background(), "ASML.AS", 16, model.DirectionBuy)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient buying power")
}

func TestBrokerRejectsNonPositiveQty(t *testing.T) {
	client := NewBrokerClient(testConnConfig("http://localhost:0"), "k", "s")
	_, err := client.PlaceMarketOrder(context.Background(), "ASML.AS", 0, model.DirectionBuy)
	require.Error(t, err)
}

func TestBrokerAccountValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/account", r.URL.Path)
		_, _ = w.Write([]byte(`{"portfolio_value":"2000.50"}`))
	}))
	defer srv.Close()

	client := NewBrokerClient(testConnConfig(srv.URL), "key-id", "key-secret")
	value, err := client.AccountValue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2000.50, value)
}

func TestQuoteStreamServesFreshQuotes(t *testing.T) {
	stream := NewQuoteStream(testConnConfig(""), []string{"ASML.AS"})
	now := time.Now()
	stream.now = func() time.Time { return now }

	stream.SetQuote(model.Quote{Ticker: "ASML.AS", Bid: 99.9, Ask: 100.1, AsOf: now})

	quote, err := stream.LatestQuote(context.Background(), "ASML.AS")
	require.NoError(t, err)
	assert.Equal(t, 99.9, quote.Bid)

	price, err := stream.LatestPrice(context.Background(), "ASML.AS")
	require.NoError(t, err)
	assert.InDelta(t, 100.0, price, 1e-9)
}

func TestQuoteStreamRejectsStaleAndMissing(t *testing.T) {
	stream := NewQuoteStream(testConnConfig(""), []string{"ASML.AS"})
	now := time.Now()
	stream.now = func() time.Time { return now }

	_, err := stream.LatestQuote(context.Background(), "ASML.AS")
	require.Error(t, err, "unknown ticker must error, never report zero")

	stream.SetQuote(model.Quote{Ticker: "ASML.AS", Bid: 99.9, Ask: 100.1, AsOf: now.Add(-3 * time.Minute)})
	_, err = stream.LatestQuote(context.Background(), "ASML.AS")
	require.Error(t, err, "stale quote must error")

	_, err = stream.LatestPrice(context.Background(), "ASML.AS")
	require.Error(t, err)
}

func TestParseAnalysis(t *testing.T) {
	text := "Here is my assessment:\n```json\n" +
		`{"signal_type":"buy","confidence":80,"materiality_score":8,"entry_price":100,"stop_loss":98,"target_price":103,"reasoning":"strong print"}` +
		"\n```\nLet me know."

	analysis, err := ParseAnalysis(text)
	require.NoError(t, err)
	assert.Equal(t, model.DirectionBuy, analysis.Direction)
	assert.Equal(t, 80, analysis.Confidence)
	assert.Equal(t, 8, analysis.Materiality)
	assert.Equal(t, 100.0, analysis.EntryPrice)
}

func TestParseAnalysisRejectsGarbage(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"no json", "I think you should buy."},
		{"bad direction", `{"signal_type":"LONG","confidence":80,"materiality_score":8,"entry_price":100,"stop_loss":98,"target_price":103,"reasoning":"x"}`},
		{"missing reasoning", `{"signal_type":"BUY","confidence":80,"materiality_score":8,"entry_price":100,"stop_loss":98,"target_price":103,"reasoning":"  "}`},
		{"zero price", `{"signal_type":"BUY","confidence":80,"materiality_score":8,"entry_price":0,"stop_loss":98,"target_price":103,"reasoning":"x"}`},
		{"negative stop", `{"signal_type":"BUY","confidence":80,"materiality_score":8,"entry_price":100,"stop_loss":-1,"target_price":103,"reasoning":"x"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseAnalysis(tc.text)
			assert.Error(t, err)
		})
	}
}

func TestReasonerClientParsesReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "reasoner-key", r.URL.Query().Get("key"))

		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"signal_type\":\"BUY\",\"confidence\":80,\"materiality_score\":8,\"entry_price\":100,\"stop_loss\":98,\"target_price\":103,\"reasoning\":\"strong print\"}"}]}}]}`))
	}))
	defer srv.Close()

	client := NewReasonerClient(testConnConfig(srv.URL))
	analysis, err := client.Analyze(context.Background(), "ASML.AS", "Guidance raised", model.MarketSnapshot{CurrentPrice: 100})
	require.NoError(t, err)
	assert.Equal(t, model.DirectionBuy, analysis.Direction)
	assert.Equal(t, 103.0, analysis.TargetPrice)
}

func TestReasonerClientFlagsUnusableReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"I cannot give financial advice."}]}}]}`))
	}))
	defer srv.Close()

	client := NewReasonerClient(testConnConfig(srv.URL))
	_, err := client.Analyze(context.Background(), "ASML.AS", "Guidance raised", model.MarketSnapshot{CurrentPrice: 100})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadAnalysis))
}
