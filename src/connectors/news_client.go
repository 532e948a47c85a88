// REST NEWS CLIENT (MARKETAUX-STYLE API)
// RESTY ONLY + INTERNAL RETRY
package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"

	"newstrader/src/model"
)

const (
	defaultRetryAttempts   = 3
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 4 * time.Second
)

type newsResponse struct {
	Data []struct {
		Title       string `json:"title"`
		Source      string `json:"source"`
		URL         string `json:"url"`
		PublishedAt string `json:"published_at"`
		Entities    []struct {
			Symbol         string  `json:"symbol"`
			SentimentScore float64 `json:"sentiment_score"`
		} `json:"entities"`
	} `json:"data"`
}

// NewsClient implements NewsPort against a Marketaux-style news API.
type NewsClient struct {
	apiKey        string
	baseURL       string
	sentimentBand float64
	http          *resty.Client
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}

	code := r.StatusCode()
	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 || code == 408 {
		return true
	}
	return false
}

func newRestyClient(baseURL string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(defaultRetryAttempts).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)
}

// NewNewsClient builds a news client from the connectors config.
func NewNewsClient(cfg Config) *NewsClient {
	return &NewsClient{
		apiKey:        cfg.NewsAPIKey,
		baseURL:       cfg.NewsBaseURL,
		sentimentBand: cfg.NewsSentimentBand,
		http:          newRestyClient(cfg.NewsBaseURL, cfg.NewsTimeout),
	}
}

// Fetch returns news items for the ticker published inside the lookback window.
func (c *NewsClient) Fetch(ctx context.Context, ticker string, lookback time.Duration) ([]model.NewsItem, error) {
	after := time.Now().Add(-lookback).UTC()

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbols":         ticker,
			"published_after": after.Format("2006-01-02T15:04"),
			"language":        "en",
			"api_token":       c.apiKey,
		}).
		Get("/news/all")
	if err != nil {
		return nil, fmt.Errorf("news fetch for %s: %w", ticker, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("news fetch for %s: unexpected status %d", ticker, resp.StatusCode())
	}

	var decoded newsResponse
	if err := json.Unmarshal(resp.Body(), &decoded); err != nil {
		return nil, fmt.Errorf("news fetch for %s: decode: %w", ticker, err)
	}

	items := make([]model.NewsItem, 0, len(decoded.Data))
	for _, article := range decoded.Data {
		publishedAt, _ := time.Parse(time.RFC3339, article.PublishedAt)

		sentiment := "neutral"
		for _, entity := range article.Entities {
			if !strings.EqualFold(entity.Symbol, ticker) {
				continue
			}
			switch {
			case entity.SentimentScore >= c.sentimentBand:
				sentiment = "positive"
			case entity.SentimentScore <= -c.sentimentBand:
				sentiment = "negative"
			}
		}

		items = append(items, model.NewsItem{
			Ticker:      ticker,
			Headline:    article.Title,
			Sentiment:   sentiment,
			Source:      article.Source,
			URL:         article.URL,
			PublishedAt: publishedAt,
		})
	}

	logger.WithFields(map[string]interface{}{
		"ticker": ticker,
		"count":  len(items),
	}).Debug("Fetched news items")

	return items, nil
}
