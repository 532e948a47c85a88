// REST BROKER CLIENT (ALPACA-STYLE PAPER TRADING API)
package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
)

// BrokerClient implements BrokerPort against an Alpaca-style paper trading API.
type BrokerClient struct {
	apiKey    string
	apiSecret string
	http      *resty.Client
}

// NewBrokerClient builds a broker client. The key/secret are expected to be
// already decrypted (see the security package).
func NewBrokerClient(cfg Config, apiKey, apiSecret string) *BrokerClient {
	return &BrokerClient{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      newRestyClient(cfg.BrokerBaseURL, cfg.BrokerTimeout),
	}
}

type orderRequest struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	ClientOrderID string `json:"client_order_id"`
}

type orderResponse struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	FilledAvgPrice string `json:"filled_avg_price"`
	FilledAt       string `json:"filled_at"`
}

type accountResponse struct {
	PortfolioValue string `json:"portfolio_value"`
}

func (c *BrokerClient) authHeaders() map[string]string {
	return map[string]string{
		"APCA-API-KEY-ID":     c.apiKey,
		"APCA-API-SECRET-KEY": c.apiSecret,
	}
}

// PlaceMarketOrder submits a day market order and returns the fill
// confirmation. A generated client order id makes resubmission detectable on
// the broker side.
func (c *BrokerClient) PlaceMarketOrder(ctx context.Context, ticker string, qty int, side string) (*OrderResult, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("invalid quantity %d for %s", qty, ticker)
	}

	body := orderRequest{
		Symbol:        ticker,
		Qty:           strconv.Itoa(qty),
		Side:          strings.ToLower(side),
		Type:          "market",
		TimeInForce:   "day",
		ClientOrderID: uuid.NewString(),
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(c.authHeaders()).
		SetBody(body).
		Post("/v2/orders")
	if err != nil {
		return nil, fmt.Errorf("place order %s %s x%d: %w", side, ticker, qty, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("place order %s %s x%d: status %d body %s",
			side, ticker, qty, resp.StatusCode(), string(resp.Body()))
	}

	var decoded orderResponse
	if err := json.Unmarshal(resp.Body(), &decoded); err != nil {
		return nil, fmt.Errorf("place order %s: decode: %w", ticker, err)
	}

	result := &OrderResult{OrderID: decoded.ID, FilledAt: time.Now()}
	if decoded.FilledAvgPrice != "" {
		price, err := strconv.ParseFloat(decoded.FilledAvgPrice, 64)
		if err != nil {
			return nil, fmt.Errorf("place order %s: bad fill price %q", ticker, decoded.FilledAvgPrice)
		}
		result.FilledPrice = price
	}
	if decoded.FilledAt != "" {
		if at, err := time.Parse(time.RFC3339, decoded.FilledAt); err == nil {
			result.FilledAt = at
		}
	}

	logger.WithFields(map[string]interface{}{
		"ticker":   ticker,
		"side":     side,
		"qty":      qty,
		"order_id": decoded.ID,
	}).Info("Market order placed")

	return result, nil
}

// AccountValue returns the broker-reported portfolio value.
func (c *BrokerClient) AccountValue(ctx context.Context) (float64, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(c.authHeaders()).
		Get("/v2/account")
	if err != nil {
		return 0, fmt.Errorf("account value: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return 0, fmt.Errorf("account value: unexpected status %d", resp.StatusCode())
	}

	var decoded accountResponse
	if err := json.Unmarshal(resp.Body(), &decoded); err != nil {
		return 0, fmt.Errorf("account value: decode: %w", err)
	}

	value, err := strconv.ParseFloat(decoded.PortfolioValue, 64)
	if err != nil {
		return 0, fmt.Errorf("account value: bad value %q", decoded.PortfolioValue)
	}

	return value, nil
}
