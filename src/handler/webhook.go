// Package handler exposes the HTTP surface: the prediction webhook ingress
// and small read-only endpoints over signals, trades and daily performance.
package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"newstrader/src/model"
	"newstrader/src/risk"
)

const signatureHeader = "X-Webhook-Signature"

type signalCreator interface {
	Create(ctx context.Context, signal *model.Signal) error
}

type priceSource interface {
	LatestPrice(ctx context.Context, ticker string) (float64, error)
}

type validator interface {
	Validate(ctx context.Context, signal *model.Signal) risk.Verdict
}

type executor interface {
	Execute(ctx context.Context, signal *model.Signal, params *risk.TradeParams) (*model.Trade, error)
}

type predictionPayload struct {
	Ticker     string `json:"ticker"`
	Prediction *struct {
		Direction  string `json:"direction"`
		Confidence int    `json:"confidence"`
	} `json:"prediction"`
	Source    string `json:"source"`
	Reasoning string `json:"reasoning"`
}

type webhookResponse struct {
	Status   string `json:"status"`
	SignalID uint   `json:"signal_id,omitempty"`
	TradeID  uint   `json:"trade_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// PredictionWebhookHandler accepts an external prediction, builds an analyzed
// signal around the current price and pushes it straight through risk
// validation and execution. HOLD predictions are acknowledged and dropped.
func PredictionWebhookHandler(cfg Config, signals signalCreator, prices priceSource, riskEngine validator, exec executor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "cannot read body", http.StatusBadRequest)
			return
		}

		if cfg.WebhookSecret != "" && !verifySignature(cfg.WebhookSecret, body, r.Header.Get(signatureHeader)) {
			logger.Warn("Webhook signature mismatch")
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		var payload predictionPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
		if payload.Ticker == "" {
			http.Error(w, "missing ticker", http.StatusBadRequest)
			return
		}
		if payload.Prediction == nil || payload.Prediction.Direction == "" {
			http.Error(w, "missing prediction", http.StatusBadRequest)
			return
		}

		direction := strings.ToUpper(strings.TrimSpace(payload.Prediction.Direction))
		switch direction {
		case model.DirectionBuy, model.DirectionSell:
		case model.DirectionHold:
			writeJSON(w, http.StatusOK, webhookResponse{Status: "ignored", Reason: "HOLD prediction"})
			return
		default:
			http.Error(w, "invalid direction", http.StatusBadRequest)
			return
		}

		price, err := prices.LatestPrice(r.Context(), payload.Ticker)
		if err != nil {
			logger.WithField("ticker", payload.Ticker).WithError(err).Warn("No price for webhook signal")
			http.Error(w, "price unavailable", http.StatusServiceUnavailable)
			return
		}

		signal := buildWebhookSignal(cfg, payload, direction, price, time.Now())
		if err := signals.Create(r.Context(), signal); err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		verdict := riskEngine.Validate(r.Context(), signal)
		if !verdict.Approved {
			writeJSON(w, http.StatusOK, webhookResponse{
				Status:   "rejected",
				SignalID: signal.ID,
				Reason:   verdict.Reason,
			})
			return
		}

		trade, err := exec.Execute(r.Context(), signal, verdict.Params)
		if err != nil {
			writeJSON(w, http.StatusOK, webhookResponse{
				Status:   "execution_failed",
				SignalID: signal.ID,
				Reason:   err.Error(),
			})
			return
		}

		writeJSON(w, http.StatusOK, webhookResponse{
			Status:   "executed",
			SignalID: signal.ID,
			TradeID:  trade.ID,
		})
	}
}

// WebhookTestHandler is a reachability probe for webhook senders.
func WebhookTestHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// buildWebhookSignal turns an external prediction into an analyzed signal:
// entry a tenth of a percent past the current price, stop 2% and target 3%
// away, short expiry.
func buildWebhookSignal(cfg Config, payload predictionPayload, direction string, price float64, now time.Time) *model.Signal {
	var entry, stop, target float64
	if direction == model.DirectionBuy {
		entry = price * 1.001
		stop = entry * 0.98
		target = entry * 1.03
	} else {
		entry = price * 0.999
		stop = entry * 1.02
		target = entry * 0.97
	}

	confidence := payload.Prediction.Confidence
	if confidence == 0 {
		confidence = cfg.WebhookConfidenceDefault
	}

	source := payload.Source
	if source == "" {
		source = "webhook"
	}
	reasoning := payload.Reasoning
	if reasoning == "" {
		reasoning = "External prediction via webhook"
	}

	expires := now.Add(cfg.WebhookSignalTTL)
	signal := &model.Signal{
		Ticker:      payload.Ticker,
		Exchange:    model.ExchangeForTicker(payload.Ticker),
		Direction:   direction,
		Confidence:  confidence,
		Materiality: cfg.WebhookMateriality,
		EntryPrice:  &entry,
		StopLoss:    &stop,
		TargetPrice: &target,
		NewsSource:  source,
		Reasoning:   reasoning,
		Status:      model.SignalStatusAnalyzed,
		ExpiresAt:   &expires,
	}
	signal.ClampScores()
	return signal
}

func verifySignature(secret string, body []byte, got string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(strings.TrimSpace(got)))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}
