package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"

	"newstrader/src/model"
)

// ReasonerClient implements Reasoner against a Gemini-style generateContent
// API. The model is asked for a strict JSON object; the first {...} block in
// the reply is parsed and validated.
type ReasonerClient struct {
	apiKey string
	model  string
	http   *resty.Client
}

func NewReasonerClient(cfg Config) *ReasonerClient {
	return &ReasonerClient{
		apiKey: cfg.ReasonerAPIKey,
		model:  cfg.ReasonerModel,
		http:   newRestyClient(cfg.ReasonerBaseURL, cfg.ReasonerTimeout),
	}
}

type contentPart struct {
	Text string `json:"text"`
}

type content struct {
	Parts []contentPart `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

var jsonBlockRe = regexp.MustCompile(`(?s)\{.*\}`)

// ErrBadAnalysis marks a reply that arrived but cannot be used: missing
// fields, insane numbers, no JSON. Callers reject the signal instead of
// retrying, unlike transport errors.
var ErrBadAnalysis = errors.New("unusable analysis")

// Analyze asks the model for a structured trade analysis of the news.
func (c *ReasonerClient) Analyze(ctx context.Context, ticker, newsText string, snapshot model.MarketSnapshot) (*model.Analysis, error) {
	prompt := buildAnalysisPrompt(ticker, newsText, snapshot)

	req := generateRequest{
		Contents: []content{{Parts: []contentPart{{Text: prompt}}}},
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetBody(req).
		Post(fmt.Sprintf("/models/%s:generateContent", c.model))
	if err != nil {
		return nil, fmt.Errorf("reasoner call for %s: %w", ticker, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("reasoner call for %s: unexpected status %d", ticker, resp.StatusCode())
	}

	var decoded generateResponse
	if err := json.Unmarshal(resp.Body(), &decoded); err != nil {
		return nil, fmt.Errorf("reasoner call for %s: decode: %w", ticker, err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("reasoner call for %s: empty response: %w", ticker, ErrBadAnalysis)
	}

	text := decoded.Candidates[0].Content.Parts[0].Text
	analysis, err := ParseAnalysis(text)
	if err != nil {
		return nil, fmt.Errorf("reasoner call for %s: %s: %w", ticker, err, ErrBadAnalysis)
	}

	logger.WithFields(map[string]interface{}{
		"ticker":      ticker,
		"direction":   analysis.Direction,
		"confidence":  analysis.Confidence,
		"materiality": analysis.Materiality,
	}).Debug("Reasoner analysis parsed")

	return analysis, nil
}

// ParseAnalysis extracts and validates the JSON analysis object from a model
// reply. Every required field must be present and numerically sane.
func ParseAnalysis(text string) (*model.Analysis, error) {
	block := jsonBlockRe.FindString(text)
	if block == "" {
		return nil, fmt.Errorf("no JSON object in reasoner reply")
	}

	var analysis model.Analysis
	if err := json.Unmarshal([]byte(block), &analysis); err != nil {
		return nil, fmt.Errorf("parse analysis JSON: %w", err)
	}

	analysis.Direction = strings.ToUpper(strings.TrimSpace(analysis.Direction))
	switch analysis.Direction {
	case model.DirectionBuy, model.DirectionSell, model.DirectionHold:
	default:
		return nil, fmt.Errorf("invalid signal direction %q", analysis.Direction)
	}

	if strings.TrimSpace(analysis.Reasoning) == "" {
		return nil, fmt.Errorf("analysis missing reasoning")
	}

	for name, v := range map[string]float64{
		"entry_price":  analysis.EntryPrice,
		"stop_loss":    analysis.StopLoss,
		"target_price": analysis.TargetPrice,
	} {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("analysis field %s is not a sane price: %v", name, v)
		}
	}

	return &analysis, nil
}

func buildAnalysisPrompt(ticker, newsText string, snapshot model.MarketSnapshot) string {
	var b strings.Builder

	b.WriteString("You are an expert financial analyst. Analyze this information and provide a trading signal.\n\n")
	fmt.Fprintf(&b, "Stock: %s\n\nNews:\n%s\n\n", ticker, newsText)
	fmt.Fprintf(&b, "Market Data:\n- Current Price: %.2f\n- Volume: %d\n- Day Change: %.2f%%\n\n",
		snapshot.CurrentPrice, snapshot.Volume, snapshot.DayChangePct)
	b.WriteString(`Reply with JSON only, exactly these fields:
{
  "signal_type": "BUY" or "SELL" or "HOLD",
  "confidence": <number 0-100>,
  "materiality_score": <number 1-10>,
  "entry_price": <number>,
  "stop_loss": <number>,
  "target_price": <number>,
  "reasoning": "<detailed explanation>",
  "risk_factors": ["..."],
  "catalysts": ["..."]
}

Consider news sentiment and materiality, potential market impact, risk/reward,
technical levels, and an intraday time horizon. Be conservative with
confidence; only give more than 80 for very clear opportunities.`)

	return b.String()
}
