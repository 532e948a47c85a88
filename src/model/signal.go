package model

import (
	"fmt"
	"strings"
	"time"
)

const (
	DirectionBuy  = "BUY"
	DirectionSell = "SELL"
	DirectionHold = "HOLD"
)

const (
	SignalStatusPending  = "pending"
	SignalStatusAnalyzed = "analyzed"
	SignalStatusApproved = "approved"
	SignalStatusRejected = "rejected"
	SignalStatusExecuted = "executed"
	SignalStatusExpired  = "expired"
)

// signalRank orders the forward chain pending -> analyzed -> approved -> executed.
// rejected and expired are terminal side exits.
var signalRank = map[string]int{
	SignalStatusPending:  0,
	SignalStatusAnalyzed: 1,
	SignalStatusApproved: 2,
	SignalStatusExecuted: 3,
}

// Signal is a candidate trade derived from news or an external prediction,
// prior to risk approval. Signals are never deleted; they are kept for audit.
type Signal struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Ticker   string `gorm:"size:20;not null;index" json:"ticker"`
	Exchange string `gorm:"size:20" json:"exchange"`

	Direction   string `gorm:"size:10;not null" json:"direction"`
	Confidence  int    `gorm:"not null;default:0" json:"confidence"`
	Materiality int    `gorm:"not null;default:0" json:"materiality"`

	EntryPrice  *float64 `json:"entry_price,omitempty"`
	StopLoss    *float64 `json:"stop_loss,omitempty"`
	TargetPrice *float64 `json:"target_price,omitempty"`

	NewsSource string `gorm:"type:text" json:"news_source"`
	Reasoning  string `gorm:"type:text" json:"reasoning"`

	PositionSize int `gorm:"default:0" json:"position_size"`

	Status string `gorm:"size:20;not null;default:pending;index" json:"status"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (Signal) TableName() string {
	return "signals"
}

// IsTerminal reports whether no further transition is allowed.
func (s *Signal) IsTerminal() bool {
	return s.Status == SignalStatusRejected ||
		s.Status == SignalStatusExpired ||
		s.Status == SignalStatusExecuted
}

// Transition moves the signal to the target status, enforcing the monotonic
// chain pending -> analyzed -> (approved|rejected) -> executed. rejected is
// reachable from any non-terminal status, as is expired. Backward transitions
// are an error.
func (s *Signal) Transition(target string) error {
	if s.IsTerminal() {
		return fmt.Errorf("signal %d is terminal (%s), cannot move to %s", s.ID, s.Status, target)
	}

	switch target {
	case SignalStatusExpired, SignalStatusRejected:
		s.Status = target
		return nil
	}

	fromRank, ok := signalRank[s.Status]
	if !ok {
		return fmt.Errorf("signal %d has unknown status %q", s.ID, s.Status)
	}
	toRank, ok := signalRank[target]
	if !ok {
		return fmt.Errorf("unknown target status %q", target)
	}

	if toRank != fromRank+1 {
		return fmt.Errorf("illegal transition %s -> %s for signal %d", s.Status, target, s.ID)
	}

	// A signal may not leave analyzed without its price levels set.
	if s.Status == SignalStatusAnalyzed && !s.HasPriceLevels() {
		return fmt.Errorf("signal %d cannot leave %s without entry/stop/target", s.ID, s.Status)
	}

	s.Status = target
	return nil
}

// HasPriceLevels reports whether entry, stop and target are all set.
func (s *Signal) HasPriceLevels() bool {
	return s.EntryPrice != nil && s.StopLoss != nil && s.TargetPrice != nil
}

// AppendReasoning adds a note to the reasoning trail without losing history.
func (s *Signal) AppendReasoning(note string) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	if s.Reasoning == "" {
		s.Reasoning = note
		return
	}
	s.Reasoning = s.Reasoning + " | " + note
}

// ClampScores forces confidence into [0,100] and materiality into [1,10].
func (s *Signal) ClampScores() {
	if s.Confidence < 0 {
		s.Confidence = 0
	}
	if s.Confidence > 100 {
		s.Confidence = 100
	}
	if s.Materiality < 1 {
		s.Materiality = 1
	}
	if s.Materiality > 10 {
		s.Materiality = 10
	}
}

// IsExpired reports whether the signal's expiry has passed at the given time.
func (s *Signal) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// ExchangeForTicker maps an exchange-qualified ticker suffix to its venue label.
func ExchangeForTicker(ticker string) string {
	switch {
	case strings.HasSuffix(ticker, ".AS"):
		return "AMS"
	case strings.HasSuffix(ticker, ".DE"):
		return "XETRA"
	case strings.HasSuffix(ticker, ".PA"):
		return "EPA"
	case strings.HasSuffix(ticker, ".SW"):
		return "SIX"
	default:
		return "UNKNOWN"
	}
}
