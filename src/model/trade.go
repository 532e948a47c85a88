package model

import "time"

const (
	TradeStatusPending   = "pending"
	TradeStatusOpen      = "open"
	TradeStatusClosed    = "closed"
	TradeStatusFailed    = "failed"
	TradeStatusCancelled = "cancelled"
)

// Trade is a sized, broker-submitted position derived from an approved signal.
// SignalID is nil for manually opened trades.
type Trade struct {
	ID       uint  `gorm:"primaryKey" json:"id"`
	SignalID *uint `gorm:"index" json:"signal_id,omitempty"`

	Ticker   string `gorm:"size:20;not null;index" json:"ticker"`
	Side     string `gorm:"size:10;not null" json:"side"`
	Quantity int    `gorm:"not null" json:"quantity"`

	EntryPrice       float64  `json:"entry_price"`
	ActualEntryPrice float64  `json:"actual_entry_price"`
	ExitPrice        *float64 `json:"exit_price,omitempty"`
	StopLoss         float64  `json:"stop_loss"`
	TargetPrice      float64  `json:"target_price"`

	BrokerOrderID string `gorm:"size:100" json:"broker_order_id"`

	Pnl           float64 `gorm:"default:0" json:"pnl"`
	PnlPercentage float64 `gorm:"default:0" json:"pnl_percentage"`
	Fees          float64 `gorm:"default:0" json:"fees"`

	Status string `gorm:"size:20;not null;default:pending;index" json:"status"`
	Notes  string `gorm:"type:text" json:"notes"`

	OpenedAt  *time.Time `json:"opened_at,omitempty"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (Trade) TableName() string {
	return "trades"
}

// CalculatePnl recomputes realized P&L from the stored fields. It is a pure
// recomputation: calling it any number of times yields the same result.
// P&L is only defined once the trade has an exit price.
func (t *Trade) CalculatePnl() {
	if t.ExitPrice == nil || t.Quantity <= 0 {
		return
	}

	entry := t.ActualEntryPrice
	if entry == 0 {
		entry = t.EntryPrice
	}

	qty := float64(t.Quantity)
	if t.Side == DirectionBuy {
		t.Pnl = (*t.ExitPrice-entry)*qty - t.Fees
	} else {
		t.Pnl = (entry-*t.ExitPrice)*qty - t.Fees
	}

	if notional := entry * qty; notional > 0 {
		t.PnlPercentage = (t.Pnl / notional) * 100
	}
}

// Notional returns the position value at the intended entry price.
func (t *Trade) Notional() float64 {
	return t.EntryPrice * float64(t.Quantity)
}
