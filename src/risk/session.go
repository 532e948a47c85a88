package risk

import (
	"fmt"
	"time"
)

// Session models the trading day of the target exchange: an open/close window
// in the exchange's local clock, with entry buffers at both edges.
type Session struct {
	openMinute  int // minutes after local midnight
	closeMinute int
	openBuffer  time.Duration
	closeBuffer time.Duration
	loc         *time.Location
}

// NewSession builds the session window from config. Fails when the configured
// timezone is unknown.
func NewSession(cfg Config) (*Session, error) {
	loc, err := time.LoadLocation(cfg.MarketTimezone)
	if err != nil {
		return nil, fmt.Errorf("load market timezone %q: %w", cfg.MarketTimezone, err)
	}

	return &Session{
		openMinute:  cfg.MarketOpenHour*60 + cfg.MarketOpenMinute,
		closeMinute: cfg.MarketCloseHour*60 + cfg.MarketCloseMinute,
		openBuffer:  cfg.OpenBuffer,
		closeBuffer: cfg.CloseBuffer,
		loc:         loc,
	}, nil
}

func (s *Session) localMinute(t time.Time) int {
	lt := t.In(s.loc)
	return lt.Hour()*60 + lt.Minute()
}

func (s *Session) isWeekend(t time.Time) bool {
	wd := t.In(s.loc).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// CheckEntryWindow reports whether a new entry is allowed at the given time,
// rejecting outside the session and inside the open/close buffers.
func (s *Session) CheckEntryWindow(now time.Time) (bool, string) {
	if s.isWeekend(now) {
		return false, "Outside market hours"
	}

	minute := s.localMinute(now)
	openBufMin := int(s.openBuffer.Minutes())
	closeBufMin := int(s.closeBuffer.Minutes())

	if minute < s.openMinute || minute > s.closeMinute {
		return false, "Outside market hours"
	}
	if minute <= s.openMinute+openBufMin {
		return false, fmt.Sprintf("Within first %d minutes of market open", openBufMin)
	}
	if minute >= s.closeMinute-closeBufMin {
		return false, fmt.Sprintf("Within last %d minutes of market close", closeBufMin)
	}

	return true, ""
}

// WithinBeforeClose reports whether now falls inside the final stretch of the
// session of the given length (and not after the close itself).
func (s *Session) WithinBeforeClose(now time.Time, buffer time.Duration) bool {
	if s.isWeekend(now) {
		return false
	}

	minute := s.localMinute(now)
	return minute >= s.closeMinute-int(buffer.Minutes()) && minute <= s.closeMinute
}

// WithinScanWindow reports whether news scanning should run: from one hour
// before the open through one hour after the close.
func (s *Session) WithinScanWindow(now time.Time) bool {
	if s.isWeekend(now) {
		return false
	}

	minute := s.localMinute(now)
	return minute >= s.openMinute-60 && minute <= s.closeMinute+60
}

// DayStart returns local midnight of the trading day containing t.
func (s *Session) DayStart(t time.Time) time.Time {
	lt := t.In(s.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, s.loc)
}

// Location exposes the exchange timezone for date bucketing elsewhere.
func (s *Session) Location() *time.Location {
	return s.loc
}
