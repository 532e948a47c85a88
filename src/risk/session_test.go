package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession(t *testing.T) *Session {
	t.Helper()
	session, err := NewSession(testConfig())
	require.NoError(t, err)
	return session
}

func at(s *Session, day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, s.Location())
}

func TestSessionWeekendBlocksEverything(t *testing.T) {
	s := testSession(t)
	saturday := time.Date(2026, time.January, 10, 0, 0, 0, 0, s.Location())

	ok, reason := s.CheckEntryWindow(at(s, saturday, 13, 0))
	assert.False(t, ok)
	assert.Equal(t, "Outside market hours", reason)
	assert.False(t, s.WithinScanWindow(at(s, saturday, 13, 0)))
	assert.False(t, s.WithinBeforeClose(at(s, saturday, 17, 25), 15*time.Minute))
}

func TestSessionWithinBeforeClose(t *testing.T) {
	s := testSession(t)
	tuesday := time.Date(2026, time.January, 6, 0, 0, 0, 0, s.Location())

	assert.False(t, s.WithinBeforeClose(at(s, tuesday, 17, 0), 15*time.Minute))
	assert.True(t, s.WithinBeforeClose(at(s, tuesday, 17, 15), 15*time.Minute))
	assert.True(t, s.WithinBeforeClose(at(s, tuesday, 17, 30), 15*time.Minute))
	assert.False(t, s.WithinBeforeClose(at(s, tuesday, 17, 45), 15*time.Minute))
}

func TestSessionScanWindow(t *testing.T) {
	s := testSession(t)
	tuesday := time.Date(2026, time.January, 6, 0, 0, 0, 0, s.Location())

	assert.False(t, s.WithinScanWindow(at(s, tuesday, 7, 30)))
	assert.True(t, s.WithinScanWindow(at(s, tuesday, 8, 0)))
	assert.True(t, s.WithinScanWindow(at(s, tuesday, 18, 30)))
	assert.False(t, s.WithinScanWindow(at(s, tuesday, 19, 0)))
}

func TestSessionDayStart(t *testing.T) {
	s := testSession(t)
	late := time.Date(2026, time.January, 6, 23, 50, 0, 0, s.Location())

	start := s.DayStart(late)
	assert.Equal(t, 2026, start.Year())
	assert.Equal(t, time.January, start.Month())
	assert.Equal(t, 6, start.Day())
	assert.Zero(t, start.Hour())
}
