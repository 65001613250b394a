package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCronRejectsWrongFieldCount(t *testing.T) {
	_, err := ParseCron("* * *")
	assert.Error(t, err)
}

func TestParseCronEveryMinute(t *testing.T) {
	cs, err := ParseCron("* * * * *")
	require.NoError(t, err)
	after := time.Date(2026, 7, 30, 10, 15, 30, 0, time.UTC)
	next := cs.NextFire(after)
	assert.Equal(t, time.Date(2026, 7, 30, 10, 16, 0, 0, time.UTC), next)
}

func TestParseCronFieldForms(t *testing.T) {
	cs, err := ParseCron("0,30 9-17 */2 1,6,12 *")
	require.NoError(t, err)
	assert.True(t, cs.minute.has(0))
	assert.True(t, cs.minute.has(30))
	assert.False(t, cs.minute.has(1))
	assert.True(t, cs.hour.has(9))
	assert.True(t, cs.hour.has(17))
	assert.False(t, cs.hour.has(8))
	assert.True(t, cs.dom.has(1))
	assert.True(t, cs.dom.has(3))
	assert.False(t, cs.dom.has(2))
	assert.True(t, cs.month.has(1))
	assert.True(t, cs.month.has(6))
	assert.True(t, cs.month.has(12))
	assert.False(t, cs.month.has(7))
}

func TestParseCronRejectsOutOfRange(t *testing.T) {
	_, err := ParseCron("60 * * * *")
	assert.Error(t, err)
	_, err = ParseCron("* 24 * * *")
	assert.Error(t, err)
	_, err = ParseCron("* * 32 * *")
	assert.Error(t, err)
}

// TestDomDowOrCombine verifies the spec §6 bit-exact rule: when both
// day-of-month and day-of-week are restricted (non-'*'), they OR-combine;
// when only one is restricted, the other acts as a pure filter.
func TestDomDowOrCombine(t *testing.T) {
	// 15th of the month OR every Monday (dow=1).
	cs, err := ParseCron("0 0 15 * 1")
	require.NoError(t, err)

	monday := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC) // a Monday, not the 15th
	assert.True(t, cs.domDowMatch(monday))

	fifteenthTuesday := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC) // the 15th, a Tuesday
	assert.True(t, cs.domDowMatch(fifteenthTuesday))

	neither := time.Date(2026, 8, 4, 0, 0, 0, 0, time.UTC) // Tuesday the 4th
	assert.False(t, cs.domDowMatch(neither))
}

func TestDomDowWildcardActsAsPureFilter(t *testing.T) {
	cs, err := ParseCron("0 0 * * 1") // every Monday, dom wild
	require.NoError(t, err)
	monday := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	tuesday := time.Date(2026, 8, 4, 0, 0, 0, 0, time.UTC)
	assert.True(t, cs.domDowMatch(monday))
	assert.False(t, cs.domDowMatch(tuesday))
}

func TestNextFireAdvancesAcrossMonthBoundary(t *testing.T) {
	cs, err := ParseCron("0 0 1 * *") // midnight on the 1st of every month
	require.NoError(t, err)
	after := time.Date(2026, 7, 30, 23, 59, 0, 0, time.UTC)
	next := cs.NextFire(after)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), next)
}

func TestNextFireIsStrictlyAfterInput(t *testing.T) {
	cs, err := ParseCron("* * * * *")
	require.NoError(t, err)
	now := time.Now()
	next := cs.NextFire(now)
	assert.True(t, next.After(now))
}
