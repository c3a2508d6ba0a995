package queryintel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2024-03-15 12:00:00 UTC
func fixedNow() time.Time {
	return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
}

func TestParseTemporalHintNoMatch(t *testing.T) {
	assert.Nil(t, ParseTemporalHint("find my API keys", fixedNow()))
}

func TestParseTemporalHintYesterday(t *testing.T) {
	tr := ParseTemporalHint("what did I do yesterday", fixedNow())
	require.NotNil(t, tr)
	assert.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), *tr.After)
	assert.Equal(t, time.Date(2024, 3, 14, 23, 59, 59, 0, time.UTC), *tr.Before)
}

func TestParseTemporalHintToday(t *testing.T) {
	tr := ParseTemporalHint("notes from today", fixedNow())
	require.NotNil(t, tr)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), *tr.After)
	assert.Nil(t, tr.Before)
}

func TestParseTemporalHintRelativeWindows(t *testing.T) {
	now := fixedNow()
	tests := []struct {
		query     string
		wantAfter time.Time
	}{
		{"what happened last week", now.AddDate(0, 0, -7)},
		{"memories from the past month", now.AddDate(0, 0, -30)},
		{"notes from last year", now.AddDate(0, 0, -365)},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			tr := ParseTemporalHint(tt.query, now)
			require.NotNil(t, tr)
			assert.Equal(t, tt.wantAfter, *tr.After)
			assert.Nil(t, tr.Before)
		})
	}
}

func TestParseTemporalHintAFewAgo(t *testing.T) {
	now := fixedNow()
	tests := []struct {
		query      string
		wantAfter  time.Time
		wantBefore time.Time
	}{
		{"I read that a few days ago", now.AddDate(0, 0, -5), now.AddDate(0, 0, -1)},
		{"happened a few weeks ago", now.AddDate(0, 0, -28), now.AddDate(0, 0, -7)},
		{"it was a few months ago", now.AddDate(0, 0, -90), now.AddDate(0, 0, -30)},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			tr := ParseTemporalHint(tt.query, now)
			require.NotNil(t, tr)
			assert.Equal(t, tt.wantAfter, *tr.After)
			assert.Equal(t, tt.wantBefore, *tr.Before)
		})
	}
}

func TestParseTemporalHintAbsoluteDates(t *testing.T) {
	tr := ParseTemporalHint("entries after 2024-01-01", fixedNow())
	require.NotNil(t, tr)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *tr.After)
	assert.Nil(t, tr.Before)

	tr = ParseTemporalHint("notes before 2024-02-28", fixedNow())
	require.NotNil(t, tr)
	assert.Nil(t, tr.After)
	assert.Equal(t, time.Date(2024, 2, 28, 23, 59, 59, 0, time.UTC), *tr.Before)
}

func TestParseTemporalHintBetweenMonths(t *testing.T) {
	tr := ParseTemporalHint("between January and March", fixedNow())
	require.NotNil(t, tr)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *tr.After)
	assert.Equal(t, time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC), *tr.Before)
}

func TestParseTemporalHintBetweenDecemberWraps(t *testing.T) {
	tr := ParseTemporalHint("between october and december", fixedNow())
	require.NotNil(t, tr)
	assert.Equal(t, time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC), *tr.After)
	assert.Equal(t, time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC), *tr.Before)
}

func TestParseTemporalHintFirstPatternWins(t *testing.T) {
	// "yesterday" is checked before "last week".
	tr := ParseTemporalHint("yesterday or maybe last week", fixedNow())
	require.NotNil(t, tr)
	assert.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), *tr.After)
}

func TestTimeRangeContains(t *testing.T) {
	after := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	before := time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)
	tr := &TimeRange{After: &after, Before: &before}

	assert.True(t, tr.Contains(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))
	assert.True(t, tr.Contains(after))
	assert.True(t, tr.Contains(before))
	assert.False(t, tr.Contains(after.Add(-time.Second)))
	assert.False(t, tr.Contains(before.Add(time.Second)))

	var nilRange *TimeRange
	assert.False(t, nilRange.Contains(after))

	openEnd := &TimeRange{After: &after}
	assert.True(t, openEnd.Contains(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)))
}
