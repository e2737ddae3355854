package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"2024-03-15", "3/15/2024"},
		{"24-03-15", "3/15/2024"},
		{"2024-12-01", "12/1/2024"},
		{"3/15/2024", "3/15/2024"},
		{"not a date", "not a date"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeDate(tc.in), "input %q", tc.in)
	}
}

func TestParseSessionDate(t *testing.T) {
	iso, err := ParseSessionDate("2025-01-17")
	require.NoError(t, err)
	assert.Equal(t, time.Friday, iso.Weekday())

	display, err := ParseSessionDate("1/17/2025")
	require.NoError(t, err)
	assert.True(t, iso.Equal(display))

	_, err = ParseSessionDate("")
	assert.Error(t, err)

	_, err = ParseSessionDate("January 17")
	assert.Error(t, err)
}

func TestSessionWeekday(t *testing.T) {
	weekday, ok := SessionWeekday("2025-01-17")
	require.True(t, ok)
	assert.Equal(t, time.Friday, weekday)

	_, ok = SessionWeekday("garbage")
	assert.False(t, ok)
}

func TestDisplayTime(t *testing.T) {
	assert.Equal(t, "2:30 PM", DisplayTime("2025-01-17T14:30:00Z"))
	assert.Equal(t, "9:05 AM", DisplayTime("2025-01-17T09:05:00Z"))
	assert.Equal(t, "7:15 PM", DisplayTime("7:15 PM"))
	assert.Equal(t, "", DisplayTime(""))
}
