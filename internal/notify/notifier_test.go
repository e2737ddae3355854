package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tarottracker/internal/models"
	"tarottracker/internal/settings"
)

type fakeRecords struct {
	sessions []models.Session
	calls    int
}

func (f *fakeRecords) ListSince(_ context.Context, _ string) ([]models.Session, error) {
	f.calls++
	return f.sessions, nil
}

type fakeStamps struct {
	last string
	set  string
}

func (f *fakeStamps) LastNotificationCheck(_ context.Context) (string, error) {
	return f.last, nil
}

func (f *fakeStamps) SetLastNotificationCheck(_ context.Context, day string) error {
	f.set = day
	return nil
}

type notification struct {
	title string
	body  string
}

type fakeSink struct {
	mu   sync.Mutex
	sent []notification
}

func (f *fakeSink) Notify(_ context.Context, title, body string) {
	f.mu.Lock()
	f.sent = append(f.sent, notification{title: title, body: body})
	f.mu.Unlock()
}

func (f *fakeSink) bodies(title string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, n := range f.sent {
		if n.title == title {
			out = append(out, n.body)
		}
	}
	return out
}

func floatPtr(v float64) *float64 { return &v }

func setClock(t *testing.T, fixed time.Time) {
	t.Helper()
	timeNow = func() time.Time { return fixed }
	t.Cleanup(func() { timeNow = time.Now })
}

// saturday is 2025-01-18, a Saturday; the Friday before is 2025-01-17.
var saturday = time.Date(2025, 1, 18, 12, 0, 0, 0, time.UTC)

func newTestNotifier(t *testing.T, records *fakeRecords, stamps *fakeStamps, tweak func(*settings.Settings)) (*Notifier, *fakeSink) {
	t.Helper()
	store := settings.NewStore(context.Background(), nil, zap.NewNop())
	if tweak != nil {
		require.NoError(t, store.Update(context.Background(), tweak))
	}
	sink := &fakeSink{}
	return New(records, stamps, store, sink, zap.NewNop()), sink
}

func readings(count int, tipEach float64, timestamp string) []models.Reading {
	out := make([]models.Reading, 0, count)
	for i := 0; i < count; i++ {
		reading := models.Reading{Timestamp: timestamp}
		if tipEach != 0 {
			reading.Tip = floatPtr(tipEach)
		}
		out = append(out, reading)
	}
	return out
}

func TestRunSkipsSameCalendarDay(t *testing.T) {
	setClock(t, saturday)
	records := &fakeRecords{sessions: []models.Session{{SessionDate: "2025-01-18", Readings: readings(1, 0, "")}}}
	stamps := &fakeStamps{last: "Sat Jan 18 2025"}
	notifier, sink := newTestNotifier(t, records, stamps, nil)

	require.NoError(t, notifier.Run(context.Background()))

	assert.Zero(t, records.calls)
	assert.Empty(t, sink.sent)
}

func TestRunWritesStampAfterBattery(t *testing.T) {
	setClock(t, saturday)
	records := &fakeRecords{sessions: []models.Session{{SessionDate: "2025-01-18", ReadingPrice: 40, Readings: readings(1, 0, "")}}}
	stamps := &fakeStamps{}
	notifier, _ := newTestNotifier(t, records, stamps, nil)

	require.NoError(t, notifier.Run(context.Background()))

	assert.Equal(t, "Sat Jan 18 2025", stamps.set)
}

func TestRunNoDataNoStamp(t *testing.T) {
	setClock(t, saturday)
	stamps := &fakeStamps{}
	notifier, sink := newTestNotifier(t, &fakeRecords{}, stamps, nil)

	require.NoError(t, notifier.Run(context.Background()))

	assert.Empty(t, stamps.set)
	assert.Empty(t, sink.sent)
}

func TestDailySummary(t *testing.T) {
	setClock(t, saturday)
	records := &fakeRecords{sessions: []models.Session{
		{SessionDate: "2025-01-18", ReadingPrice: 40, Readings: readings(3, 5, "")},
		{SessionDate: "2025-01-17", ReadingPrice: 40, Readings: readings(2, 0, "")},
	}}
	notifier, sink := newTestNotifier(t, records, &fakeStamps{}, func(s *settings.Settings) {
		s.WeekendGoals = false
	})

	require.NoError(t, notifier.Run(context.Background()))

	require.Len(t, sink.bodies("Daily Summary"), 1)
	assert.Equal(t, "Today: 3 readings, $135.00 earned!", sink.bodies("Daily Summary")[0])
}

func TestWeekendGoalProgress(t *testing.T) {
	setClock(t, saturday)
	records := &fakeRecords{sessions: []models.Session{
		{SessionDate: "2025-01-18", ReadingPrice: 60, Readings: readings(10, 0, "")},
	}}
	notifier, sink := newTestNotifier(t, records, &fakeStamps{}, func(s *settings.Settings) {
		s.DailySummary = false
	})

	require.NoError(t, notifier.Run(context.Background()))

	weekend := sink.bodies("Weekend Goal")
	require.Len(t, weekend, 1)
	assert.Equal(t, "$600.00 earned! $400.00 to reach $1000 goal!", weekend[0])

	goal := sink.bodies("Reading Goal")
	require.Len(t, goal, 1)
	assert.Equal(t, "10 readings done! 5 more to reach 15!", goal[0])
}

func TestWeekendGoalAchieved(t *testing.T) {
	setClock(t, saturday)
	records := &fakeRecords{sessions: []models.Session{
		{SessionDate: "2025-01-18", ReadingPrice: 60, Readings: readings(20, 0, "")},
	}}
	notifier, sink := newTestNotifier(t, records, &fakeStamps{}, func(s *settings.Settings) {
		s.DailySummary = false
		s.PeakTime = false
	})

	require.NoError(t, notifier.Run(context.Background()))

	weekend := sink.bodies("Weekend Goal")
	require.Len(t, weekend, 1)
	assert.Equal(t, "Amazing! $1200.00 earned this weekend!", weekend[0])

	goal := sink.bodies("Reading Goal")
	require.Len(t, goal, 1)
	assert.Equal(t, "Fantastic! 20 readings this weekend!", goal[0])
}

func TestWeekendGoalsSkipWeekdays(t *testing.T) {
	friday := time.Date(2025, 1, 17, 12, 0, 0, 0, time.UTC)
	setClock(t, friday)
	records := &fakeRecords{sessions: []models.Session{
		{SessionDate: "2025-01-17", ReadingPrice: 60, Readings: readings(20, 0, "")},
	}}
	notifier, sink := newTestNotifier(t, records, &fakeStamps{}, func(s *settings.Settings) {
		s.DailySummary = false
		s.PeakTime = false
	})

	require.NoError(t, notifier.Run(context.Background()))

	assert.Empty(t, sink.bodies("Weekend Goal"))
	assert.Empty(t, sink.bodies("Reading Goal"))
}

func TestWeekendGoalsDisabledBySettings(t *testing.T) {
	setClock(t, saturday)
	records := &fakeRecords{sessions: []models.Session{
		{SessionDate: "2025-01-18", ReadingPrice: 60, Readings: readings(10, 0, "")},
	}}
	notifier, sink := newTestNotifier(t, records, &fakeStamps{}, func(s *settings.Settings) {
		s.DailySummary = false
		s.WeekendGoals = false
	})

	require.NoError(t, notifier.Run(context.Background()))

	assert.Empty(t, sink.bodies("Weekend Goal"))
	assert.Empty(t, sink.bodies("Reading Goal"))
}

func TestBestDay(t *testing.T) {
	setClock(t, saturday)
	// two Fridays at $100 each, two Saturdays at $40 each
	records := &fakeRecords{sessions: []models.Session{
		{SessionDate: "2025-01-10", ReadingPrice: 50, Readings: readings(2, 0, "")},
		{SessionDate: "2025-01-17", ReadingPrice: 50, Readings: readings(2, 0, "")},
		{SessionDate: "2025-01-04", ReadingPrice: 40, Readings: readings(1, 0, "")},
		{SessionDate: "2025-01-11", ReadingPrice: 40, Readings: readings(1, 0, "")},
	}}
	notifier, sink := newTestNotifier(t, records, &fakeStamps{}, func(s *settings.Settings) {
		s.DailySummary = false
		s.WeekendGoals = false
	})

	require.NoError(t, notifier.Run(context.Background()))

	best := sink.bodies("Best Day Alert")
	require.Len(t, best, 1)
	assert.Equal(t, "Friday is your highest earning day - $100.00 average!", best[0])
}

func TestBestDayNeedsRepeatedDays(t *testing.T) {
	setClock(t, saturday)
	records := &fakeRecords{sessions: []models.Session{
		{SessionDate: "2025-01-10", ReadingPrice: 50, Readings: readings(2, 0, "")},
		{SessionDate: "2025-01-11", ReadingPrice: 40, Readings: readings(1, 0, "")},
	}}
	notifier, sink := newTestNotifier(t, records, &fakeStamps{}, func(s *settings.Settings) {
		s.DailySummary = false
		s.WeekendGoals = false
	})

	require.NoError(t, notifier.Run(context.Background()))

	assert.Empty(t, sink.bodies("Best Day Alert"))
}

func TestTipTrendsIncrease(t *testing.T) {
	setClock(t, saturday)
	sessions := make([]models.Session, 0, 13)
	for i := 0; i < 10; i++ {
		sessions = append(sessions, models.Session{
			SessionDate: "2024-12-30", ReadingPrice: 40, Readings: readings(1, 24, ""),
		})
	}
	for i := 0; i < 3; i++ {
		sessions = append(sessions, models.Session{
			SessionDate: "2024-12-23", ReadingPrice: 40, Readings: readings(1, 20, ""),
		})
	}
	notifier, sink := newTestNotifier(t, &fakeRecords{sessions: sessions}, &fakeStamps{}, func(s *settings.Settings) {
		s.DailySummary = false
		s.WeekendGoals = false
		s.BestDay = false
	})

	require.NoError(t, notifier.Run(context.Background()))

	trends := sink.bodies("Tip Trends")
	require.Len(t, trends, 1)
	assert.Equal(t, "Your average tip increased 20.0% recently!", trends[0])
}

func TestTipTrendsBelowThreshold(t *testing.T) {
	setClock(t, saturday)
	sessions := make([]models.Session, 0, 13)
	for i := 0; i < 10; i++ {
		sessions = append(sessions, models.Session{
			SessionDate: "2024-12-30", ReadingPrice: 40, Readings: readings(1, 21, ""),
		})
	}
	for i := 0; i < 3; i++ {
		sessions = append(sessions, models.Session{
			SessionDate: "2024-12-23", ReadingPrice: 40, Readings: readings(1, 20, ""),
		})
	}
	notifier, sink := newTestNotifier(t, &fakeRecords{sessions: sessions}, &fakeStamps{}, func(s *settings.Settings) {
		s.DailySummary = false
		s.WeekendGoals = false
		s.BestDay = false
	})

	require.NoError(t, notifier.Run(context.Background()))

	assert.Empty(t, sink.bodies("Tip Trends"))
}

func TestPeakTimes(t *testing.T) {
	setClock(t, saturday)
	session := models.Session{SessionDate: "2025-01-10", ReadingPrice: 40}
	session.Readings = append(session.Readings, readings(5, 0, "2025-01-10T14:00:00Z")...)
	session.Readings = append(session.Readings, readings(15, 0, "")...)
	notifier, sink := newTestNotifier(t, &fakeRecords{sessions: []models.Session{session}}, &fakeStamps{}, func(s *settings.Settings) {
		s.DailySummary = false
		s.WeekendGoals = false
		s.BestDay = false
	})

	require.NoError(t, notifier.Run(context.Background()))

	peaks := sink.bodies("Peak Time Alert")
	require.Len(t, peaks, 1)
	assert.Equal(t, "14:00-15:00 is your busiest time - 25.0% of readings!", peaks[0])
}

func TestPeakTimesNeedsVolume(t *testing.T) {
	setClock(t, saturday)
	session := models.Session{SessionDate: "2025-01-10", ReadingPrice: 40,
		Readings: readings(19, 0, "2025-01-10T14:00:00Z")}
	notifier, sink := newTestNotifier(t, &fakeRecords{sessions: []models.Session{session}}, &fakeStamps{}, func(s *settings.Settings) {
		s.DailySummary = false
		s.WeekendGoals = false
		s.BestDay = false
	})

	require.NoError(t, notifier.Run(context.Background()))

	assert.Empty(t, sink.bodies("Peak Time Alert"))
}

func TestParseHour(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"2025-01-10T14:30:00Z", 14, true},
		{"2025-01-10T00:05:00Z", 0, true},
		{"7:15 PM", 19, true},
		{"12:00 PM", 12, true},
		{"12:30 AM", 0, true},
		{"", 0, false},
		{"midnight", 0, false},
	}
	for _, tc := range cases {
		hour, ok := parseHour(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		if tc.ok {
			assert.Equal(t, tc.want, hour, "input %q", tc.in)
		}
	}
}
