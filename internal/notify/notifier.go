package notify

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tarottracker/internal/models"
	"tarottracker/internal/settings"
)

const (
	recentWindowDays = 30
	dayStampLayout   = "Mon Jan 02 2006"
)

// timeNow is swapped out by tests that need a fixed weekend or weekday.
var timeNow = time.Now

// Sink delivers one notification. Push delivery lives outside this package;
// the default sink just logs.
type Sink interface {
	Notify(ctx context.Context, title, body string)
}

// LogSink writes notifications to the log.
type LogSink struct {
	Logger *zap.Logger
}

func (s *LogSink) Notify(_ context.Context, title, body string) {
	s.Logger.Info("notification", zap.String("title", title), zap.String("body", body))
}

// Records is the store surface the heuristics need.
type Records interface {
	ListSince(ctx context.Context, sinceDate string) ([]models.Session, error)
}

// Stamps persists the once-per-day guard.
type Stamps interface {
	LastNotificationCheck(ctx context.Context) (string, error)
	SetLastNotificationCheck(ctx context.Context, day string) error
}

// Notifier evaluates a fixed battery of independent rules against the last
// 30 days of sessions, at most once per calendar day. Each rule is a pure
// predicate plus message formatter, individually enabled through settings.
type Notifier struct {
	records  Records
	stamps   Stamps
	settings *settings.Store
	sink     Sink
	logger   *zap.Logger
}

// New builds notifier.
func New(records Records, stamps Stamps, settingsStore *settings.Store, sink Sink, logger *zap.Logger) *Notifier {
	return &Notifier{
		records:  records,
		stamps:   stamps,
		settings: settingsStore,
		sink:     sink,
		logger:   logger,
	}
}

// Run executes the battery once. Repeated runs the same calendar day are
// no-ops. A fetch failure is logged and skipped; the stamp is only written
// after a run that actually saw data.
func (n *Notifier) Run(ctx context.Context) error {
	now := timeNow()
	today := now.Format(dayStampLayout)

	last, err := n.stamps.LastNotificationCheck(ctx)
	if err != nil {
		n.logger.Warn("failed to read notification stamp", zap.Error(err))
	} else if last == today {
		return nil
	}

	since := now.AddDate(0, 0, -recentWindowDays).Format("2006-01-02")
	sessions, err := n.records.ListSince(ctx, since)
	if err != nil {
		n.logger.Error("failed to fetch sessions for notifications", zap.Error(err))
		return nil
	}
	if len(sessions) == 0 {
		return nil
	}

	prefs := n.settings.Current()
	if prefs.DailySummary {
		n.checkDailySummary(ctx, sessions, now)
	}
	if prefs.WeekendGoals {
		n.checkWeekendGoals(ctx, sessions, now)
	}
	if prefs.BestDay {
		n.checkBestDay(ctx, sessions)
	}
	if prefs.TipTrends {
		n.checkTipTrends(ctx, sessions)
	}
	if prefs.PeakTime {
		n.checkPeakTimes(ctx, sessions)
	}

	if err := n.stamps.SetLastNotificationCheck(ctx, today); err != nil {
		n.logger.Warn("failed to write notification stamp", zap.Error(err))
	}
	return nil
}

// sessionEarnings uses the summary formula carried over from the legacy
// reports: reading count times session price (default when unset) plus tips.
func sessionEarnings(session models.Session) decimal.Decimal {
	price := session.ReadingPrice
	if price == 0 {
		price = models.DefaultReadingPrice
	}
	earnings := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(len(session.Readings))))
	for _, reading := range session.Readings {
		if reading.Tip != nil {
			earnings = earnings.Add(decimal.NewFromFloat(*reading.Tip))
		}
	}
	return earnings
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

func (n *Notifier) checkDailySummary(ctx context.Context, sessions []models.Session, now time.Time) {
	totalReadings := 0
	totalEarnings := decimal.Zero
	for _, session := range sessions {
		if len(session.Readings) == 0 {
			continue
		}
		date, err := models.ParseSessionDate(session.SessionDate)
		if err != nil || !sameDay(date, now) {
			continue
		}
		totalReadings += len(session.Readings)
		totalEarnings = totalEarnings.Add(sessionEarnings(session))
	}
	if totalReadings == 0 {
		return
	}
	n.sink.Notify(ctx, "Daily Summary",
		fmt.Sprintf("Today: %d readings, $%s earned!", totalReadings, totalEarnings.StringFixed(2)))
}

func (n *Notifier) checkWeekendGoals(ctx context.Context, sessions []models.Session, now time.Time) {
	if now.Weekday() != time.Saturday && now.Weekday() != time.Sunday {
		return
	}

	// Saturday of the current weekend (today when it is Saturday).
	offset := int(now.Weekday()) - 6
	if now.Weekday() == time.Sunday {
		offset = 1
	}
	weekendStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -offset)

	totalReadings := 0
	totalEarnings := decimal.Zero
	for _, session := range sessions {
		if len(session.Readings) == 0 {
			continue
		}
		date, err := models.ParseSessionDate(session.SessionDate)
		if err != nil {
			continue
		}
		if date.Weekday() != time.Saturday && date.Weekday() != time.Sunday {
			continue
		}
		if date.Before(weekendStart) {
			continue
		}
		totalReadings += len(session.Readings)
		totalEarnings = totalEarnings.Add(sessionEarnings(session))
	}

	earnings := totalEarnings.InexactFloat64()
	if earnings >= 500 && earnings < 1000 {
		remaining := decimal.NewFromInt(1000).Sub(totalEarnings)
		n.sink.Notify(ctx, "Weekend Goal",
			fmt.Sprintf("$%s earned! $%s to reach $1000 goal!", totalEarnings.StringFixed(2), remaining.StringFixed(2)))
	} else if earnings >= 1000 {
		n.sink.Notify(ctx, "Weekend Goal",
			fmt.Sprintf("Amazing! $%s earned this weekend!", totalEarnings.StringFixed(2)))
	}

	if totalReadings >= 10 && totalReadings < 15 {
		n.sink.Notify(ctx, "Reading Goal",
			fmt.Sprintf("%d readings done! %d more to reach 15!", totalReadings, 15-totalReadings))
	} else if totalReadings >= 15 {
		n.sink.Notify(ctx, "Reading Goal",
			fmt.Sprintf("Fantastic! %d readings this weekend!", totalReadings))
	}
}

func (n *Notifier) checkBestDay(ctx context.Context, sessions []models.Session) {
	dayEarnings := make(map[time.Weekday][]decimal.Decimal)
	for _, session := range sessions {
		if len(session.Readings) == 0 {
			continue
		}
		weekday, ok := models.SessionWeekday(session.SessionDate)
		if !ok {
			continue
		}
		dayEarnings[weekday] = append(dayEarnings[weekday], sessionEarnings(session))
	}

	var bestDay time.Weekday
	bestAverage := decimal.Zero
	found := false
	for weekday := time.Sunday; weekday <= time.Saturday; weekday++ {
		earnings := dayEarnings[weekday]
		if len(earnings) < 2 {
			continue
		}
		total := decimal.Zero
		for _, e := range earnings {
			total = total.Add(e)
		}
		average := total.DivRound(decimal.NewFromInt(int64(len(earnings))), 4)
		if average.GreaterThan(bestAverage) {
			bestAverage = average
			bestDay = weekday
			found = true
		}
	}
	if !found {
		return
	}
	n.sink.Notify(ctx, "Best Day Alert",
		fmt.Sprintf("%s is your highest earning day - $%s average!", bestDay, bestAverage.StringFixed(2)))
}

func averageTip(sessions []models.Session) float64 {
	totalTips := 0.0
	totalReadings := 0
	for _, session := range sessions {
		for _, reading := range session.Readings {
			totalReadings++
			if reading.Tip != nil {
				totalTips += *reading.Tip
			}
		}
	}
	if totalReadings == 0 {
		return 0
	}
	return totalTips / float64(totalReadings)
}

func (n *Notifier) checkTipTrends(ctx context.Context, sessions []models.Session) {
	if len(sessions) < 13 {
		return
	}
	recent := sessions[:10]
	older := sessions[10:]
	if len(older) > 10 {
		older = older[:10]
	}
	if len(older) < 3 {
		return
	}

	recentAvg := averageTip(recent)
	olderAvg := averageTip(older)
	if olderAvg == 0 {
		return
	}

	change := (recentAvg - olderAvg) / olderAvg * 100
	magnitude := change
	if magnitude < 0 {
		magnitude = -magnitude
	}
	if magnitude < 15 {
		return
	}

	trend := "increased"
	if change < 0 {
		trend = "decreased"
	}
	n.sink.Notify(ctx, "Tip Trends",
		fmt.Sprintf("Your average tip %s %.1f%% recently!", trend, magnitude))
}

var clockPattern = regexp.MustCompile(`(?i)(\d{1,2}):(\d{2})\s*(AM|PM)`)

// parseHour extracts the hour-of-day from a reading's display timestamp.
func parseHour(timestamp string) (int, bool) {
	match := clockPattern.FindStringSubmatch(models.DisplayTime(timestamp))
	if match == nil {
		return 0, false
	}
	hour := 0
	fmt.Sscanf(match[1], "%d", &hour)
	period := strings.ToUpper(match[3])
	if period == "PM" && hour != 12 {
		hour += 12
	}
	if period == "AM" && hour == 12 {
		hour = 0
	}
	return hour, true
}

func (n *Notifier) checkPeakTimes(ctx context.Context, sessions []models.Session) {
	timeSlots := make(map[int]int)
	totalReadings := 0
	for _, session := range sessions {
		for _, reading := range session.Readings {
			totalReadings++
			if hour, ok := parseHour(reading.Timestamp); ok {
				timeSlots[hour]++
			}
		}
	}
	if totalReadings < 20 || len(timeSlots) == 0 {
		return
	}

	peakHour, peakCount := -1, 0
	for hour := 0; hour < 24; hour++ {
		if timeSlots[hour] > peakCount {
			peakHour = hour
			peakCount = timeSlots[hour]
		}
	}

	peakPercentage := float64(peakCount) / float64(totalReadings) * 100
	if peakPercentage < 20 {
		return
	}
	n.sink.Notify(ctx, "Peak Time Alert",
		fmt.Sprintf("%d:00-%d:00 is your busiest time - %.1f%% of readings!", peakHour, peakHour+1, peakPercentage))
}
