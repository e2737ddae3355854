package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"tarottracker/internal/models"
	"tarottracker/internal/repository"
)

// queryArgs is the shared argument shape; each tool reads the fields it
// documents in its schema and ignores the rest.
type queryArgs struct {
	UserName  string `json:"user_name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Location  string `json:"location"`
	DayOfWeek string `json:"day_of_week"`
	Payment   string `json:"payment"`
	Source    string `json:"source"`
	Query     string `json:"query"`
	GroupBy   string `json:"group_by"`
	Aggregate string `json:"aggregate"`
	Limit     int    `json:"limit"`
}

func objectSchema(properties map[string]string, required ...string) map[string]interface{} {
	props := make(map[string]interface{}, len(properties))
	for name, description := range properties {
		propType := "string"
		if name == "limit" {
			propType = "number"
		}
		props[name] = map[string]interface{}{"type": propType, "description": description}
	}
	if len(required) == 0 {
		required = []string{"user_name"}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// fetchSessions pulls the user's rows through the store-side filters, then
// applies the day-of-week filter by recomputing the weekday from each row's
// date: the backend cannot filter on a derived field.
func (d *Dispatcher) fetchSessions(ctx context.Context, args queryArgs) ([]models.Session, error) {
	sessions, err := d.records.ListFiltered(ctx, repository.Filter{
		UserName:  args.UserName,
		StartDate: args.StartDate,
		EndDate:   args.EndDate,
		Location:  args.Location,
	})
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if args.DayOfWeek == "" {
		return sessions, nil
	}

	filtered := sessions[:0]
	for _, session := range sessions {
		weekday, ok := models.SessionWeekday(session.SessionDate)
		if ok && strings.EqualFold(weekday.String(), args.DayOfWeek) {
			filtered = append(filtered, session)
		}
	}
	return filtered, nil
}

func round2(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// sessionRow is the per-session stat record shared by list and aggregate tools.
type sessionRow struct {
	SessionDate  string  `json:"session_date"`
	Location     string  `json:"location"`
	ReadingCount int     `json:"reading_count"`
	BaseTotal    float64 `json:"base_total"`
	TipsTotal    float64 `json:"tips_total"`
	GrandTotal   float64 `json:"grand_total"`
}

func sessionRows(sessions []models.Session, limit int) []sessionRow {
	rows := make([]sessionRow, 0, len(sessions))
	for _, session := range sessions {
		totals := session.Totals()
		rows = append(rows, sessionRow{
			SessionDate:  session.SessionDate,
			Location:     session.Location,
			ReadingCount: totals.Count,
			BaseTotal:    round2(totals.BaseTotal),
			TipsTotal:    round2(totals.TipsTotal),
			GrandTotal:   round2(totals.GrandTotal),
		})
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

func listSessionsDefinition() Definition {
	return Definition{
		Name:        "list_sessions",
		Description: "List a user's sessions with per-session totals",
		InputSchema: objectSchema(map[string]string{
			"user_name":   "User name",
			"start_date":  "Start date (YYYY-MM-DD), inclusive",
			"end_date":    "End date (YYYY-MM-DD), inclusive",
			"location":    "Location substring filter",
			"day_of_week": "Weekday name filter",
			"limit":       "Maximum number of sessions to return",
		}),
	}
}

func (d *Dispatcher) listSessions(ctx context.Context, args queryArgs) (interface{}, error) {
	sessions, err := d.fetchSessions(ctx, args)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"sessions": sessionRows(sessions, args.Limit)}, nil
}

type readingRow struct {
	SessionDate string   `json:"session_date"`
	Location    string   `json:"location"`
	Timestamp   string   `json:"timestamp"`
	DisplayTime string   `json:"display_time"`
	Price       float64  `json:"price"`
	Tip         float64  `json:"tip"`
	Payment     string   `json:"payment,omitempty"`
	Source      string   `json:"source,omitempty"`
}

func listReadingsDefinition() Definition {
	return Definition{
		Name:        "list_readings",
		Description: "Flatten a user's readings across sessions, with payment and source filters",
		InputSchema: objectSchema(map[string]string{
			"user_name":   "User name",
			"start_date":  "Start date (YYYY-MM-DD), inclusive",
			"end_date":    "End date (YYYY-MM-DD), inclusive",
			"location":    "Location substring filter",
			"day_of_week": "Weekday name filter",
			"payment":     "Payment method filter",
			"source":      "Source filter",
			"limit":       "Maximum number of readings to return",
		}),
	}
}

func (d *Dispatcher) listReadings(ctx context.Context, args queryArgs) (interface{}, error) {
	sessions, err := d.fetchSessions(ctx, args)
	if err != nil {
		return nil, err
	}

	rows := []readingRow{}
	for _, session := range sessions {
		for _, reading := range session.Readings {
			if args.Payment != "" && !strings.EqualFold(reading.Payment, args.Payment) {
				continue
			}
			if args.Source != "" && !strings.EqualFold(reading.Source, args.Source) {
				continue
			}
			price := session.ReadingPrice
			if reading.Price != nil {
				price = *reading.Price
			}
			tip := 0.0
			if reading.Tip != nil {
				tip = *reading.Tip
			}
			rows = append(rows, readingRow{
				SessionDate: session.SessionDate,
				Location:    session.Location,
				Timestamp:   reading.Timestamp,
				DisplayTime: models.DisplayTime(reading.Timestamp),
				Price:       price,
				Tip:         tip,
				Payment:     reading.Payment,
				Source:      reading.Source,
			})
		}
	}
	if args.Limit > 0 && len(rows) > args.Limit {
		rows = rows[:args.Limit]
	}
	return map[string]interface{}{"readings": rows}, nil
}

func searchLocationsDefinition() Definition {
	return Definition{
		Name:        "search_locations",
		Description: "Distinct location values matching a substring",
		InputSchema: objectSchema(map[string]string{
			"user_name": "User name",
			"query":     "Location substring to match",
		}),
	}
}

func (d *Dispatcher) searchLocations(ctx context.Context, args queryArgs) (interface{}, error) {
	match := args.Query
	if match == "" {
		match = args.Location
	}
	locations, err := d.records.DistinctLocations(ctx, args.UserName, match)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if locations == nil {
		locations = []string{}
	}
	return map[string]interface{}{"locations": locations}, nil
}

type groupRow struct {
	Group        string  `json:"group"`
	Sessions     int     `json:"sessions"`
	ReadingCount int     `json:"reading_count"`
	BaseTotal    float64 `json:"base_total"`
	TipsTotal    float64 `json:"tips_total"`
	GrandTotal   float64 `json:"grand_total"`
}

func aggregateReadingsDefinition() Definition {
	return Definition{
		Name:        "aggregate_readings",
		Description: "Per-session reading stats, optionally grouped by location or day_of_week",
		InputSchema: objectSchema(map[string]string{
			"user_name":   "User name",
			"start_date":  "Start date (YYYY-MM-DD), inclusive",
			"end_date":    "End date (YYYY-MM-DD), inclusive",
			"location":    "Location substring filter",
			"day_of_week": "Weekday name filter",
			"group_by":    "Optional grouping: location or day_of_week",
			"aggregate":   "Group aggregate: sum (default) or avg",
			"limit":       "Maximum number of result rows",
		}),
	}
}

func (d *Dispatcher) aggregateReadings(ctx context.Context, args queryArgs) (interface{}, error) {
	sessions, err := d.fetchSessions(ctx, args)
	if err != nil {
		return nil, err
	}

	groupBy := strings.ToLower(strings.TrimSpace(args.GroupBy))
	if groupBy == "" {
		return map[string]interface{}{"results": sessionRows(sessions, args.Limit)}, nil
	}
	if groupBy != "location" && groupBy != "day_of_week" {
		return nil, fmt.Errorf("unsupported group_by: %s", args.GroupBy)
	}

	type bucket struct {
		sessions int
		count    int
		base     decimal.Decimal
		tips     decimal.Decimal
	}
	buckets := make(map[string]*bucket)
	order := []string{}
	for _, session := range sessions {
		var key string
		if groupBy == "location" {
			key = session.Location
			if key == "" {
				key = "Unknown"
			}
		} else {
			weekday, ok := models.SessionWeekday(session.SessionDate)
			if !ok {
				continue
			}
			key = weekday.String()
		}
		entry, ok := buckets[key]
		if !ok {
			entry = &bucket{base: decimal.Zero, tips: decimal.Zero}
			buckets[key] = entry
			order = append(order, key)
		}
		totals := session.Totals()
		entry.sessions++
		entry.count += totals.Count
		entry.base = entry.base.Add(totals.BaseTotal)
		entry.tips = entry.tips.Add(totals.TipsTotal)
	}

	rows := make([]groupRow, 0, len(order))
	for _, key := range order {
		entry := buckets[key]
		base, tips := entry.base, entry.tips
		if strings.EqualFold(args.Aggregate, "avg") && entry.sessions > 0 {
			divisor := decimal.NewFromInt(int64(entry.sessions))
			base = base.DivRound(divisor, 2)
			tips = tips.DivRound(divisor, 2)
		}
		rows = append(rows, groupRow{
			Group:        key,
			Sessions:     entry.sessions,
			ReadingCount: entry.count,
			BaseTotal:    round2(base),
			TipsTotal:    round2(tips),
			GrandTotal:   round2(base.Add(tips)),
		})
	}
	if args.Limit > 0 && len(rows) > args.Limit {
		rows = rows[:args.Limit]
	}
	return map[string]interface{}{"results": rows}, nil
}

// legacyEarnings mirrors the historical summary formula: a reading's price
// falls back to the session price, and a zero session price falls back to
// the default, because legacy rows stored price as an optional number.
func legacyEarnings(session models.Session) decimal.Decimal {
	basePrice := session.ReadingPrice
	if basePrice == 0 {
		basePrice = models.DefaultReadingPrice
	}
	earnings := decimal.Zero
	for _, reading := range session.Readings {
		earnings = earnings.Add(reading.EffectiveCharge(basePrice))
	}
	return earnings
}

func sessionSummaryDefinition() Definition {
	return Definition{
		Name:        "get_session_summary",
		Description: "Get earnings summary for a user and date range",
		InputSchema: objectSchema(map[string]string{
			"user_name":  "User name",
			"start_date": "Start date (YYYY-MM-DD)",
			"end_date":   "End date (YYYY-MM-DD)",
		}),
	}
}

func (d *Dispatcher) sessionSummary(ctx context.Context, args queryArgs) (interface{}, error) {
	sessions, err := d.fetchSessions(ctx, args)
	if err != nil {
		return nil, err
	}

	totalReadings := 0
	totalEarnings := decimal.Zero
	for _, session := range sessions {
		totalReadings += len(session.Readings)
		totalEarnings = totalEarnings.Add(legacyEarnings(session))
	}

	average := "0"
	if len(sessions) > 0 {
		average = totalEarnings.DivRound(decimal.NewFromInt(int64(len(sessions))), 2).StringFixed(2)
	}
	return map[string]interface{}{
		"user_name":           args.UserName,
		"sessions_count":      len(sessions),
		"total_readings":      totalReadings,
		"total_earnings":      round2(totalEarnings),
		"average_per_session": average,
		"date_range": map[string]string{
			"start_date": args.StartDate,
			"end_date":   args.EndDate,
		},
	}, nil
}

type locationStats struct {
	Location string  `json:"location"`
	Earnings float64 `json:"earnings"`
	Sessions int     `json:"sessions"`
	Readings int     `json:"readings"`
}

func topLocationsDefinition() Definition {
	return Definition{
		Name:        "get_top_locations",
		Description: "Get best performing locations by earnings",
		InputSchema: objectSchema(map[string]string{
			"user_name": "User name",
			"limit":     "Number of locations to return",
		}),
	}
}

func (d *Dispatcher) topLocations(ctx context.Context, args queryArgs) (interface{}, error) {
	sessions, err := d.fetchSessions(ctx, args)
	if err != nil {
		return nil, err
	}

	type bucket struct {
		earnings decimal.Decimal
		sessions int
		readings int
	}
	buckets := make(map[string]*bucket)
	for _, session := range sessions {
		location := session.Location
		if location == "" {
			location = "Unknown"
		}
		entry, ok := buckets[location]
		if !ok {
			entry = &bucket{earnings: decimal.Zero}
			buckets[location] = entry
		}
		entry.sessions++
		entry.readings += len(session.Readings)
		entry.earnings = entry.earnings.Add(legacyEarnings(session))
	}

	stats := make([]locationStats, 0, len(buckets))
	for location, entry := range buckets {
		stats = append(stats, locationStats{
			Location: location,
			Earnings: round2(entry.earnings),
			Sessions: entry.sessions,
			Readings: entry.readings,
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Earnings != stats[j].Earnings {
			return stats[i].Earnings > stats[j].Earnings
		}
		return stats[i].Location < stats[j].Location
	})

	limit := args.Limit
	if limit <= 0 {
		limit = 5
	}
	if len(stats) > limit {
		stats = stats[:limit]
	}
	return map[string]interface{}{"top_locations": stats}, nil
}

type recentSession struct {
	Date          string  `json:"date"`
	Location      string  `json:"location"`
	ReadingsCount int     `json:"readings_count"`
	TotalEarnings float64 `json:"total_earnings"`
}

func recentSessionsDefinition() Definition {
	return Definition{
		Name:        "get_recent_sessions",
		Description: "Get recent sessions for a user",
		InputSchema: objectSchema(map[string]string{
			"user_name": "User name",
			"limit":     "Number of sessions to return",
		}),
	}
}

func (d *Dispatcher) recentSessions(ctx context.Context, args queryArgs) (interface{}, error) {
	limit := args.Limit
	if limit <= 0 {
		limit = 10
	}
	sessions, err := d.records.ListFiltered(ctx, repository.Filter{UserName: args.UserName, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	recent := make([]recentSession, 0, len(sessions))
	for _, session := range sessions {
		recent = append(recent, recentSession{
			Date:          session.SessionDate,
			Location:      session.Location,
			ReadingsCount: len(session.Readings),
			TotalEarnings: round2(legacyEarnings(session)),
		})
	}
	return map[string]interface{}{"recent_sessions": recent}, nil
}
