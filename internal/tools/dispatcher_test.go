package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tarottracker/internal/models"
	"tarottracker/internal/repository"
)

type fakeRecords struct {
	sessions   []models.Session
	locations  []string
	lastFilter repository.Filter
}

func (f *fakeRecords) ListFiltered(_ context.Context, filter repository.Filter) ([]models.Session, error) {
	f.lastFilter = filter
	out := f.sessions
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return append([]models.Session(nil), out...), nil
}

func (f *fakeRecords) DistinctLocations(_ context.Context, _, match string) ([]string, error) {
	f.lastFilter = repository.Filter{Location: match}
	return f.locations, nil
}

func floatPtr(v float64) *float64 { return &v }

// 2025-01-17 and 2025-01-24 are Fridays, 2025-01-18 is a Saturday.
func lunaSessions() []models.Session {
	return []models.Session{
		{
			UserName:     "Luna",
			Location:     "Moonlight Cafe",
			SessionDate:  "2025-01-17",
			ReadingPrice: 40,
			Readings: []models.Reading{
				{Tip: floatPtr(5), Payment: "Cash"},
				{Price: floatPtr(50), Tip: floatPtr(10), Payment: "Venmo", Source: "Referral"},
			},
		},
		{
			UserName:    "Luna",
			Location:    "Mystic Market",
			SessionDate: "2025-01-18",
			Readings: []models.Reading{
				{Payment: "Cash"},
			},
		},
		{
			UserName:     "Luna",
			Location:     "Moonlight Cafe",
			SessionDate:  "2025-01-24",
			ReadingPrice: 40,
			Readings: []models.Reading{
				{Tip: floatPtr(20), Payment: "Venmo", Source: "Referral"},
			},
		},
	}
}

func newTestDispatcher(records *fakeRecords) *Dispatcher {
	return NewDispatcher(records, zap.NewNop())
}

func callArgs(t *testing.T, args map[string]interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(args)
	require.NoError(t, err)
	return data
}

func TestHandleToolsList(t *testing.T) {
	dispatcher := newTestDispatcher(&fakeRecords{})

	resp := dispatcher.Handle(context.Background(), Request{JSONRPC: "2.0", ID: 1, Method: "tools/list"})

	require.Nil(t, resp.Error)
	result, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	definitions, ok := result["tools"].([]Definition)
	require.True(t, ok)
	require.Len(t, definitions, 7)
	assert.Equal(t, "list_sessions", definitions[0].Name)
	assert.Equal(t, "get_recent_sessions", definitions[6].Name)
}

func TestHandleUnknownMethod(t *testing.T) {
	dispatcher := newTestDispatcher(&fakeRecords{})

	resp := dispatcher.Handle(context.Background(), Request{JSONRPC: "2.0", ID: 7, Method: "resources/list"})

	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
	assert.Equal(t, "Unknown method: resources/list", resp.Error.Message)
	assert.Equal(t, 7, resp.ID)
}

func TestHandleUnknownTool(t *testing.T) {
	dispatcher := newTestDispatcher(&fakeRecords{})

	params, err := json.Marshal(callParams{Name: "read_palms", Arguments: callArgs(t, map[string]interface{}{"user_name": "Luna"})})
	require.NoError(t, err)
	resp := dispatcher.Handle(context.Background(), Request{JSONRPC: "2.0", ID: 2, Method: "tools/call", Params: params})

	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
	assert.Equal(t, "Unknown tool: read_palms", resp.Error.Message)
}

func TestCallRawRequiresUserName(t *testing.T) {
	dispatcher := newTestDispatcher(&fakeRecords{})

	_, err := dispatcher.CallRaw(context.Background(), "list_sessions", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user_name is required")
}

func TestListSessionsDayOfWeekFilter(t *testing.T) {
	dispatcher := newTestDispatcher(&fakeRecords{sessions: lunaSessions()})

	result, err := dispatcher.CallRaw(context.Background(), "list_sessions",
		callArgs(t, map[string]interface{}{"user_name": "Luna", "day_of_week": "friday"}))
	require.NoError(t, err)

	rows := result.(map[string]interface{})["sessions"].([]sessionRow)
	require.Len(t, rows, 2)
	assert.Equal(t, "2025-01-17", rows[0].SessionDate)
	assert.Equal(t, 105.0, rows[0].GrandTotal)
	assert.Equal(t, "2025-01-24", rows[1].SessionDate)
	assert.Equal(t, 60.0, rows[1].GrandTotal)
}

func TestListReadingsPaymentFilter(t *testing.T) {
	dispatcher := newTestDispatcher(&fakeRecords{sessions: lunaSessions()})

	result, err := dispatcher.CallRaw(context.Background(), "list_readings",
		callArgs(t, map[string]interface{}{"user_name": "Luna", "payment": "venmo"}))
	require.NoError(t, err)

	rows := result.(map[string]interface{})["readings"].([]readingRow)
	require.Len(t, rows, 2)
	assert.Equal(t, 50.0, rows[0].Price)
	assert.Equal(t, 10.0, rows[0].Tip)
	assert.Equal(t, 40.0, rows[1].Price)
	assert.Equal(t, 20.0, rows[1].Tip)
}

func TestSearchLocations(t *testing.T) {
	records := &fakeRecords{locations: []string{"Moonlight Cafe", "Mystic Market"}}
	dispatcher := newTestDispatcher(records)

	result, err := dispatcher.CallRaw(context.Background(), "search_locations",
		callArgs(t, map[string]interface{}{"user_name": "Luna", "query": "m"}))
	require.NoError(t, err)

	locations := result.(map[string]interface{})["locations"].([]string)
	assert.Equal(t, []string{"Moonlight Cafe", "Mystic Market"}, locations)
	assert.Equal(t, "m", records.lastFilter.Location)
}

func TestSearchLocationsEmptyResult(t *testing.T) {
	dispatcher := newTestDispatcher(&fakeRecords{})

	result, err := dispatcher.CallRaw(context.Background(), "search_locations",
		callArgs(t, map[string]interface{}{"user_name": "Luna"}))
	require.NoError(t, err)

	locations := result.(map[string]interface{})["locations"].([]string)
	assert.NotNil(t, locations)
	assert.Empty(t, locations)
}

func TestAggregateReadingsUngrouped(t *testing.T) {
	dispatcher := newTestDispatcher(&fakeRecords{sessions: lunaSessions()})

	result, err := dispatcher.CallRaw(context.Background(), "aggregate_readings",
		callArgs(t, map[string]interface{}{"user_name": "Luna"}))
	require.NoError(t, err)

	rows := result.(map[string]interface{})["results"].([]sessionRow)
	require.Len(t, rows, 3)
}

func TestAggregateReadingsGroupByLocation(t *testing.T) {
	dispatcher := newTestDispatcher(&fakeRecords{sessions: lunaSessions()})

	result, err := dispatcher.CallRaw(context.Background(), "aggregate_readings",
		callArgs(t, map[string]interface{}{"user_name": "Luna", "group_by": "location"}))
	require.NoError(t, err)

	rows := result.(map[string]interface{})["results"].([]groupRow)
	require.Len(t, rows, 2)
	assert.Equal(t, "Moonlight Cafe", rows[0].Group)
	assert.Equal(t, 2, rows[0].Sessions)
	assert.Equal(t, 3, rows[0].ReadingCount)
	assert.Equal(t, 165.0, rows[0].GrandTotal)
	assert.Equal(t, "Mystic Market", rows[1].Group)
	assert.Equal(t, 0.0, rows[1].GrandTotal)
}

func TestAggregateReadingsGroupByDayOfWeekAvg(t *testing.T) {
	dispatcher := newTestDispatcher(&fakeRecords{sessions: lunaSessions()})

	result, err := dispatcher.CallRaw(context.Background(), "aggregate_readings",
		callArgs(t, map[string]interface{}{"user_name": "Luna", "group_by": "day_of_week", "aggregate": "avg"}))
	require.NoError(t, err)

	rows := result.(map[string]interface{})["results"].([]groupRow)
	require.Len(t, rows, 2)
	assert.Equal(t, "Friday", rows[0].Group)
	assert.Equal(t, 2, rows[0].Sessions)
	assert.Equal(t, 82.5, rows[0].GrandTotal)
	assert.Equal(t, "Saturday", rows[1].Group)
}

func TestAggregateReadingsUnsupportedGroupBy(t *testing.T) {
	dispatcher := newTestDispatcher(&fakeRecords{sessions: lunaSessions()})

	_, err := dispatcher.CallRaw(context.Background(), "aggregate_readings",
		callArgs(t, map[string]interface{}{"user_name": "Luna", "group_by": "moon_phase"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported group_by")
}

func TestSessionSummaryLegacyFormula(t *testing.T) {
	dispatcher := newTestDispatcher(&fakeRecords{sessions: lunaSessions()})

	result, err := dispatcher.CallRaw(context.Background(), "get_session_summary",
		callArgs(t, map[string]interface{}{"user_name": "Luna", "start_date": "2025-01-01", "end_date": "2025-01-31"}))
	require.NoError(t, err)

	summary := result.(map[string]interface{})
	assert.Equal(t, 3, summary["sessions_count"])
	assert.Equal(t, 4, summary["total_readings"])
	// the zero-price session falls back to the default 40 per reading
	assert.Equal(t, 205.0, summary["total_earnings"])
	assert.Equal(t, "68.33", summary["average_per_session"])
	dateRange := summary["date_range"].(map[string]string)
	assert.Equal(t, "2025-01-01", dateRange["start_date"])
}

func TestTopLocationsOrderAndLimit(t *testing.T) {
	dispatcher := newTestDispatcher(&fakeRecords{sessions: lunaSessions()})

	result, err := dispatcher.CallRaw(context.Background(), "get_top_locations",
		callArgs(t, map[string]interface{}{"user_name": "Luna", "limit": 1}))
	require.NoError(t, err)

	stats := result.(map[string]interface{})["top_locations"].([]locationStats)
	require.Len(t, stats, 1)
	assert.Equal(t, "Moonlight Cafe", stats[0].Location)
	assert.Equal(t, 165.0, stats[0].Earnings)
	assert.Equal(t, 2, stats[0].Sessions)
	assert.Equal(t, 3, stats[0].Readings)
}

func TestRecentSessionsDefaultLimit(t *testing.T) {
	records := &fakeRecords{sessions: lunaSessions()}
	dispatcher := newTestDispatcher(records)

	result, err := dispatcher.CallRaw(context.Background(), "get_recent_sessions",
		callArgs(t, map[string]interface{}{"user_name": "Luna"}))
	require.NoError(t, err)

	assert.Equal(t, 10, records.lastFilter.Limit)
	recent := result.(map[string]interface{})["recent_sessions"].([]recentSession)
	require.Len(t, recent, 3)
	assert.Equal(t, "2025-01-17", recent[0].Date)
	assert.Equal(t, 105.0, recent[0].TotalEarnings)
}
