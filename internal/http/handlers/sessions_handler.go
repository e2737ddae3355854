package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"tarottracker/internal/models"
)

// Records is the store surface the read-only handlers need.
type Records interface {
	ListByUser(ctx context.Context, user string) ([]models.Session, error)
	DistinctUsers(ctx context.Context) ([]string, error)
}

type sessionSummary struct {
	ID           string  `json:"id"`
	Location     string  `json:"location"`
	SessionDate  string  `json:"session_date"`
	DayOfWeek    string  `json:"day_of_week"`
	ReadingCount int     `json:"reading_count"`
	GrandTotal   float64 `json:"grand_total"`
}

// NewSessionsHandler returns GET /api/sessions?user=: the per-session
// summaries that back the load-session picker.
func NewSessionsHandler(records Records, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := r.URL.Query().Get("user")
		if user == "" {
			writeError(w, http.StatusBadRequest, "user is required")
			return
		}

		sessions, err := records.ListByUser(r.Context(), user)
		if err != nil {
			logger.Error("failed to list sessions", zap.String("user", user), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to fetch sessions")
			return
		}

		summaries := make([]sessionSummary, 0, len(sessions))
		for _, session := range sessions {
			totals := session.Totals()
			dayOfWeek := ""
			if weekday, ok := models.SessionWeekday(session.SessionDate); ok {
				dayOfWeek = weekday.String()[:3]
			}
			summaries = append(summaries, sessionSummary{
				ID:           session.ID,
				Location:     session.Location,
				SessionDate:  session.SessionDate,
				DayOfWeek:    dayOfWeek,
				ReadingCount: totals.Count,
				GrandTotal:   totals.GrandTotal.Round(2).InexactFloat64(),
			})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": summaries})
	}
}

// NewUsersHandler returns GET /api/users: the distinct user names for the
// user picker.
func NewUsersHandler(records Records, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := records.DistinctUsers(r.Context())
		if err != nil {
			logger.Error("failed to list users", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to fetch users")
			return
		}
		if users == nil {
			users = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
	}
}
