package handlers

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"tarottracker/internal/export"
)

// NewExportHandler returns GET /export.csv?user=.
func NewExportHandler(exporter *export.Exporter, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := r.URL.Query().Get("user")
		if user == "" {
			writeError(w, http.StatusBadRequest, "user is required")
			return
		}

		filename := fmt.Sprintf("tarot-sessions-%s.csv", time.Now().UTC().Format("2006-01-02"))
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		if err := exporter.WriteCSV(r.Context(), user, w); err != nil {
			logger.Error("export failed", zap.String("user", user), zap.Error(err))
		}
	}
}
