package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/shopspring/decimal"

	"tarottracker/internal/models"
)

// Records is the store surface the exporter needs.
type Records interface {
	ListByUser(ctx context.Context, user string) ([]models.Session, error)
}

// Exporter renders a user's session history as CSV, newest date first.
type Exporter struct {
	records Records
}

// NewExporter returns exporter.
func NewExporter(records Records) *Exporter {
	return &Exporter{records: records}
}

var header = []string{"Date", "User", "Location", "Day", "Reading Price", "Readings Count", "Base Total", "Tips Total", "Grand Total"}

// WriteCSV streams the export. The base total uses the historical export
// formula: reading count times the session price, ignoring per-reading
// price overrides.
func (e *Exporter) WriteCSV(ctx context.Context, user string, w io.Writer) error {
	if user == "" {
		return fmt.Errorf("export: user is required")
	}
	sessions, err := e.records.ListByUser(ctx, user)
	if err != nil {
		return fmt.Errorf("export: fetch sessions: %w", err)
	}
	if len(sessions) == 0 {
		return fmt.Errorf("export: no data for %s", user)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, session := range sessions {
		count := len(session.Readings)
		baseTotal := decimal.NewFromFloat(session.ReadingPrice).Mul(decimal.NewFromInt(int64(count)))
		tipsTotal := decimal.Zero
		for _, reading := range session.Readings {
			if reading.Tip != nil {
				tipsTotal = tipsTotal.Add(decimal.NewFromFloat(*reading.Tip))
			}
		}
		grandTotal := baseTotal.Add(tipsTotal)

		record := []string{
			session.SessionDate,
			session.UserName,
			session.Location,
			session.SessionDate,
			strconv.FormatFloat(session.ReadingPrice, 'f', -1, 64),
			strconv.Itoa(count),
			baseTotal.StringFixed(2),
			tipsTotal.StringFixed(2),
			grandTotal.StringFixed(2),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
