package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultReadingPrice is the fallback base price for a session.
const DefaultReadingPrice = 40

// Reading is one billable event nested inside a session. Price and Tip are
// pointers so that an absent value can be told apart from an explicit zero:
// a nil price falls back to the session base price, a nil tip counts as zero.
type Reading struct {
	Timestamp string   `json:"timestamp"`
	Price     *float64 `json:"price"`
	Tip       *float64 `json:"tip"`
	Payment   string   `json:"payment,omitempty"`
	Source    string   `json:"source,omitempty"`
}

// EffectiveCharge returns price (or the base price when unset) plus tip.
func (r Reading) EffectiveCharge(basePrice float64) decimal.Decimal {
	price := basePrice
	if r.Price != nil {
		price = *r.Price
	}
	charge := decimal.NewFromFloat(price)
	if r.Tip != nil {
		charge = charge.Add(decimal.NewFromFloat(*r.Tip))
	}
	return charge
}

// Session is one persisted tracking engagement: one user, one location, one date.
type Session struct {
	ID           string    `db:"id" json:"id"`
	UserName     string    `db:"user_name" json:"user_name"`
	Location     string    `db:"location" json:"location"`
	SessionDate  string    `db:"session_date" json:"session_date"`
	ReadingPrice float64   `db:"reading_price" json:"reading_price"`
	Readings     []Reading `db:"readings" json:"readings"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Totals holds derived money stats for a set of readings.
type Totals struct {
	Count      int             `json:"count"`
	BaseTotal  decimal.Decimal `json:"base_total"`
	TipsTotal  decimal.Decimal `json:"tips_total"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

// ComputeTotals recomputes totals from scratch. A nil price falls back to
// basePrice, a nil tip counts as zero. An empty list yields all-zero totals.
func ComputeTotals(readings []Reading, basePrice float64) Totals {
	totals := Totals{
		Count:      len(readings),
		BaseTotal:  decimal.Zero,
		TipsTotal:  decimal.Zero,
		GrandTotal: decimal.Zero,
	}
	for _, reading := range readings {
		price := basePrice
		if reading.Price != nil {
			price = *reading.Price
		}
		totals.BaseTotal = totals.BaseTotal.Add(decimal.NewFromFloat(price))
		if reading.Tip != nil {
			totals.TipsTotal = totals.TipsTotal.Add(decimal.NewFromFloat(*reading.Tip))
		}
	}
	totals.GrandTotal = totals.BaseTotal.Add(totals.TipsTotal)
	return totals
}

// Totals returns the session's derived money stats.
func (s *Session) Totals() Totals {
	return ComputeTotals(s.Readings, s.ReadingPrice)
}
