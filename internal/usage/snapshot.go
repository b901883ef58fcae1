package usage

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Dimension identifies one of the two rate-limit windows the API reports.
type Dimension string

const (
	DimensionFiveHour Dimension = "five_hour"
	DimensionWeekly   Dimension = "weekly"
)

// Dimensions lists the windows in reporting order: five-hour first.
var Dimensions = []Dimension{DimensionFiveHour, DimensionWeekly}

var hundred = decimal.NewFromInt(100)

// Snapshot is one immutable usage observation. Percentages are on the 0-100
// scale as reported by the API. Snapshots are only ever replaced, never
// mutated.
type Snapshot struct {
	FiveHourPercent  decimal.Decimal `json:"five_hour_percent"`
	WeeklyPercent    decimal.Decimal `json:"weekly_percent"`
	FiveHourResetsAt time.Time       `json:"five_hour_resets_at"`
	WeeklyResetsAt   time.Time       `json:"weekly_resets_at"`
	CapturedAt       time.Time       `json:"captured_at"`
}

// Percent returns the utilization for one dimension.
func (s Snapshot) Percent(dim Dimension) decimal.Decimal {
	if dim == DimensionWeekly {
		return s.WeeklyPercent
	}
	return s.FiveHourPercent
}

// ResetsAt returns the window reset time for one dimension.
func (s Snapshot) ResetsAt(dim Dimension) time.Time {
	if dim == DimensionWeekly {
		return s.WeeklyResetsAt
	}
	return s.FiveHourResetsAt
}

// Validate rejects out-of-range percentages. Reset times in the past are
// accepted: the window boundary races the poll and clocks skew.
func (s Snapshot) Validate() error {
	for _, dim := range Dimensions {
		pct := s.Percent(dim)
		if pct.IsNegative() || pct.GreaterThan(hundred) {
			return fmt.Errorf("%s utilization %s outside [0,100]", dim, pct)
		}
	}
	return nil
}
