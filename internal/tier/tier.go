package tier

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"claude-quota-alerts/internal/usage"
)

// Tier is an ordered severity level derived from a usage percentage.
type Tier int

const (
	Healthy Tier = iota
	Warning
	Danger
	Critical
)

func (t Tier) String() string {
	switch t {
	case Healthy:
		return "healthy"
	case Warning:
		return "warning"
	case Danger:
		return "danger"
	case Critical:
		return "critical"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// ParseTier maps a config string to a Tier.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "healthy":
		return Healthy, nil
	case "warning":
		return Warning, nil
	case "danger":
		return Danger, nil
	case "critical":
		return Critical, nil
	}
	return Healthy, fmt.Errorf("unknown tier %q", s)
}

// Crossing is an upward tier transition observed between two consecutive
// snapshots of one dimension.
type Crossing struct {
	Dimension usage.Dimension
	From      Tier
	To        Tier
	Percent   decimal.Decimal
	At        time.Time
}

// Classifier maps percentages to tiers. It is pure: no state, no side
// effects. Boundaries are inclusive on the lower edge of each tier.
type Classifier struct {
	warning  decimal.Decimal
	danger   decimal.Decimal
	critical decimal.Decimal
}

// NewClassifier builds a classifier from fractional thresholds in (0,1],
// which must be strictly ascending. They are held on the percent scale to
// match API utilization values.
func NewClassifier(warning, danger, critical float64) (Classifier, error) {
	if !(warning > 0 && warning < danger && danger < critical && critical <= 1) {
		return Classifier{}, fmt.Errorf("thresholds must be ascending fractions in (0,1], got %v/%v/%v", warning, danger, critical)
	}
	hundred := decimal.NewFromInt(100)
	return Classifier{
		warning:  decimal.NewFromFloat(warning).Mul(hundred),
		danger:   decimal.NewFromFloat(danger).Mul(hundred),
		critical: decimal.NewFromFloat(critical).Mul(hundred),
	}, nil
}

// TierOf classifies one percentage (0-100 scale).
func (c Classifier) TierOf(percent decimal.Decimal) Tier {
	switch {
	case percent.GreaterThanOrEqual(c.critical):
		return Critical
	case percent.GreaterThanOrEqual(c.danger):
		return Danger
	case percent.GreaterThanOrEqual(c.warning):
		return Warning
	default:
		return Healthy
	}
}

// Crossings compares two consecutive snapshots and returns the upward tier
// transitions, five-hour dimension first. An absent previous snapshot is
// treated as healthy, so a first observation already past a threshold reports
// a crossing. Downward transitions are silent.
func (c Classifier) Crossings(prev *usage.Snapshot, curr usage.Snapshot) []Crossing {
	var events []Crossing
	for _, dim := range usage.Dimensions {
		from := Healthy
		if prev != nil {
			from = c.TierOf(prev.Percent(dim))
		}
		to := c.TierOf(curr.Percent(dim))
		if to > from {
			events = append(events, Crossing{
				Dimension: dim,
				From:      from,
				To:        to,
				Percent:   curr.Percent(dim),
				At:        curr.CapturedAt,
			})
		}
	}
	return events
}
