package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"claude-quota-alerts/internal/tier"
	"claude-quota-alerts/internal/usage"
)

type recordingNotifier struct {
	mu    sync.Mutex
	notes []Notification
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, note Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, note)
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notes)
}

func snapshotAt(five, weekly float64) usage.Snapshot {
	return usage.Snapshot{
		FiveHourPercent: decimal.NewFromFloat(five),
		WeeklyPercent:   decimal.NewFromFloat(weekly),
		CapturedAt:      time.Now().UTC(),
	}
}

func classifierForTest(t *testing.T) tier.Classifier {
	t.Helper()
	c, err := tier.NewClassifier(0.70, 0.85, 0.95)
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	return c
}

func currentTierFunc(c tier.Classifier, snap usage.Snapshot) func(usage.Dimension) tier.Tier {
	return func(dim usage.Dimension) tier.Tier {
		return c.TierOf(snap.Percent(dim))
	}
}

func crossing(dim usage.Dimension, from, to tier.Tier, pct float64) tier.Crossing {
	return tier.Crossing{
		Dimension: dim,
		From:      from,
		To:        to,
		Percent:   decimal.NewFromFloat(pct),
		At:        time.Now().UTC(),
	}
}

func TestDispatcherFiltersTiers(t *testing.T) {
	rec := &recordingNotifier{}
	d := NewDispatcher([]Notifier{rec}, []tier.Tier{tier.Danger, tier.Critical}, testLogger())
	c := classifierForTest(t)

	snap := snapshotAt(72, 10)
	d.Dispatch(context.Background(), snap,
		[]tier.Crossing{crossing(usage.DimensionFiveHour, tier.Healthy, tier.Warning, 72)},
		currentTierFunc(c, snap))

	if rec.count() != 0 {
		t.Fatalf("warning crossing must not fire with default tiers, got %d notifications", rec.count())
	}
}

func TestDispatcherDeduplicatesByTier(t *testing.T) {
	rec := &recordingNotifier{}
	d := NewDispatcher([]Notifier{rec}, []tier.Tier{tier.Danger, tier.Critical}, testLogger())
	c := classifierForTest(t)

	// 86 -> danger fires once.
	snap := snapshotAt(86, 10)
	events := []tier.Crossing{crossing(usage.DimensionFiveHour, tier.Healthy, tier.Danger, 86)}
	d.Dispatch(context.Background(), snap, events, currentTierFunc(c, snap))
	if rec.count() != 1 {
		t.Fatalf("expected 1 notification, got %d", rec.count())
	}

	// Oscillation back into danger stays quiet.
	snap = snapshotAt(87, 10)
	events = []tier.Crossing{crossing(usage.DimensionFiveHour, tier.Warning, tier.Danger, 87)}
	d.Dispatch(context.Background(), snap, events, currentTierFunc(c, snap))
	if rec.count() != 1 {
		t.Fatalf("repeated danger crossing should be de-duplicated, got %d", rec.count())
	}

	// Escalation to critical still fires.
	snap = snapshotAt(96, 10)
	events = []tier.Crossing{crossing(usage.DimensionFiveHour, tier.Danger, tier.Critical, 96)}
	d.Dispatch(context.Background(), snap, events, currentTierFunc(c, snap))
	if rec.count() != 2 {
		t.Fatalf("critical escalation should fire, got %d", rec.count())
	}
}

func TestDispatcherRearmsAfterReset(t *testing.T) {
	rec := &recordingNotifier{}
	d := NewDispatcher([]Notifier{rec}, []tier.Tier{tier.Danger, tier.Critical}, testLogger())
	c := classifierForTest(t)

	snap := snapshotAt(86, 10)
	d.Dispatch(context.Background(), snap,
		[]tier.Crossing{crossing(usage.DimensionFiveHour, tier.Healthy, tier.Danger, 86)},
		currentTierFunc(c, snap))

	// Window reset drops the dimension to healthy: no events, re-arms.
	snap = snapshotAt(5, 10)
	d.Dispatch(context.Background(), snap, nil, currentTierFunc(c, snap))

	snap = snapshotAt(86, 10)
	d.Dispatch(context.Background(), snap,
		[]tier.Crossing{crossing(usage.DimensionFiveHour, tier.Healthy, tier.Danger, 86)},
		currentTierFunc(c, snap))

	if rec.count() != 2 {
		t.Fatalf("crossing after reset should fire again, got %d", rec.count())
	}
}

func TestDispatcherTracksDimensionsIndependently(t *testing.T) {
	rec := &recordingNotifier{}
	d := NewDispatcher([]Notifier{rec}, []tier.Tier{tier.Danger, tier.Critical}, testLogger())
	c := classifierForTest(t)

	snap := snapshotAt(86, 96)
	d.Dispatch(context.Background(), snap, []tier.Crossing{
		crossing(usage.DimensionFiveHour, tier.Healthy, tier.Danger, 86),
		crossing(usage.DimensionWeekly, tier.Healthy, tier.Critical, 96),
	}, currentTierFunc(c, snap))

	if rec.count() != 2 {
		t.Fatalf("expected one notification per dimension, got %d", rec.count())
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.notes[0].Dimension != usage.DimensionFiveHour || rec.notes[1].Dimension != usage.DimensionWeekly {
		t.Fatalf("order = %s,%s", rec.notes[0].Dimension, rec.notes[1].Dimension)
	}
	if rec.notes[1].ResetsAt.IsZero() && !snap.WeeklyResetsAt.IsZero() {
		t.Error("reset time should be carried into the notification")
	}
}

func TestDispatcherSwallowsNotifierErrors(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("delivery down")}
	rec := &recordingNotifier{}
	d := NewDispatcher([]Notifier{failing, rec}, []tier.Tier{tier.Danger, tier.Critical}, testLogger())
	c := classifierForTest(t)

	snap := snapshotAt(86, 10)
	// Must not panic or abort fan-out.
	d.Dispatch(context.Background(), snap,
		[]tier.Crossing{crossing(usage.DimensionFiveHour, tier.Healthy, tier.Danger, 86)},
		currentTierFunc(c, snap))

	if rec.count() != 1 {
		t.Fatalf("second notifier should still be invoked, got %d", rec.count())
	}
}
