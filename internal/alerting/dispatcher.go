package alerting

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"claude-quota-alerts/internal/tier"
	"claude-quota-alerts/internal/usage"
)

// Dispatcher fans crossing notifications out to the configured notifiers and
// de-duplicates by tier: a dimension that has already fired for a tier stays
// quiet until it drops back to healthy, then re-arms for the next window.
//
// Notifier failures are logged and swallowed. A missed notification must
// never fail the poll cycle that produced it.
type Dispatcher struct {
	notifiers []Notifier
	fireOn    map[tier.Tier]bool
	logger    zerolog.Logger

	mu       sync.Mutex
	notified map[usage.Dimension]tier.Tier
}

// NewDispatcher builds a dispatcher that fires for the given tiers only.
func NewDispatcher(notifiers []Notifier, fireTiers []tier.Tier, logger zerolog.Logger) *Dispatcher {
	fireOn := make(map[tier.Tier]bool, len(fireTiers))
	for _, t := range fireTiers {
		fireOn[t] = true
	}
	return &Dispatcher{
		notifiers: notifiers,
		fireOn:    fireOn,
		logger:    logger.With().Str("component", "alert_dispatcher").Logger(),
		notified:  make(map[usage.Dimension]tier.Tier),
	}
}

// Dispatch processes the crossings of one poll cycle. snap is the snapshot
// that produced them; currentTier reports the tier each dimension sits at
// after this cycle, used to re-arm dimensions whose usage window has reset.
func (d *Dispatcher) Dispatch(ctx context.Context, snap usage.Snapshot, events []tier.Crossing, currentTier func(usage.Dimension) tier.Tier) {
	d.mu.Lock()
	for _, dim := range usage.Dimensions {
		if currentTier(dim) == tier.Healthy {
			delete(d.notified, dim)
		}
	}

	var fire []tier.Crossing
	for _, ev := range events {
		if !d.fireOn[ev.To] {
			continue
		}
		if d.notified[ev.Dimension] >= ev.To {
			continue
		}
		d.notified[ev.Dimension] = ev.To
		fire = append(fire, ev)
	}
	d.mu.Unlock()

	for _, ev := range fire {
		d.send(ctx, snap, ev)
	}
}

func (d *Dispatcher) send(ctx context.Context, snap usage.Snapshot, ev tier.Crossing) {
	note := Notification{
		Dimension: ev.Dimension,
		From:      ev.From,
		To:        ev.To,
		Percent:   ev.Percent,
		ResetsAt:  snap.ResetsAt(ev.Dimension),
		At:        ev.At,
	}
	for _, n := range d.notifiers {
		if err := n.Notify(ctx, note); err != nil {
			d.logger.Error().Err(err).
				Str("dimension", string(ev.Dimension)).
				Str("tier", ev.To.String()).
				Msg("failed to deliver notification")
		}
	}
}
