package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"claude-quota-alerts/internal/alerting"
	"claude-quota-alerts/internal/cache"
	"claude-quota-alerts/internal/credentials"
	"claude-quota-alerts/internal/scheduler"
	"claude-quota-alerts/internal/tier"
	"claude-quota-alerts/internal/usage"
)

// Engine owns the poll loop and reconciles cycle outcomes into State. All
// cache and state writes happen inside the single active cycle; concurrent
// triggers join the in-flight cycle instead of fetching twice.
type Engine struct {
	creds      credentials.Source
	fetcher    usage.Fetcher
	cache      *cache.Cache
	mirror     *cache.FileStore
	classifier tier.Classifier
	dispatcher *alerting.Dispatcher
	logger     zerolog.Logger
	interval   time.Duration
	delay      time.Duration

	mu       sync.Mutex
	inflight chan struct{}

	stateMu sync.RWMutex
	state   State
}

// Options parameterise the engine.
type Options struct {
	// Interval spaces timed poll cycles. Defaults to two minutes.
	Interval time.Duration
	// StartupDelay postpones the first cycle.
	StartupDelay time.Duration
	// Mirror, when non-nil, receives a best-effort copy of each successful
	// snapshot for out-of-process readers.
	Mirror *cache.FileStore
	// Dispatcher, when non-nil, receives tier crossings.
	Dispatcher *alerting.Dispatcher
}

// New constructs an engine. The initial state is unavailable until the first
// cycle runs.
func New(creds credentials.Source, fetcher usage.Fetcher, classifier tier.Classifier, opts Options, logger zerolog.Logger) *Engine {
	interval := opts.Interval
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	return &Engine{
		creds:      creds,
		fetcher:    fetcher,
		cache:      cache.New(),
		mirror:     opts.Mirror,
		classifier: classifier,
		dispatcher: opts.Dispatcher,
		logger:     logger.With().Str("component", "engine").Logger(),
		interval:   interval,
		delay:      opts.StartupDelay,
		state:      State{Freshness: FreshnessUnavailable},
	}
}

// CurrentState returns the last published state. Safe from any goroutine.
func (e *Engine) CurrentState() State {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state
}

func (e *Engine) publish(st State) {
	e.stateMu.Lock()
	e.state = st
	e.stateMu.Unlock()
}

// Run drives timed cycles until ctx is cancelled. The first cycle fires
// immediately. Cycle failures never terminate the loop.
func (e *Engine) Run(ctx context.Context) error {
	sched := scheduler.New(scheduler.Options{
		Interval:     e.interval,
		StartupDelay: e.delay,
		Immediate:    true,
	}, e.logger)

	return sched.Run(ctx, func(ctx context.Context, _ time.Time) error {
		e.PollOnce(ctx)
		return nil
	})
}

// PollOnce executes one poll cycle and returns the state it published. If a
// cycle is already in flight the caller waits for that cycle's result instead
// of starting a second fetch.
func (e *Engine) PollOnce(ctx context.Context) State {
	e.mu.Lock()
	if e.inflight != nil {
		done := e.inflight
		e.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return e.CurrentState()
	}
	done := make(chan struct{})
	e.inflight = done
	e.mu.Unlock()

	e.runCycle(ctx)

	e.mu.Lock()
	e.inflight = nil
	e.mu.Unlock()
	close(done)

	return e.CurrentState()
}

// RefreshNow is the manual-refresh entry point; it coalesces with any
// in-flight timed cycle.
func (e *Engine) RefreshNow(ctx context.Context) State {
	return e.PollOnce(ctx)
}

func (e *Engine) runCycle(ctx context.Context) {
	checkedAt := time.Now().UTC()

	token, err := e.creds.Token(ctx)
	if err != nil {
		e.finishFailed(usage.NewError(usage.KindNotAuthenticated, err), checkedAt)
		return
	}

	snap, err := e.fetcher.FetchUsage(ctx, token)
	if err != nil {
		e.finishFailed(usage.AsError(err), checkedAt)
		return
	}

	var prevPtr *usage.Snapshot
	if prev, ok := e.cache.Get(); ok {
		prevPtr = &prev
	}
	events := e.classifier.Crossings(prevPtr, snap)
	e.cache.Put(snap)

	if e.dispatcher != nil {
		e.dispatcher.Dispatch(ctx, snap, events, func(dim usage.Dimension) tier.Tier {
			return e.classifier.TierOf(snap.Percent(dim))
		})
	}

	if e.mirror != nil {
		if err := e.mirror.Write(snap); err != nil {
			e.logger.Warn().Err(err).Msg("failed to mirror snapshot to disk")
		}
	}

	e.logger.Info().
		Str("five_hour_pct", snap.FiveHourPercent.String()).
		Str("weekly_pct", snap.WeeklyPercent.String()).
		Int("crossings", len(events)).
		Msg("cycle complete")

	e.publish(newState(&snap, FreshnessLive, nil, checkedAt))
}

// finishFailed records a failed cycle: the cache is left untouched and keeps
// serving the previous snapshot, downgraded to stale.
func (e *Engine) finishFailed(cycleErr *usage.Error, checkedAt time.Time) {
	freshness := FreshnessUnavailable
	var snapPtr *usage.Snapshot
	if prev, ok := e.cache.Get(); ok {
		freshness = FreshnessStale
		snapPtr = &prev
	}

	e.logger.Warn().Err(cycleErr).
		Str("kind", string(cycleErr.Kind)).
		Str("freshness", string(freshness)).
		Msg("cycle failed")

	e.publish(newState(snapPtr, freshness, cycleErr, checkedAt))
}
