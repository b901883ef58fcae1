package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"claude-quota-alerts/internal/alerting"
	"claude-quota-alerts/internal/cache"
	"claude-quota-alerts/internal/config"
	"claude-quota-alerts/internal/credentials"
	"claude-quota-alerts/internal/engine"
	"claude-quota-alerts/internal/usage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newCredentials() *credentials.ChainSource {
	return credentials.NewChainSource(credentials.Options{
		StaticToken: a.Config.Credentials.Token,
		File:        a.Config.Credentials.File,
	}, a.Logger)
}

func (a *App) newUsageClient() *usage.Client {
	return usage.NewClient(usage.ClientOptions{
		BaseURL:    a.Config.API.BaseURL,
		UsagePath:  a.Config.API.UsagePath,
		BetaHeader: a.Config.API.BetaHeader,
		Timeout:    a.Config.API.RequestTimeout,
		UserAgent:  a.Config.API.UserAgent,
	}, a.Logger)
}

func (a *App) newDispatcher() (*alerting.Dispatcher, error) {
	if !a.Config.Alerting.Enabled {
		return nil, nil
	}

	var notifiers []alerting.Notifier
	if a.Config.Alerting.Desktop.Enabled {
		notifiers = append(notifiers, alerting.NewDesktopNotifier(a.Config.App.Name, a.Logger))
	}
	if a.Config.Alerting.Telegram.Enabled {
		tg := a.Config.Alerting.Telegram
		notifiers = append(notifiers, alerting.NewTelegramNotifier(tg.BotToken, tg.ChatID, tg.APIBase, a.Config.API.RequestTimeout, a.Logger))
	}
	if len(notifiers) == 0 {
		a.Logger.Warn().Msg("alerting enabled but no notifier configured")
		return nil, nil
	}

	fireTiers, err := a.Config.Alerting.FireTiers()
	if err != nil {
		return nil, err
	}
	return alerting.NewDispatcher(notifiers, fireTiers, a.Logger), nil
}

func (a *App) newEngine() (*engine.Engine, error) {
	classifier, err := a.Config.Thresholds.Classifier()
	if err != nil {
		return nil, err
	}
	mirror, err := cache.NewFileStore(a.Config.Cache.Path)
	if err != nil {
		return nil, err
	}
	dispatcher, err := a.newDispatcher()
	if err != nil {
		return nil, err
	}

	return engine.New(a.newCredentials(), a.newUsageClient(), classifier, engine.Options{
		Interval:     a.Config.Monitor.Interval,
		StartupDelay: a.Config.Monitor.StartupDelay,
		Mirror:       mirror,
		Dispatcher:   dispatcher,
	}, a.Logger), nil
}

// Run executes the long-running monitoring daemon.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	eng, err := a.newEngine()
	if err != nil {
		return err
	}

	// SIGHUP asks for an immediate refresh; it coalesces with any cycle
	// already in flight.
	refresh := make(chan os.Signal, 1)
	signal.Notify(refresh, syscall.SIGHUP)
	defer signal.Stop(refresh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-refresh:
				a.Logger.Info().Msg("refresh requested via SIGHUP")
				eng.RefreshNow(ctx)
			}
		}
	}()

	if a.Config.Credentials.Watch {
		a.watchCredentials(ctx, eng)
	}

	a.Logger.Info().Dur("interval", a.Config.Monitor.Interval).Msg("starting usage monitor")
	err = eng.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("monitor terminated with error")
		return err
	}

	a.Logger.Info().Msg("usage monitor stopped")
	return nil
}

// watchCredentials refreshes as soon as a re-authentication lands on disk,
// instead of waiting out the poll interval. Watch setup failure is not fatal.
func (a *App) watchCredentials(ctx context.Context, eng *engine.Engine) {
	path, err := a.newCredentials().FilePath()
	if err != nil {
		a.Logger.Warn().Err(err).Msg("cannot resolve credentials path; watch disabled")
		return
	}
	watcher, err := credentials.NewWatcher(path, a.Logger)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("cannot watch credentials file; watch disabled")
		return
	}
	go watcher.Run(ctx, func() {
		eng.RefreshNow(ctx)
	})
}
