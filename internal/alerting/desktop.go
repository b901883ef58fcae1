package alerting

import (
	"context"

	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"

	"claude-quota-alerts/internal/tier"
)

// DesktopNotifier raises OS-level notifications via beeep.
type DesktopNotifier struct {
	appName string
	logger  zerolog.Logger
}

// NewDesktopNotifier constructs a desktop notifier labelled with appName.
func NewDesktopNotifier(appName string, logger zerolog.Logger) *DesktopNotifier {
	if appName == "" {
		appName = "quotawatcher"
	}
	return &DesktopNotifier{
		appName: appName,
		logger:  logger.With().Str("component", "alert_desktop").Logger(),
	}
}

// Notify raises one notification. Critical crossings use beeep.Alert, which
// is marked urgent on platforms that support it.
func (n *DesktopNotifier) Notify(_ context.Context, note Notification) error {
	title := n.appName + ": " + note.Title()
	body := note.Body()

	var err error
	if note.To == tier.Critical {
		err = beeep.Alert(title, body, "")
	} else {
		err = beeep.Notify(title, body, "")
	}
	if err != nil {
		return err
	}

	n.logger.Info().Str("dimension", string(note.Dimension)).
		Str("tier", note.To.String()).
		Msg("desktop notification sent")
	return nil
}

var _ Notifier = (*DesktopNotifier)(nil)
