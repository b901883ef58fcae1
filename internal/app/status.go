package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"claude-quota-alerts/internal/cache"
	"claude-quota-alerts/internal/usage"
)

// StatusOptions configure the status command.
type StatusOptions struct {
	JSON bool
}

// Status renders a one-shot view of current usage: the on-disk mirror if it
// is fresh enough, otherwise a single live fetch. A failed fetch falls back
// to whatever the mirror still holds.
func (a *App) Status(ctx context.Context, opts StatusOptions) error {
	mirror, err := cache.NewFileStore(a.Config.Cache.Path)
	if err != nil {
		return err
	}

	if entry, err := mirror.Read(); err == nil && entry.IsFresh(a.Config.Cache.TTL) {
		return a.renderStatus(entry.Snapshot, entry.FetchedAt, true, opts)
	}

	snap, err := a.fetchOnce(ctx)
	if err != nil {
		if entry, rerr := mirror.Read(); rerr == nil {
			fmt.Fprintf(os.Stderr, "quotawatcher: fetch failed (%v); showing cached data from %s\n",
				err, entry.FetchedAt.Local().Format("15:04"))
			return a.renderStatus(entry.Snapshot, entry.FetchedAt, true, opts)
		}
		return err
	}

	if werr := mirror.Write(snap); werr != nil {
		a.Logger.Warn().Err(werr).Msg("failed to update snapshot mirror")
	}
	return a.renderStatus(snap, snap.CapturedAt, false, opts)
}

func (a *App) fetchOnce(ctx context.Context) (usage.Snapshot, error) {
	token, err := a.newCredentials().Token(ctx)
	if err != nil {
		return usage.Snapshot{}, err
	}
	return a.newUsageClient().FetchUsage(ctx, token)
}

type statusOutput struct {
	Snapshot  usage.Snapshot    `json:"snapshot"`
	Tiers     map[string]string `json:"tiers"`
	Cached    bool              `json:"cached"`
	FetchedAt time.Time         `json:"fetched_at"`
}

func (a *App) renderStatus(snap usage.Snapshot, fetchedAt time.Time, cached bool, opts StatusOptions) error {
	classifier, err := a.Config.Thresholds.Classifier()
	if err != nil {
		return err
	}

	if opts.JSON {
		out := statusOutput{
			Snapshot:  snap,
			Tiers:     make(map[string]string, len(usage.Dimensions)),
			Cached:    cached,
			FetchedAt: fetchedAt,
		}
		for _, dim := range usage.Dimensions {
			out.Tiers[string(dim)] = classifier.TierOf(snap.Percent(dim)).String()
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(data))
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Window\tUsage\tTier\tResets")

	labels := map[usage.Dimension]string{
		usage.DimensionFiveHour: "5h",
		usage.DimensionWeekly:   "weekly",
	}
	for _, dim := range usage.Dimensions {
		fmt.Fprintf(writer, "%s\t%s%%\t%s\t%s\n",
			labels[dim],
			snap.Percent(dim).StringFixed(0),
			classifier.TierOf(snap.Percent(dim)),
			formatReset(snap.ResetsAt(dim)),
		)
	}
	writer.Flush()

	if cached {
		fmt.Fprintf(os.Stdout, "(cached, fetched %s)\n", fetchedAt.Local().Format("15:04"))
	}
	return nil
}

// formatReset renders a reset time as a relative string.
func formatReset(at time.Time) string {
	if at.IsZero() {
		return "unknown"
	}
	d := time.Until(at)
	if d < 0 {
		return "soon"
	}
	d = d.Round(time.Minute)
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	switch {
	case hours > 24:
		return fmt.Sprintf("in %dd", hours/24)
	case hours > 0:
		return fmt.Sprintf("in %dh %dm", hours, mins)
	default:
		return fmt.Sprintf("in %dm", mins)
	}
}
