package credentials

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher observes the credentials file and invokes a callback when it
// changes, so a re-authentication is picked up without waiting for the next
// poll interval.
//
// The parent directory is watched rather than the file itself: the Claude CLI
// rewrites credentials via rename, which replaces the original inode.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  zerolog.Logger
}

// NewWatcher sets up a watch on the directory containing path.
func NewWatcher(path string, logger zerolog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		path:    path,
		watcher: fw,
		logger:  logger.With().Str("component", "credentials_watcher").Logger(),
	}, nil
}

// Run blocks, invoking onChange for each write/create/rename of the watched
// file, until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, onChange func()) {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Info().Str("op", event.Op.String()).Msg("credentials file changed, refreshing")
			onChange()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("credentials watch error")
		}
	}
}
