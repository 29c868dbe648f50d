package watcher

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// stamp identifies one version of a file.
type stamp struct {
	modTime time.Time
	size    int64
}

// Watcher polls a fixed set of files for changes and signals on a channel.
type Watcher struct {
	paths    []string
	interval time.Duration
	stamps   map[string]stamp
}

// New creates a Watcher that polls paths at the given interval.
func New(interval time.Duration, paths ...string) *Watcher {
	return &Watcher{
		paths:    paths,
		interval: interval,
		stamps:   make(map[string]stamp),
	}
}

// Run polls the files at the configured interval, sending a signal on
// changes whenever a file's mtime or size differs from the last snapshot.
// It blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, changes chan<- struct{}) {
	log.Info().
		Str("component", "watcher").
		Str("operation", "run").
		Strs("paths", w.paths).
		Dur("interval", w.interval).
		Msg("watcher started")

	// Initial snapshot, no event emitted.
	w.stamps = w.snapshot()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("component", "watcher").Str("operation", "run").Msg("watcher stopped")
			return
		case <-ticker.C:
			w.poll(changes)
		}
	}
}

// poll compares current stamps with stored state and sends a single event if
// any file changed, appeared, or disappeared.
func (w *Watcher) poll(changes chan<- struct{}) {
	current := w.snapshot()

	changed := ""
	for _, p := range w.paths {
		old, had := w.stamps[p]
		cur, has := current[p]
		if had != has || old.size != cur.size || !old.modTime.Equal(cur.modTime) {
			changed = p
			break
		}
	}
	w.stamps = current
	if changed == "" {
		return
	}

	log.Info().
		Str("component", "watcher").
		Str("operation", "detect_change").
		Str("file", changed).
		Msg("file change detected")
	// Non-blocking send: skip if channel already has a pending event.
	select {
	case changes <- struct{}{}:
	default:
	}
}

// snapshot stats every watched file. Missing files are left out; other
// errors are logged.
func (w *Watcher) snapshot() map[string]stamp {
	stamps := make(map[string]stamp, len(w.paths))
	for _, p := range w.paths {
		info, err := os.Stat(p)
		if err != nil {
			if !os.IsNotExist(err) {
				log.Warn().
					Str("component", "watcher").
					Str("operation", "snapshot").
					Str("file", p).
					Err(err).
					Msg("failed to stat watched file")
			}
			continue
		}
		stamps[p] = stamp{modTime: info.ModTime(), size: info.Size()}
	}
	return stamps
}
