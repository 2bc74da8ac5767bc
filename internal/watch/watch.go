// Package watch scans a transcript directory on a cron schedule and
// hands unseen files to a processing callback.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule checks the directory once a minute.
const DefaultSchedule = "* * * * *"

// Seen reports whether a transcript file was already processed.
type Seen interface {
	HasFile(fileName string) (bool, error)
}

// Runner processes one new transcript file.
type Runner func(ctx context.Context, path string)

// Watcher drives scheduled scans of a transcript directory.
type Watcher struct {
	dir      string
	schedule string
	seen     Seen
	run      Runner
	logger   *slog.Logger

	cron *cron.Cron

	mu       sync.Mutex
	inFlight map[string]bool // files currently being processed
}

// New creates a watcher for dir. An empty schedule uses DefaultSchedule.
func New(dir, schedule string, seen Seen, run Runner, logger *slog.Logger) *Watcher {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:      dir,
		schedule: schedule,
		seen:     seen,
		run:      run,
		logger:   logger,
		inFlight: make(map[string]bool),
	}
}

// Start runs scans on the configured schedule until ctx is cancelled.
// One scan runs immediately at startup.
func (w *Watcher) Start(ctx context.Context) error {
	w.cron = cron.New()
	_, err := w.cron.AddFunc(w.schedule, func() {
		if err := w.Scan(ctx); err != nil {
			w.logger.Error("scan failed", "dir", w.dir, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("watch: invalid schedule %q: %w", w.schedule, err)
	}

	if err := w.Scan(ctx); err != nil {
		w.logger.Error("initial scan failed", "dir", w.dir, "error", err)
	}

	w.cron.Start()
	w.logger.Info("watcher started", "dir", w.dir, "schedule", w.schedule)

	<-ctx.Done()
	w.cron.Stop()
	w.logger.Info("watcher stopped")
	return ctx.Err()
}

// Scan walks the directory once, running the callback for every .txt
// file that is neither already processed nor currently in flight.
func (w *Watcher) Scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("watch: read dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		name := entry.Name()

		done, err := w.seen.HasFile(name)
		if err != nil {
			w.logger.Warn("seen check failed", "file", name, "error", err)
			continue
		}
		if done {
			continue
		}

		if !w.claim(name) {
			continue
		}
		w.logger.Info("new transcript", "file", name)
		w.run(ctx, filepath.Join(w.dir, name))
		w.release(name)
	}
	return nil
}

func (w *Watcher) claim(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inFlight[name] {
		return false
	}
	w.inFlight[name] = true
	return true
}

func (w *Watcher) release(name string) {
	w.mu.Lock()
	delete(w.inFlight, name)
	w.mu.Unlock()
}
