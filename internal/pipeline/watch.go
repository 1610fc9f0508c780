package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/neurite-lab/tractus/internal/xfs"
)

// settleDelay gives writers time to finish before a dropped volume is
// picked up.
var settleDelay = 2 * time.Second

// RunnerFactory yields the Runner to use for the next watched volume. It is
// called once per volume so config reloads take effect between runs.
type RunnerFactory func() (*Runner, error)

// Watch runs the pipeline on every peaks volume dropped into dir. Each
// subject's output goes into a sibling directory named after the volume.
// Watch blocks until ctx is canceled.
func Watch(ctx context.Context, dir string, base *Options, factory RunnerFactory) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}

	slog.Info("Watching for incoming volumes", "dir", dir)

	// A volume written in chunks raises a Create followed by Writes; keep one
	// timer per path and reschedule it so each drop triggers a single run.
	var mu sync.Mutex
	pending := make(map[string]*time.Timer)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isVolume(event.Name) {
				continue
			}

			name := event.Name
			mu.Lock()
			if timer, ok := pending[name]; ok {
				timer.Stop()
			}
			pending[name] = time.AfterFunc(settleDelay, func() {
				mu.Lock()
				delete(pending, name)
				mu.Unlock()

				runWatched(ctx, name, base, factory)
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("Watcher error", "error", err)
		}
	}
}

func runWatched(ctx context.Context, input string, base *Options, factory RunnerFactory) {
	runner, err := factory()
	if err != nil {
		slog.Error("Failed to build pipeline for incoming volume", "input", input, "error", err)
		return
	}
	defer runner.Close()

	opts := *base
	opts.Input = input
	opts.OutDir = xfs.StripExtensions(input) + "_tractus"

	slog.Info("Processing incoming volume", "input", input, "out_dir", opts.OutDir)

	if _, err := runner.Run(ctx, &opts); err != nil {
		slog.Error("Failed to process incoming volume", "input", input, "error", err)
	}
}

func isVolume(path string) bool {
	return strings.HasSuffix(path, ".nii") || strings.HasSuffix(path, ".nii.gz")
}
