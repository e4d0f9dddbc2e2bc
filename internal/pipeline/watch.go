// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/literature-manager/internal/extract"
	"github.com/pdiddy/literature-manager/internal/filing"
	"github.com/pdiddy/literature-manager/internal/index"
	"github.com/pdiddy/literature-manager/pkg/types"
)

const watchQueueSize = 256

// Watcher processes inbox arrivals as they appear. Files are handled one
// at a time, in arrival order, once their size has settled.
type Watcher struct {
	Processor *Processor
	Config    types.WatchConfig
}

// Run takes the library lock, processes what is already in the inbox,
// then watches for new files until ctx is cancelled. A second watcher on
// the same library fails at once with index.ErrLocked.
func (w *Watcher) Run(ctx context.Context) error {
	p := w.Processor
	lock, err := index.AcquireLock(p.Layout.Lock)
	if err != nil {
		return err
	}
	defer lock.Release()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting file watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(p.Layout.Inbox); err != nil {
		return fmt.Errorf("watching %s: %w", p.Layout.Inbox, err)
	}

	if _, err := p.ProcessInbox(ctx); err != nil {
		return err
	}
	fmt.Fprintf(p.out(), "ℹ Watching %s (Ctrl+C to stop)\n", p.Layout.Inbox)

	queue := make(chan string, watchQueueSize)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.collect(gctx, fsw, queue) })
	g.Go(func() error { return w.work(gctx, queue) })

	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// collect forwards PDF create, write and rename-into events. A path
// already waiting in the queue is not queued twice.
func (w *Watcher) collect(ctx context.Context, fsw *fsnotify.Watcher, queue chan<- string) error {
	defer close(queue)
	queued := make(map[string]time.Time)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			name := filepath.Base(ev.Name)
			if strings.HasPrefix(name, ".") || !filing.IsPDF(name) {
				continue
			}
			if t, ok := queued[ev.Name]; ok && time.Since(t) < w.stabilizeTimeout() {
				continue
			}
			queued[ev.Name] = time.Now()
			select {
			case queue <- ev.Name:
			case <-ctx.Done():
				return ctx.Err()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.Processor.logger().Warn("file watcher error", "error", err)
		}
	}
}

// work processes queued files and runs the periodic retention sweep.
func (w *Watcher) work(ctx context.Context, queue <-chan string) error {
	p := w.Processor
	var sweep <-chan time.Time
	if w.Config.SweepInterval > 0 {
		t := time.NewTicker(w.Config.SweepInterval)
		defer t.Stop()
		sweep = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sweep:
			if _, err := p.Cleanup(ctx); err != nil {
				p.logger().Warn("retention sweep failed", "error", err)
			}
		case path, ok := <-queue:
			if !ok {
				return nil
			}
			if !w.waitStable(ctx, path) {
				continue
			}
			fmt.Fprintf(p.out(), "\nℹ New PDF detected: %s\n", filepath.Base(path))
			if _, err := p.ProcessFile(ctx, path); err != nil {
				p.logger().Error("processing failed", "file", filepath.Base(path), "error", err)
				if errors.Is(err, extract.ErrFatal) && !errors.Is(err, context.Canceled) {
					return err
				}
			}
		}
	}
}

// waitStable polls path until its size is non-zero and unchanged for
// StableSeconds. It gives up waiting after StabilizeTimeout and then
// proceeds if the file is still present and non-empty. It returns false
// when the file vanished or ctx was cancelled.
func (w *Watcher) waitStable(ctx context.Context, path string) bool {
	poll := w.Config.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	need := time.Duration(w.Config.StableSeconds) * time.Second
	deadline := time.Now().Add(w.stabilizeTimeout())

	var (
		last        int64 = -1
		stableSince time.Time
	)
	for {
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		size := info.Size()
		now := time.Now()
		switch {
		case size == 0 || size != last:
			stableSince = time.Time{}
		case stableSince.IsZero():
			stableSince = now
		}
		last = size
		if !stableSince.IsZero() && now.Sub(stableSince) >= need {
			return true
		}
		if now.After(deadline) {
			return size > 0
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(poll):
		}
	}
}

func (w *Watcher) stabilizeTimeout() time.Duration {
	if w.Config.StabilizeTimeout <= 0 {
		return 30 * time.Second
	}
	return w.Config.StabilizeTimeout
}
