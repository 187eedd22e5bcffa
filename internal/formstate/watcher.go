// internal/formstate/watcher.go
package formstate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/locus/internal/changes"
)

// Watcher captures the form state after the page has been quiet for the debounce interval.
type Watcher struct {
	m        *Manager
	debounce time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	captures atomic.Int64
	cancel   context.CancelFunc
	done     chan struct{}
}

// Watch starts a watcher over src. Close stops it.
func (m *Manager) Watch(ctx context.Context, src changes.Source) *Watcher {
	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		m:        m,
		debounce: m.store.cfg.Debounce,
		logger:   m.logger.Named("watcher"),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	ch, unsubscribe := src.Subscribe()
	go w.run(ctx, ch, unsubscribe)
	return w
}

func (w *Watcher) run(ctx context.Context, ch <-chan changes.Event, unsubscribe func()) {
	defer close(w.done)
	defer unsubscribe()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if err := w.capture(ctx); err != nil && ctx.Err() == nil {
				w.logger.Warn("Debounced form capture failed.", zap.Error(err))
			}
		}
	}
}

// Flush captures immediately, e.g. before the page unloads.
func (w *Watcher) Flush(ctx context.Context) error {
	return w.capture(ctx)
}

// Captures counts completed captures.
func (w *Watcher) Captures() int { return int(w.captures.Load()) }

// Close stops the watcher and waits for it to exit. Pending debounced captures are dropped.
func (w *Watcher) Close() {
	w.cancel()
	<-w.done
}

func (w *Watcher) capture(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	snap, err := w.m.CaptureAndSave(ctx)
	if err != nil {
		return err
	}
	w.captures.Add(1)
	w.logger.Debug("Form state captured.", zap.String("url", snap.URL), zap.Int("fields", len(snap.Fields)))
	return nil
}
