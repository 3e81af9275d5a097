// Package feeds implements the ground-truth event sources the arbitrage
// engine matches against market opportunities: economic releases, sports
// scoreboards, and cross-exchange crypto prices. Every feed shares the same
// shape — connect, poll loop, error swallowing with FEED_ERROR emission,
// cooperative stop — and differs only in what a poll tick fetches.
package feeds

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"polyarb/pkg/types"
)

// Feed is the uniform contract every ground-truth source satisfies.
type Feed interface {
	Start(ctx context.Context) error
	Stop()
	OnEvent(cb func(types.FeedEvent))
	Running() bool
	ErrorCount() int64
	LastPollTime() time.Time
	Type() types.FeedType
}

// base implements the lifecycle and event fan-out every concrete feed
// embeds. pollFunc does one tick of work and returns the events it
// produced; base handles the ticker, the running flag, error counting, and
// delivery to listeners.
type base struct {
	feedType types.FeedType
	interval time.Duration
	logger   *slog.Logger

	pollFunc func(ctx context.Context) ([]types.FeedEvent, error)

	listenersMu sync.Mutex
	listeners   []func(types.FeedEvent)

	running      atomic.Bool
	errorCount   atomic.Int64
	lastPollUnix atomic.Int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newBase(feedType types.FeedType, interval time.Duration, logger *slog.Logger, poll func(ctx context.Context) ([]types.FeedEvent, error)) *base {
	return &base{
		feedType: feedType,
		interval: interval,
		logger:   logger.With("component", "feed", "feed_type", feedType),
		pollFunc: poll,
	}
}

// OnEvent registers a listener for this feed's events.
func (b *base) OnEvent(cb func(types.FeedEvent)) {
	b.listenersMu.Lock()
	defer b.listenersMu.Unlock()
	b.listeners = append(b.listeners, cb)
}

func (b *base) emit(evt types.FeedEvent) {
	b.listenersMu.Lock()
	cbs := make([]func(types.FeedEvent), len(b.listeners))
	copy(cbs, b.listeners)
	b.listenersMu.Unlock()
	for _, cb := range cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("feed listener panicked", "panic", r)
				}
			}()
			cb(evt)
		}()
	}
}

// Start connects and launches the poll loop. Safe to call once; a second
// call while already running is a no-op.
func (b *base) Start(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	b.emit(types.FeedEvent{
		FeedType:   b.feedType,
		EventType:  types.FeedConnected,
		ReceivedAt: time.Now(),
	})

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.loop(runCtx)
	}()
	return nil
}

func (b *base) loop(ctx context.Context) {
	b.poll(ctx)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.poll(ctx)
		}
	}
}

func (b *base) poll(ctx context.Context) {
	b.lastPollUnix.Store(time.Now().Unix())
	events, err := b.pollFunc(ctx)
	if err != nil {
		b.errorCount.Add(1)
		b.logger.Warn("feed poll failed", "error", err)
		b.emit(types.FeedEvent{
			FeedType:   b.feedType,
			EventType:  types.FeedErrored,
			Value:      err.Error(),
			ReceivedAt: time.Now(),
		})
		return
	}
	for _, evt := range events {
		b.emit(evt)
	}
}

// Stop cancels the poll loop and waits for it to exit.
func (b *base) Stop() {
	if !b.running.CompareAndSwap(true, false) {
		return
	}
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	b.emit(types.FeedEvent{
		FeedType:   b.feedType,
		EventType:  types.FeedDisconnected,
		ReceivedAt: time.Now(),
	})
}

func (b *base) Running() bool { return b.running.Load() }

func (b *base) ErrorCount() int64 { return b.errorCount.Load() }

func (b *base) LastPollTime() time.Time {
	unix := b.lastPollUnix.Load()
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}

func (b *base) Type() types.FeedType { return b.feedType }
