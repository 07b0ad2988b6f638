// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package progress

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jeranaias/genstudio/internal/bridge"
)

// DefaultInterval is the default sampling interval.
const DefaultInterval = 500 * time.Millisecond

// Source is the progress side channel.
type Source interface {
	GetProgress(ctx context.Context) (*bridge.Progress, error)
}

// DeliverFunc receives a sample for the request that owns the loop.
// It runs on the poll goroutine; the receiver must re-check ownership
// under its own lock before mutating anything.
type DeliverFunc func(owner uint64, p *bridge.Progress)

// =============================================================================
// POLLER
// =============================================================================

// Poller starts one repeating sample loop per outstanding request.
type Poller struct {
	source Source
	logger *log.Logger

	mu       sync.Mutex
	interval time.Duration

	wg sync.WaitGroup
}

// NewPoller creates a poller. A non-positive interval uses DefaultInterval.
func NewPoller(source Source, interval time.Duration, logger *log.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Poller{
		source:   source,
		logger:   logger,
		interval: interval,
	}
}

// Interval returns the interval used for loops started from now on.
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// SetInterval changes the interval for loops started after the call.
// Running loops keep their interval.
func (p *Poller) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	p.interval = d
	p.mu.Unlock()
}

// Start begins sampling on behalf of owner and returns the loop handle.
func (p *Poller) Start(owner uint64, deliver DeliverFunc) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		owner:  owner,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	interval := p.Interval()
	p.wg.Add(1)
	go p.loop(ctx, h, interval, deliver)
	return h
}

// Wait blocks until every loop started by this poller has exited.
// Callers must have stopped the handles first.
func (p *Poller) Wait() {
	p.wg.Wait()
}

func (p *Poller) loop(ctx context.Context, h *Handle, interval time.Duration, deliver DeliverFunc) {
	defer p.wg.Done()
	defer close(h.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample, err := p.source.GetProgress(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				// Best-effort: the next tick retries.
				p.logger.Printf("POLL_FAILED | owner=%d error=%v", h.owner, err)
				continue
			}
			deliver(h.owner, sample)
		}
	}
}

// =============================================================================
// HANDLE
// =============================================================================

// Handle controls one sample loop.
type Handle struct {
	owner  uint64
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop ends the loop. It is idempotent and safe on a nil handle. It does not
// wait for the goroutine, so it may be called while holding the lock that
// the deliver function takes.
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.once.Do(h.cancel)
}

// Done is closed once the loop goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}
