// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jeranaias/genstudio/internal/attach"
	"github.com/jeranaias/genstudio/internal/bridge"
	"github.com/jeranaias/genstudio/internal/model"
	"github.com/jeranaias/genstudio/internal/prefs"
	"github.com/jeranaias/genstudio/internal/progress"
)

// DefaultNotifyTimeout bounds best-effort backend calls: cancel notification
// and media registration.
const DefaultNotifyTimeout = 10 * time.Second

// Terminal content for assistant turns that did not complete.
const (
	cancelledContent  = "Generation cancelled."
	supersededContent = "Superseded by a newer request."
)

// MediaHook receives library entries registered for an assistant turn.
type MediaHook func(messageID string, entries []bridge.RegisteredImage)

// Options configures a Controller.
type Options struct {
	Backend  bridge.Backend
	Prefs    *prefs.Adapter
	Pipeline *attach.Pipeline
	Logger   *log.Logger

	PollInterval  time.Duration
	NotifyTimeout time.Duration

	OnMediaRegistered MediaHook
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns one conversation: its message log, the outstanding
// request, the progress poll and the pending attachments.
//
// Every mutation happens under mu. Backend calls and poll ticks run
// without it and re-check ownership when they come back.
type Controller struct {
	backend  bridge.Backend
	prefs    *prefs.Adapter
	pipeline *attach.Pipeline
	poller   *progress.Poller
	logger   *log.Logger
	onMedia  MediaHook

	notifyTimeout time.Duration
	notifier      *notifier
	wg            sync.WaitGroup

	mu sync.Mutex

	brandID  string
	log      *model.Log
	pending  []model.PendingAttachment
	attErrs  []string
	progress *progress.State
	banner   string

	// epoch advances on every reset so work prepared outside the lock
	// can tell the session it was started for is gone.
	epoch uint64

	requestSeq  uint64
	currentID   uint64
	cancelledID uint64
	inflight    *request

	version uint64
	closed  bool
}

// request is the bookkeeping for one outstanding send.
type request struct {
	id          uint64
	userID      string
	assistantID string

	cancel context.CancelFunc
	poll   *progress.Handle

	// done is closed when the request is cancelled or superseded.
	done     chan struct{}
	finished bool
}

// New creates a controller with no brand selected.
func New(opts Options) (*Controller, error) {
	if opts.Backend == nil {
		return nil, errors.New("session: backend is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Prefs == nil {
		opts.Prefs = prefs.NewAdapter(prefs.NewMemoryStore(), prefs.Defaults{}, opts.Logger)
	}
	if opts.Pipeline == nil {
		opts.Pipeline = attach.New(attach.Options{Logger: opts.Logger})
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = DefaultNotifyTimeout
	}

	return &Controller{
		backend:       opts.Backend,
		prefs:         opts.Prefs,
		pipeline:      opts.Pipeline,
		poller:        progress.NewPoller(opts.Backend, opts.PollInterval, opts.Logger),
		logger:        opts.Logger,
		onMedia:       opts.OnMediaRegistered,
		notifyTimeout: opts.NotifyTimeout,
		notifier:      newNotifier(),
		log:           model.NewLog(),
		progress:      progress.NewState(),
	}, nil
}

// =============================================================================
// OBSERVATION
// =============================================================================

// State returns a snapshot of the session.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers fn to receive a snapshot after every change, in
// mutation order, on a dedicated goroutine. The returned function
// unsubscribes.
func (c *Controller) Subscribe(fn func(State)) func() {
	return c.notifier.subscribe(fn)
}

// IsLoading reports whether a request is outstanding.
func (c *Controller) IsLoading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight != nil
}

func (c *Controller) snapshotLocked() State {
	s := State{
		Version:          c.version,
		BrandID:          c.brandID,
		Messages:         c.log.Snapshot(),
		IsLoading:        c.inflight != nil,
		Skills:           c.progress.Skills(),
		ThinkingSteps:    c.progress.Steps(),
		Attachments:      append([]model.PendingAttachment(nil), c.pending...),
		AttachmentErrors: append([]string(nil), c.attErrs...),
		Error:            c.banner,
		AspectRatio:      c.prefs.AspectRatio(),
		GenerationMode:   c.prefs.GenerationMode(),
	}
	if s.IsLoading {
		s.StatusLine = c.progress.StatusLine()
		s.Phase = c.progress.Phase()
	}
	return s
}

// publishLocked bumps the version and queues a snapshot for subscribers.
func (c *Controller) publishLocked() {
	c.version++
	c.notifier.publish(c.snapshotLocked())
}

// =============================================================================
// SESSION MANAGEMENT
// =============================================================================

// BrandID returns the selected brand.
func (c *Controller) BrandID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.brandID
}

// SetBrand switches the active brand. Anything outstanding is cancelled, the
// session is reset and the brand's preferences are loaded. Request ids keep
// counting so late results from the old brand are still discarded.
func (c *Controller) SetBrand(ctx context.Context, brandID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelInflightLocked(cancelledContent) {
		c.notifyCancelLocked(ctx)
	}
	c.brandID = brandID
	c.resetLocked()
	c.prefs.Load(brandID)
	c.publishLocked()
}

// ClearMessages cancels anything outstanding, clears the conversation and
// resets the backend-side conversation.
func (c *Controller) ClearMessages(ctx context.Context) error {
	c.mu.Lock()
	if c.cancelInflightLocked(cancelledContent) {
		c.notifyCancelLocked(ctx)
	}
	c.resetLocked()
	c.publishLocked()
	c.mu.Unlock()

	if err := c.backend.ClearChat(ctx); err != nil {
		return fmt.Errorf("failed to reset backend conversation: %w", err)
	}
	return nil
}

func (c *Controller) resetLocked() {
	c.epoch++
	c.log.Clear()
	c.pending = nil
	c.attErrs = nil
	c.progress.Reset()
	c.banner = ""
}

// DismissError clears the session error banner.
func (c *Controller) DismissError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.banner == "" {
		return
	}
	c.banner = ""
	c.publishLocked()
}

// =============================================================================
// PREFERENCES
// =============================================================================

// SetAspectRatio sets the active brand's aspect ratio.
func (c *Controller) SetAspectRatio(v string) string {
	return c.UpdateAspectRatio(func(string) string { return v })
}

// UpdateAspectRatio applies fn to the current aspect ratio.
func (c *Controller) UpdateAspectRatio(fn func(prev string) string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.prefs.UpdateAspectRatio(fn)
	c.publishLocked()
	return v
}

// SetGenerationMode sets the active brand's generation mode.
func (c *Controller) SetGenerationMode(v string) string {
	return c.UpdateGenerationMode(func(string) string { return v })
}

// UpdateGenerationMode applies fn to the current generation mode.
func (c *Controller) UpdateGenerationMode(fn func(prev string) string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.prefs.UpdateGenerationMode(fn)
	c.publishLocked()
	return v
}

// SetPollInterval changes the progress interval for subsequent requests.
func (c *Controller) SetPollInterval(d time.Duration) {
	c.poller.SetInterval(d)
}

// PollInterval returns the progress interval.
func (c *Controller) PollInterval() time.Duration {
	return c.poller.Interval()
}

// =============================================================================
// SHUTDOWN
// =============================================================================

// Close cancels anything outstanding and waits for background work. The
// controller rejects sends afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.cancelInflightLocked(cancelledContent) {
		c.notifyCancelLocked(context.Background())
		c.publishLocked()
	}
	c.closed = true
	c.mu.Unlock()

	c.poller.Wait()
	c.wg.Wait()
	c.notifier.close()
}
