// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"strings"
	"sync"

	"github.com/jeranaias/genstudio/internal/model"
)

// =============================================================================
// STATE SNAPSHOT
// =============================================================================

// State is an immutable view of the session. Every slice is a copy.
type State struct {
	// Version increases by one with every published change.
	Version uint64

	BrandID  string
	Messages []model.Message

	IsLoading     bool
	StatusLine    string
	Phase         string
	Skills        []string
	ThinkingSteps []model.ThinkingStep

	Attachments      []model.PendingAttachment
	AttachmentErrors []string

	// Error is the session-level banner for the last failed generation.
	Error string

	AspectRatio    string
	GenerationMode string
}

// AttachmentError joins the attachment errors for single-line display.
func (s State) AttachmentError() string {
	return strings.Join(s.AttachmentErrors, "; ")
}

// LastMessage returns the newest turn, if any.
func (s State) LastMessage() (model.Message, bool) {
	if len(s.Messages) == 0 {
		return model.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// =============================================================================
// NOTIFIER
// =============================================================================

// notifier delivers snapshots to subscribers on its own goroutine, in the
// order they were published. Subscribers must not block.
type notifier struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []State
	subs   map[uint64]func(State)
	nextID uint64
	closed bool
	done   chan struct{}
}

func newNotifier() *notifier {
	n := &notifier{
		subs: make(map[uint64]func(State)),
		done: make(chan struct{}),
	}
	n.cond = sync.NewCond(&n.mu)
	go n.run()
	return n
}

func (n *notifier) subscribe(fn func(State)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	n.nextID++
	n.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

func (n *notifier) publish(s State) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed || len(n.subs) == 0 {
		return
	}
	n.queue = append(n.queue, s)
	n.cond.Signal()
}

func (n *notifier) run() {
	defer close(n.done)
	for {
		n.mu.Lock()
		for len(n.queue) == 0 && !n.closed {
			n.cond.Wait()
		}
		if len(n.queue) == 0 {
			n.mu.Unlock()
			return
		}
		s := n.queue[0]
		n.queue[0] = State{}
		n.queue = n.queue[1:]
		subs := make([]func(State), 0, len(n.subs))
		for _, fn := range n.subs {
			subs = append(subs, fn)
		}
		n.mu.Unlock()

		for _, fn := range subs {
			fn(s)
		}
	}
}

// close stops accepting snapshots, drains what is queued and waits.
func (n *notifier) close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		<-n.done
		return
	}
	n.closed = true
	n.cond.Broadcast()
	n.mu.Unlock()
	<-n.done
}
