// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/jeranaias/genstudio/internal/bridge"
	"github.com/jeranaias/genstudio/internal/model"
)

// =============================================================================
// SEND
// =============================================================================

// Send appends a user turn with the pending attachments and an assistant
// placeholder, then blocks until the request resolves, is cancelled or is
// superseded by a newer send. Cancelled and superseded requests return nil;
// their results are discarded whenever they arrive. Cancelling ctx cancels
// the request.
//
// Empty aspect ratio or generation mode in sc are filled from preferences.
func (c *Controller) Send(ctx context.Context, content string, sc model.SendContext) error {
	content = strings.TrimSpace(content)

	c.mu.Lock()
	if err := c.checkSendableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if content == "" && len(c.pending) == 0 {
		c.mu.Unlock()
		return ErrEmptyMessage
	}

	atts := model.NormalizeAll(c.pending)
	c.pending = nil
	r, call := c.beginLocked(ctx, content, atts, sc)
	c.mu.Unlock()

	return c.await(ctx, r, call)
}

func (c *Controller) checkSendableLocked() error {
	if c.closed {
		return ErrClosed
	}
	if c.brandID == "" {
		return ErrNoBrand
	}
	return nil
}

// beginLocked starts a request: it supersedes any outstanding one, allocates
// the next id, appends the turn pair and starts the progress poll.
func (c *Controller) beginLocked(ctx context.Context, content string, atts []model.Attachment, sc model.SendContext) (*request, pendingCall) {
	if c.inflight != nil {
		c.supersedeLocked(c.inflight)
	}

	c.requestSeq++
	id := c.requestSeq
	c.currentID = id
	c.cancelledID = 0

	if sc.AspectRatio == "" {
		sc.AspectRatio = c.prefs.AspectRatio()
	}
	if sc.GenerationMode == "" {
		sc.GenerationMode = c.prefs.GenerationMode()
	}

	user := model.NewUserMessage(content, atts, sc)
	assistant := model.NewAssistantPlaceholder()
	c.log.AppendPair(user, assistant)

	c.progress.Reset()
	c.banner = ""

	// Values survive; cancellation is driven by Cancel and the caller's ctx.
	reqCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &request{
		id:          id,
		userID:      user.ID,
		assistantID: assistant.ID,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	r.poll = c.poller.Start(id, c.deliverProgress)
	c.inflight = r
	c.publishLocked()

	return r, pendingCall{
		ctx: reqCtx,
		req: bridge.ChatRequest{
			BrandID:     c.brandID,
			Content:     content,
			Attachments: user.Attachments,
			Context:     user.Context.Clone(),
		},
	}
}

// pendingCall is a backend call prepared under the lock and issued outside it.
type pendingCall struct {
	ctx context.Context
	req bridge.ChatRequest
}

type chatOutcome struct {
	resp *bridge.ChatResponse
	err  error
}

// await runs the backend call and waits for its outcome or for the request
// to be cancelled or superseded.
func (c *Controller) await(ctx context.Context, r *request, call pendingCall) error {
	out := make(chan chatOutcome, 1)
	go func() {
		resp, err := c.backend.Chat(call.ctx, call.req)
		out <- chatOutcome{resp: resp, err: err}
	}()

	select {
	case o := <-out:
		return c.finish(r, o.resp, o.err)
	case <-r.done:
		return nil
	case <-ctx.Done():
		c.cancelRequest(ctx, r.id)
		return ctx.Err()
	}
}

// finish applies a backend outcome. Stale outcomes are dropped without
// touching the log.
func (c *Controller) finish(r *request, resp *bridge.ChatResponse, callErr error) error {
	c.mu.Lock()
	r.poll.Stop()

	if r.id == c.cancelledID || r.id != c.currentID || r.finished {
		c.mu.Unlock()
		return nil
	}
	r.finished = true
	r.cancel()
	c.inflight = nil

	assistant := c.log.Get(r.assistantID)
	if assistant == nil {
		c.publishLocked()
		c.mu.Unlock()
		return nil
	}

	if callErr != nil {
		if err := assistant.Fail(callErr.Error()); err != nil {
			c.logger.Printf("TURN_UPDATE_FAILED | id=%s error=%v", assistant.ID, err)
		}
		c.banner = assistant.Content
		c.log.Touch()
		c.publishLocked()
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrGeneration, callErr)
	}
	if resp == nil {
		resp = &bridge.ChatResponse{}
	}

	err := assistant.Finalize(model.Result{
		Content:         resp.Response,
		Images:          resp.Images,
		Videos:          resp.Videos,
		ExecutionTrace:  resp.ExecutionTrace,
		Interaction:     resp.Interaction,
		MemoryUpdate:    resp.MemoryUpdate,
		StyleReferences: resp.StyleReferences,
		ThinkingSteps:   c.progress.Steps(),
		LoadedSkills:    c.progress.Skills(),
	})
	if err != nil {
		c.logger.Printf("TURN_UPDATE_FAILED | id=%s error=%v", assistant.ID, err)
	}
	c.log.Touch()
	c.publishLocked()

	if len(resp.Images) > 0 {
		prompt := ""
		if user := c.log.Get(r.userID); user != nil {
			prompt = user.Content
		}
		c.registerMediaLocked(c.brandID, assistant.ID, prompt, resp.Images)
	}
	c.mu.Unlock()
	return nil
}

// =============================================================================
// CANCELLATION
// =============================================================================

// Cancel abandons the outstanding request, if any. It returns immediately:
// the backend is notified in the background and the eventual result is
// discarded.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelInflightLocked(cancelledContent) {
		c.notifyCancelLocked(context.Background())
		c.publishLocked()
	}
}

// cancelRequest cancels id only if it is still the outstanding request.
func (c *Controller) cancelRequest(ctx context.Context, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight == nil || c.inflight.id != id {
		return
	}
	c.cancelInflightLocked(cancelledContent)
	c.notifyCancelLocked(ctx)
	c.publishLocked()
}

// cancelInflightLocked sets the cancelled marker and terminates the
// outstanding request. It reports whether there was one.
func (c *Controller) cancelInflightLocked(reason string) bool {
	r := c.inflight
	if r == nil {
		return false
	}
	c.cancelledID = r.id
	c.terminateLocked(r, reason)
	return true
}

// supersedeLocked ends r because a newer send replaces it. The backend is
// not notified: the newer request is already on its way.
func (c *Controller) supersedeLocked(r *request) {
	c.cancelledID = r.id
	c.terminateLocked(r, supersededContent)
}

func (c *Controller) terminateLocked(r *request, reason string) {
	r.poll.Stop()
	r.cancel()
	r.finished = true
	close(r.done)
	c.inflight = nil

	if assistant := c.log.Get(r.assistantID); assistant != nil && assistant.IsPending() {
		if err := assistant.Terminate(reason); err != nil {
			c.logger.Printf("TURN_UPDATE_FAILED | id=%s error=%v", assistant.ID, err)
		}
		c.log.Touch()
	}
}

// notifyCancelLocked tells the backend to abort from a background goroutine.
// Best-effort.
func (c *Controller) notifyCancelLocked(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.notifyTimeout)
		defer cancel()
		if err := c.backend.CancelGeneration(nctx); err != nil {
			c.logger.Printf("CANCEL_NOTIFY_FAILED | error=%v", err)
		}
	}()
}

// =============================================================================
// REGENERATE AND INTERACTIONS
// =============================================================================

// Regenerate discards an assistant turn and its user turn, resets the
// backend conversation and sends the user turn again with its original
// attachments and context. It returns ErrBusy while a request is
// outstanding.
func (c *Controller) Regenerate(ctx context.Context, assistantID string) error {
	c.mu.Lock()
	if err := c.checkSendableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.inflight != nil {
		c.mu.Unlock()
		return ErrBusy
	}
	idx := c.log.PairFor(assistantID)
	if idx < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrMessageNotFound, assistantID)
	}

	user := c.log.At(idx)
	content := user.Content
	atts := append([]model.Attachment(nil), user.Attachments...)
	sc := user.Context.Clone()
	brand := c.brandID

	c.log.TruncateBefore(idx)
	epoch := c.epoch
	c.publishLocked()
	c.mu.Unlock()

	if err := c.backend.ClearChat(ctx); err != nil {
		c.logger.Printf("REGENERATE_RESET_FAILED | brand=%s error=%v", brand, err)
	}

	c.mu.Lock()
	if err := c.checkSendableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.brandID != brand || c.epoch != epoch {
		c.mu.Unlock()
		return ErrBrandChanged
	}
	// A send that arrived during the reset owns the session now.
	if c.inflight != nil || c.log.Len() != idx {
		c.mu.Unlock()
		return ErrBusy
	}
	r, call := c.beginLocked(ctx, content, atts, sc)
	c.mu.Unlock()

	return c.await(ctx, r, call)
}

// ResolveInteraction answers the interaction on an assistant turn and sends
// the answer as a new user turn with the context of the turn that prompted
// it.
//
// For choices, selection holds one choice id or value. For image selection,
// it holds between one and MaxSelect offered images.
func (c *Controller) ResolveInteraction(ctx context.Context, messageID string, selection []string) error {
	c.mu.Lock()
	if err := c.checkSendableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.inflight != nil {
		c.mu.Unlock()
		return ErrBusy
	}

	msg := c.log.Get(messageID)
	if msg == nil || msg.Role != model.RoleAssistant {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}
	in := msg.Interaction
	if in == nil {
		c.mu.Unlock()
		return ErrNoInteraction
	}
	if in.Resolved {
		c.mu.Unlock()
		return ErrInteractionResolved
	}

	content, err := selectionContent(in, selection)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	in.Resolved = true
	in.Selection = append([]string(nil), selection...)
	c.log.Touch()

	var sc model.SendContext
	if idx := c.log.PairFor(messageID); idx >= 0 {
		sc = c.log.At(idx).Context.Clone()
	}
	if in.Kind == model.InteractionImageSelect {
		sc.StyleReferences = append(sc.StyleReferences, selection...)
	}

	r, call := c.beginLocked(ctx, content, nil, sc)
	c.mu.Unlock()

	return c.await(ctx, r, call)
}

// selectionContent validates selection against the interaction and renders
// the user turn that answers it.
func selectionContent(in *model.Interaction, selection []string) (string, error) {
	switch in.Kind {
	case model.InteractionChoices:
		if len(selection) != 1 {
			return "", fmt.Errorf("%w: choose exactly one option", ErrInvalidSelection)
		}
		choice, ok := in.Choice(selection[0])
		if !ok {
			return "", fmt.Errorf("%w: unknown option %q", ErrInvalidSelection, selection[0])
		}
		if choice.Value != "" {
			return choice.Value, nil
		}
		return choice.Label, nil

	case model.InteractionImageSelect:
		if len(selection) == 0 || len(selection) > in.MaxSelect {
			return "", fmt.Errorf("%w: select between 1 and %d images", ErrInvalidSelection, in.MaxSelect)
		}
		seen := make(map[string]struct{}, len(selection))
		for _, ref := range selection {
			if !in.OffersImage(ref) {
				return "", fmt.Errorf("%w: image %q was not offered", ErrInvalidSelection, ref)
			}
			if _, dup := seen[ref]; dup {
				return "", fmt.Errorf("%w: image %q selected twice", ErrInvalidSelection, ref)
			}
			seen[ref] = struct{}{}
		}
		return "Selected images:\n" + strings.Join(selection, "\n"), nil
	}
	return "", fmt.Errorf("%w: %s", model.ErrUnknownInteraction, in.Kind)
}

// =============================================================================
// BACKGROUND WORK
// =============================================================================

// deliverProgress merges a poll sample if owner is still outstanding.
// Unchanged samples publish nothing.
func (c *Controller) deliverProgress(owner uint64, p *bridge.Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight == nil || c.inflight.id != owner || owner == c.cancelledID {
		return
	}
	if c.progress.Merge(p) {
		c.publishLocked()
	}
}

// registerMediaLocked records produced images in the library. Failures are
// logged and dropped.
func (c *Controller) registerMediaLocked(brandID, messageID, prompt string, images []string) {
	inputs := make([]bridge.ImageRegistration, len(images))
	for i, img := range images {
		inputs[i] = bridge.ImageRegistration{
			BrandID:   brandID,
			MessageID: messageID,
			Image:     img,
			Prompt:    prompt,
		}
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.notifyTimeout)
		defer cancel()

		entries, err := c.backend.RegisterGeneratedImages(ctx, inputs)
		if err != nil {
			c.logger.Printf("MEDIA_REGISTER_FAILED | message=%s images=%d error=%v", messageID, len(inputs), err)
			return
		}
		if c.onMedia != nil {
			c.onMedia(messageID, entries)
		}
	}()
}
