// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"

	"github.com/jeranaias/genstudio/internal/attach"
	"github.com/jeranaias/genstudio/internal/model"
)

// =============================================================================
// PENDING ATTACHMENTS
// =============================================================================

// AddFiles prepares files and queues the accepted ones for the next send.
// Rejections replace the attachment errors; a call that only succeeds
// clears them. Files prepared for a session that was reset in the meantime
// are dropped and nothing is returned.
func (c *Controller) AddFiles(paths []string) ([]model.PendingAttachment, []attach.Rejection) {
	epoch := c.currentEpoch()
	accepted, rejected := c.pipeline.AddFiles(paths)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return nil, nil
	}
	c.pending = append(c.pending, accepted...)
	switch {
	case len(rejected) > 0:
		c.attErrs = make([]string, len(rejected))
		for i, r := range rejected {
			c.attErrs[i] = r.Error()
		}
	case len(accepted) > 0:
		c.attErrs = nil
	}
	if len(accepted) > 0 || len(rejected) > 0 {
		c.publishLocked()
	}
	return accepted, rejected
}

// AddAssetReference queues a reference to a library asset. It returns
// ErrBrandChanged when the session was reset while the asset was resolved.
func (c *Controller) AddAssetReference(ctx context.Context, assetPath string) (model.PendingAttachment, error) {
	epoch := c.currentEpoch()
	att, err := c.pipeline.AddAssetReference(ctx, assetPath)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return model.PendingAttachment{}, ErrBrandChanged
	}
	if err != nil {
		c.attErrs = []string{err.Error()}
		c.publishLocked()
		return model.PendingAttachment{}, err
	}
	c.pending = append(c.pending, att)
	c.attErrs = nil
	c.publishLocked()
	return att, nil
}

func (c *Controller) currentEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// RemoveAttachment drops a pending attachment. It reports whether id was queued.
func (c *Controller) RemoveAttachment(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, att := range c.pending {
		if att.ID == id {
			c.pending = append(c.pending[:i:i], c.pending[i+1:]...)
			c.publishLocked()
			return true
		}
	}
	return false
}

// DismissAttachmentErrors clears the attachment error list.
func (c *Controller) DismissAttachmentErrors() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.attErrs) == 0 {
		return
	}
	c.attErrs = nil
	c.publishLocked()
}
