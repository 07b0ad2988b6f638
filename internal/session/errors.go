// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import "errors"

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNoBrand indicates no brand is selected.
	ErrNoBrand = errors.New("no brand selected")

	// ErrEmptyMessage indicates a send with no content and no attachments.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrBusy indicates a request is outstanding.
	ErrBusy = errors.New("a generation is in progress")

	// ErrMessageNotFound indicates an unknown or non-assistant message id.
	ErrMessageNotFound = errors.New("message not found")

	// ErrNoInteraction indicates the message carries no interaction.
	ErrNoInteraction = errors.New("message has no interaction")

	// ErrInteractionResolved indicates the interaction was already answered.
	ErrInteractionResolved = errors.New("interaction already resolved")

	// ErrInvalidSelection indicates a selection the interaction does not offer.
	ErrInvalidSelection = errors.New("invalid selection")

	// ErrGeneration wraps backend failures during a send.
	ErrGeneration = errors.New("generation failed")

	// ErrBrandChanged indicates the brand switched or the session was reset
	// while an operation waited.
	ErrBrandChanged = errors.New("brand changed")

	// ErrClosed indicates the controller was closed.
	ErrClosed = errors.New("session closed")
)
