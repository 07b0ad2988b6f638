// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session implements the chat session controller.
//
// A Controller owns the conversation for the selected brand. It allows one
// outstanding generation request at a time, polls the backend's progress
// channel while that request runs, and discards results that arrive after
// the request was cancelled or superseded.
//
// # Key Types
//
//   - Controller: conversation owner and request lifecycle
//   - State: immutable snapshot handed to the UI
//   - Options: collaborators and tuning
//
// # Usage
//
//	ctrl, err := session.New(session.Options{Backend: client, Prefs: adapter})
//	if err != nil {
//	    return err
//	}
//	defer ctrl.Close()
//
//	ctrl.SetBrand(ctx, "acme")
//	unsubscribe := ctrl.Subscribe(render)
//	defer unsubscribe()
//
//	go ctrl.Send(ctx, "A launch poster in the spring palette", model.SendContext{})
//	...
//	ctrl.Cancel()
//
// # Request Ids
//
// Every send takes the next id from a counter that never resets, not even on
// brand switches. A result is applied only when its id is the current one
// and has not been cancelled. Cancel marks the id, stops the poll and
// terminates the placeholder turn at once; it never waits for the backend.
// A newer send supersedes the older one the same way without notifying the
// backend.
//
// # Errors
//
// Backend failures mark the turn as failed, set State.Error and come back
// wrapped in ErrGeneration. Poll failures, cancel notifications and media
// registration are best-effort and only logged.
package session
