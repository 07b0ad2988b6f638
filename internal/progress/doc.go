// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package progress reconciles the backend's progress side channel.
//
// A Poller samples the channel on a fixed interval while one request is
// outstanding and hands each sample to the session controller, which merges
// it into a State. Sampling is best-effort: failed ticks are logged and the
// loop tries again on the next tick.
//
// Merge rules:
//
//   - the status line is replaced when a non-empty, different value arrives
//   - skills only accumulate, in order of first appearance
//   - a step goes pending to complete or pending to failed, never back
//   - a step's detail is replaced only by a strictly longer one
//   - steps are displayed by seq ascending, ties in arrival order
//
// Merge reports whether anything changed so that unchanged ticks publish
// nothing.
package progress
