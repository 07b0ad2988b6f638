// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bridge defines the generation backend contract and its HTTP client.
//
// The session controller only depends on the Backend interface. Client is
// the production implementation that speaks JSON to the local bridge:
//
//	POST /chat            generation request (bounded by context only)
//	GET  /progress        progress side channel sample
//	POST /cancel          best-effort abort
//	POST /clear           reset bridge-side conversation
//	POST /media/register  register produced images
//
// All calls share one rate limiter. Non-2xx responses become *APIError, or
// wrap ErrUnauthorized for 401/403. The client never retries.
package bridge
