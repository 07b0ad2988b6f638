// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package prefs persists per-brand generation preferences.
//
// The Adapter tracks the active brand's aspect ratio and generation mode.
// Values are stored under "<brand>:aspect_ratio" and
// "<brand>:generation_mode". A value equal to the default is deleted rather
// than stored, so clearing storage reverts a brand to the default.
//
// Three stores are available: MemoryStore, FileStore (JSON, atomic writes)
// and SQLiteStore (modernc.org/sqlite).
package prefs
