// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared across genstudio.
//
// File Operations:
//   - AtomicWriteFile: crash-safe writes for config and preference files
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TruncateWidth, PadWidth, StringWidth: column-aware layout for the REPL
//   - FirstLine: one-line previews of multi-line content
package util
