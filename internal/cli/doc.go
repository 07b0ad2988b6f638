// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides the interactive terminal front end for a session
// controller.
//
// The REPL reads lines with liner. Text is sent as a chat message; lines
// starting with "/" are commands (see /help). Assistant turns are rendered
// with glamour and styled with lipgloss.
//
// # Key Types
//
//   - REPL: prompt loop and command dispatch
//   - ArgParser: process argument parsing for main
//   - ValidationError: bad command or flag argument
//
// # Exit Codes
//
//	0  success
//	1  general error
//	2  usage error
//	3  configuration error
//	4  authentication error
//	5  network error
package cli
