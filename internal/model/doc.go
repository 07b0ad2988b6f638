// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the core domain types shared by the session
// controller, the bridge client and the CLI.
//
// # Key Types
//
//   - Message: One conversation turn with role, status, media and results
//   - Log: Ordered message store, appended in user/assistant pairs
//   - ThinkingStep: Incremental progress unit with a monotonic status
//   - Interaction: Tagged variant (choices or image_select) prompt
//   - PendingAttachment / Attachment: Queued and normalized attachments
//   - SendContext: Products, style references and preferences of a send
//
// # Usage
//
// Append a turn pair and finalize the placeholder:
//
//	log := model.NewLog()
//	user := model.NewUserMessage("a poster for spring", nil, model.SendContext{})
//	reply := model.NewAssistantPlaceholder()
//	log.AppendPair(user, reply)
//	err := reply.Finalize(model.Result{Content: "Here it is"})
//
// Status only moves forward: sending -> sent or sending -> error.
package model
