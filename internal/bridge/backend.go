// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bridge defines the generation backend contract and its HTTP client.
package bridge

import (
	"context"

	"github.com/jeranaias/genstudio/internal/model"
)

// =============================================================================
// BACKEND CONTRACT
// =============================================================================

// Backend is the narrow contract the session controller relies on.
// Implementations must be safe for concurrent use: progress polls and cancel
// notifications run while a Chat call is in flight.
type Backend interface {
	// Chat issues one generation request and blocks until it resolves.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// GetProgress samples the side channel of the in-flight generation.
	GetProgress(ctx context.Context) (*Progress, error)

	// CancelGeneration asks the backend to abort. Best-effort.
	CancelGeneration(ctx context.Context) error

	// ClearChat resets the backend-side conversation state.
	ClearChat(ctx context.Context) error

	// RegisterGeneratedImages records produced media in the asset library.
	RegisterGeneratedImages(ctx context.Context, inputs []ImageRegistration) ([]RegisteredImage, error)
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// ChatRequest is the body of a generation request.
type ChatRequest struct {
	BrandID     string             `json:"brand_id"`
	Content     string             `json:"content"`
	Attachments []model.Attachment `json:"attachments,omitempty"`
	Context     model.SendContext  `json:"context"`
}

// ChatResponse is the authoritative result of a generation request.
type ChatResponse struct {
	Response        string              `json:"response"`
	Images          []string            `json:"images,omitempty"`
	Videos          []string            `json:"videos,omitempty"`
	ExecutionTrace  []model.TraceEntry  `json:"execution_trace,omitempty"`
	Interaction     *model.Interaction  `json:"interaction,omitempty"`
	MemoryUpdate    *model.MemoryUpdate `json:"memory_update,omitempty"`
	StyleReferences []string            `json:"style_references,omitempty"`
}

// Progress is one sample of the progress side channel.
type Progress struct {
	Status        string               `json:"status"`
	Type          string               `json:"type,omitempty"`
	Skills        []string             `json:"skills,omitempty"`
	ThinkingSteps []model.ThinkingStep `json:"thinking_steps,omitempty"`
}

// ImageRegistration describes one produced image to register.
type ImageRegistration struct {
	BrandID   string `json:"brand_id"`
	MessageID string `json:"message_id"`
	Image     string `json:"image"`
	Prompt    string `json:"prompt,omitempty"`
}

// RegisteredImage is the library entry created for a produced image.
type RegisteredImage struct {
	ID    string `json:"id"`
	Path  string `json:"path"`
	Image string `json:"image"`
}
