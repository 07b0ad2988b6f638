// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// STATUS TYPE
// =============================================================================

// Status is the delivery state of a message.
type Status string

const (
	// StatusSending marks an assistant placeholder waiting for its result.
	StatusSending Status = "sending"

	// StatusSent marks a finished turn (user turns are created sent).
	StatusSent Status = "sent"

	// StatusError marks an assistant turn whose request failed.
	StatusError Status = "error"
)

// ErrInvalidTransition is returned when a status change would move a turn
// backwards or out of a terminal state.
var ErrInvalidTransition = errors.New("invalid message status transition")

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single turn in a conversation.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	// Content
	Content string `json:"content"`
	Status  Status `json:"status"`

	// Produced media (assistant turns, empty until finalized)
	Images []string `json:"images,omitempty"`
	Videos []string `json:"videos,omitempty"`

	// Send-time inputs (user turns)
	Attachments []Attachment `json:"attachments,omitempty"`
	Context     SendContext  `json:"context"`

	// Auxiliary results (assistant turns, set on finalization)
	ExecutionTrace  []TraceEntry   `json:"execution_trace,omitempty"`
	Interaction     *Interaction   `json:"interaction,omitempty"`
	MemoryUpdate    *MemoryUpdate  `json:"memory_update,omitempty"`
	StyleReferences []string       `json:"style_references,omitempty"`
	ThinkingSteps   []ThinkingStep `json:"thinking_steps,omitempty"`
	LoadedSkills    []string       `json:"loaded_skills,omitempty"`

	// Failure and interruption
	Error      string `json:"error,omitempty"`
	Terminated bool   `json:"terminated,omitempty"`
}

// TraceEntry is one step of the backend's execution trace.
type TraceEntry struct {
	Tool     string `json:"tool"`
	Input    string `json:"input,omitempty"`
	Output   string `json:"output,omitempty"`
	Duration int64  `json:"duration_ms,omitempty"`
}

// MemoryUpdate describes what the backend stored in brand memory for a turn.
type MemoryUpdate struct {
	Summary string   `json:"summary"`
	Facts   []string `json:"facts,omitempty"`
}

// NewUserMessage creates a user turn. User turns are created already sent and
// own a private copy of their attachments.
func NewUserMessage(content string, attachments []Attachment, ctx SendContext) *Message {
	return &Message{
		ID:          NewID(),
		Role:        RoleUser,
		Timestamp:   time.Now(),
		Content:     content,
		Status:      StatusSent,
		Attachments: cloneAttachments(attachments),
		Context:     ctx.Clone(),
	}
}

// NewAssistantPlaceholder creates the sending assistant turn paired with a
// user turn.
func NewAssistantPlaceholder() *Message {
	return &Message{
		ID:        NewID(),
		Role:      RoleAssistant,
		Timestamp: time.Now(),
		Status:    StatusSending,
	}
}

// =============================================================================
// STATUS TRANSITIONS
// =============================================================================

// SetStatus moves the message to a new status.
// Valid transitions: sending -> sent, sending -> error.
func (m *Message) SetStatus(status Status) error {
	if m.Status == status {
		return nil
	}
	if m.Status != StatusSending || (status != StatusSent && status != StatusError) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.Status, status)
	}
	m.Status = status
	return nil
}

// IsPending returns true while the assistant turn waits for its result.
func (m *Message) IsPending() bool {
	return m.Role == RoleAssistant && m.Status == StatusSending
}

// Finalize applies a successful result to a sending assistant turn.
func (m *Message) Finalize(r Result) error {
	if err := m.SetStatus(StatusSent); err != nil {
		return err
	}
	m.Content = r.Content
	m.Images = append([]string(nil), r.Images...)
	m.Videos = append([]string(nil), r.Videos...)
	m.ExecutionTrace = append([]TraceEntry(nil), r.ExecutionTrace...)
	m.Interaction = r.Interaction.Clone()
	m.MemoryUpdate = r.MemoryUpdate
	m.StyleReferences = append([]string(nil), r.StyleReferences...)
	m.ThinkingSteps = append([]ThinkingStep(nil), r.ThinkingSteps...)
	m.LoadedSkills = append([]string(nil), r.LoadedSkills...)
	return nil
}

// Fail marks a sending assistant turn as failed with a readable message.
func (m *Message) Fail(reason string) error {
	if err := m.SetStatus(StatusError); err != nil {
		return err
	}
	m.Error = reason
	m.Content = "Generation failed: " + reason
	return nil
}

// Terminate ends a sending assistant turn without a result.
func (m *Message) Terminate(reason string) error {
	if err := m.SetStatus(StatusSent); err != nil {
		return err
	}
	m.Terminated = true
	m.Content = reason
	return nil
}

// Result is the authoritative outcome of a generation request, already
// converted from the wire format.
type Result struct {
	Content         string
	Images          []string
	Videos          []string
	ExecutionTrace  []TraceEntry
	Interaction     *Interaction
	MemoryUpdate    *MemoryUpdate
	StyleReferences []string
	ThinkingSteps   []ThinkingStep
	LoadedSkills    []string
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	c.Images = append([]string(nil), m.Images...)
	c.Videos = append([]string(nil), m.Videos...)
	c.Attachments = cloneAttachments(m.Attachments)
	c.Context = m.Context.Clone()
	c.ExecutionTrace = append([]TraceEntry(nil), m.ExecutionTrace...)
	c.Interaction = m.Interaction.Clone()
	if m.MemoryUpdate != nil {
		mu := *m.MemoryUpdate
		mu.Facts = append([]string(nil), m.MemoryUpdate.Facts...)
		c.MemoryUpdate = &mu
	}
	c.StyleReferences = append([]string(nil), m.StyleReferences...)
	c.ThinkingSteps = append([]ThinkingStep(nil), m.ThinkingSteps...)
	c.LoadedSkills = append([]string(nil), m.LoadedSkills...)
	return &c
}

// =============================================================================
// SEND CONTEXT
// =============================================================================

// SendContext is the generation context attached to a user turn.
type SendContext struct {
	Products        []string `json:"products,omitempty"`
	StyleReferences []string `json:"style_references,omitempty"`
	TemplateID      string   `json:"template_id,omitempty"`
	AspectRatio     string   `json:"aspect_ratio,omitempty"`
	GenerationMode  string   `json:"generation_mode,omitempty"`
}

// Clone returns a copy that shares no slices with the receiver.
func (c SendContext) Clone() SendContext {
	c.Products = append([]string(nil), c.Products...)
	c.StyleReferences = append([]string(nil), c.StyleReferences...)
	return c
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// NewID returns a fresh opaque identifier.
func NewID() string {
	return uuid.NewString()
}
