// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// =============================================================================
// MESSAGE STATUS TESTS
// =============================================================================

func TestMessage_StatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{"sending to sent", StatusSending, StatusSent, false},
		{"sending to error", StatusSending, StatusError, false},
		{"sent to sending", StatusSent, StatusSending, true},
		{"error to sent", StatusError, StatusSent, true},
		{"sent to error", StatusSent, StatusError, true},
		{"same status", StatusSent, StatusSent, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := &Message{Role: RoleAssistant, Status: tc.from}
			err := m.SetStatus(tc.to)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("SetStatus(%s -> %s) error = %v, want ErrInvalidTransition", tc.from, tc.to, err)
				}
				if m.Status != tc.from {
					t.Errorf("Status changed to %s on rejected transition", m.Status)
				}
				return
			}
			if err != nil {
				t.Errorf("SetStatus(%s -> %s) unexpected error: %v", tc.from, tc.to, err)
			}
		})
	}
}

func TestMessage_FinalizeCopiesResult(t *testing.T) {
	m := NewAssistantPlaceholder()
	images := []string{"img-1"}

	err := m.Finalize(Result{Content: "done", Images: images, LoadedSkills: []string{"layout"}})
	require.NoError(t, err)

	images[0] = "mutated"
	require.Equal(t, StatusSent, m.Status)
	require.Equal(t, "done", m.Content)
	require.Equal(t, []string{"img-1"}, m.Images)
	require.Equal(t, []string{"layout"}, m.LoadedSkills)

	// A finalized turn cannot fail afterwards.
	require.ErrorIs(t, m.Fail("late"), ErrInvalidTransition)
}

func TestMessage_Terminate(t *testing.T) {
	m := NewAssistantPlaceholder()
	require.NoError(t, m.Terminate("Generation cancelled."))
	require.True(t, m.Terminated)
	require.False(t, m.IsPending())
	require.Equal(t, "Generation cancelled.", m.Content)
}

func TestNewUserMessage_OwnsAttachments(t *testing.T) {
	atts := []Attachment{{Name: "a.png", Data: "AAAA", Source: SourceUpload}}
	m := NewUserMessage("hi", atts, SendContext{Products: []string{"p1"}})

	atts[0].Name = "changed"
	if m.Attachments[0].Name != "a.png" {
		t.Error("user turn should own a copy of its attachments")
	}
	if m.Status != StatusSent {
		t.Errorf("user turn Status = %s, want sent", m.Status)
	}
}

// =============================================================================
// THINKING STEP TESTS
// =============================================================================

func TestThinkingStep_Apply(t *testing.T) {
	tests := []struct {
		name       string
		existing   ThinkingStep
		incoming   ThinkingStep
		wantStatus StepStatus
		wantDetail string
		wantChange bool
	}{
		{
			name:       "pending to complete",
			existing:   ThinkingStep{Status: StepPending},
			incoming:   ThinkingStep{Status: StepComplete},
			wantStatus: StepComplete,
			wantChange: true,
		},
		{
			name:       "complete never reverts",
			existing:   ThinkingStep{Status: StepComplete, Detail: "ok"},
			incoming:   ThinkingStep{Status: StepPending, Detail: "ok"},
			wantStatus: StepComplete,
			wantDetail: "ok",
		},
		{
			name:       "failed never becomes complete",
			existing:   ThinkingStep{Status: StepFailed},
			incoming:   ThinkingStep{Status: StepComplete},
			wantStatus: StepFailed,
		},
		{
			name:       "terminal step detail enriched",
			existing:   ThinkingStep{Status: StepComplete, Detail: "short"},
			incoming:   ThinkingStep{Status: StepPending, Detail: "much longer"},
			wantStatus: StepComplete,
			wantDetail: "much longer",
			wantChange: true,
		},
		{
			name:       "shorter detail ignored",
			existing:   ThinkingStep{Status: StepPending, Detail: "longer detail"},
			incoming:   ThinkingStep{Status: StepPending, Detail: "short"},
			wantStatus: StepPending,
			wantDetail: "longer detail",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := tc.existing
			changed := s.Apply(tc.incoming)
			if changed != tc.wantChange {
				t.Errorf("Apply() changed = %v, want %v", changed, tc.wantChange)
			}
			if s.Status != tc.wantStatus {
				t.Errorf("Status = %s, want %s", s.Status, tc.wantStatus)
			}
			if s.Detail != tc.wantDetail {
				t.Errorf("Detail = %q, want %q", s.Detail, tc.wantDetail)
			}
		})
	}
}

// =============================================================================
// INTERACTION TESTS
// =============================================================================

func TestInteraction_UnmarshalVariants(t *testing.T) {
	var choices Interaction
	err := json.Unmarshal([]byte(`{"kind":"choices","prompt":"Pick one","options":[{"id":"a","label":"Warm"}],"images":["x"]}`), &choices)
	require.NoError(t, err)
	require.Equal(t, InteractionChoices, choices.Kind)
	require.Len(t, choices.Options, 1)
	require.Nil(t, choices.Images, "choices variant should drop image_select fields")

	var sel Interaction
	err = json.Unmarshal([]byte(`{"kind":"image_select","prompt":"Which?","images":["i1","i2"]}`), &sel)
	require.NoError(t, err)
	require.Equal(t, 1, sel.MaxSelect)
	require.True(t, sel.OffersImage("i2"))

	var bad Interaction
	err = json.Unmarshal([]byte(`{"kind":"slider"}`), &bad)
	require.ErrorIs(t, err, ErrUnknownInteraction)
}

// =============================================================================
// LOG TESTS
// =============================================================================

func TestLog_PairForAndTruncate(t *testing.T) {
	log := NewLog()
	u1, a1 := NewUserMessage("one", nil, SendContext{}), NewAssistantPlaceholder()
	u2, a2 := NewUserMessage("two", nil, SendContext{}), NewAssistantPlaceholder()
	log.AppendPair(u1, a1)
	log.AppendPair(u2, a2)

	idx := log.PairFor(a2.ID)
	if idx != 2 {
		t.Fatalf("PairFor(a2) = %d, want 2", idx)
	}
	if log.PairFor(u1.ID) != -1 {
		t.Error("PairFor on a user turn should return -1")
	}
	if log.PairFor("missing") != -1 {
		t.Error("PairFor on unknown id should return -1")
	}

	log.TruncateBefore(idx)
	if log.Len() != 2 {
		t.Errorf("Len() after truncate = %d, want 2", log.Len())
	}
	if got := log.At(1); got == nil || got.ID != a1.ID {
		t.Error("the first assistant turn should be last after truncate")
	}
}

func TestLog_SnapshotIsCopy(t *testing.T) {
	log := NewLog()
	u, a := NewUserMessage("hello", nil, SendContext{}), NewAssistantPlaceholder()
	log.AppendPair(u, a)

	snap := log.Snapshot()
	snap[0].Content = "modified"

	if log.Get(u.ID).Content != "hello" {
		t.Error("Snapshot() should return copies, not the stored messages")
	}
}
