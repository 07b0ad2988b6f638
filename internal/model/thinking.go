// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// StepStatus is the state of a thinking step.
type StepStatus string

const (
	StepPending  StepStatus = "pending"
	StepComplete StepStatus = "complete"
	StepFailed   StepStatus = "failed"
)

// IsTerminal reports whether the status can no longer change.
func (s StepStatus) IsTerminal() bool {
	return s == StepComplete || s == StepFailed
}

// ThinkingStep is an incremental progress unit reported mid-generation.
type ThinkingStep struct {
	ID     string     `json:"id"`
	Step   string     `json:"step"`
	Detail string     `json:"detail,omitempty"`
	Status StepStatus `json:"status"`
	Seq    int        `json:"seq"`
}

// Apply merges an incoming observation of the same step into s.
// Terminal statuses are never reverted; detail is only replaced by a strictly
// longer one. Returns true if s changed.
func (s *ThinkingStep) Apply(in ThinkingStep) bool {
	changed := false
	if s.Status == StepPending && in.Status.IsTerminal() {
		s.Status = in.Status
		changed = true
	}
	if len(in.Detail) > len(s.Detail) {
		s.Detail = in.Detail
		changed = true
	}
	return changed
}
