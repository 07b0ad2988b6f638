// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package progress

import (
	"sort"

	"github.com/jeranaias/genstudio/internal/bridge"
	"github.com/jeranaias/genstudio/internal/model"
)

// =============================================================================
// RECONCILED STATE
// =============================================================================

// State accumulates progress samples for one outstanding request.
// It is not safe for concurrent use; the session controller owns it.
type State struct {
	statusLine string
	phase      string

	skills   []string
	skillSet map[string]struct{}

	steps     []trackedStep
	stepIndex map[string]int
}

// trackedStep pairs a step with the key it is merged under.
type trackedStep struct {
	key  string
	step model.ThinkingStep
}

// NewState creates an empty progress state.
func NewState() *State {
	s := &State{}
	s.Reset()
	return s
}

// Reset discards everything merged so far.
func (s *State) Reset() {
	s.statusLine = ""
	s.phase = ""
	s.skills = nil
	s.skillSet = make(map[string]struct{})
	s.steps = nil
	s.stepIndex = make(map[string]int)
}

// Merge applies one progress sample and reports whether anything visible
// changed. A nil sample changes nothing.
//
// An empty status never clears the current line. Skills are union-only and
// keep first-appearance order. Steps follow model.ThinkingStep.Apply and the
// collection is re-sorted by Seq afterwards.
func (s *State) Merge(p *bridge.Progress) bool {
	if p == nil {
		return false
	}

	changed := false

	if p.Status != "" && p.Status != s.statusLine {
		s.statusLine = p.Status
		changed = true
	}
	if p.Type != "" && p.Type != s.phase {
		s.phase = p.Type
		changed = true
	}

	for _, skill := range p.Skills {
		if skill == "" {
			continue
		}
		if _, ok := s.skillSet[skill]; ok {
			continue
		}
		s.skillSet[skill] = struct{}{}
		s.skills = append(s.skills, skill)
		changed = true
	}

	stepsChanged := false
	for _, in := range p.ThinkingSteps {
		key := stepKey(in)
		if key == "" {
			continue
		}
		if i, ok := s.stepIndex[key]; ok {
			if s.steps[i].step.Apply(in) {
				stepsChanged = true
			}
			continue
		}
		if in.Status == "" {
			in.Status = model.StepPending
		}
		s.stepIndex[key] = len(s.steps)
		s.steps = append(s.steps, trackedStep{key: key, step: in})
		stepsChanged = true
	}

	if stepsChanged {
		sort.SliceStable(s.steps, func(i, j int) bool {
			return s.steps[i].step.Seq < s.steps[j].step.Seq
		})
		s.reindex()
		changed = true
	}

	return changed
}

// stepKey identifies a step. Steps without an id fall back to their label,
// in a namespace of their own so a label never matches a real id.
func stepKey(step model.ThinkingStep) string {
	if step.ID != "" {
		return "id:" + step.ID
	}
	if step.Step != "" {
		return "label:" + step.Step
	}
	return ""
}

func (s *State) reindex() {
	for i, t := range s.steps {
		s.stepIndex[t.key] = i
	}
}

// =============================================================================
// ACCESSORS
// =============================================================================

// StatusLine returns the latest status line.
func (s *State) StatusLine() string {
	return s.statusLine
}

// Phase returns the latest progress type reported by the backend.
func (s *State) Phase() string {
	return s.phase
}

// Skills returns a copy of the accumulated skills in first-appearance order.
func (s *State) Skills() []string {
	return append([]string(nil), s.skills...)
}

// Steps returns a copy of the thinking steps in display order.
func (s *State) Steps() []model.ThinkingStep {
	if len(s.steps) == 0 {
		return nil
	}
	out := make([]model.ThinkingStep, len(s.steps))
	for i, t := range s.steps {
		out[i] = t.step
	}
	return out
}
