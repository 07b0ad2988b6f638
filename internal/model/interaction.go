// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// =============================================================================
// INTERACTION VARIANT
// =============================================================================

// InteractionKind discriminates the interaction payload.
type InteractionKind string

const (
	InteractionChoices     InteractionKind = "choices"
	InteractionImageSelect InteractionKind = "image_select"
)

// ErrUnknownInteraction is returned when decoding an unsupported kind.
var ErrUnknownInteraction = errors.New("unknown interaction kind")

// Choice is one option of a choices interaction.
type Choice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Value string `json:"value,omitempty"`
}

// Interaction is a prompt the backend asks the user to answer. Exactly one of
// the per-kind field groups is meaningful, selected by Kind.
type Interaction struct {
	Kind   InteractionKind `json:"kind"`
	Prompt string          `json:"prompt"`

	// choices
	Options []Choice `json:"options,omitempty"`

	// image_select
	Images    []string `json:"images,omitempty"`
	MaxSelect int      `json:"max_select,omitempty"`

	// Answer state, set by the client.
	Resolved  bool     `json:"resolved,omitempty"`
	Selection []string `json:"selection,omitempty"`
}

// UnmarshalJSON decodes the variant and rejects unknown kinds.
func (i *Interaction) UnmarshalJSON(data []byte) error {
	type raw Interaction
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	switch r.Kind {
	case InteractionChoices:
		r.Images, r.MaxSelect = nil, 0
	case InteractionImageSelect:
		r.Options = nil
		if r.MaxSelect <= 0 {
			r.MaxSelect = 1
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownInteraction, r.Kind)
	}
	*i = Interaction(r)
	return nil
}

// Choice returns the option with the given id or value.
func (i *Interaction) Choice(key string) (Choice, bool) {
	for _, c := range i.Options {
		if c.ID == key || (c.Value != "" && c.Value == key) {
			return c, true
		}
	}
	return Choice{}, false
}

// OffersImage reports whether the image_select prompt offered ref.
func (i *Interaction) OffersImage(ref string) bool {
	for _, img := range i.Images {
		if img == ref {
			return true
		}
	}
	return false
}

// Clone returns a deep copy. Nil-safe.
func (i *Interaction) Clone() *Interaction {
	if i == nil {
		return nil
	}
	c := *i
	c.Options = append([]Choice(nil), i.Options...)
	c.Images = append([]string(nil), i.Images...)
	c.Selection = append([]string(nil), i.Selection...)
	return &c
}
