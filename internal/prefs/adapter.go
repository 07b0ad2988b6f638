// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package prefs

import (
	"errors"
	"log"
	"strconv"
	"strings"
	"sync"
)

// Built-in defaults.
const (
	DefaultAspectRatio    = "1:1"
	DefaultGenerationMode = "auto"
)

// Key suffixes, stored as "<brand>:<suffix>".
const (
	keyAspectRatio    = "aspect_ratio"
	keyGenerationMode = "generation_mode"
)

// Defaults are the values used when a brand has nothing stored.
type Defaults struct {
	AspectRatio    string
	GenerationMode string
}

// Adapter holds the active brand's aspect ratio and generation mode and
// persists changes to a Store.
type Adapter struct {
	mu       sync.Mutex
	store    Store
	logger   *log.Logger
	defaults Defaults

	brandID        string
	aspectRatio    string
	generationMode string
}

// NewAdapter creates an adapter with no active brand.
func NewAdapter(store Store, defaults Defaults, logger *log.Logger) *Adapter {
	if store == nil {
		store = NewMemoryStore()
	}
	if defaults.AspectRatio == "" {
		defaults.AspectRatio = DefaultAspectRatio
	}
	if defaults.GenerationMode == "" {
		defaults.GenerationMode = DefaultGenerationMode
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Adapter{
		store:          store,
		logger:         logger,
		defaults:       defaults,
		aspectRatio:    defaults.AspectRatio,
		generationMode: defaults.GenerationMode,
	}
}

// Load switches to brandID and restores its stored values, falling back to
// the defaults. An empty brandID just resets to the defaults.
func (a *Adapter) Load(brandID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.brandID = brandID
	a.aspectRatio = a.load(keyAspectRatio, a.defaults.AspectRatio)
	a.generationMode = a.load(keyGenerationMode, a.defaults.GenerationMode)
}

func (a *Adapter) load(suffix, fallback string) string {
	if a.brandID == "" {
		return fallback
	}
	key := a.key(suffix)
	v, err := a.store.Get(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			a.logger.Printf("PREFS_LOAD_FAILED | key=%s error=%v", key, err)
		}
		return fallback
	}
	if v == "" {
		return fallback
	}
	return v
}

// BrandID returns the active brand.
func (a *Adapter) BrandID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.brandID
}

// Defaults returns the configured defaults.
func (a *Adapter) Defaults() Defaults {
	return a.defaults
}

// AspectRatio returns the current aspect ratio.
func (a *Adapter) AspectRatio() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.aspectRatio
}

// GenerationMode returns the current generation mode.
func (a *Adapter) GenerationMode() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.generationMode
}

// SetAspectRatio sets the aspect ratio and returns the resulting value.
func (a *Adapter) SetAspectRatio(v string) string {
	return a.UpdateAspectRatio(func(string) string { return v })
}

// UpdateAspectRatio applies fn to the previous aspect ratio.
func (a *Adapter) UpdateAspectRatio(fn func(prev string) string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.aspectRatio = a.update(keyAspectRatio, a.aspectRatio, a.defaults.AspectRatio, fn)
	return a.aspectRatio
}

// SetGenerationMode sets the generation mode and returns the resulting value.
func (a *Adapter) SetGenerationMode(v string) string {
	return a.UpdateGenerationMode(func(string) string { return v })
}

// UpdateGenerationMode applies fn to the previous generation mode.
func (a *Adapter) UpdateGenerationMode(fn func(prev string) string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.generationMode = a.update(keyGenerationMode, a.generationMode, a.defaults.GenerationMode, fn)
	return a.generationMode
}

// update computes the next value and persists it. The default is never
// stored: writing it deletes the key so the brand falls back cleanly.
// Persist failures are logged; the in-memory value still changes.
func (a *Adapter) update(suffix, prev, fallback string, fn func(string) string) string {
	next := strings.TrimSpace(fn(prev))
	if next == "" {
		next = fallback
	}
	if a.brandID == "" {
		return next
	}

	key := a.key(suffix)
	var err error
	if next == fallback {
		err = a.store.Delete(key)
	} else {
		err = a.store.Set(key, next)
	}
	if err != nil {
		a.logger.Printf("PREFS_PERSIST_FAILED | key=%s error=%v", key, err)
	}
	return next
}

func (a *Adapter) key(suffix string) string {
	return a.brandID + ":" + suffix
}

// ValidAspectRatio reports whether s has the form "W:H" with positive integers.
func ValidAspectRatio(s string) bool {
	w, h, ok := strings.Cut(s, ":")
	if !ok {
		return false
	}
	wn, err := strconv.Atoi(w)
	if err != nil || wn <= 0 {
		return false
	}
	hn, err := strconv.Atoi(h)
	return err == nil && hn > 0
}
