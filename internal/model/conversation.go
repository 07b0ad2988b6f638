// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import "time"

// =============================================================================
// MESSAGE LOG
// =============================================================================

// Log is the ordered message store of one conversation. Turns are appended as
// adjacent user/assistant pairs and mutated in place as a turn progresses.
//
// Log is not safe for concurrent use; the session controller is its only
// writer and hands out snapshots to readers.
type Log struct {
	messages  []*Message
	updatedAt time.Time
}

// NewLog creates an empty message log.
func NewLog() *Log {
	return &Log{
		messages:  make([]*Message, 0),
		updatedAt: time.Now(),
	}
}

// AppendPair appends a user turn and its assistant placeholder together.
func (l *Log) AppendPair(user, assistant *Message) {
	l.messages = append(l.messages, user, assistant)
	l.updatedAt = time.Now()
}

// Get returns a message by its ID, or nil.
func (l *Log) Get(id string) *Message {
	if i := l.IndexOf(id); i >= 0 {
		return l.messages[i]
	}
	return nil
}

// At returns the message at index, or nil when out of range.
func (l *Log) At(index int) *Message {
	if index < 0 || index >= len(l.messages) {
		return nil
	}
	return l.messages[index]
}

// IndexOf returns the position of a message, or -1.
func (l *Log) IndexOf(id string) int {
	for i, msg := range l.messages {
		if msg.ID == id {
			return i
		}
	}
	return -1
}

// PairFor finds the user turn paired with an assistant turn by walking
// backward from it. Returns the user turn's index, or -1 when assistantID is
// unknown, not an assistant turn, or has no preceding user turn.
func (l *Log) PairFor(assistantID string) int {
	i := l.IndexOf(assistantID)
	if i < 0 || l.messages[i].Role != RoleAssistant {
		return -1
	}
	for j := i - 1; j >= 0; j-- {
		if l.messages[j].Role == RoleUser {
			return j
		}
	}
	return -1
}

// TruncateBefore keeps only the messages strictly before index.
func (l *Log) TruncateBefore(index int) {
	if index < 0 || index >= len(l.messages) {
		return
	}
	for i := index; i < len(l.messages); i++ {
		l.messages[i] = nil
	}
	l.messages = l.messages[:index]
	l.updatedAt = time.Now()
}

// Clear removes all messages.
func (l *Log) Clear() {
	l.messages = make([]*Message, 0)
	l.updatedAt = time.Now()
}

// Touch records an in-place mutation.
func (l *Log) Touch() {
	l.updatedAt = time.Now()
}

// Len returns the number of messages.
func (l *Log) Len() int {
	return len(l.messages)
}

// UpdatedAt returns when the log last changed.
func (l *Log) UpdatedAt() time.Time {
	return l.updatedAt
}

// Snapshot returns deep copies of all messages in order.
func (l *Log) Snapshot() []Message {
	out := make([]Message, len(l.messages))
	for i, msg := range l.messages {
		out[i] = *msg.Clone()
	}
	return out
}
