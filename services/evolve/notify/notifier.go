// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package notify broadcasts lifecycle notifications to observers.
//
// Notifications allow external systems to watch the edit pipeline without
// coupling to it. Delivery is fire-and-forget and best-effort: a slow or
// panicking handler never blocks or fails the operation that published.
//
// Thread Safety:
//
//	All types are safe for concurrent use.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the kind of notification.
type Kind string

const (
	// KindApplyStarted is published when a package begins applying.
	KindApplyStarted Kind = "apply_started"

	// KindApplyFinished is published when a package finishes, either way.
	KindApplyFinished Kind = "apply_finished"

	// KindFallbackWrite is published when an edit bypasses the native
	// patch mechanism.
	KindFallbackWrite Kind = "fallback_write"

	// KindRegistryEvent is published for each registry record written.
	KindRegistryEvent Kind = "registry_event"
)

// Note is one notification. Notes are immutable after publication.
type Note struct {
	// ID is a unique identifier for this note.
	ID string `json:"id"`

	// Kind identifies the notification kind.
	Kind Kind `json:"kind"`

	// PatchID links the note to one proposed patch.
	PatchID string `json:"patch_id,omitempty"`

	// Timestamp is when the note was published (Unix milliseconds UTC).
	Timestamp int64 `json:"timestamp"`

	// Data carries kind-specific details.
	Data map[string]any `json:"data,omitempty"`
}

// Handler is a function that processes notes.
type Handler func(note Note)

// Notifier broadcasts notes to subscribers.
//
// Thread Safety: Notifier is safe for concurrent use.
type Notifier struct {
	mu   sync.RWMutex
	subs map[string]subscription
}

type subscription struct {
	handler Handler
	kinds   map[Kind]bool
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string]subscription)}
}

// Subscribe registers a handler for the given kinds (none means all).
// Returns the subscription ID for Unsubscribe.
func (n *Notifier) Subscribe(handler Handler, kinds ...Kind) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	sub := subscription{handler: handler}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}

	id := uuid.NewString()
	n.subs[id] = sub
	return id
}

// Unsubscribe removes a subscription. Returns false if the ID is unknown.
func (n *Notifier) Unsubscribe(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.subs[id]; !ok {
		return false
	}
	delete(n.subs, id)
	return true
}

// Publish delivers a note to every matching subscriber.
//
// # Description
//
//	Best-effort broadcast. Handlers run synchronously in subscription
//	order; a panicking handler is recovered and logged, and delivery
//	continues. Publish never returns an error - observers must not be
//	able to fail the pipeline.
func (n *Notifier) Publish(kind Kind, patchID string, data map[string]any) {
	note := Note{
		ID:        uuid.NewString(),
		Kind:      kind,
		PatchID:   patchID,
		Timestamp: time.Now().UTC().UnixMilli(),
		Data:      data,
	}

	n.mu.RLock()
	handlers := make([]Handler, 0, len(n.subs))
	for _, sub := range n.subs {
		if sub.kinds == nil || sub.kinds[kind] {
			handlers = append(handlers, sub.handler)
		}
	}
	n.mu.RUnlock()

	for _, h := range handlers {
		deliver(h, note)
	}
}

func deliver(h Handler, note Note) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("notify: handler panicked",
				slog.String("kind", string(note.Kind)),
				slog.Any("panic", r),
			)
		}
	}()
	h(note)
}
