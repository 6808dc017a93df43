// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package notify

import "testing"

func TestPublishSubscribe(t *testing.T) {
	n := NewNotifier()

	var got []Note
	id := n.Subscribe(func(note Note) { got = append(got, note) }, KindApplyStarted)

	n.Publish(KindApplyStarted, "p1", map[string]any{"area": "search"})
	n.Publish(KindRegistryEvent, "p1", nil)

	if len(got) != 1 {
		t.Fatalf("filtered subscriber received %d notes, want 1", len(got))
	}
	if got[0].Kind != KindApplyStarted || got[0].PatchID != "p1" {
		t.Errorf("note = %+v", got[0])
	}
	if got[0].ID == "" || got[0].Timestamp == 0 {
		t.Errorf("note missing identity fields: %+v", got[0])
	}

	if !n.Unsubscribe(id) {
		t.Error("Unsubscribe() = false for live subscription")
	}
	n.Publish(KindApplyStarted, "p2", nil)
	if len(got) != 1 {
		t.Error("unsubscribed handler still receiving notes")
	}
}

func TestSubscribe_AllKinds(t *testing.T) {
	n := NewNotifier()

	count := 0
	n.Subscribe(func(Note) { count++ })

	n.Publish(KindApplyStarted, "p", nil)
	n.Publish(KindApplyFinished, "p", nil)
	n.Publish(KindFallbackWrite, "p", nil)

	if count != 3 {
		t.Errorf("unfiltered subscriber received %d notes, want 3", count)
	}
}

func TestPublish_RecoversPanickingHandler(t *testing.T) {
	n := NewNotifier()

	n.Subscribe(func(Note) { panic("observer bug") })
	delivered := false
	n.Subscribe(func(Note) { delivered = true })

	// Must not panic, and must keep delivering to other subscribers.
	n.Publish(KindApplyFinished, "p", nil)

	if !delivered {
		t.Error("panic in one handler blocked delivery to another")
	}
}

func TestUnsubscribe_UnknownID(t *testing.T) {
	n := NewNotifier()
	if n.Unsubscribe("bogus") {
		t.Error("Unsubscribe(bogus) = true")
	}
}
