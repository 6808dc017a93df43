// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry is the append-only lifecycle event log.
//
// Each record is one JSON line; every write is flushed and fsynced before
// Record returns, so a crash never loses an acknowledged record. When the
// current file exceeds the rotation threshold it is renamed to a
// timestamp-suffixed archive and a fresh file begins; archives are never
// deleted or rewritten.
//
// # Assumptions
//
// Durability relies on the platform's atomic-append-plus-fsync guarantee
// for a single process. Two independent processes writing the same log
// path are not coordinated here and must be serialized externally.
package registry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Event is one lifecycle milestone kind.
type Event string

// The closed event set. Record rejects anything else.
const (
	EventPropose    Event = "propose"
	EventDryRun     Event = "dry_run"
	EventShadowEval Event = "shadow_eval"
	EventGuard      Event = "guard"
	EventWinner     Event = "winner"
	EventError      Event = "error"
)

var validEvents = map[Event]bool{
	EventPropose:    true,
	EventDryRun:     true,
	EventShadowEval: true,
	EventGuard:      true,
	EventWinner:     true,
	EventError:      true,
}

// Valid reports whether e belongs to the closed event set.
func (e Event) Valid() bool {
	return validEvents[e]
}

// DefaultMaxBytes is the rotation threshold (10 MiB).
const DefaultMaxBytes = 10 * 1024 * 1024

// rotationStamp is the archive suffix layout, e.g. registry.jsonl.20260831_140502.
const rotationStamp = "20060102_150405"

// maxLineBytes bounds a single registry line during scans.
const maxLineBytes = 1 * 1024 * 1024

// Record is one immutable registry entry.
type Record struct {
	// TS is the RFC3339Nano UTC timestamp assigned at write time.
	TS string

	// PatchID links the record to one proposed patch.
	PatchID string

	// Event is the lifecycle milestone kind.
	Event Event

	// Payload carries the open, event-specific fields.
	Payload map[string]any
}

// MarshalJSON flattens the payload into the top-level object:
// {ts, patch_id, event, ...payload}.
func (r Record) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Payload)+3)
	for k, v := range r.Payload {
		flat[k] = v
	}
	flat["ts"] = r.TS
	flat["patch_id"] = r.PatchID
	flat["event"] = string(r.Event)
	return json.Marshal(flat)
}

// UnmarshalJSON splits the reserved keys back out of the flat object.
func (r *Record) UnmarshalJSON(data []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	if ts, ok := flat["ts"].(string); ok {
		r.TS = ts
	}
	if id, ok := flat["patch_id"].(string); ok {
		r.PatchID = id
	}
	if ev, ok := flat["event"].(string); ok {
		r.Event = Event(ev)
	}
	delete(flat, "ts")
	delete(flat, "patch_id")
	delete(flat, "event")
	if len(flat) > 0 {
		r.Payload = flat
	}
	return nil
}

// Stats aggregates the current registry file.
type Stats struct {
	// EventCounts is the record count per event kind.
	EventCounts map[Event]int `json:"event_counts"`

	// Total is the total record count.
	Total int `json:"total"`

	// LastTS is the most recent timestamp seen, empty when no records.
	LastTS string `json:"last_ts,omitempty"`

	// FileBytes is the current file's size.
	FileBytes int64 `json:"file_bytes"`
}

// Registry is the append-only, size-rotated event log.
//
// # Thread Safety
//
// Safe for concurrent use within one process; a mutex serializes writes
// and rotation. Not safe against a second process on the same path.
type Registry struct {
	path     string
	maxBytes int64

	mu   sync.Mutex
	file *os.File
	now  func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithMaxBytes overrides the rotation threshold. Tests use small values.
func WithMaxBytes(n int64) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxBytes = n
		}
	}
}

// withClock substitutes the time source. Test hook.
func withClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New opens (creating if needed) the registry at path.
func New(path string, opts ...Option) (*Registry, error) {
	r := &Registry{
		path:     path,
		maxBytes: DefaultMaxBytes,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening registry %s: %w", path, err)
	}
	r.file = f
	return r, nil
}

// Close releases the underlying file handle.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// Record appends one event record, synchronously durable.
//
// # Description
//
//	Events outside the closed set are rejected: a warning is logged and
//	nothing is written. Otherwise the record gets a current timestamp,
//	is serialized as one JSON line, appended, flushed, and fsynced before
//	Record returns. Rotation (if due) happens before the write, so a
//	record is never split across files.
//
// # Inputs
//
//   - patchID: Patch identifier the record belongs to.
//   - event: Lifecycle milestone kind; must be in the closed set.
//   - payload: Open event-specific fields. May be nil.
//
// # Outputs
//
//   - error: Non-nil only for I/O failures. An invalid event is not an
//     error; it is dropped with a warning.
func (r *Registry) Record(patchID string, event Event, payload map[string]any) error {
	if !event.Valid() {
		slog.Warn("registry: dropping record with unknown event",
			slog.String("event", string(event)),
			slog.String("patch_id", patchID),
		)
		return nil
	}

	rec := Record{
		TS:      r.now().UTC().Format(time.RFC3339Nano),
		PatchID: patchID,
		Event:   event,
		Payload: payload,
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling registry record: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return fmt.Errorf("registry is closed")
	}
	if err := r.rotateIfNeededLocked(); err != nil {
		return err
	}

	if _, err := r.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending registry record: %w", err)
	}
	if err := r.file.Sync(); err != nil {
		return fmt.Errorf("syncing registry: %w", err)
	}
	return nil
}

// rotateIfNeededLocked archives the current file when it exceeds the
// threshold. Archives are renamed, never deleted.
func (r *Registry) rotateIfNeededLocked() error {
	info, err := r.file.Stat()
	if err != nil {
		return fmt.Errorf("stat registry: %w", err)
	}
	if info.Size() <= r.maxBytes {
		return nil
	}

	stamp := r.now().UTC().Format(rotationStamp)
	archive := fmt.Sprintf("%s.%s", r.path, stamp)
	for i := 1; ; i++ {
		if _, err := os.Stat(archive); os.IsNotExist(err) {
			break
		}
		// Two rotations inside one second must not clobber an archive.
		archive = fmt.Sprintf("%s.%s.%d", r.path, stamp, i)
	}
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("closing registry before rotation: %w", err)
	}
	if err := os.Rename(r.path, archive); err != nil {
		return fmt.Errorf("archiving registry to %s: %w", archive, err)
	}

	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("reopening registry after rotation: %w", err)
	}
	r.file = f

	slog.Info("registry rotated",
		slog.String("archive", archive),
		slog.Int64("bytes", info.Size()),
	)
	return nil
}

// ListRecent returns the last n records of the current file, newest first.
// Prior archives are not consulted.
func (r *Registry) ListRecent(n int) ([]Record, error) {
	records, err := r.scan()
	if err != nil {
		return nil, err
	}
	if n > len(records) {
		n = len(records)
	}

	out := make([]Record, 0, n)
	for i := len(records) - 1; i >= len(records)-n; i-- {
		out = append(out, records[i])
	}
	return out, nil
}

// ListByPatch returns the current file's records for patchID, newest first.
func (r *Registry) ListByPatch(patchID string) ([]Record, error) {
	records, err := r.scan()
	if err != nil {
		return nil, err
	}

	var out []Record
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].PatchID == patchID {
			out = append(out, records[i])
		}
	}
	return out, nil
}

// Stats aggregates the current file.
func (r *Registry) Stats() (*Stats, error) {
	records, err := r.scan()
	if err != nil {
		return nil, err
	}

	st := &Stats{EventCounts: make(map[Event]int)}
	for _, rec := range records {
		st.EventCounts[rec.Event]++
		st.Total++
		if rec.TS > st.LastTS {
			st.LastTS = rec.TS
		}
	}
	if info, err := os.Stat(r.path); err == nil {
		st.FileBytes = info.Size()
	}
	return st, nil
}

// scan parses the current file, oldest first, skipping malformed lines
// with a warning.
func (r *Registry) scan() ([]Record, error) {
	f, err := os.Open(r.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening registry for scan: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			slog.Warn("registry: skipping malformed line",
				slog.String("path", r.path),
				slog.Int("line", lineNo),
				slog.String("error", err.Error()),
			)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning registry: %w", err)
	}
	return records, nil
}
