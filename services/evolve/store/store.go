// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists run and variant records.
//
// The attribution classifier consumes only the read contracts defined here
// (baseline reward over recent comparable runs) and its caller persists the
// verdict back through SetAttribution. The backing store is a single SQLite
// file; the subsystem never needs more than one writer.
package store

import (
	"context"
	"time"
)

// RunRecord is one pipeline run.
type RunRecord struct {
	ID        string
	TaskClass string
	Reward    float64
	CreatedAt time.Time

	// LiftSource is the attribution verdict, empty until classified.
	LiftSource string

	// UsedContentPatch records whether a content-patch variant was used.
	UsedContentPatch bool
}

// VariantRecord is one executed variant within a run.
type VariantRecord struct {
	ID           string
	RunID        string
	Engine       string
	Operator     string
	UseMemory    bool
	UseWebSearch bool
	Reward       float64

	// PatchID is the content patch the variant ran with, if any.
	PatchID string
}

// Store is the relational surface the subsystem needs.
type Store interface {
	// Init opens the backing database and applies the schema.
	Init(ctx context.Context) error

	// Close releases the database handle.
	Close() error

	// SaveRun inserts or replaces a run record.
	SaveRun(ctx context.Context, run RunRecord) error

	// SaveVariant inserts or replaces a variant record.
	SaveVariant(ctx context.Context, v VariantRecord) error

	// GetRun fetches one run by ID.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// BaselineReward averages the rewards of the most recent limit runs
	// of the task class. Returns nil when no comparable runs exist.
	BaselineReward(ctx context.Context, taskClass string, limit int) (*float64, error)

	// SetAttribution writes the classifier's verdict onto a run.
	SetAttribution(ctx context.Context, runID, liftSource string, usedContentPatch bool) error
}
