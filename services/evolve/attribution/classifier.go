// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package attribution labels the cause of an observed performance lift.
//
// The classifier is a stateless heuristic over noisy, partially-overlapping
// signals: version-control history, variant execution metadata, and run
// configuration. For fixed history and fixed inputs it is deterministic,
// but it reads live, externally mutable history - repeated calls over time
// are not guaranteed to agree. That is a property of the design, not a bug.
package attribution

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/evolve/services/evolve/gitvcs"
)

var tracer = otel.Tracer("evolve.attribution")

// LiftSource is the attributed cause of a performance delta.
type LiftSource string

// The closed lift-source set.
const (
	SourceContentPatch        LiftSource = "content-patch"
	SourceMemory              LiftSource = "memory"
	SourceSpecializedOperator LiftSource = "specialized-operator"
	SourceAdvancedFeature     LiftSource = "advanced-feature"
	SourceCombination         LiftSource = "combination"
	SourceNone                LiftSource = "none"
)

// VariantMeta is the execution metadata of one variant.
type VariantMeta struct {
	// Engine identifies the model/engine the variant ran on.
	Engine string

	// Operator is the reasoning operator the variant used.
	Operator string

	// UseMemory reports whether the memory subsystem was enabled.
	UseMemory bool

	// UseWebSearch reports whether web search was enabled.
	UseWebSearch bool

	// Reward is the realized reward of the variant.
	Reward float64

	// AppliedPatchID is filled in by Classify when a recent system patch
	// touching a sensitive path is found.
	AppliedPatchID string
}

// RunConfig is the run-level configuration consulted alongside the variant.
type RunConfig struct {
	TaskClass    string
	UseMemory    bool
	UseWebSearch bool
}

// DefaultSensitivePaths are the source paths whose modification by a system
// patch counts as a content-patch signal.
var DefaultSensitivePaths = []string{
	"prompts/system_prompt.txt",
	"agent/policy.go",
	"agent/operators.go",
	"config/weights.yaml",
}

// DefaultSpecializedOperators is the allow-list of operators considered
// specialized enough to explain a lift on their own.
var DefaultSpecializedOperators = []string{
	"tree_search",
	"debate",
	"self_refine",
	"map_reduce",
	"plan_execute",
}

// DefaultAdvancedEngineMarkers are engine-identifier substrings indicating
// an advanced capability tier.
var DefaultAdvancedEngineMarkers = []string{
	"opus",
	"ultra",
	"-xl",
	"pro",
}

// DefaultRecentCommits is how far back the content-patch check looks.
const DefaultRecentCommits = 5

// Classifier assigns a LiftSource to an observed performance delta.
//
// # Thread Safety
//
// Safe for concurrent use. Classify performs only read queries and
// tolerates interleaving with concurrent writers: it produces a
// best-effort snapshot, not a strongly consistent answer.
type Classifier struct {
	vcs             gitvcs.Client
	sensitivePaths  []string
	specializedOps  map[string]bool
	advancedMarkers []string
	recentCommits   int
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithSensitivePaths overrides the sensitive path list.
func WithSensitivePaths(paths []string) ClassifierOption {
	return func(c *Classifier) {
		if len(paths) > 0 {
			c.sensitivePaths = paths
		}
	}
}

// WithSpecializedOperators overrides the operator allow-list.
func WithSpecializedOperators(ops []string) ClassifierOption {
	return func(c *Classifier) {
		if len(ops) == 0 {
			return
		}
		c.specializedOps = make(map[string]bool, len(ops))
		for _, op := range ops {
			c.specializedOps[op] = true
		}
	}
}

// WithAdvancedEngineMarkers overrides the advanced-tier markers.
func WithAdvancedEngineMarkers(markers []string) ClassifierOption {
	return func(c *Classifier) {
		if len(markers) > 0 {
			c.advancedMarkers = markers
		}
	}
}

// WithRecentCommits overrides how many recent patch commits are consulted.
func WithRecentCommits(n int) ClassifierOption {
	return func(c *Classifier) {
		if n > 0 {
			c.recentCommits = n
		}
	}
}

// NewClassifier creates a classifier consulting the given VCS client.
func NewClassifier(vcs gitvcs.Client, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		vcs:             vcs,
		sensitivePaths:  DefaultSensitivePaths,
		advancedMarkers: DefaultAdvancedEngineMarkers,
		recentCommits:   DefaultRecentCommits,
	}
	WithSpecializedOperators(DefaultSpecializedOperators)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify assigns a lift source to the variant's observed delta.
//
// # Description
//
//	Evaluates four independent triggers and combines them: a recent
//	system patch touching a sensitive path (counted only when the
//	baseline is known and the variant's reward strictly exceeds it),
//	the memory flag, a specialized operator, and web search or an
//	advanced engine tier. No trigger yields SourceNone, one yields
//	that source, several yield SourceCombination.
//
//	When a sensitive-path patch is found its patch ID is noted on the
//	variant regardless of the reward comparison.
//
// # Inputs
//
//   - ctx: Context passed to history queries.
//   - variant: Variant metadata; AppliedPatchID may be written.
//   - run: Run configuration.
//   - baseline: Average reward of recent comparable runs; nil when unknown.
//
// # Outputs
//
//   - LiftSource: The verdict. Computed fresh on every call; persisting
//     it is the caller's concern.
func (c *Classifier) Classify(ctx context.Context, variant *VariantMeta, run RunConfig, baseline *float64) LiftSource {
	ctx, span := tracer.Start(ctx, "Classifier.Classify",
		trace.WithAttributes(attribute.String("task_class", run.TaskClass)))
	defer span.End()

	var triggered []LiftSource

	if c.contentPatchTrigger(ctx, variant, baseline) {
		triggered = append(triggered, SourceContentPatch)
	}
	if variant.UseMemory || run.UseMemory {
		triggered = append(triggered, SourceMemory)
	}
	if c.specializedOps[variant.Operator] {
		triggered = append(triggered, SourceSpecializedOperator)
	}
	if variant.UseWebSearch || run.UseWebSearch || c.advancedEngine(variant.Engine) {
		triggered = append(triggered, SourceAdvancedFeature)
	}

	verdict := SourceNone
	switch len(triggered) {
	case 0:
	case 1:
		verdict = triggered[0]
	default:
		verdict = SourceCombination
	}

	span.SetAttributes(
		attribute.String("verdict", string(verdict)),
		attribute.Int("triggers", len(triggered)),
	)
	return verdict
}

// contentPatchTrigger checks recent system patch commits against the
// sensitive path list. History read failures are best-effort: they log a
// warning and the trigger simply stays unfired.
func (c *Classifier) contentPatchTrigger(ctx context.Context, variant *VariantMeta, baseline *float64) bool {
	commits, err := c.vcs.RecentPatchCommits(ctx, c.recentCommits)
	if err != nil {
		slog.Warn("attribution: history query failed, skipping content-patch trigger",
			slog.String("error", err.Error()),
		)
		return false
	}

	for _, commit := range commits {
		for _, path := range c.sensitivePaths {
			touched, err := c.vcs.CommitTouches(ctx, commit.SHA, path)
			if err != nil {
				slog.Warn("attribution: commit inspection failed",
					slog.String("sha", commit.SHA),
					slog.String("error", err.Error()),
				)
				continue
			}
			if !touched {
				continue
			}
			variant.AppliedPatchID = commit.PatchID
			return baseline != nil && variant.Reward > *baseline
		}
	}
	return false
}

func (c *Classifier) advancedEngine(engine string) bool {
	lower := strings.ToLower(engine)
	for _, marker := range c.advancedMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
