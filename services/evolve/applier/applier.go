// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package applier turns a decoded edit package into file mutations and a
// single commit.
//
// One package moves through Validating, Applying(i), Staging, Committing
// and Done, with Failed reachable from Validating and any Applying(i).
// The first failing edit aborts the whole package; edits already written
// to disk before the failure stay on disk and the commit is withheld.
// That partial state is deliberate - reverting would hide which edit
// broke, and the uncommitted tree is the evidence.
package applier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/evolve/services/evolve/diffgen"
	"github.com/AleutianAI/evolve/services/evolve/edit"
	"github.com/AleutianAI/evolve/services/evolve/gitvcs"
	"github.com/AleutianAI/evolve/services/evolve/notify"
	"github.com/AleutianAI/evolve/services/evolve/registry"
	"github.com/AleutianAI/evolve/services/evolve/textnorm"
)

// State is a stage of the package-application lifecycle.
type State string

const (
	StateValidating State = "validating"
	StateApplying   State = "applying"
	StateStaging    State = "staging"
	StateCommitting State = "committing"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Applier applies edit packages against a working tree.
//
// # Thread Safety
//
// An Applier performs no internal locking. Packages touching disjoint
// files may be applied concurrently; callers must serialize packages
// that touch the same file.
type Applier struct {
	vcs          gitvcs.Client
	root         string
	contextLines int
	reg          *registry.Registry
	notifier     *notify.Notifier
}

// Option configures an Applier.
type Option func(*Applier)

// WithContextLines overrides the diff context width.
func WithContextLines(n int) Option {
	return func(a *Applier) {
		if n >= 0 {
			a.contextLines = n
		}
	}
}

// WithRegistry makes the applier record error events for failed packages.
func WithRegistry(reg *registry.Registry) Option {
	return func(a *Applier) { a.reg = reg }
}

// WithNotifier makes the applier publish lifecycle notifications.
func WithNotifier(n *notify.Notifier) Option {
	return func(a *Applier) { a.notifier = n }
}

// New creates an Applier mutating files under root through vcs.
func New(vcs gitvcs.Client, root string, opts ...Option) *Applier {
	a := &Applier{
		vcs:          vcs,
		root:         root,
		contextLines: diffgen.DefaultContextLines,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ApplyJSON decodes a wire-format package and applies it. Malformed JSON
// yields a decode failure without touching any file.
func (a *Applier) ApplyJSON(ctx context.Context, data []byte) *ApplyResult {
	pkg, err := edit.DecodePackage(data)
	if err != nil {
		patchID := uuid.NewString()
		kind := KindDecode
		if errors.Is(err, edit.ErrValidation) {
			kind = KindValidation
		}
		res := failed(patchID, kind, -1, "", err.Error(), nil)
		a.finish(res, nil)
		return res
	}
	return a.Apply(ctx, pkg)
}

// Apply runs the full lifecycle for one package.
//
// # Description
//
//	Validates the package, applies each edit in order (edit engine, diff
//	synthesis, native apply with direct-overwrite fallback), then stages
//	every touched file and creates exactly one commit. The commit subject
//	carries the patch marker, the package's area and goal tag, the patch
//	id, and a fallback marker when any edit bypassed the native patch
//	path.
//
// # Inputs
//
//   - ctx: Context passed to version-control operations.
//   - pkg: The decoded package. Must be non-nil.
//
// # Outputs
//
//   - *ApplyResult: Always non-nil. On failure Error is set and Touched,
//     Diffs and FileSHAs describe the edits that completed before the
//     failure; those files remain on disk, uncommitted.
func (a *Applier) Apply(ctx context.Context, pkg *edit.Package) *ApplyResult {
	patchID := uuid.NewString()
	started := time.Now()

	ctx, span := tracer.Start(ctx, "Applier.Apply",
		trace.WithAttributes(
			attribute.String("patch_id", patchID),
			attribute.String("area", pkg.Area),
			attribute.Int("edits", len(pkg.Edits)),
		),
	)
	defer span.End()

	a.publish(notify.KindApplyStarted, patchID, map[string]any{
		"area":     pkg.Area,
		"goal_tag": pkg.GoalTag,
		"edits":    len(pkg.Edits),
	})

	res := a.run(ctx, patchID, pkg)

	recordPackageMetrics(ctx, time.Since(started), res.OK)
	span.SetAttributes(
		attribute.Bool("ok", res.OK),
		attribute.Bool("fallback", res.Fallback),
	)
	a.finish(res, pkg)
	return res
}

// run executes the state machine for one package.
func (a *Applier) run(ctx context.Context, patchID string, pkg *edit.Package) *ApplyResult {
	state := StateValidating
	logState := func(s State) {
		state = s
		slog.Debug("package state", slog.String("patch_id", patchID), slog.String("state", string(state)))
	}
	logState(StateValidating)

	if err := pkg.Validate(); err != nil {
		return failed(patchID, KindValidation, -1, "", err.Error(), nil)
	}

	logState(StateApplying)
	partial := &ApplyResult{PatchID: patchID}
	seen := make(map[string]bool)

	for i, spec := range pkg.Edits {
		if err := a.applyEdit(ctx, patchID, spec, partial, seen); err != nil {
			return failed(patchID, err.kind, i, spec.Path, err.message, partial)
		}
	}

	logState(StateStaging)
	subject := fmt.Sprintf("%s %s/%s (patch %s)", gitvcs.PatchMarker, pkg.Area, pkg.GoalTag, patchID)
	if partial.Fallback {
		subject += " [fallback-write]"
	}
	message := subject + "\n\n" + pkg.Rationale

	logState(StateCommitting)
	if err := a.vcs.StageAndCommit(ctx, partial.Touched, message); err != nil {
		return failed(patchID, KindExternalTool, -1, "", fmt.Sprintf("stage and commit: %v", err), partial)
	}

	logState(StateDone)
	partial.OK = true
	return partial
}

// editFailure is an edit-level failure with its result classification.
type editFailure struct {
	kind    ErrorKind
	message string
}

// applyEdit runs one edit end to end and accumulates its outputs into res.
func (a *Applier) applyEdit(ctx context.Context, patchID string, spec edit.Spec, res *ApplyResult, seen map[string]bool) *editFailure {
	before, err := a.readNormalized(spec.Path)
	if err != nil {
		return &editFailure{kind: KindExternalTool, message: err.Error()}
	}

	beforeSHA, err := a.vcs.HashObject(ctx, spec.Path)
	if err != nil {
		return &editFailure{kind: KindExternalTool, message: fmt.Sprintf("hashing %s: %v", spec.Path, err)}
	}

	after, err := edit.Apply(before, spec)
	if err != nil {
		kind := KindMatchNotFound
		if errors.Is(err, edit.ErrPattern) {
			kind = KindPattern
		}
		return &editFailure{kind: kind, message: err.Error()}
	}
	after = textnorm.Normalize(after)
	if after == before {
		return &editFailure{kind: KindMatchNotFound, message: "replacement produced no change"}
	}

	diffText := diffgen.Unified(spec.Path, before, after, a.contextLines)

	if err := a.writeEdit(ctx, patchID, spec.Path, after, diffText, res); err != nil {
		return err
	}

	afterSHA, err := a.vcs.HashObject(ctx, spec.Path)
	if err != nil {
		return &editFailure{kind: KindExternalTool, message: fmt.Sprintf("hashing %s: %v", spec.Path, err)}
	}

	res.Diffs = append(res.Diffs, diffText)
	res.FileSHAs = append(res.FileSHAs, FileSHA{Path: spec.Path, Before: beforeSHA, After: afterSHA})
	if !seen[spec.Path] {
		seen[spec.Path] = true
		res.Touched = append(res.Touched, spec.Path)
	}
	return nil
}

// writeEdit mutates the file, preferring the native patch mechanism and
// falling back to a direct overwrite when the apply check fails. The
// fallback guarantees the end content matches the edit engine's output
// even when earlier edits in the package invalidated the diff's context.
func (a *Applier) writeEdit(ctx context.Context, patchID, path, after, diffText string, res *ApplyResult) *editFailure {
	ok, detail, err := a.vcs.CheckApply(ctx, diffText)
	if err != nil {
		return &editFailure{kind: KindExternalTool, message: fmt.Sprintf("apply check for %s: %v", path, err)}
	}

	if ok {
		if err := a.vcs.Apply(ctx, diffText); err != nil {
			return &editFailure{kind: KindExternalTool, message: fmt.Sprintf("applying diff to %s: %v", path, err)}
		}
		return nil
	}

	slog.Info("native apply check failed, overwriting directly",
		slog.String("patch_id", patchID),
		slog.String("path", path),
		slog.String("detail", detail),
	)
	recordFallback(ctx)
	a.publish(notify.KindFallbackWrite, patchID, map[string]any{"path": path, "detail": detail})

	if err := a.vcs.WriteDirect(path, after); err != nil {
		return &editFailure{kind: KindExternalTool, message: fmt.Sprintf("overwriting %s: %v", path, err)}
	}
	res.Fallback = true
	return nil
}

// readNormalized reads the current content of a repo-relative path,
// normalized. Missing files read as the empty string.
func (a *Applier) readNormalized(path string) (string, error) {
	data, err := os.ReadFile(filepath.Join(a.root, filepath.FromSlash(path)))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return textnorm.NormalizeBytes(data), nil
}

// finish publishes the terminal notification and, for failures, records
// an error event. Registry write failures are logged and swallowed: the
// apply outcome stands on its own.
func (a *Applier) finish(res *ApplyResult, pkg *edit.Package) {
	data := map[string]any{"ok": res.OK, "touched": len(res.Touched), "fallback": res.Fallback}
	if pkg != nil {
		data["area"] = pkg.Area
	}
	a.publish(notify.KindApplyFinished, res.PatchID, data)

	if res.OK || a.reg == nil {
		return
	}
	payload := map[string]any{
		"kind":       string(res.Error.Kind),
		"message":    res.Error.Message,
		"edit_index": res.Error.EditIndex,
	}
	if err := a.reg.Record(res.PatchID, registry.EventError, payload); err != nil {
		slog.Warn("recording error event failed",
			slog.String("patch_id", res.PatchID),
			slog.String("error", err.Error()),
		)
	}
}

func (a *Applier) publish(kind notify.Kind, patchID string, data map[string]any) {
	if a.notifier != nil {
		a.notifier.Publish(kind, patchID, data)
	}
}
