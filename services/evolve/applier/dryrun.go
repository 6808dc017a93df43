// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package applier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/evolve/services/evolve/diffgen"
	"github.com/AleutianAI/evolve/services/evolve/edit"
	"github.com/AleutianAI/evolve/services/evolve/registry"
	"github.com/AleutianAI/evolve/services/evolve/textnorm"
)

// DryRun evaluates a package without mutating any file.
//
// Every edit is run through the edit engine and the diff synthesizer
// against the current tree, and each diff is offered to the native apply
// check. The result reports the diffs a real application would produce;
// Fallback is set when at least one diff would not apply natively.
// Because edits are evaluated against the unmodified tree, a later edit
// that depends on an earlier one may report a fallback here and apply
// natively in a real run.
func (a *Applier) DryRun(ctx context.Context, pkg *edit.Package) *ApplyResult {
	patchID := uuid.NewString()

	ctx, span := tracer.Start(ctx, "Applier.DryRun",
		trace.WithAttributes(
			attribute.String("patch_id", patchID),
			attribute.Int("edits", len(pkg.Edits)),
		),
	)
	defer span.End()

	if err := pkg.Validate(); err != nil {
		return failed(patchID, KindValidation, -1, "", err.Error(), nil)
	}

	res := &ApplyResult{PatchID: patchID}
	seen := make(map[string]bool)

	for i, spec := range pkg.Edits {
		before, err := a.readNormalized(spec.Path)
		if err != nil {
			return failed(patchID, KindExternalTool, i, spec.Path, err.Error(), res)
		}

		after, err := edit.Apply(before, spec)
		if err != nil {
			kind := KindMatchNotFound
			if errors.Is(err, edit.ErrPattern) {
				kind = KindPattern
			}
			return failed(patchID, kind, i, spec.Path, err.Error(), res)
		}
		after = textnorm.Normalize(after)
		if after == before {
			return failed(patchID, KindMatchNotFound, i, spec.Path, "replacement produced no change", res)
		}

		diffText := diffgen.Unified(spec.Path, before, after, a.contextLines)
		ok, _, err := a.vcs.CheckApply(ctx, diffText)
		if err != nil {
			return failed(patchID, KindExternalTool, i, spec.Path, fmt.Sprintf("apply check: %v", err), res)
		}
		if !ok {
			res.Fallback = true
		}

		res.Diffs = append(res.Diffs, diffText)
		if !seen[spec.Path] {
			seen[spec.Path] = true
			res.Touched = append(res.Touched, spec.Path)
		}
	}

	res.OK = true
	if a.reg != nil {
		payload := map[string]any{
			"area":     pkg.Area,
			"goal_tag": pkg.GoalTag,
			"edits":    len(pkg.Edits),
			"fallback": res.Fallback,
		}
		if err := a.reg.Record(patchID, registry.EventDryRun, payload); err != nil {
			slog.Warn("recording dry-run event failed",
				slog.String("patch_id", patchID),
				slog.String("error", err.Error()),
			)
		}
	}
	return res
}
