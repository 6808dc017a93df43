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

import "encoding/json"

// ErrorKind classifies an application failure.
type ErrorKind string

const (
	// KindValidation is a malformed package or edit shape. Raised before
	// any file is touched.
	KindValidation ErrorKind = "validation"

	// KindDecode is malformed JSON input.
	KindDecode ErrorKind = "decode"

	// KindMatchNotFound is an edit whose target text does not occur in
	// the file, or whose replacement produces no change.
	KindMatchNotFound ErrorKind = "match_not_found"

	// KindPattern is a regex pattern that failed to compile.
	KindPattern ErrorKind = "pattern"

	// KindExternalTool is a missing version-control tool or a non-zero
	// exit during apply, stage or commit.
	KindExternalTool ErrorKind = "external_tool"
)

// ApplyError describes why a package failed.
type ApplyError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`

	// EditIndex is the zero-based index of the failing edit, or -1 for
	// package-level failures.
	EditIndex int `json:"edit_index"`

	// Path is the failing edit's target, when one is known.
	Path string `json:"path,omitempty"`
}

// FileSHA is the before/after content id of one touched file. Before is
// the all-zero sentinel for files created by the package.
type FileSHA struct {
	Path   string `json:"path"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// ApplyResult is the structured outcome of one package application.
// Failure is reported through OK and Error, never by a Go error, so
// callers always branch on the same shape.
type ApplyResult struct {
	OK      bool   `json:"ok"`
	PatchID string `json:"patch_id"`

	// Touched lists every file the package wrote, deduplicated, in
	// insertion order.
	Touched []string `json:"touched,omitempty"`

	// Diffs holds the unified diff of every edit, in edit order.
	Diffs []string `json:"diffs,omitempty"`

	// FileSHAs holds one before/after record per touched file.
	FileSHAs []FileSHA `json:"file_shas,omitempty"`

	// Fallback reports whether any edit bypassed the native patch
	// mechanism and was written directly.
	Fallback bool `json:"fallback,omitempty"`

	Error *ApplyError `json:"error,omitempty"`
}

// JSON renders the result as indented JSON.
func (r *ApplyResult) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// failed builds a Failed-state result.
func failed(patchID string, kind ErrorKind, editIndex int, path, message string, partial *ApplyResult) *ApplyResult {
	out := &ApplyResult{PatchID: patchID}
	if partial != nil {
		out.Touched = partial.Touched
		out.Diffs = partial.Diffs
		out.FileSHAs = partial.FileSHAs
		out.Fallback = partial.Fallback
	}
	out.Error = &ApplyError{Kind: kind, Message: message, EditIndex: editIndex, Path: path}
	return out
}
