// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diffgen computes unified-diff text between two versions of a file.
//
// The output is standard unified diff with a/ and b/ path labels, suitable
// for `git apply`. The load-bearing contract is the round-trip property:
// applying Unified(path, before, after, n) to before reproduces after
// byte-for-byte. ApplyUnified implements that application in-process so the
// property holds without the git binary.
//
// Thread Safety:
//
//	All functions are pure and safe for concurrent use.
package diffgen

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/evolve/services/evolve/textnorm"
)

// DefaultContextLines is the context line count used when callers pass 0.
const DefaultContextLines = 3

// Unified computes the unified diff between before and after.
//
// # Description
//
//	Computes an LCS line diff, groups changed regions into hunks with
//	contextLines lines of context, and renders unified-diff text labeled
//	`--- a/<path>` / `+++ b/<path>`. Identical inputs yield an empty
//	string (no hunks, no headers). Non-empty output always ends with a
//	trailing newline. Inputs are expected to be normalized (textnorm).
//
// # Inputs
//
//   - path: Repository-relative path used in the diff labels.
//   - before: Content before the edit.
//   - after: Content after the edit.
//   - contextLines: Lines of context per hunk; <=0 means DefaultContextLines.
//
// # Outputs
//
//   - string: The unified diff text, or "" when before == after.
func Unified(path, before, after string, contextLines int) string {
	if before == after {
		return ""
	}
	if contextLines <= 0 {
		contextLines = DefaultContextLines
	}

	a := textnorm.SplitLines(before)
	b := textnorm.SplitLines(after)
	ops := editScript(a, b)
	hunks := groupHunks(ops, contextLines)
	if len(hunks) == 0 {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- a/%s\n", path)
	fmt.Fprintf(&sb, "+++ b/%s\n", path)
	for _, h := range hunks {
		renderHunk(&sb, ops, h, a, b)
	}
	return sb.String()
}

type opKind int

const (
	opEqual opKind = iota
	opDelete
	opInsert
)

// op is one line-level operation. aIdx/bIdx index into the respective line
// slices; -1 means the operation does not consume a line on that side.
type op struct {
	kind opKind
	aIdx int
	bIdx int
}

// editScript computes a full LCS-based edit script covering every line of
// both inputs, equal lines included.
func editScript(a, b []string) []op {
	m, n := len(a), len(b)

	lcs := make([][]int, m+1)
	for i := range lcs {
		lcs[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if a[i-1] == b[j-1] {
				lcs[i][j] = lcs[i-1][j-1] + 1
			} else if lcs[i-1][j] >= lcs[i][j-1] {
				lcs[i][j] = lcs[i-1][j]
			} else {
				lcs[i][j] = lcs[i][j-1]
			}
		}
	}

	// Backtrack from the corner, then reverse.
	var rev []op
	i, j := m, n
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && a[i-1] == b[j-1]:
			rev = append(rev, op{kind: opEqual, aIdx: i - 1, bIdx: j - 1})
			i--
			j--
		case j > 0 && (i == 0 || lcs[i][j-1] >= lcs[i-1][j]):
			rev = append(rev, op{kind: opInsert, aIdx: -1, bIdx: j - 1})
			j--
		default:
			rev = append(rev, op{kind: opDelete, aIdx: i - 1, bIdx: -1})
			i--
		}
	}

	ops := make([]op, len(rev))
	for k := range rev {
		ops[k] = rev[len(rev)-1-k]
	}
	return ops
}

// hunk is a half-open range [start, end) into the edit script.
type hunk struct {
	start int
	end   int
}

// groupHunks clusters changed operations into hunks, merging clusters whose
// equal-line gap is at most 2*contextLines, then widens each cluster by the
// context amount.
func groupHunks(ops []op, contextLines int) []hunk {
	type cluster struct{ first, last int }
	var clusters []cluster
	for k, o := range ops {
		if o.kind == opEqual {
			continue
		}
		if len(clusters) > 0 && k-clusters[len(clusters)-1].last-1 <= 2*contextLines {
			clusters[len(clusters)-1].last = k
			continue
		}
		clusters = append(clusters, cluster{first: k, last: k})
	}

	hunks := make([]hunk, 0, len(clusters))
	for _, c := range clusters {
		start := c.first - contextLines
		if start < 0 {
			start = 0
		}
		end := c.last + 1 + contextLines
		if end > len(ops) {
			end = len(ops)
		}
		hunks = append(hunks, hunk{start: start, end: end})
	}
	return hunks
}

// renderHunk writes one @@ header plus body lines for the range h.
func renderHunk(sb *strings.Builder, ops []op, h hunk, a, b []string) {
	// Lines consumed on each side before the hunk starts.
	aBefore, bBefore := 0, 0
	for _, o := range ops[:h.start] {
		if o.kind != opInsert {
			aBefore++
		}
		if o.kind != opDelete {
			bBefore++
		}
	}

	oldCount, newCount := 0, 0
	for _, o := range ops[h.start:h.end] {
		if o.kind != opInsert {
			oldCount++
		}
		if o.kind != opDelete {
			newCount++
		}
	}

	// Unified-diff convention: a zero-length range is positioned at the
	// line before the hunk, a non-empty range at its first line (1-based).
	oldPos := aBefore
	if oldCount > 0 {
		oldPos = aBefore + 1
	}
	newPos := bBefore
	if newCount > 0 {
		newPos = bBefore + 1
	}

	fmt.Fprintf(sb, "@@ -%d,%d +%d,%d @@\n", oldPos, oldCount, newPos, newCount)

	for _, o := range ops[h.start:h.end] {
		switch o.kind {
		case opEqual:
			sb.WriteString(" ")
			sb.WriteString(a[o.aIdx])
		case opDelete:
			sb.WriteString("-")
			sb.WriteString(a[o.aIdx])
		case opInsert:
			sb.WriteString("+")
			sb.WriteString(b[o.bIdx])
		}
		sb.WriteString("\n")
	}
}
