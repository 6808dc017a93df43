// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diffgen

import (
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/AleutianAI/evolve/services/evolve/textnorm"
)

// ApplyUnified applies a unified diff produced by Unified to before.
//
// # Description
//
//	In-process hunk application: context and deleted lines are verified
//	against before, added lines are emitted. An empty diff returns before
//	unchanged. Used by the in-memory VCS fake and by the round-trip tests;
//	the production path applies diffs through the git binary.
//
// # Inputs
//
//   - before: Content the diff was computed against.
//   - diffText: Unified diff text. May be empty.
//
// # Outputs
//
//   - string: The patched content.
//   - error: Non-nil if the diff does not parse or its context does not
//     match before.
func ApplyUnified(before, diffText string) (string, error) {
	if diffText == "" {
		return before, nil
	}

	fd, err := diff.ParseFileDiff([]byte(diffText))
	if err != nil {
		return "", fmt.Errorf("parsing diff: %w", err)
	}

	lines := textnorm.SplitLines(before)
	var out []string
	cursor := 0

	for _, h := range fd.Hunks {
		start := int(h.OrigStartLine) - 1
		if h.OrigLines == 0 {
			start = int(h.OrigStartLine)
		}
		if start < cursor || start > len(lines) {
			return "", fmt.Errorf("hunk start %d outside remaining content", h.OrigStartLine)
		}
		out = append(out, lines[cursor:start]...)
		cursor = start

		for _, bl := range strings.Split(strings.TrimSuffix(string(h.Body), "\n"), "\n") {
			if bl == "" {
				// Some emitters strip the single space from empty
				// context lines.
				bl = " "
			}
			switch bl[0] {
			case ' ':
				if cursor >= len(lines) || lines[cursor] != bl[1:] {
					return "", fmt.Errorf("context mismatch at line %d", cursor+1)
				}
				out = append(out, lines[cursor])
				cursor++
			case '-':
				if cursor >= len(lines) || lines[cursor] != bl[1:] {
					return "", fmt.Errorf("deletion mismatch at line %d", cursor+1)
				}
				cursor++
			case '+':
				out = append(out, bl[1:])
			case '\\':
				// "\ No newline at end of file" - normalized content
				// never produces this; ignore it on input.
			default:
				return "", fmt.Errorf("malformed hunk line %q", bl)
			}
		}
	}

	out = append(out, lines[cursor:]...)
	if len(out) == 0 {
		return "", nil
	}
	return strings.Join(out, "\n") + "\n", nil
}

// Stats reports the added and deleted line counts of a unified diff.
func Stats(diffText string) (added, deleted int, err error) {
	if diffText == "" {
		return 0, 0, nil
	}
	fd, err := diff.ParseFileDiff([]byte(diffText))
	if err != nil {
		return 0, 0, fmt.Errorf("parsing diff: %w", err)
	}
	st := fd.Stat()
	return int(st.Added + st.Changed), int(st.Deleted + st.Changed), nil
}
