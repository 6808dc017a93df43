// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package edit

import (
	"fmt"
	"regexp"
	"strings"
)

// Apply applies one spec's matcher to content and returns the new content.
//
// # Description
//
//	Exact mode replaces only the first literal occurrence of the matcher
//	string; regex metacharacters in it carry no special meaning. Regex mode
//	compiles the pattern with multi-line semantics, finds the first match,
//	and substitutes it with the expanded template ($1, ${name} capture
//	references). Apply is pure: it never touches the filesystem.
//
// # Inputs
//
//   - content: The current (normalized) file content.
//   - spec: The edit to apply. Matcher must be non-nil.
//
// # Outputs
//
//   - string: The edited content. Empty on error.
//   - error: ErrMatchNotFound if the matcher does not occur,
//     ErrPattern if a regex fails to compile.
func Apply(content string, spec Spec) (string, error) {
	switch m := spec.Matcher.(type) {
	case Exact:
		return applyExact(content, m)
	case Regex:
		return applyRegex(content, m)
	case nil:
		return "", fmt.Errorf("%w: edit for %q carries no matcher", ErrValidation, spec.Path)
	default:
		return "", fmt.Errorf("%w: unknown matcher kind %T", ErrValidation, spec.Matcher)
	}
}

func applyExact(content string, m Exact) (string, error) {
	if !strings.Contains(content, m.Match) {
		return "", fmt.Errorf("%w: exact matcher %q absent from content", ErrMatchNotFound, truncate(m.Match, 80))
	}
	return strings.Replace(content, m.Match, m.Replace, 1), nil
}

func applyRegex(content string, m Regex) (string, error) {
	re, err := regexp.Compile("(?m)" + m.Pattern)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPattern, err)
	}

	loc := re.FindStringSubmatchIndex(content)
	if loc == nil {
		return "", fmt.Errorf("%w: pattern %q matched nothing", ErrMatchNotFound, truncate(m.Pattern, 80))
	}

	// Substitute the first match only, expanding capture references.
	var out []byte
	out = append(out, content[:loc[0]]...)
	out = re.ExpandString(out, m.Template, content, loc)
	out = append(out, content[loc[1]:]...)
	return string(out), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
