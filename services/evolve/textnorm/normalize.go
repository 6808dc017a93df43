// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package textnorm canonicalizes file content before it enters the edit
// pipeline. Every read, write, diff, and hash in this service goes through
// Normalize first so that comparisons are platform independent.
//
// Thread Safety:
//
//	All functions are pure and safe for concurrent use.
package textnorm

import "strings"

// Normalize converts CRLF and bare CR line endings to LF and guarantees the
// result ends with exactly one trailing LF.
//
// # Description
//
//	Normalization is the canonical form contract for the whole subsystem:
//	content is normalized before matching, before diffing, before hashing,
//	and before writing back. The operation never fails.
//
// # Inputs
//
//   - content: Arbitrary text content. May be empty.
//
// # Outputs
//
//   - string: LF-only content with exactly one trailing LF.
func Normalize(content string) string {
	s := strings.ReplaceAll(content, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.TrimRight(s, "\n")
	return s + "\n"
}

// NormalizeBytes is Normalize for raw file bytes.
func NormalizeBytes(content []byte) string {
	return Normalize(string(content))
}

// SplitLines splits normalized content into lines without the trailing LF.
// The trailing newline produces no empty final element.
func SplitLines(content string) []string {
	if content == "" {
		return nil
	}
	s := strings.TrimSuffix(content, "\n")
	if s == "" {
		return []string{""}
	}
	return strings.Split(s, "\n")
}
