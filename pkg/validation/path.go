// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for externally supplied inputs that are used in
// file paths or subprocess calls. Using these validators prevents injection attacks
// (command injection, path traversal).
package validation

import (
	"fmt"
	"path"
	"strings"
)

// ValidateRelPath validates a repository-relative file path supplied by an
// external proposal generator.
//
// Valid paths:
//   - Non-empty
//   - Relative (no leading "/" and no drive prefix)
//   - No "." or ".." traversal segments
//   - No NUL bytes, no "-" prefix (would be parsed as a flag by subprocesses)
//
// Returns an error if the path is invalid.
//
// Example:
//
//	if err := validation.ValidateRelPath(spec.Path); err != nil {
//	    return fmt.Errorf("invalid edit path: %w", err)
//	}
//	// Safe to join under the repository root
func ValidateRelPath(p string) error {
	if p == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if strings.ContainsRune(p, 0) {
		return fmt.Errorf("path contains NUL byte")
	}
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, "\\") {
		return fmt.Errorf("path must be repository-relative: %q", p)
	}
	if len(p) > 1 && p[1] == ':' {
		return fmt.Errorf("path must not carry a drive prefix: %q", p)
	}
	if strings.HasPrefix(p, "-") {
		return fmt.Errorf("path must not begin with '-': %q", p)
	}
	for _, seg := range strings.Split(strings.ReplaceAll(p, "\\", "/"), "/") {
		if seg == ".." || seg == "." {
			return fmt.Errorf("path must not contain traversal segments: %q", p)
		}
	}
	return nil
}

// SanitizeRelPath normalizes and validates a repository-relative path.
// Returns the slash-separated cleaned path if valid, or an error if invalid.
//
// Use this when you need both validation and normalization:
//
//	safePath, err := validation.SanitizeRelPath(spec.Path)
//	if err != nil {
//	    return err
//	}
//	// safePath is clean, forward-slashed, and validated
func SanitizeRelPath(p string) (string, error) {
	if err := ValidateRelPath(p); err != nil {
		return "", err
	}
	cleaned := path.Clean(strings.ReplaceAll(p, "\\", "/"))
	// Clean can only surface traversal that ValidateRelPath already rejects,
	// but re-check so the two stay independent.
	if err := ValidateRelPath(cleaned); err != nil {
		return "", err
	}
	return cleaned, nil
}
