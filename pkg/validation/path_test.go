// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import "testing"

func TestValidateRelPath(t *testing.T) {
	valid := []string{
		"main.go",
		"services/evolve/edit/engine.go",
		"a/b/c.txt",
		"weird name/with spaces.md",
	}
	for _, p := range valid {
		if err := ValidateRelPath(p); err != nil {
			t.Errorf("ValidateRelPath(%q) = %v, want nil", p, err)
		}
	}

	invalid := []string{
		"",
		"/etc/passwd",
		"../outside.go",
		"a/../../outside.go",
		"a/./b.go",
		"-rf",
		"C:\\windows\\system32",
		"a\x00b",
	}
	for _, p := range invalid {
		if err := ValidateRelPath(p); err == nil {
			t.Errorf("ValidateRelPath(%q) = nil, want error", p)
		}
	}
}

func TestSanitizeRelPath(t *testing.T) {
	got, err := SanitizeRelPath("a\\b\\c.go")
	if err != nil {
		t.Fatalf("SanitizeRelPath error: %v", err)
	}
	if got != "a/b/c.go" {
		t.Errorf("SanitizeRelPath = %q, want a/b/c.go", got)
	}

	if _, err := SanitizeRelPath("../nope"); err == nil {
		t.Error("SanitizeRelPath accepted traversal path")
	}
}
