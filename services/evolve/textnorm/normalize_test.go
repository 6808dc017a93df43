// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package textnorm

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lf_only", "a\nb\n", "a\nb\n"},
		{"crlf", "a\r\nb\r\n", "a\nb\n"},
		{"bare_cr", "a\rb\r", "a\nb\n"},
		{"mixed", "a\r\nb\rc\n", "a\nb\nc\n"},
		{"no_trailing_newline", "a\nb", "a\nb\n"},
		{"many_trailing_newlines", "a\n\n\n", "a\n"},
		{"trailing_crlf_run", "a\r\n\r\n", "a\n"},
		{"empty", "", "\n"},
		{"single_newline", "\n", "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.input)
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{"a\r\nb\rc", "x\n\n\n", "", "one\r\ntwo\r\nthree\r\n"}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q vs %q", in, once, twice)
		}
	}
}

func TestNormalize_OnlyLFAndOneTrailing(t *testing.T) {
	got := Normalize("a\r\nb\rc\r\n\r\n")
	if strings.Contains(got, "\r") {
		t.Errorf("normalized content still contains CR: %q", got)
	}
	if !strings.HasSuffix(got, "\n") || strings.HasSuffix(got, "\n\n") {
		t.Errorf("normalized content must end with exactly one LF: %q", got)
	}
}

func TestSplitLines(t *testing.T) {
	t.Run("normal", func(t *testing.T) {
		lines := SplitLines("a\nb\n")
		if len(lines) != 2 || lines[0] != "a" || lines[1] != "b" {
			t.Errorf("SplitLines = %v", lines)
		}
	})
	t.Run("empty", func(t *testing.T) {
		if lines := SplitLines(""); lines != nil {
			t.Errorf("SplitLines(\"\") = %v, want nil", lines)
		}
	})
	t.Run("single_empty_line", func(t *testing.T) {
		lines := SplitLines("\n")
		if len(lines) != 1 || lines[0] != "" {
			t.Errorf("SplitLines(\"\\n\") = %v", lines)
		}
	})
}
