// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"strings"
	"testing"
)

func TestSetMachine(t *testing.T) {
	t.Cleanup(func() { SetMachine(false) })

	SetMachine(true)
	if !Machine() {
		t.Fatal("Machine() = false after SetMachine(true)")
	}
	SetMachine(false)
	if Machine() {
		t.Fatal("Machine() = true after SetMachine(false)")
	}
}

func TestIconRender(t *testing.T) {
	tests := []struct {
		icon Icon
		want string
	}{
		{IconSuccess, "✓"},
		{IconWarning, "⚠"},
		{IconError, "✗"},
		{IconPending, "○"},
		{IconArrow, "→"},
	}
	for _, tt := range tests {
		if got := tt.icon.Render(); !strings.Contains(got, tt.want) {
			t.Errorf("Icon(%q).Render() = %q, want it to contain %q", tt.icon, got, tt.want)
		}
	}
}
