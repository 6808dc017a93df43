// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gitvcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/AleutianAI/evolve/services/evolve/diffgen"
)

// initTestRepo creates a throwaway git repository, or skips the test when
// the git binary is not installed.
func initTestRepo(t *testing.T) (*GitClient, string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not installed")
	}

	dir := t.TempDir()
	for _, args := range [][]string{
		{"init"},
		{"config", "user.email", "test@example.com"},
		{"config", "user.name", "test"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	return NewGitClient(dir), dir
}

func TestGitClient_HashObject(t *testing.T) {
	g, dir := initTestRepo(t)
	ctx := context.Background()

	sha, err := g.HashObject(ctx, "missing.go")
	if err != nil {
		t.Fatalf("HashObject() error = %v", err)
	}
	if sha != ZeroSHA {
		t.Errorf("HashObject(missing) = %s, want ZeroSHA", sha)
	}

	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("hello\n"), 0644); err != nil {
		t.Fatal(err)
	}
	sha, err = g.HashObject(ctx, "f.txt")
	if err != nil {
		t.Fatalf("HashObject() error = %v", err)
	}
	if sha != BlobSHA("hello\n") {
		t.Errorf("git hash-object disagrees with BlobSHA: %s vs %s", sha, BlobSHA("hello\n"))
	}
}

func TestGitClient_CheckApplyApplyCommit(t *testing.T) {
	g, dir := initTestRepo(t)
	ctx := context.Background()

	before := "a\nb\nc\n"
	after := "a\nX\nc\n"
	if err := g.WriteDirect("pkg/a.go", before); err != nil {
		t.Fatal(err)
	}
	if err := g.StageAndCommit(ctx, []string{"pkg/a.go"}, "base commit"); err != nil {
		t.Fatalf("StageAndCommit() error = %v", err)
	}

	d := diffgen.Unified("pkg/a.go", before, after, 3)

	ok, detail, err := g.CheckApply(ctx, d)
	if err != nil {
		t.Fatalf("CheckApply() error = %v", err)
	}
	if !ok {
		t.Fatalf("CheckApply() = false: %s\ndiff:\n%s", detail, d)
	}

	if err := g.Apply(ctx, d); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "pkg/a.go"))
	if string(data) != after {
		t.Errorf("applied content = %q, want %q", data, after)
	}

	// Diff no longer applies once the tree moved on.
	ok, _, err = g.CheckApply(ctx, d)
	if err != nil {
		t.Fatalf("CheckApply() error = %v", err)
	}
	if ok {
		t.Error("CheckApply() should report failure after mutation")
	}

	msg := PatchMarker + " search/latency (patch 11111111-2222-3333-4444-555555555555)"
	if err := g.StageAndCommit(ctx, []string{"pkg/a.go"}, msg); err != nil {
		t.Fatalf("StageAndCommit() error = %v", err)
	}

	commits, err := g.RecentPatchCommits(ctx, 5)
	if err != nil {
		t.Fatalf("RecentPatchCommits() error = %v", err)
	}
	if len(commits) != 1 {
		t.Fatalf("want 1 marked commit, got %d", len(commits))
	}
	if commits[0].PatchID != "11111111-2222-3333-4444-555555555555" {
		t.Errorf("PatchID = %q", commits[0].PatchID)
	}

	touched, err := g.CommitTouches(ctx, commits[0].SHA, "pkg/a.go")
	if err != nil || !touched {
		t.Errorf("CommitTouches() = %v, %v, want true", touched, err)
	}
}

func TestGitClient_Revert(t *testing.T) {
	g, dir := initTestRepo(t)
	ctx := context.Background()

	if err := g.WriteDirect("a.go", "committed\n"); err != nil {
		t.Fatal(err)
	}
	if err := g.StageAndCommit(ctx, []string{"a.go"}, "base"); err != nil {
		t.Fatal(err)
	}
	if err := g.WriteDirect("a.go", "dirty\n"); err != nil {
		t.Fatal(err)
	}

	if err := g.Revert(ctx, []string{"a.go"}); err != nil {
		t.Fatalf("Revert() error = %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "a.go"))
	if string(data) != "committed\n" {
		t.Errorf("reverted content = %q", data)
	}
}
