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

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/evolve/services/evolve/edit"
	"github.com/AleutianAI/evolve/services/evolve/gitvcs"
	"github.com/AleutianAI/evolve/services/evolve/notify"
	"github.com/AleutianAI/evolve/services/evolve/registry"
)

// newTestApplier wires an Applier over a LocalClient in a fresh tree.
func newTestApplier(t *testing.T, opts ...Option) (*Applier, *gitvcs.LocalClient, string) {
	t.Helper()
	root := t.TempDir()
	vcs := gitvcs.NewLocalClient(root)
	return New(vcs, root, opts...), vcs, root
}

func writeFile(t *testing.T, root, path, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(path))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0644))
}

func readFile(t *testing.T, root, path string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(path)))
	require.NoError(t, err)
	return string(data)
}

func onePackage(edits ...edit.Spec) *edit.Package {
	return &edit.Package{
		Area:      "prompts",
		GoalTag:   "tone-fix",
		Rationale: "Soften the refusal template.",
		Edits:     edits,
	}
}

func TestApply_SingleEdit(t *testing.T) {
	a, vcs, root := newTestApplier(t)
	writeFile(t, root, "greeting.txt", "hello world\n")

	pkg := onePackage(edit.Spec{
		Path:    "greeting.txt",
		Matcher: edit.Exact{Match: "world", Replace: "gopher"},
	})
	res := a.Apply(context.Background(), pkg)

	require.True(t, res.OK, "error: %+v", res.Error)
	assert.Equal(t, []string{"greeting.txt"}, res.Touched)
	require.Len(t, res.Diffs, 1)
	assert.Contains(t, res.Diffs[0], "--- a/greeting.txt")
	assert.False(t, res.Fallback)
	assert.Equal(t, "hello gopher\n", readFile(t, root, "greeting.txt"))

	require.Len(t, res.FileSHAs, 1)
	assert.Equal(t, gitvcs.BlobSHA("hello world\n"), res.FileSHAs[0].Before)
	assert.Equal(t, gitvcs.BlobSHA("hello gopher\n"), res.FileSHAs[0].After)
	assert.NotEqual(t, res.FileSHAs[0].Before, res.FileSHAs[0].After)

	require.Len(t, vcs.Commits(), 1)
	msg := vcs.LastMessage()
	assert.Contains(t, msg, gitvcs.PatchMarker)
	assert.Contains(t, msg, "prompts/tone-fix")
	assert.Contains(t, msg, "(patch "+res.PatchID+")")
	assert.Contains(t, msg, pkg.Rationale)
	assert.NotContains(t, msg, "[fallback-write]")
}

func TestApply_PartialFailureLeavesEarlierWrites(t *testing.T) {
	a, vcs, root := newTestApplier(t)
	writeFile(t, root, "a.txt", "alpha\n")
	writeFile(t, root, "b.txt", "bravo\n")

	pkg := onePackage(
		edit.Spec{Path: "a.txt", Matcher: edit.Exact{Match: "alpha", Replace: "ALPHA"}},
		edit.Spec{Path: "b.txt", Matcher: edit.Exact{Match: "charlie", Replace: "x"}},
	)
	res := a.Apply(context.Background(), pkg)

	require.False(t, res.OK)
	require.NotNil(t, res.Error)
	assert.Equal(t, KindMatchNotFound, res.Error.Kind)
	assert.Equal(t, 1, res.Error.EditIndex)
	assert.Equal(t, "b.txt", res.Error.Path)

	// The first edit stays on disk, uncommitted.
	assert.Equal(t, "ALPHA\n", readFile(t, root, "a.txt"))
	assert.Equal(t, "bravo\n", readFile(t, root, "b.txt"))
	assert.Empty(t, vcs.Commits())

	// The result still describes the completed edit.
	assert.Equal(t, []string{"a.txt"}, res.Touched)
	assert.Len(t, res.Diffs, 1)
}

func TestApply_FallbackWrite(t *testing.T) {
	notes := make([]notify.Note, 0)
	notifier := notify.NewNotifier()
	notifier.Subscribe(func(n notify.Note) { notes = append(notes, n) }, notify.KindFallbackWrite)

	a, vcs, root := newTestApplier(t, WithNotifier(notifier))
	vcs.ForceCheckFailure = true
	writeFile(t, root, "cfg.yaml", "retries: 1\n")

	pkg := onePackage(edit.Spec{
		Path:    "cfg.yaml",
		Matcher: edit.Exact{Match: "retries: 1", Replace: "retries: 3"},
	})
	res := a.Apply(context.Background(), pkg)

	require.True(t, res.OK, "error: %+v", res.Error)
	assert.True(t, res.Fallback)
	assert.Equal(t, "retries: 3\n", readFile(t, root, "cfg.yaml"))
	assert.Contains(t, vcs.LastMessage(), "[fallback-write]")

	require.Len(t, notes, 1)
	assert.Equal(t, "cfg.yaml", notes[0].Data["path"])
}

func TestApply_SameFileTwiceDeduplicated(t *testing.T) {
	a, _, root := newTestApplier(t)
	writeFile(t, root, "main.txt", "one\ntwo\nthree\n")

	pkg := onePackage(
		edit.Spec{Path: "main.txt", Matcher: edit.Exact{Match: "one", Replace: "ONE"}},
		edit.Spec{Path: "main.txt", Matcher: edit.Exact{Match: "three", Replace: "THREE"}},
	)
	res := a.Apply(context.Background(), pkg)

	require.True(t, res.OK, "error: %+v", res.Error)
	assert.Equal(t, []string{"main.txt"}, res.Touched)
	assert.Len(t, res.Diffs, 2)
	assert.Len(t, res.FileSHAs, 2)
	assert.Equal(t, "ONE\ntwo\nTHREE\n", readFile(t, root, "main.txt"))

	// The second edit's before hash is the first edit's after hash.
	assert.Equal(t, res.FileSHAs[0].After, res.FileSHAs[1].Before)
}

func TestApply_ReapplyFails(t *testing.T) {
	a, vcs, root := newTestApplier(t)
	writeFile(t, root, "greeting.txt", "hello world\n")

	pkg := onePackage(edit.Spec{
		Path:    "greeting.txt",
		Matcher: edit.Exact{Match: "world", Replace: "gopher"},
	})
	require.True(t, a.Apply(context.Background(), pkg).OK)

	res := a.Apply(context.Background(), pkg)
	require.False(t, res.OK)
	assert.Equal(t, KindMatchNotFound, res.Error.Kind)
	assert.Len(t, vcs.Commits(), 1)
}

func TestApply_ValidationFailsBeforeAnyWrite(t *testing.T) {
	a, vcs, root := newTestApplier(t)
	writeFile(t, root, "a.txt", "alpha\n")

	pkg := onePackage(edit.Spec{Path: "a.txt", Matcher: edit.Exact{Match: "alpha", Replace: "x"}})
	pkg.Area = ""
	res := a.Apply(context.Background(), pkg)

	require.False(t, res.OK)
	assert.Equal(t, KindValidation, res.Error.Kind)
	assert.Equal(t, -1, res.Error.EditIndex)
	assert.Equal(t, "alpha\n", readFile(t, root, "a.txt"))
	assert.Empty(t, vcs.Commits())
}

func TestApply_CommitFailure(t *testing.T) {
	a, vcs, root := newTestApplier(t)
	vcs.FailCommit = true
	writeFile(t, root, "a.txt", "alpha\n")

	pkg := onePackage(edit.Spec{Path: "a.txt", Matcher: edit.Exact{Match: "alpha", Replace: "ALPHA"}})
	res := a.Apply(context.Background(), pkg)

	require.False(t, res.OK)
	assert.Equal(t, KindExternalTool, res.Error.Kind)
	// The file content stays as written; only the commit is withheld.
	assert.Equal(t, "ALPHA\n", readFile(t, root, "a.txt"))
}

func TestApply_ToolUnavailable(t *testing.T) {
	a, vcs, root := newTestApplier(t)
	vcs.Unavailable = true
	writeFile(t, root, "a.txt", "alpha\n")

	pkg := onePackage(edit.Spec{Path: "a.txt", Matcher: edit.Exact{Match: "alpha", Replace: "ALPHA"}})
	res := a.Apply(context.Background(), pkg)

	require.False(t, res.OK)
	assert.Equal(t, KindExternalTool, res.Error.Kind)
}

func TestApply_NoOpReplacementRejected(t *testing.T) {
	a, _, root := newTestApplier(t)
	writeFile(t, root, "a.txt", "alpha\n")

	pkg := onePackage(edit.Spec{Path: "a.txt", Matcher: edit.Exact{Match: "alpha", Replace: "alpha"}})
	res := a.Apply(context.Background(), pkg)

	require.False(t, res.OK)
	assert.Equal(t, KindMatchNotFound, res.Error.Kind)
	assert.Contains(t, res.Error.Message, "no change")
}

func TestApply_RecordsErrorEvent(t *testing.T) {
	reg, err := registry.New(filepath.Join(t.TempDir(), "events.jsonl"))
	require.NoError(t, err)
	defer reg.Close()

	a, _, _ := newTestApplier(t, WithRegistry(reg))
	pkg := onePackage(edit.Spec{Path: "missing.txt", Matcher: edit.Exact{Match: "x", Replace: "y"}})
	res := a.Apply(context.Background(), pkg)
	require.False(t, res.OK)

	recs, err := reg.ListByPatch(res.PatchID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, registry.EventError, recs[0].Event)
	assert.Equal(t, "match_not_found", recs[0].Payload["kind"])
}

func TestApplyJSON(t *testing.T) {
	t.Run("well_formed", func(t *testing.T) {
		a, _, root := newTestApplier(t)
		writeFile(t, root, "doc.md", "draft\n")

		res := a.ApplyJSON(context.Background(), []byte(`{
			"area": "docs",
			"goal_tag": "wording",
			"rationale": "Finalize the doc.",
			"edits": [{"path": "doc.md", "match": "draft", "replace": "final"}]
		}`))

		require.True(t, res.OK, "error: %+v", res.Error)
		assert.Equal(t, "final\n", readFile(t, root, "doc.md"))
	})

	t.Run("malformed_json", func(t *testing.T) {
		a, _, _ := newTestApplier(t)
		res := a.ApplyJSON(context.Background(), []byte(`{"area": `))
		require.False(t, res.OK)
		assert.Equal(t, KindDecode, res.Error.Kind)
	})

	t.Run("both_matcher_kinds", func(t *testing.T) {
		a, _, _ := newTestApplier(t)
		res := a.ApplyJSON(context.Background(), []byte(`{
			"area": "docs",
			"goal_tag": "wording",
			"rationale": "r",
			"edits": [{"path": "doc.md", "match": "a", "replace": "b", "match_re": "c", "group_replacement": "d"}]
		}`))
		require.False(t, res.OK)
		assert.Equal(t, KindValidation, res.Error.Kind)
	})
}

func TestDryRun(t *testing.T) {
	reg, err := registry.New(filepath.Join(t.TempDir(), "events.jsonl"))
	require.NoError(t, err)
	defer reg.Close()

	a, vcs, root := newTestApplier(t, WithRegistry(reg))
	writeFile(t, root, "greeting.txt", "hello world\n")

	pkg := onePackage(edit.Spec{
		Path:    "greeting.txt",
		Matcher: edit.Exact{Match: "world", Replace: "gopher"},
	})
	res := a.DryRun(context.Background(), pkg)

	require.True(t, res.OK, "error: %+v", res.Error)
	assert.Equal(t, []string{"greeting.txt"}, res.Touched)
	require.Len(t, res.Diffs, 1)

	// Nothing moved on disk and nothing was committed.
	assert.Equal(t, "hello world\n", readFile(t, root, "greeting.txt"))
	assert.Empty(t, vcs.Commits())

	recs, err := reg.ListByPatch(res.PatchID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, registry.EventDryRun, recs[0].Event)
}

func TestApply_RegexEdit(t *testing.T) {
	a, _, root := newTestApplier(t)
	writeFile(t, root, "config.ini", "timeout = 30\nretries = 2\n")

	pkg := onePackage(edit.Spec{
		Path:    "config.ini",
		Matcher: edit.Regex{Pattern: `^timeout = (\d+)$`, Template: "timeout = 60 # was $1"},
	})
	res := a.Apply(context.Background(), pkg)

	require.True(t, res.OK, "error: %+v", res.Error)
	assert.Equal(t, "timeout = 60 # was 30\nretries = 2\n", readFile(t, root, "config.ini"))
}
