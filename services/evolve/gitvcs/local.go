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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/AleutianAI/evolve/services/evolve/diffgen"
)

// LocalClient implements Client without a git binary.
//
// # Description
//
//	Files live under a plain directory; diffs are applied in-process with
//	diffgen.ApplyUnified; commit history is kept in memory. Used by tests
//	and as a substitute when the git binary is unavailable. Hashes are
//	real blob SHAs, so they agree with GitClient for the same bytes.
//
// # Thread Safety
//
// Safe for concurrent use; a single mutex serializes history mutations.
type LocalClient struct {
	workDir string

	mu        sync.Mutex
	commits   []localCommit
	snapshots []map[string]string

	// ForceCheckFailure makes CheckApply report a clean-apply failure
	// regardless of the diff. Tests use it to exercise the fallback path.
	ForceCheckFailure bool

	// FailCommit makes StageAndCommit fail. Tests use it to exercise
	// external-tool failure handling.
	FailCommit bool

	// Unavailable simulates a missing binary: every tool operation
	// returns ErrToolUnavailable.
	Unavailable bool
}

type localCommit struct {
	commit  Commit
	paths   []string
	message string
}

// NewLocalClient creates a LocalClient rooted at workDir.
func NewLocalClient(workDir string) *LocalClient {
	return &LocalClient{workDir: workDir}
}

func (l *LocalClient) abs(path string) string {
	return filepath.Join(l.workDir, filepath.FromSlash(path))
}

// HashObject returns the blob SHA of the on-disk content, or ZeroSHA for
// missing paths.
func (l *LocalClient) HashObject(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(l.abs(path))
	if os.IsNotExist(err) {
		return ZeroSHA, nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return BlobSHA(string(data)), nil
}

// CheckApply reports whether the diff would apply to the on-disk content.
func (l *LocalClient) CheckApply(_ context.Context, diffText string) (bool, string, error) {
	if l.Unavailable {
		return false, "", ErrToolUnavailable
	}
	if l.ForceCheckFailure {
		return false, "patch does not apply", nil
	}
	if _, _, err := l.patched(diffText); err != nil {
		return false, err.Error(), nil
	}
	return true, "", nil
}

// Apply applies the diff to the on-disk content.
func (l *LocalClient) Apply(_ context.Context, diffText string) error {
	if l.Unavailable {
		return ErrToolUnavailable
	}
	path, after, err := l.patched(diffText)
	if err != nil {
		return err
	}
	return l.WriteDirect(path, after)
}

// patched parses the target path out of the diff labels and computes the
// patched content of that file.
func (l *LocalClient) patched(diffText string) (path, after string, err error) {
	for _, line := range strings.Split(diffText, "\n") {
		if p, ok := strings.CutPrefix(line, "--- a/"); ok {
			path = p
			break
		}
	}
	if path == "" {
		return "", "", fmt.Errorf("diff carries no --- a/ label")
	}

	before := ""
	if data, rerr := os.ReadFile(l.abs(path)); rerr == nil {
		before = string(data)
	}

	after, err = diffgen.ApplyUnified(before, diffText)
	if err != nil {
		return "", "", fmt.Errorf("applying diff to %s: %w", path, err)
	}
	return path, after, nil
}

// WriteDirect overwrites path with content, creating parent directories.
func (l *LocalClient) WriteDirect(path, content string) error {
	abs := l.abs(path)
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("creating parent directories for %s: %w", path, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// StageAndCommit records one commit over the given paths.
func (l *LocalClient) StageAndCommit(_ context.Context, paths []string, message string) error {
	if l.Unavailable {
		return ErrToolUnavailable
	}
	if l.FailCommit {
		return fmt.Errorf("commit failed")
	}
	if len(paths) == 0 {
		return fmt.Errorf("nothing to commit")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := make(map[string]string, len(paths))
	for _, p := range paths {
		if data, err := os.ReadFile(l.abs(p)); err == nil {
			snapshot[p] = string(data)
		}
	}

	subject, _, _ := strings.Cut(message, "\n")
	c := Commit{SHA: BlobSHA(fmt.Sprintf("%d:%s", len(l.commits), message)), Subject: subject}
	if m := patchIDPattern.FindStringSubmatch(subject); m != nil {
		c.PatchID = m[1]
	}

	l.commits = append(l.commits, localCommit{commit: c, paths: append([]string(nil), paths...), message: message})
	l.snapshots = append(l.snapshots, snapshot)
	return nil
}

// Revert restores paths to their most recently committed content, removing
// files that were never committed.
func (l *LocalClient) Revert(_ context.Context, paths []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, p := range paths {
		restored := false
		for i := len(l.snapshots) - 1; i >= 0; i-- {
			if content, ok := l.snapshots[i][p]; ok {
				if err := l.WriteDirect(p, content); err != nil {
					return err
				}
				restored = true
				break
			}
		}
		if !restored {
			if err := os.Remove(l.abs(p)); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("removing %s: %w", p, err)
			}
		}
	}
	return nil
}

// RecentPatchCommits returns marked commits, newest first.
func (l *LocalClient) RecentPatchCommits(_ context.Context, limit int) ([]Commit, error) {
	if l.Unavailable {
		return nil, ErrToolUnavailable
	}
	if limit <= 0 {
		limit = 5
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Commit
	for i := len(l.commits) - 1; i >= 0 && len(out) < limit; i-- {
		if strings.Contains(l.commits[i].commit.Subject, PatchMarker) {
			out = append(out, l.commits[i].commit)
		}
	}
	return out, nil
}

// CommitTouches reports whether the commit modified path.
func (l *LocalClient) CommitTouches(_ context.Context, sha, path string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, c := range l.commits {
		if c.commit.SHA != sha {
			continue
		}
		for _, p := range c.paths {
			if p == path {
				return true, nil
			}
		}
	}
	return false, nil
}

// Commits returns the recorded history, oldest first. Test helper.
func (l *LocalClient) Commits() []Commit {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Commit, len(l.commits))
	for i, c := range l.commits {
		out[i] = c.commit
	}
	return out
}

// LastMessage returns the most recent full commit message. Test helper.
func (l *LocalClient) LastMessage() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.commits) == 0 {
		return ""
	}
	return l.commits[len(l.commits)-1].message
}

var _ Client = (*LocalClient)(nil)
var _ Client = (*GitClient)(nil)
