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
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds every git subprocess invocation.
const DefaultTimeout = 30 * time.Second

// PatchMarker is the commit-subject marker identifying system-generated
// patch commits. RecentPatchCommits greps for it.
const PatchMarker = "[auto-patch]"

// patchIDPattern extracts the patch identifier from a marked subject,
// e.g. "[auto-patch] search/latency (patch 3f2a...)".
var patchIDPattern = regexp.MustCompile(`\(patch ([0-9a-fA-F-]+)\)`)

// GitClient implements Client by shelling out to the git binary.
//
// # Thread Safety
//
// GitClient is safe for concurrent use; it holds no mutable state. Note
// that concurrent mutations of the same working tree are not coordinated
// here - callers must serialize packages touching the same files.
type GitClient struct {
	workDir string
	timeout time.Duration
}

// GitOption configures a GitClient.
type GitOption func(*GitClient)

// WithTimeout overrides the per-command subprocess timeout.
func WithTimeout(d time.Duration) GitOption {
	return func(g *GitClient) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// NewGitClient creates a client rooted at the given working directory
// (the repository root).
func NewGitClient(workDir string, opts ...GitOption) *GitClient {
	g := &GitClient{workDir: workDir, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IsRepo reports whether the working directory is inside a git repository.
func (g *GitClient) IsRepo(ctx context.Context) bool {
	_, _, err := g.run(ctx, "", "rev-parse", "--git-dir")
	return err == nil
}

// HashObject returns the blob SHA of the path's on-disk content, or
// ZeroSHA if the path does not exist.
func (g *GitClient) HashObject(ctx context.Context, path string) (string, error) {
	abs := filepath.Join(g.workDir, filepath.FromSlash(path))
	if _, err := os.Stat(abs); os.IsNotExist(err) {
		return ZeroSHA, nil
	}
	out, stderr, err := g.run(ctx, "", "hash-object", "--", abs)
	if err != nil {
		return "", fmt.Errorf("git hash-object %s: %w: %s", path, err, stderr)
	}
	return strings.TrimSpace(out), nil
}

// CheckApply asks git whether diffText would apply cleanly, mutating nothing.
func (g *GitClient) CheckApply(ctx context.Context, diffText string) (bool, string, error) {
	_, stderr, err := g.run(ctx, diffText, "apply", "--check", "--ignore-whitespace", "-")
	if err != nil {
		if errors.Is(err, ErrToolUnavailable) {
			return false, "", err
		}
		return false, strings.TrimSpace(stderr), nil
	}
	return true, "", nil
}

// Apply applies diffText to the working tree via git apply.
func (g *GitClient) Apply(ctx context.Context, diffText string) error {
	_, stderr, err := g.run(ctx, diffText, "apply", "--ignore-whitespace", "-")
	if err != nil {
		return fmt.Errorf("git apply: %w: %s", err, strings.TrimSpace(stderr))
	}
	return nil
}

// WriteDirect overwrites path with content, creating parent directories.
func (g *GitClient) WriteDirect(path, content string) error {
	abs := filepath.Join(g.workDir, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("creating parent directories for %s: %w", path, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// StageAndCommit stages paths and creates one commit with the message.
func (g *GitClient) StageAndCommit(ctx context.Context, paths []string, message string) error {
	if len(paths) == 0 {
		return fmt.Errorf("nothing to commit")
	}
	addArgs := append([]string{"add", "--"}, paths...)
	if _, stderr, err := g.run(ctx, "", addArgs...); err != nil {
		return fmt.Errorf("git add: %w: %s", err, strings.TrimSpace(stderr))
	}
	if _, stderr, err := g.run(ctx, "", "commit", "-m", message); err != nil {
		return fmt.Errorf("git commit: %w: %s", err, strings.TrimSpace(stderr))
	}
	return nil
}

// Revert restores paths to their committed content.
func (g *GitClient) Revert(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"checkout", "--"}, paths...)
	if _, stderr, err := g.run(ctx, "", args...); err != nil {
		return fmt.Errorf("git checkout: %w: %s", err, strings.TrimSpace(stderr))
	}
	return nil
}

// RecentPatchCommits lists the most recent system-generated patch commits,
// newest first.
func (g *GitClient) RecentPatchCommits(ctx context.Context, limit int) ([]Commit, error) {
	if limit <= 0 {
		limit = 5
	}
	out, stderr, err := g.run(ctx, "",
		"log", "-n", strconv.Itoa(limit),
		"--grep", PatchMarker, "--fixed-strings",
		"--format=%H%x09%s")
	if err != nil {
		return nil, fmt.Errorf("git log: %w: %s", err, strings.TrimSpace(stderr))
	}

	var commits []Commit
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		sha, subject, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		c := Commit{SHA: sha, Subject: subject}
		if m := patchIDPattern.FindStringSubmatch(subject); m != nil {
			c.PatchID = m[1]
		}
		commits = append(commits, c)
	}
	return commits, nil
}

// CommitTouches reports whether the commit modified path.
func (g *GitClient) CommitTouches(ctx context.Context, sha, path string) (bool, error) {
	out, stderr, err := g.run(ctx, "", "show", "--format=", "--name-only", sha)
	if err != nil {
		return false, fmt.Errorf("git show %s: %w: %s", sha, err, strings.TrimSpace(stderr))
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == path {
			return true, nil
		}
	}
	return false, nil
}

// run executes one git command under the client's timeout.
func (g *GitClient) run(ctx context.Context, stdin string, args ...string) (string, string, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrToolUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ctx, span := startCommandSpan(ctx, args[0], g.workDir)
	defer span.End()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.workDir
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	exitCode := 0
	if err != nil {
		exitCode = -1
		if ee, ok := err.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
	}
	recordCommandMetrics(ctx, args[0], time.Since(start), exitCode)
	setCommandSpanResult(span, exitCode)

	if err != nil {
		return stdout.String(), stderr.String(),
			fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return stdout.String(), stderr.String(), nil
}
