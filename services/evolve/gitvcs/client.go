// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gitvcs is the version-control integration layer.
//
// It exposes the narrow Client interface the applier and classifier need
// (check/apply/write/stage-and-commit/hash-object/revert/log) with two
// implementations: GitClient, which shells out to the git binary, and
// MemClient, an in-memory fake for tests. Content identity is the git blob
// SHA of on-disk content, never a timestamp.
package gitvcs

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
)

// ZeroSHA is the content id reported for paths that do not exist.
const ZeroSHA = "0000000000000000000000000000000000000000"

// ErrToolUnavailable reports that the git binary is not on PATH. Callers
// treat this differently from a failing command (skip vs. fail).
var ErrToolUnavailable = errors.New("git binary unavailable")

// Commit is one commit surfaced by the history queries.
type Commit struct {
	// SHA is the full commit hash.
	SHA string

	// Subject is the first line of the commit message.
	Subject string

	// PatchID is the patch identifier parsed out of a system-generated
	// commit subject; empty for commits that carry none.
	PatchID string
}

// Client is the version-control surface consumed by the applier and the
// attribution classifier.
//
// All operations are synchronous. Methods taking a context run the external
// tool as a blocking subprocess bounded by the client's timeout; that
// subprocess boundary is the only place a deadline exists in this subsystem.
type Client interface {
	// HashObject returns the blob SHA of the current on-disk content of
	// the repository-relative path, or ZeroSHA if the path does not exist.
	HashObject(ctx context.Context, path string) (string, error)

	// CheckApply reports whether diffText would apply cleanly to the
	// working tree without mutating anything. The detail string carries
	// the tool's explanation when ok is false. The error is non-nil only
	// when the check itself could not run (ErrToolUnavailable).
	CheckApply(ctx context.Context, diffText string) (ok bool, detail string, err error)

	// Apply applies diffText to the working tree via the native patch
	// mechanism, tolerating whitespace-only mismatches.
	Apply(ctx context.Context, diffText string) error

	// WriteDirect overwrites the file's content directly, creating parent
	// directories as needed. This is the fallback when Apply rejects a
	// computed diff.
	WriteDirect(path, content string) error

	// StageAndCommit stages the given paths and creates one commit.
	StageAndCommit(ctx context.Context, paths []string, message string) error

	// Revert restores the given paths to their committed state.
	Revert(ctx context.Context, paths []string) error

	// RecentPatchCommits returns up to limit most recent commits whose
	// subject carries the system-patch marker, newest first.
	RecentPatchCommits(ctx context.Context, limit int) ([]Commit, error)

	// CommitTouches reports whether the commit modified the given path.
	CommitTouches(ctx context.Context, sha, path string) (bool, error)
}

// BlobSHA computes the git blob SHA-1 of content without invoking git.
// It matches `git hash-object` for the same bytes.
func BlobSHA(content string) string {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(content))
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}
