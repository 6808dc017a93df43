// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var hashCmd = &cobra.Command{
	Use:   "hash <path>...",
	Short: "Print the content id of working-tree files",
	Long: `Print the blob content id of one or more repo-relative paths.

Missing files print the all-zero sentinel. The id matches the
version-control object hash of the file content, so it can be compared
against committed blobs directly.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runHash,
}

func runHash(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	vcs := newGitClient()

	for _, path := range args {
		sha, err := vcs.HashObject(ctx, path)
		if err != nil {
			return fail("hashing %s: %v", path, err)
		}
		fmt.Printf("%s\t%s\n", sha, path)
	}
	return nil
}
