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
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/evolve/pkg/ux"
	"github.com/AleutianAI/evolve/services/evolve/applier"
	"github.com/AleutianAI/evolve/services/evolve/edit"
	"github.com/AleutianAI/evolve/services/evolve/registry"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	applyDryRun  bool
	applyJSON    bool
	applyContext int
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var applyCmd = &cobra.Command{
	Use:   "apply [package.json]",
	Short: "Apply one edit package to the working tree",
	Long: `Apply one edit package to the working tree and commit the result.

The package is read from the given file, or from stdin when no file is
given. Each edit is applied through the native patch mechanism when the
diff applies cleanly, with a direct overwrite fallback otherwise. The
whole package becomes exactly one commit.

On failure the working tree keeps the edits that completed before the
failing one; the commit is withheld.

Examples:
  evolve apply patch.json
  cat patch.json | evolve apply --json
  evolve apply --dry-run patch.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false,
		"Evaluate the package without touching any file")
	applyCmd.Flags().BoolVar(&applyJSON, "json", false,
		"Print the full result as JSON on stdout")
	applyCmd.Flags().IntVar(&applyContext, "context", 0,
		"Unified-diff context lines (0 = config default)")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runApply(cmd *cobra.Command, args []string) error {
	data, err := readPackageInput(args)
	if err != nil {
		return fail("reading package: %v", err)
	}

	reg, err := openRegistry()
	if err != nil {
		return fail("opening registry: %v", err)
	}
	defer reg.Close()

	contextLines := cfg.DiffContextLines
	if applyContext > 0 {
		contextLines = applyContext
	}
	a := applier.New(newGitClient(), cfg.RepoRoot,
		applier.WithContextLines(contextLines),
		applier.WithRegistry(reg),
	)

	ctx := context.Background()
	var res *applier.ApplyResult
	if applyDryRun {
		pkg, derr := edit.DecodePackage(data)
		if derr != nil {
			return fail("decoding package: %v", derr)
		}
		res = a.DryRun(ctx, pkg)
	} else {
		res = a.ApplyJSON(ctx, data)
	}

	if applyJSON {
		out, jerr := res.JSON()
		if jerr != nil {
			return fail("encoding result: %v", jerr)
		}
		fmt.Println(string(out))
	} else {
		printApplyResult(res)
	}

	if !res.OK {
		return fmt.Errorf("package failed: %s", res.Error.Message)
	}
	return nil
}

// readPackageInput reads the package JSON from the file argument or stdin.
func readPackageInput(args []string) ([]byte, error) {
	if len(args) == 1 {
		return os.ReadFile(args[0])
	}
	return io.ReadAll(os.Stdin)
}

// openRegistry opens the configured event log.
func openRegistry() (*registry.Registry, error) {
	var opts []registry.Option
	if cfg.RegistryMaxBytes > 0 {
		opts = append(opts, registry.WithMaxBytes(cfg.RegistryMaxBytes))
	}
	return registry.New(cfg.RegistryPath, opts...)
}

func printApplyResult(res *applier.ApplyResult) {
	if !res.OK {
		ux.Error(fmt.Sprintf("%s: %s", res.Error.Kind, res.Error.Message))
		for _, p := range res.Touched {
			ux.EditStatus(p, ux.IconWarning, "written, not committed")
		}
		return
	}

	for _, sha := range res.FileSHAs {
		ux.EditStatus(sha.Path, ux.IconSuccess, shortSHA(sha.Before)+" "+string(ux.IconArrow)+" "+shortSHA(sha.After))
	}
	ux.ApplySummary(len(res.Touched), len(res.Diffs), res.Fallback)
	if applyDryRun {
		ux.Muted("dry run: no file was modified")
	} else {
		ux.Success("patch " + res.PatchID)
	}
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
