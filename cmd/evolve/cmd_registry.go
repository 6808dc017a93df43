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
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/evolve/pkg/ux"
	"github.com/AleutianAI/evolve/services/evolve/registry"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	registryRecentN int
	registryJSON    bool
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect the patch event registry",
	Long: `Inspect the append-only patch event registry.

Queries read the current log file only; rotated archives are kept on
disk but never scanned by these commands.`,
}

var registryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Per-event counts and current file size",
	Args:  cobra.NoArgs,
	RunE:  runRegistryStats,
}

var registryRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Most recent records, newest first",
	Args:  cobra.NoArgs,
	RunE:  runRegistryRecent,
}

var registryPatchCmd = &cobra.Command{
	Use:   "patch <patch-id>",
	Short: "All records of one patch, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegistryPatch,
}

func init() {
	registryRecentCmd.Flags().IntVarP(&registryRecentN, "count", "n", 20,
		"How many records to show")
	registryCmd.PersistentFlags().BoolVar(&registryJSON, "json", false,
		"Print records as JSON on stdout")

	registryCmd.AddCommand(registryStatsCmd)
	registryCmd.AddCommand(registryRecentCmd)
	registryCmd.AddCommand(registryPatchCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func runRegistryStats(cmd *cobra.Command, args []string) error {
	reg, err := openRegistry()
	if err != nil {
		return fail("opening registry: %v", err)
	}
	defer reg.Close()

	stats, err := reg.Stats()
	if err != nil {
		return fail("reading registry: %v", err)
	}

	if registryJSON {
		return printJSON(stats)
	}

	ux.Title("Registry: " + cfg.RegistryPath)
	ux.Info(fmt.Sprintf("records: %d", stats.Total))
	ux.Info(fmt.Sprintf("size: %d bytes", stats.FileBytes))
	if stats.LastTS != "" {
		ux.Info("last: " + stats.LastTS)
	}
	for event, count := range stats.EventCounts {
		ux.EditStatus(string(event), ux.IconBullet, fmt.Sprintf("%d", count))
	}
	return nil
}

func runRegistryRecent(cmd *cobra.Command, args []string) error {
	reg, err := openRegistry()
	if err != nil {
		return fail("opening registry: %v", err)
	}
	defer reg.Close()

	recs, err := reg.ListRecent(registryRecentN)
	if err != nil {
		return fail("reading registry: %v", err)
	}
	return printRecords(recs)
}

func runRegistryPatch(cmd *cobra.Command, args []string) error {
	reg, err := openRegistry()
	if err != nil {
		return fail("opening registry: %v", err)
	}
	defer reg.Close()

	recs, err := reg.ListByPatch(args[0])
	if err != nil {
		return fail("reading registry: %v", err)
	}
	if len(recs) == 0 {
		ux.Warning("no records for patch " + args[0])
		return nil
	}
	return printRecords(recs)
}

func printRecords(recs []registry.Record) error {
	if registryJSON {
		return printJSON(recs)
	}
	for _, rec := range recs {
		icon := ux.IconBullet
		if rec.Event == registry.EventError {
			icon = ux.IconError
		}
		ux.EditStatus(rec.TS+"  "+string(rec.Event), icon, rec.PatchID)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
