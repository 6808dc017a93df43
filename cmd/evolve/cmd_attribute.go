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

	"github.com/AleutianAI/evolve/pkg/ux"
	"github.com/AleutianAI/evolve/services/evolve/attribution"
	"github.com/AleutianAI/evolve/services/evolve/config"
	"github.com/AleutianAI/evolve/services/evolve/store"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	attributeEngine    string
	attributeOperator  string
	attributeMemory    bool
	attributeWebSearch bool
	attributeReward    float64
	attributeTaskClass string
	attributeJSON      bool
	attributePersist   bool
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var attributeCmd = &cobra.Command{
	Use:   "attribute <run-id>",
	Short: "Classify the lift source of one run",
	Long: `Classify what caused a run's performance lift.

The classifier combines four signals: a recent system patch touching a
sensitive path (counted only when the run's reward strictly beats the
baseline average of recent comparable runs), the memory flag, a
specialized operator, and web search or an advanced engine tier.

The verdict reads live version-control history; re-running it later may
produce a different answer when history has moved.

Examples:
  evolve attribute run-42 --engine base-7b --operator tree_search --reward 0.8 --task-class summarize
  evolve attribute run-42 --reward 0.9 --task-class qa --persist`,
	Args: cobra.ExactArgs(1),
	RunE: runAttribute,
}

func init() {
	attributeCmd.Flags().StringVar(&attributeEngine, "engine", "",
		"Engine/model identifier the variant ran on")
	attributeCmd.Flags().StringVar(&attributeOperator, "operator", "",
		"Reasoning operator the variant used")
	attributeCmd.Flags().BoolVar(&attributeMemory, "memory", false,
		"Variant ran with the memory subsystem enabled")
	attributeCmd.Flags().BoolVar(&attributeWebSearch, "web-search", false,
		"Variant ran with web search enabled")
	attributeCmd.Flags().Float64Var(&attributeReward, "reward", 0,
		"Realized reward of the variant")
	attributeCmd.Flags().StringVar(&attributeTaskClass, "task-class", "",
		"Task class for the baseline comparison")
	attributeCmd.Flags().BoolVar(&attributePersist, "persist", false,
		"Write the verdict back onto the run record")
	attributeCmd.Flags().BoolVar(&attributeJSON, "json", false,
		"Print the verdict as JSON on stdout")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runAttribute(cmd *cobra.Command, args []string) error {
	runID := args[0]
	ctx := context.Background()

	if attributePersist && cfg.StorePath == "" {
		return fail("--persist needs store_path in the config")
	}

	var baseline *float64
	var st store.Store
	if cfg.StorePath != "" {
		sqlStore, err := store.NewSQLiteStore(cfg.StorePath)
		if err != nil {
			return fail("opening store: %v", err)
		}
		if err := sqlStore.Init(ctx); err != nil {
			return fail("initializing store: %v", err)
		}
		defer sqlStore.Close()
		st = sqlStore

		window := cfg.Attribution.BaselineWindow
		if window <= 0 {
			window = config.DefaultBaselineWindow
		}
		baseline, err = st.BaselineReward(ctx, attributeTaskClass, window)
		if err != nil {
			return fail("computing baseline: %v", err)
		}
	}

	classifier := attribution.NewClassifier(newGitClient(),
		attribution.WithSensitivePaths(cfg.Attribution.SensitivePaths),
		attribution.WithSpecializedOperators(cfg.Attribution.SpecializedOperators),
		attribution.WithAdvancedEngineMarkers(cfg.Attribution.AdvancedEngineMarkers),
		attribution.WithRecentCommits(cfg.Attribution.RecentCommits),
	)

	variant := &attribution.VariantMeta{
		Engine:       attributeEngine,
		Operator:     attributeOperator,
		UseMemory:    attributeMemory,
		UseWebSearch: attributeWebSearch,
		Reward:       attributeReward,
	}
	verdict := classifier.Classify(ctx, variant, attribution.RunConfig{
		TaskClass: attributeTaskClass,
	}, baseline)

	if attributePersist {
		usedPatch := variant.AppliedPatchID != ""
		if err := st.SetAttribution(ctx, runID, string(verdict), usedPatch); err != nil {
			return fail("persisting verdict: %v", err)
		}
	}

	if attributeJSON {
		return printJSON(map[string]any{
			"run_id":           runID,
			"lift_source":      string(verdict),
			"applied_patch_id": variant.AppliedPatchID,
			"baseline":         baseline,
		})
	}

	ux.Title("Run " + runID)
	if baseline != nil {
		ux.Info(fmt.Sprintf("baseline: %.4f  reward: %.4f", *baseline, attributeReward))
	} else {
		ux.Muted("no baseline available")
	}
	if variant.AppliedPatchID != "" {
		ux.Info("recent patch: " + variant.AppliedPatchID)
	}
	ux.Success("lift source: " + string(verdict))
	return nil
}
