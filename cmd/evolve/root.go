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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/evolve/pkg/logging"
	"github.com/AleutianAI/evolve/pkg/ux"
	"github.com/AleutianAI/evolve/services/evolve/config"
	"github.com/AleutianAI/evolve/services/evolve/gitvcs"
)

// =============================================================================
// GLOBAL STATE
// =============================================================================

var (
	cfg    *config.Config
	logger *logging.Logger

	// Persistent flags
	flagConfig   string
	flagLogLevel string
	flagLogDir   string
	flagMachine  bool
)

// =============================================================================
// ROOT COMMAND
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "evolve",
	Short: "Apply and attribute system-generated edit packages",
	Long: `evolve applies machine-proposed edit packages to a working tree,
records their lifecycle in an append-only event registry, and attributes
observed performance lifts to their likely cause.

Every package becomes exactly one commit, tagged so that later history
queries can find system-generated patches.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagConfig != "" {
			loaded, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			cfg = loaded
		} else {
			cfg = config.Default()
		}

		logger = logging.New(logging.Config{
			Level:   logging.ParseLevel(flagLogLevel),
			LogDir:  flagLogDir,
			Service: "evolve",
			Quiet:   flagMachine,
		})
		logger.Install()

		ux.SetMachine(flagMachine)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "",
		"Path to a YAML config file (defaults apply when omitted)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info",
		"Minimum log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagLogDir, "log-dir", "",
		"Directory for JSON log files (disabled when empty)")
	rootCmd.PersistentFlags().BoolVar(&flagMachine, "machine", false,
		"Machine-readable output: plain prefixes, logs suppressed on stderr")

	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(registryCmd)
	rootCmd.AddCommand(attributeCmd)
	rootCmd.AddCommand(hashCmd)
}

// newGitClient builds the version-control client from the active config.
func newGitClient() *gitvcs.GitClient {
	return gitvcs.NewGitClient(cfg.RepoRoot, gitvcs.WithTimeout(cfg.GitTimeout.Std()))
}

// fail prints a styled error and returns it for cobra's exit handling.
func fail(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	ux.Error(err.Error())
	return err
}
