// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "evolve.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
repo_root: /srv/agent
registry_path: /var/log/evolve/events.jsonl
registry_max_bytes: 1048576
git_timeout: 45s
diff_context_lines: 5
store_path: /var/lib/evolve/runs.db
attribution:
  sensitive_paths: ["prompts/system_prompt.txt"]
  specialized_operators: ["tree_search"]
  recent_commits: 3
  baseline_window: 20
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/agent", cfg.RepoRoot)
	assert.Equal(t, int64(1048576), cfg.RegistryMaxBytes)
	assert.Equal(t, 45*time.Second, cfg.GitTimeout.Std())
	assert.Equal(t, 5, cfg.DiffContextLines)
	assert.Equal(t, []string{"prompts/system_prompt.txt"}, cfg.Attribution.SensitivePaths)
	assert.Equal(t, 20, cfg.Attribution.BaselineWindow)
}

func TestLoad_DefaultsFillOmittedFields(t *testing.T) {
	path := writeConfig(t, `
repo_root: /srv/agent
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "evolve_events.jsonl", cfg.RegistryPath)
	assert.Equal(t, 30*time.Second, cfg.GitTimeout.Std())
	assert.Equal(t, 3, cfg.DiffContextLines)
	assert.Equal(t, DefaultBaselineWindow, cfg.Attribution.BaselineWindow)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "empty_repo_root", content: "repo_root: \"\"\nregistry_path: x\n"},
		{name: "bad_duration", content: "repo_root: /srv\ngit_timeout: soon\n"},
		{name: "not_yaml", content: "{{{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}
