package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/aretw0/regions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	t.Setenv("REGIONS_CONFIG", "")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestVersionCommand(t *testing.T) {
	out := run(t, "version")
	assert.Equal(t, "regions version "+strings.TrimSpace(regions.Version)+"\n", out)
}

func TestReplayCommand(t *testing.T) {
	out := run(t, "replay", "--plain", "../../internal/cli/testdata/scenario_a.yaml")
	assert.Contains(t, out, "| 2 | Label 3 |")
	assert.Contains(t, out, ">>> Replayed 11 steps, 2 labels.")
}
