package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/k9db/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{Workers: 4, Consistent: true, DBName: "k9db", DataDir: "./k9db-data", Encryption: true}
}

func TestApplyFlagsLeavesLoadedConfigAloneWhenNoFlagsSet(t *testing.T) {
	cfg := baseConfig()
	applyFlags(cfg, 0, "", "", true)
	require.Equal(t, 4, cfg.Workers)
	require.Equal(t, "k9db", cfg.DBName)
	require.Equal(t, "./k9db-data", cfg.DataDir)
}

func TestApplyFlagsOverridesWorkersDBNameAndDataDir(t *testing.T) {
	cfg := baseConfig()
	applyFlags(cfg, 8, "otherdb", "/tmp/otherdb", true)
	require.Equal(t, 8, cfg.Workers)
	require.Equal(t, "otherdb", cfg.DBName)
	require.Equal(t, "/tmp/otherdb", cfg.DataDir)
}

func TestApplyFlagsAlwaysSetsConsistentSinceItHasNoUnsetState(t *testing.T) {
	cfg := baseConfig()
	applyFlags(cfg, 0, "", "", false)
	require.False(t, cfg.Consistent)
}
