package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoEnvOrFile(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Workers)
	require.True(t, cfg.Consistent)
	require.Equal(t, "k9db", cfg.DBName)
	require.NotEmpty(t, cfg.DataDir)
	require.True(t, cfg.Encryption)
}

func TestLoadReadsEnvironmentOverrides(t *testing.T) {
	t.Setenv("K9DB_WORKERS", "16")
	t.Setenv("K9DB_CONSISTENT", "false")
	t.Setenv("K9DB_DB_NAME", "testdb")
	t.Setenv("K9DB_ENCRYPTION", "false")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 16, cfg.Workers)
	require.False(t, cfg.Consistent)
	require.Equal(t, "testdb", cfg.DBName)
	require.False(t, cfg.Encryption)
}

func TestValidateRejectsZeroWorkers(t *testing.T) {
	cfg := &Config{Workers: 0, DBName: "x", DataDir: "y"}
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyDBName(t *testing.T) {
	cfg := &Config{Workers: 1, DBName: "", DataDir: "y"}
	require.Error(t, cfg.Validate())
}

func TestUseMemoryStoreSelectsOnTheSentinelOrEmptyDataDir(t *testing.T) {
	require.True(t, (&Config{DataDir: ""}).UseMemoryStore())
	require.True(t, (&Config{DataDir: InMemoryDataDir}).UseMemoryStore())
	require.False(t, (&Config{DataDir: "./k9db-data"}).UseMemoryStore())
}
