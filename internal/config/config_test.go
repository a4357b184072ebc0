package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, "chequeflow", cfg.Redis.Prefix)
	assert.Equal(t, 24*time.Hour, cfg.Redis.JournalTTL)
	assert.Equal(t, 3, cfg.Workflow.RollbackMaxAttempts)
	assert.Equal(t, 15*time.Second, cfg.Workflow.TransportTimeout)
	assert.Equal(t, []string{"account_number", "serial_number"}, cfg.Journal.PIIPatterns)
	assert.Empty(t, cfg.Journal.EncryptionKey)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chequeflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
redis:
  addr: localhost:6379
  journal_ttl: 1h
workflow:
  rollback_max_attempts: 5
  transport_timeout: 2s
scenario:
  path: ./scenario.yaml
journal:
  pii_patterns: [account]
  encryption_key: a2V5
`), 0o644))
	t.Setenv("CHEQUEFLOW_REDIS_ADDR", "redis:6380")
	t.Setenv("CHEQUEFLOW_HTTP_ADDR", ":9090")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, time.Hour, cfg.Redis.JournalTTL)
	assert.Equal(t, 5, cfg.Workflow.RollbackMaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Workflow.TransportTimeout)
	assert.Equal(t, "./scenario.yaml", cfg.Scenario.Path)
	assert.Equal(t, []string{"account"}, cfg.Journal.PIIPatterns)
	assert.Equal(t, "a2V5", cfg.Journal.EncryptionKey)
}

func TestLoad_ExplicitPathMustExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_RejectsNegativeBudget(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHEQUEFLOW_WORKFLOW_ROLLBACK_MAX_ATTEMPTS", "-1")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_RejectsScenarioWithProcess(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHEQUEFLOW_SCENARIO_PATH", "./scenario.yaml")
	t.Setenv("CHEQUEFLOW_PROCESS_COMMANDS", "./commands.yaml")
	_, err := Load("")
	assert.ErrorContains(t, err, "mutually exclusive")
}
