package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/chequeflow/internal/config"
	"github.com/aretw0/chequeflow/internal/logging"
	"github.com/aretw0/chequeflow/pkg/domain"
	"github.com/aretw0/chequeflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	return config.Config{
		Log:       config.LogConfig{Level: "info", Format: "text"},
		Metrics:   config.MetricsConfig{Enabled: true},
		Redis:     config.RedisConfig{Prefix: "chequeflow", JournalTTL: time.Hour},
		Workflow:  config.WorkflowConfig{RollbackMaxAttempts: 3, TransportTimeout: time.Second},
		Telemetry: config.TelemetryConfig{ServiceName: "chequeflow-test"},
	}
}

func TestNewStack(t *testing.T) {
	ctx := context.Background()

	t.Run("Defaults to the demo scenario and the memory journal", func(t *testing.T) {
		stack, err := NewStack(ctx, testConfig(), logging.NewNop())
		require.NoError(t, err)
		defer stack.Close(ctx)

		assert.Equal(t, "demo", stack.Scenario)
		assert.NotNil(t, stack.Journal)
		require.NotNil(t, stack.Registry)

		flow, err := stack.Sessions.Create(ctx, "s1")
		require.NoError(t, err)
		_, err = flow.Do(ctx, domain.OpInitTransaction, nil)
		require.NoError(t, err)

		families, err := stack.Registry.Gather()
		require.NoError(t, err)
		var names []string
		for _, f := range families {
			names = append(names, f.GetName())
		}
		assert.Contains(t, names, "chequeflow_dispatches_total")
	})

	t.Run("Metrics disabled", func(t *testing.T) {
		cfg := testConfig()
		cfg.Metrics.Enabled = false
		stack, err := NewStack(ctx, cfg, logging.NewNop())
		require.NoError(t, err)
		defer stack.Close(ctx)
		assert.Nil(t, stack.Registry)
	})

	t.Run("Redis journal and locker", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := testConfig()
		cfg.Redis.Addr = mr.Addr()

		stack, err := NewStack(ctx, cfg, logging.NewNop())
		require.NoError(t, err)

		_, err = stack.Sessions.Create(ctx, "s1")
		require.NoError(t, err)
		require.NoError(t, stack.Sessions.Close(ctx, "s1"))

		entries, err := stack.Journal.List(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, ports.EntryAbandoned, entries[0].Type)
		assert.True(t, mr.Exists("chequeflow:journal:s1"))

		require.NoError(t, stack.Close(ctx))
	})

	t.Run("Scenario file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "scenario.yaml")
		require.NoError(t, os.WriteFile(path, []byte("name: custom\nresponses:\n  init-transaction:\n    - result: {request_id: X1}\n"), 0644))
		cfg := testConfig()
		cfg.Scenario.Path = path

		stack, err := NewStack(ctx, cfg, logging.NewNop())
		require.NoError(t, err)
		defer stack.Close(ctx)
		assert.Equal(t, "custom", stack.Scenario)
	})

	t.Run("Process commands", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "commands.yaml")
		require.NoError(t, os.WriteFile(path, []byte("commands:\n  - {operation: init-transaction, command: ./init.sh}\n"), 0644))
		cfg := testConfig()
		cfg.Process.Commands = path

		stack, err := NewStack(ctx, cfg, logging.NewNop())
		require.NoError(t, err)
		defer stack.Close(ctx)
		assert.Equal(t, "process (1 commands)", stack.Scenario)
	})

	t.Run("Journal masks and seals payloads", func(t *testing.T) {
		cfg := testConfig()
		cfg.Journal = config.JournalConfig{
			PIIPatterns:   []string{"account_number"},
			EncryptionKey: base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32)),
		}
		stack, err := NewStack(ctx, cfg, logging.NewNop())
		require.NoError(t, err)
		defer stack.Close(ctx)

		flow, err := stack.Sessions.Create(ctx, "s1")
		require.NoError(t, err)
		_, err = flow.Do(ctx, domain.OpInitTransaction, map[string]any{domain.FieldAccountNumber: "99881"})
		require.NoError(t, err)

		entries, err := stack.Journal.List(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "***", entries[0].Payload[domain.FieldAccountNumber])
	})

	t.Run("Bad encryption key", func(t *testing.T) {
		cfg := testConfig()
		cfg.Journal.EncryptionKey = "c2hvcnQ="
		_, err := NewStack(ctx, cfg, logging.NewNop())
		assert.ErrorContains(t, err, "journal.encryption_key")
	})

	t.Run("Missing scenario file", func(t *testing.T) {
		cfg := testConfig()
		cfg.Scenario.Path = filepath.Join(t.TempDir(), "missing.yaml")
		_, err := NewStack(ctx, cfg, logging.NewNop())
		assert.ErrorContains(t, err, "error loading scenario")
	})
}

func TestRunSession_JSON(t *testing.T) {
	ctx := context.Background()
	stack, err := NewStack(ctx, testConfig(), logging.NewNop())
	require.NoError(t, err)
	defer stack.Close(ctx)

	var out bytes.Buffer
	err = RunSession(ctx, stack, RunOptions{
		SessionID: "json-1",
		JSON:      true,
		In:        strings.NewReader("init-transaction\nabandon\n"),
		Out:       &out,
	}, logging.NewNop())
	require.NoError(t, err)

	assert.Contains(t, out.String(), `"type":"view"`)
	entries, err := stack.Journal.List(ctx, "json-1")
	require.NoError(t, err)
	var types []ports.EntryType
	for _, e := range entries {
		types = append(types, e.Type)
	}
	assert.Equal(t, []ports.EntryType{ports.EntryForward, ports.EntryAbandoned}, types)
}

func TestRunSession_TextEOF(t *testing.T) {
	ctx := context.Background()
	stack, err := NewStack(ctx, testConfig(), logging.NewNop())
	require.NoError(t, err)
	defer stack.Close(ctx)

	var out bytes.Buffer
	err = RunSession(ctx, stack, RunOptions{SessionID: "text-1", In: strings.NewReader(""), Out: &out}, logging.NewNop())
	require.NoError(t, err)
	assert.Contains(t, out.String(), ">>> Session 'text-1' active (scenario demo).")
	assert.Contains(t, out.String(), ">>> Session 'text-1' finished (active).")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, config.LogConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	logger.Debug("hello", "error", "boom")
	assert.Contains(t, buf.String(), `"err":"boom"`)

	_, err = NewLogger(&buf, config.LogConfig{Level: "loud", Format: "text"})
	assert.Error(t, err)
	_, err = NewLogger(&buf, config.LogConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}
