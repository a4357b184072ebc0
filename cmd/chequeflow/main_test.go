package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/aretw0/chequeflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestVersionCommand(t *testing.T) {
	out := execute(t, "version")
	assert.Equal(t, "chequeflow version "+strings.TrimSpace(chequeflow.Version)+"\n", out)
}

func TestGraphCommand(t *testing.T) {
	out := execute(t, "graph")
	assert.True(t, strings.HasPrefix(out, "graph TD"))
	assert.Contains(t, out, "delivery")

	out = execute(t, "graph", "--json")
	var rows []chequeflow.Transition
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	want := chequeflow.Transitions()
	require.Len(t, rows, len(want))
	for i := range want {
		assert.Equal(t, want[i].From, rows[i].From)
		assert.Equal(t, want[i].Operation, rows[i].Operation)
		assert.Equal(t, want[i].Condition, rows[i].Condition)
		assert.Equal(t, want[i].To, rows[i].To)
	}
}

func TestValidateCommand(t *testing.T) {
	out := execute(t, "validate")
	assert.Contains(t, out, "Workflow is valid!")
}
