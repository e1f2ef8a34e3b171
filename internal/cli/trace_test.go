package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceEmptyTrail(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTraceCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--db", dbPath, "req-unknown"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "no audit events for request req-unknown")
}

func TestTraceMissingDatabaseFlag(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTraceCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"req-1"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestTraceAfterRun(t *testing.T) {
	policiesDir := writePolicyDir(t, testPolicy)
	requestPath := writeRequestFile(t, testRequest)
	dbPath := filepath.Join(t.TempDir(), "test.db")

	rootOpts := &RootOptions{Format: "text"}
	runCmd := NewRunCommand(rootOpts)
	runCmd.SetOut(&bytes.Buffer{})
	runCmd.SetErr(&bytes.Buffer{})
	runCmd.SetArgs([]string{"--db", dbPath, "--policies", policiesDir, requestPath})
	require.NoError(t, runCmd.Execute())

	buf := &bytes.Buffer{}
	traceCmd := NewTraceCommand(rootOpts)
	traceCmd.SetOut(buf)
	traceCmd.SetErr(buf)
	traceCmd.SetArgs([]string{"--db", dbPath, "req-1"})

	require.NoError(t, traceCmd.Execute())
	output := buf.String()
	assert.Contains(t, output, "audit trail for request req-1")
	assert.Contains(t, output, "request")
	assert.Contains(t, output, "final_execution")
	assert.Contains(t, output, "focus=oid-1")
}

func TestTraceJSONOutput(t *testing.T) {
	policiesDir := writePolicyDir(t, testPolicy)
	requestPath := writeRequestFile(t, testRequest)
	dbPath := filepath.Join(t.TempDir(), "test.db")

	rootOpts := &RootOptions{Format: "text"}
	runCmd := NewRunCommand(rootOpts)
	runCmd.SetOut(&bytes.Buffer{})
	runCmd.SetErr(&bytes.Buffer{})
	runCmd.SetArgs([]string{"--db", dbPath, "--policies", policiesDir, requestPath})
	require.NoError(t, runCmd.Execute())

	buf := &bytes.Buffer{}
	jsonOpts := &RootOptions{Format: "json"}
	traceCmd := NewTraceCommand(jsonOpts)
	traceCmd.SetOut(buf)
	traceCmd.SetErr(buf)
	traceCmd.SetArgs([]string{"--db", dbPath, "req-1"})

	require.NoError(t, traceCmd.Execute())

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "req-1", data["request_id"])
	events, ok := data["events"].([]any)
	require.True(t, ok)
	assert.NotEmpty(t, events)
}
