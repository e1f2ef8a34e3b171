package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/model"
	"github.com/wardenhq/warden/internal/store"
)

const testPolicy = `
rules: {
	"r-eng": {
		situation: "engineering"
		record:    "situationOnly"
		condition: "focus.attrs.department == \"eng\""
	}
}
`

const enforcedPolicy = `
rules: {
	"r-block-eng": {
		name:      "block engineering"
		situation: "exclusion"
		enforced:  true
		condition: "focus.attrs.department == \"eng\""
	}
}
`

const testRequest = `
request_id: req-1
channel: rest
focus_oid: oid-1
delta:
  type: add
  oid: oid-1
  object_type: user
  items:
    - path: department
      kind: replace
      values: ["eng"]
`

func writePolicyDir(t *testing.T, policy string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "policies")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "policy.cue"), []byte(policy), 0644))
	return dir
}

func TestRunMissingDatabaseFlag(t *testing.T) {
	policiesDir := writePolicyDir(t, testPolicy)
	requestPath := writeRequestFile(t, testRequest)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--policies", policiesDir, requestPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "db")
}

func TestRunInvalidPolicies(t *testing.T) {
	policiesDir := writePolicyDir(t, `rules: "r-bad": record: "bogus"`)
	requestPath := writeRequestFile(t, testRequest)
	dbPath := filepath.Join(t.TempDir(), "test.db")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--policies", policiesDir, requestPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load policies")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunProcessesRequest(t *testing.T) {
	policiesDir := writePolicyDir(t, testPolicy)
	requestPath := writeRequestFile(t, testRequest)
	dbPath := filepath.Join(t.TempDir(), "test.db")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--policies", policiesDir, requestPath})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "request req-1: success")

	// The focus was persisted with the evaluated policy situation.
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	obj, err := st.GetFocus(context.Background(), "oid-1")
	require.NoError(t, err)
	assert.Equal(t, "eng", obj.Attrs["department"])
	assert.Contains(t, obj.PolicySituations, "engineering")

	events, err := st.ListAuditEvents(context.Background(), "req-1")
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}

func TestRunJSONOutput(t *testing.T) {
	policiesDir := writePolicyDir(t, testPolicy)
	requestPath := writeRequestFile(t, testRequest)
	dbPath := filepath.Join(t.TempDir(), "test.db")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--policies", policiesDir, requestPath})

	require.NoError(t, cmd.Execute())

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "req-1", data["request_id"])
	assert.Equal(t, "success", data["status"])
}

func TestRunEnforcedRuleFails(t *testing.T) {
	policiesDir := writePolicyDir(t, enforcedPolicy)
	requestPath := writeRequestFile(t, testRequest)
	dbPath := filepath.Join(t.TempDir(), "test.db")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--policies", policiesDir, requestPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run failed")
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "fatal")

	// The enforced rule blocked the change before execution.
	st, serr := store.Open(dbPath)
	require.NoError(t, serr)
	defer st.Close()

	_, gerr := st.GetFocus(context.Background(), "oid-1")
	assert.True(t, model.IsKind(gerr, model.KindNotFound))
}

func TestPreviewLeavesNoTrace(t *testing.T) {
	policiesDir := writePolicyDir(t, testPolicy)
	requestPath := writeRequestFile(t, testRequest)
	dbPath := filepath.Join(t.TempDir(), "test.db")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewPreviewCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--policies", policiesDir, requestPath})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "success")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	_, gerr := st.GetFocus(context.Background(), "oid-1")
	assert.True(t, model.IsKind(gerr, model.KindNotFound), "preview must not persist the focus")

	events, err := st.ListAuditEvents(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Empty(t, events, "preview must not write audit events")
}
