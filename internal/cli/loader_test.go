package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/model"
	"github.com/wardenhq/warden/internal/reaction"
	"github.com/wardenhq/warden/internal/store"
)

func writeRequestFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "request.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadChangeRequestFullDocument(t *testing.T) {
	path := writeRequestFile(t, `
request_id: req-1
channel: discovery
focus_oid: oid-1
max_wave: 2
delta:
  type: modify
  oid: oid-1
  object_type: user
  items:
    - path: department
      kind: replace
      values: ["eng"]
`)

	req, err := LoadChangeRequest(path)
	require.NoError(t, err)
	assert.Equal(t, "req-1", req.RequestID)
	assert.Equal(t, "discovery", req.Channel)
	assert.Equal(t, "oid-1", req.FocusOID)
	assert.Equal(t, 2, req.MaxWave)

	delta := req.Delta.toDelta()
	require.NotNil(t, delta)
	assert.Equal(t, model.ChangeModify, delta.Type)
	assert.Equal(t, "user", delta.ObjectType)
	require.Len(t, delta.Items, 1)
	assert.Equal(t, "department", delta.Items[0].Path)
	assert.Equal(t, model.ModificationReplace, delta.Items[0].Kind)
	assert.Equal(t, []any{"eng"}, delta.Items[0].Values)
}

func TestLoadChangeRequestDefaults(t *testing.T) {
	path := writeRequestFile(t, `
focus_oid: oid-1
`)

	req, err := LoadChangeRequest(path)
	require.NoError(t, err)
	assert.Equal(t, "rest", req.Channel)
	assert.NotEmpty(t, req.RequestID, "request id should be generated when absent")
	assert.Nil(t, req.Delta.toDelta())
}

func TestLoadChangeRequestMissingFile(t *testing.T) {
	_, err := LoadChangeRequest(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read change request")
}

func TestBuildLensReadsExistingFocus(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.CreateFocus(ctx, &model.FocusObject{
		OID:  "oid-1",
		Type: "user",
		Name: "ada",
	}))

	req := &ChangeRequest{RequestID: "req-1", Channel: "rest", FocusOID: "oid-1", MaxWave: 1}
	lens, err := BuildLens(ctx, st, nil, req)
	require.NoError(t, err)

	require.NotNil(t, lens.Focus.ObjectOld)
	assert.Equal(t, "ada", lens.Focus.ObjectOld.Name)
	assert.Equal(t, 1, lens.MaxWave)
	assert.Equal(t, "req-1", lens.RequestID)
}

func TestBuildLensToleratesMissingFocus(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()

	req := &ChangeRequest{
		RequestID: "req-1",
		Channel:   "rest",
		Delta:     &DeltaSpec{Type: "add", OID: "oid-new", ObjectType: "user"},
	}
	lens, err := BuildLens(ctx, st, nil, req)
	require.NoError(t, err)

	assert.Nil(t, lens.Focus.ObjectOld)
	require.NotNil(t, lens.Focus.PrimaryDelta)
	assert.Equal(t, "oid-new", lens.Focus.PrimaryDelta.OID)
}

func TestBuildLensAttachesSyncProjection(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()

	cfg, err := config.LoadString(`
syncPolicies: {
	"default-account": {
		kind: "account"
		reactions: [
			{name: "link", situations: ["unlinked"]},
		]
	}
}
`)
	require.NoError(t, err)

	req := &ChangeRequest{
		RequestID: "req-1",
		Channel:   "discovery",
		FocusOID:  "oid-1",
		Sync: &SyncSpec{
			Policy:      "default-account",
			Situation:   "unlinked",
			ResourceOID: "res-1",
		},
	}
	lens, err := BuildLens(ctx, st, cfg, req)
	require.NoError(t, err)

	require.Len(t, lens.Projections, 1)
	p := lens.Projections[0]
	assert.Equal(t, "res-1", p.ResourceOID)
	require.NotNil(t, p.Sync)
	assert.Equal(t, reaction.SituationUnlinked, p.Sync.Situation)

	// Discovery events force propagation limiting for non-deleted situations.
	limit, err := p.Sync.LimitPropagation()
	require.NoError(t, err)
	assert.True(t, limit)
}

func TestBuildLensRejectsUnknownSyncPolicy(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()

	req := &ChangeRequest{
		RequestID: "req-1",
		Channel:   "rest",
		FocusOID:  "oid-1",
		Sync:      &SyncSpec{Policy: "nope", Situation: "linked"},
	}
	_, err = BuildLens(ctx, st, &config.Config{}, req)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindConfiguration))
	assert.Contains(t, err.Error(), "unknown synchronization policy")
}
