package cli

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wardenhq/warden/internal/clockwork"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/model"
	"github.com/wardenhq/warden/internal/reaction"
	"github.com/wardenhq/warden/internal/store"
)

// ChangeRequest is the YAML shape of one requested identity change.
//
//	request_id: req-1        # optional, generated when absent
//	channel: rest
//	focus_oid: oid-1
//	max_wave: 0
//	delta:
//	  type: modify
//	  oid: oid-1
//	  object_type: user
//	  items:
//	    - path: department
//	      kind: replace
//	      values: ["eng"]
type ChangeRequest struct {
	RequestID string     `yaml:"request_id"`
	Channel   string     `yaml:"channel"`
	FocusOID  string     `yaml:"focus_oid"`
	MaxWave   int        `yaml:"max_wave"`
	Delta     *DeltaSpec `yaml:"delta"`
	Sync      *SyncSpec  `yaml:"sync"`
}

// SyncSpec marks the request as originating from an inbound resource
// synchronization event:
//
//	sync:
//	  policy: default-account
//	  situation: unlinked
//	  resource_oid: res-1
type SyncSpec struct {
	Policy      string `yaml:"policy"`
	Situation   string `yaml:"situation"`
	ResourceOID string `yaml:"resource_oid"`
	Tombstone   bool   `yaml:"tombstone"`
}

// DeltaSpec is the YAML shape of an object delta.
type DeltaSpec struct {
	Type       string     `yaml:"type"`
	OID        string     `yaml:"oid"`
	ObjectType string     `yaml:"object_type"`
	Items      []ItemSpec `yaml:"items"`
}

// ItemSpec is one attribute modification.
type ItemSpec struct {
	Path   string `yaml:"path"`
	Kind   string `yaml:"kind"`
	Values []any  `yaml:"values"`
}

// LoadChangeRequest reads and decodes a change request file.
func LoadChangeRequest(path string) (*ChangeRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read change request: %w", err)
	}
	var req ChangeRequest
	if err := yaml.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode change request %s: %w", path, err)
	}
	if req.Channel == "" {
		req.Channel = "rest"
	}
	if req.RequestID == "" {
		req.RequestID = clockwork.UUIDv7Generator{}.Generate()
	}
	return &req, nil
}

// toDelta converts the YAML spec to the model delta.
func (d *DeltaSpec) toDelta() *model.ObjectDelta {
	if d == nil {
		return nil
	}
	delta := &model.ObjectDelta{
		Type:       model.ChangeType(d.Type),
		OID:        d.OID,
		ObjectType: d.ObjectType,
	}
	for _, it := range d.Items {
		delta.Items = append(delta.Items, model.ItemDelta{
			Path:   it.Path,
			Kind:   model.ModificationKind(it.Kind),
			Values: it.Values,
		})
	}
	return delta
}

// BuildLens constructs the lens context for a change request, reading
// the focus's current state from the store when it exists. A sync
// section attaches a projection with its resolved synchronization
// context, looked up in the compiled configuration by policy name.
func BuildLens(ctx context.Context, st *store.Store, cfg *config.Config, req *ChangeRequest) (*clockwork.LensContext, error) {
	focus := &clockwork.FocusContext{
		PrimaryDelta: req.Delta.toDelta(),
	}

	oid := req.FocusOID
	if oid == "" && req.Delta != nil {
		oid = req.Delta.OID
	}
	if oid != "" {
		old, err := st.GetFocus(ctx, oid)
		switch {
		case err == nil:
			focus.ObjectOld = old
		case model.IsKind(err, model.KindNotFound):
			// New focus; the projector builds it from the delta.
		default:
			return nil, err
		}
	}

	lens := clockwork.NewLens(req.RequestID, req.Channel, focus)
	lens.MaxWave = req.MaxWave

	if req.Sync != nil {
		policy, err := findSyncPolicy(cfg, req.Sync.Policy)
		if err != nil {
			return nil, err
		}
		sync := reaction.NewContext(policy, reaction.Situation(req.Sync.Situation), req.Channel, reaction.NewCUEEvaluator())
		sync.ResourceOID = req.Sync.ResourceOID
		lens.Projections = append(lens.Projections, &clockwork.ProjectionContext{
			ResourceOID: req.Sync.ResourceOID,
			Tombstone:   req.Sync.Tombstone,
			Sync:        sync,
		})
	}
	return lens, nil
}

func findSyncPolicy(cfg *config.Config, name string) (*reaction.ObjectSyncPolicy, error) {
	if cfg == nil {
		return nil, model.NewError(model.KindConfiguration, "sync request without loaded policies")
	}
	for i := range cfg.SyncPolicies {
		if cfg.SyncPolicies[i].Name == name {
			return &cfg.SyncPolicies[i], nil
		}
	}
	return nil, model.NewError(model.KindConfiguration, "unknown synchronization policy %q", name)
}
