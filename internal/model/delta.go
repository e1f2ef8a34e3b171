package model

// ChangeType classifies an object-level delta.
type ChangeType string

const (
	// ChangeAdd creates a new object.
	ChangeAdd ChangeType = "add"
	// ChangeModify alters an existing object in place.
	ChangeModify ChangeType = "modify"
	// ChangeDelete removes an object (tombstones its projections).
	ChangeDelete ChangeType = "delete"
)

// ModificationKind is the operation an item delta performs on a
// multi-valued attribute.
type ModificationKind string

const (
	ModificationAdd     ModificationKind = "add"
	ModificationDelete  ModificationKind = "delete"
	ModificationReplace ModificationKind = "replace"
)

// Bucket identifies which part of a containing delta an assignment-scoped
// item delta is queued against:
//
//	BucketPlus  - values being added by the same run (assignment not yet persisted)
//	BucketMinus - values being removed by the same run
//	BucketZero  - values that existed before the run and survive it
type Bucket string

const (
	BucketPlus  Bucket = "plus"
	BucketMinus Bucket = "minus"
	BucketZero  Bucket = "zero"
)

// ItemDelta is one attribute-level modification.
//
// AssignmentID is non-zero when the delta targets a persisted assignment
// entry rather than the object itself. AssignmentTarget carries the value
// identity for assignments that have no persisted identifier yet.
type ItemDelta struct {
	Path             string           `json:"path"`
	Kind             ModificationKind `json:"kind"`
	Values           []any            `json:"values,omitempty"`
	AssignmentID     int64            `json:"assignment_id,omitempty"`
	AssignmentTarget string           `json:"assignment_target,omitempty"`
	Bucket           Bucket           `json:"bucket,omitempty"`
}

// ObjectDelta is a requested or computed change to one object.
type ObjectDelta struct {
	Type       ChangeType  `json:"type"`
	OID        string      `json:"oid,omitempty"` // empty for add
	ObjectType string      `json:"object_type,omitempty"`
	Items      []ItemDelta `json:"items,omitempty"`
}

// IsDelete reports whether the delta removes its target object.
func (d *ObjectDelta) IsDelete() bool {
	return d != nil && d.Type == ChangeDelete
}

// Touches reports whether any item delta targets the given attribute path.
func (d *ObjectDelta) Touches(path string) bool {
	if d == nil {
		return false
	}
	for _, it := range d.Items {
		if it.Path == path {
			return true
		}
	}
	return false
}

// toCanonicalMap renders the delta as a plain map for canonical hashing.
// Empty fields are omitted so logically equal deltas hash identically.
func (d *ObjectDelta) toCanonicalMap() map[string]any {
	m := map[string]any{
		"type": string(d.Type),
	}
	if d.OID != "" {
		m["oid"] = d.OID
	}
	if d.ObjectType != "" {
		m["object_type"] = d.ObjectType
	}
	if len(d.Items) > 0 {
		items := make([]any, len(d.Items))
		for i, it := range d.Items {
			im := map[string]any{
				"path": it.Path,
				"kind": string(it.Kind),
			}
			if len(it.Values) > 0 {
				im["values"] = append([]any(nil), it.Values...)
			}
			if it.AssignmentID != 0 {
				im["assignment_id"] = it.AssignmentID
			}
			if it.AssignmentTarget != "" {
				im["assignment_target"] = it.AssignmentTarget
			}
			if it.Bucket != "" {
				im["bucket"] = string(it.Bucket)
			}
			items[i] = im
		}
		m["items"] = items
	}
	return m
}
