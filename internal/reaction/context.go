package reaction

import (
	"github.com/wardenhq/warden/internal/model"
)

// Situation classifies the correlation outcome of an inbound
// resource-object event.
type Situation string

const (
	// SituationLinked - the shadow is already linked to its owner.
	SituationLinked Situation = "linked"
	// SituationUnlinked - an owner was correlated but no link exists yet.
	SituationUnlinked Situation = "unlinked"
	// SituationDeleted - the resource object disappeared.
	SituationDeleted Situation = "deleted"
	// SituationUnmatched - correlation found no owner.
	SituationUnmatched Situation = "unmatched"
	// SituationDisputed - correlation found more than one candidate owner.
	SituationDisputed Situation = "disputed"
)

// ChannelDiscovery is the channel of events produced by resource
// discovery scans. Discovery events force propagation limiting (unless the
// situation is deleted) so compensating actions cannot cascade into
// unrelated resources.
const ChannelDiscovery = "discovery"

// Reaction is one configured response bound to a situation/channel/
// condition combination.
type Reaction struct {
	Name       string      `json:"name"`
	Situations []Situation `json:"situations"`

	// Channels the reaction applies to. Empty (or containing only the
	// wildcard "*") means the reaction is a default candidate for any
	// channel.
	Channels []string `json:"channels,omitempty"`

	// Condition is a CUE boolean expression; empty means always true.
	Condition string `json:"condition,omitempty"`

	// Overrides for the policy-level defaults; nil means inherit.
	Kind             string `json:"kind,omitempty"`
	Intent           string `json:"intent,omitempty"`
	DoReconciliation *bool  `json:"do_reconciliation,omitempty"`
	LimitPropagation *bool  `json:"limit_propagation,omitempty"`
}

// matchesSituation reports whether the reaction applies to the situation.
func (r *Reaction) matchesSituation(s Situation) bool {
	for _, rs := range r.Situations {
		if rs == s {
			return true
		}
	}
	return false
}

// isDefault reports whether the reaction has an empty or wildcard channel
// list and therefore competes only as the default candidate.
func (r *Reaction) isDefault() bool {
	if len(r.Channels) == 0 {
		return true
	}
	for _, c := range r.Channels {
		if c != "*" {
			return false
		}
	}
	return true
}

// listsChannel reports whether the channel appears in the reaction's
// channel list.
func (r *Reaction) listsChannel(channel string) bool {
	for _, c := range r.Channels {
		if c == channel {
			return true
		}
	}
	return false
}

// ObjectSyncPolicy is the matched object-synchronization policy for a
// resource: kind/intent defaults plus the prioritized reaction list in
// declaration order.
type ObjectSyncPolicy struct {
	Name   string `json:"name"`
	Kind   string `json:"kind,omitempty"`
	Intent string `json:"intent,omitempty"`

	DoReconciliation bool `json:"do_reconciliation,omitempty"`
	LimitPropagation bool `json:"limit_propagation,omitempty"`

	Reactions []Reaction `json:"reactions,omitempty"`
}

// Context is the synchronization context for one inbound resource-object
// event. Created once per event and owned by its caller; not safe for
// concurrent use.
type Context struct {
	ShadowOID   string
	Shadow      model.Attributes
	ResourceOID string
	Channel     string

	// Delta is the originating change, when the event carries one.
	Delta *model.ObjectDelta

	Policy    *ObjectSyncPolicy
	Situation Situation

	// At most one of the two is authoritative at evaluation time.
	LinkedOwner     *model.FocusObject
	CorrelatedOwner *model.FocusObject

	evaluator ConditionEvaluator

	// Memoized resolution state. resolved distinguishes "not evaluated
	// yet" from "evaluated to no reaction".
	resolved      bool
	winner        *Reaction
	resolutionErr error

	// Lazily computed tag.
	tag         string
	tagComputed bool
}

// NewContext builds a synchronization context. evaluator may be nil, in
// which case only empty conditions (always true) are supported.
func NewContext(policy *ObjectSyncPolicy, situation Situation, channel string, evaluator ConditionEvaluator) *Context {
	return &Context{
		Policy:    policy,
		Situation: situation,
		Channel:   channel,
		evaluator: evaluator,
	}
}

// Owner returns the authoritative owner for the event: the linked owner
// when present, otherwise the correlated owner, otherwise nil.
func (c *Context) Owner() *model.FocusObject {
	if c.LinkedOwner != nil {
		return c.LinkedOwner
	}
	return c.CorrelatedOwner
}

// Tag lazily derives the shadow's multiaccount tag from its attributes.
func (c *Context) Tag() string {
	if c.tagComputed {
		return c.tag
	}
	c.tagComputed = true
	if v, ok := c.Shadow["tag"].(string); ok {
		c.tag = v
	}
	return c.tag
}

// Kind returns the winning reaction's kind override, falling back to the
// policy default.
func (c *Context) Kind() (string, error) {
	r, err := c.Reaction()
	if err != nil {
		return "", err
	}
	if r != nil && r.Kind != "" {
		return r.Kind, nil
	}
	if c.Policy != nil {
		return c.Policy.Kind, nil
	}
	return "", nil
}

// Intent returns the winning reaction's intent override, falling back to
// the policy default.
func (c *Context) Intent() (string, error) {
	r, err := c.Reaction()
	if err != nil {
		return "", err
	}
	if r != nil && r.Intent != "" {
		return r.Intent, nil
	}
	if c.Policy != nil {
		return c.Policy.Intent, nil
	}
	return "", nil
}

// DoReconciliation returns whether the reaction (or the policy default)
// requests reconciliation of the owner's projections.
func (c *Context) DoReconciliation() (bool, error) {
	r, err := c.Reaction()
	if err != nil {
		return false, err
	}
	if r != nil && r.DoReconciliation != nil {
		return *r.DoReconciliation, nil
	}
	if c.Policy != nil {
		return c.Policy.DoReconciliation, nil
	}
	return false, nil
}

// LimitPropagation returns whether change propagation must be limited to
// the triggering resource.
//
// Discovery-channel events force limiting unless the situation is deleted:
// a discovery scan must not cascade compensating actions into unrelated
// resources, but a detected deletion still needs its full fan-out.
func (c *Context) LimitPropagation() (bool, error) {
	if c.Channel == ChannelDiscovery && c.Situation != SituationDeleted {
		return true, nil
	}
	r, err := c.Reaction()
	if err != nil {
		return false, err
	}
	if r != nil && r.LimitPropagation != nil {
		return *r.LimitPropagation, nil
	}
	if c.Policy != nil {
		return c.Policy.LimitPropagation, nil
	}
	return false, nil
}
