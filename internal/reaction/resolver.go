package reaction

import (
	"log/slog"

	"github.com/wardenhq/warden/internal/model"
)

// Reaction resolves which configured reaction applies to this context.
//
// Evaluation runs exactly once per context instance; subsequent calls
// return the memoized result (including a memoized nil and a memoized
// error) without re-evaluating conditions.
//
// Algorithm, scanning reactions in declaration order:
//  1. Skip reactions whose situation list does not contain the context's
//     classified situation.
//  2. A channel-specific reaction (non-empty, non-wildcard channel list)
//     wins immediately when the current channel is listed and its
//     condition holds.
//  3. A default reaction (empty/wildcard channel list) whose condition
//     holds is remembered as the default candidate, but scanning
//     continues - a later channel-specific match still takes priority.
//  4. Without a channel-specific match, the remembered default (possibly
//     nil) is the result.
func (c *Context) Reaction() (*Reaction, error) {
	if c.resolved {
		return c.winner, c.resolutionErr
	}
	c.resolved = true

	if c.Policy == nil {
		return nil, nil
	}

	var defaultCandidate *Reaction

	reactions := c.Policy.Reactions
	for i := range reactions {
		r := &reactions[i]
		if !r.matchesSituation(c.Situation) {
			continue
		}

		if r.isDefault() {
			if defaultCandidate != nil {
				// First default wins; don't evaluate further default
				// conditions (they may be costly or side-effecting).
				continue
			}
			ok, err := c.conditionHolds(r)
			if err != nil {
				c.resolutionErr = err
				return nil, err
			}
			if ok {
				defaultCandidate = r
			}
			continue
		}

		if !r.listsChannel(c.Channel) {
			continue
		}
		ok, err := c.conditionHolds(r)
		if err != nil {
			c.resolutionErr = err
			return nil, err
		}
		if !ok {
			continue
		}

		// First channel-specific match wins.
		c.winner = r
		c.warnOnAmbiguity(reactions, i)

		slog.Debug("synchronization reaction resolved",
			"reaction", r.Name,
			"situation", string(c.Situation),
			"channel", c.Channel,
		)
		return c.winner, nil
	}

	c.winner = defaultCandidate
	if defaultCandidate != nil {
		slog.Debug("synchronization reaction resolved to default",
			"reaction", defaultCandidate.Name,
			"situation", string(c.Situation),
			"channel", c.Channel,
		)
	}
	return c.winner, nil
}

// conditionHolds evaluates a reaction's condition expression. An absent
// condition always holds. A condition with no evaluator configured is a
// configuration error.
func (c *Context) conditionHolds(r *Reaction) (bool, error) {
	if r.Condition == "" {
		return true, nil
	}
	if c.evaluator == nil {
		return false, model.NewError(model.KindConfiguration,
			"reaction %q has a condition but no evaluator is configured", r.Name)
	}
	ok, err := c.evaluator.Evaluate(r.Condition, c.scope())
	if err != nil {
		return false, model.WrapError(model.KindExpression, err,
			"evaluate condition of reaction %q", r.Name)
	}
	return ok, nil
}

// warnOnAmbiguity scans the reactions after the winner for another
// channel-specific reaction that statically matches the same situation and
// channel. Such a configuration is ambiguous - the first-declared reaction
// silently wins - and deserves a warning rather than a silent pick.
// Conditions of the losing candidates are NOT evaluated here.
func (c *Context) warnOnAmbiguity(reactions []Reaction, winnerIdx int) {
	for j := winnerIdx + 1; j < len(reactions); j++ {
		r := &reactions[j]
		if r.isDefault() || !r.matchesSituation(c.Situation) || !r.listsChannel(c.Channel) {
			continue
		}
		slog.Warn("ambiguous reaction configuration: multiple channel-specific reactions match, first declared wins",
			"winner", reactions[winnerIdx].Name,
			"shadowed", r.Name,
			"situation", string(c.Situation),
			"channel", c.Channel,
		)
		return
	}
}

// scope builds the evaluation scope visible to condition expressions.
func (c *Context) scope() map[string]any {
	scope := map[string]any{
		"channel":   c.Channel,
		"situation": string(c.Situation),
	}
	if owner := c.Owner(); owner != nil {
		scope["focusName"] = owner.Name
	} else {
		scope["focusName"] = ""
	}
	shadow := map[string]any{}
	for k, v := range c.Shadow {
		shadow[k] = v
	}
	scope["shadow"] = shadow
	return scope
}
