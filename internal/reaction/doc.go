// Package reaction implements synchronization reaction resolution: given
// the classified situation of an inbound resource-object event, it selects
// which configured reaction policy applies and derives the execution flags
// (kind, intent, reconciliation, propagation limiting) from it.
//
// RESOLUTION TIE-BREAK: reactions are scanned in declaration order. A
// reaction listing specific channels wins immediately when the current
// channel is listed and its condition holds. A reaction with an empty
// channel list is only remembered as the default candidate - a later
// channel-specific match still overrides it. This lets administrators
// declare a generic fallback plus channel-specific overrides without
// ordering constraints between them.
//
// MEMOIZATION: resolution runs exactly once per context instance.
// Condition expressions may be costly or side-effecting, so repeated
// lookups return the cached winner (or cached nil) without re-evaluating.
//
// Conditions are CUE boolean expressions evaluated against a small scope
// (channel, situation, focus name, shadow attributes); an absent condition
// always holds.
package reaction
