// Package policy implements the rule-side decision components of the
// clockwork engine: the evaluated policy rule model, the threshold tracker
// that keeps rule counters consistent across recomputation rounds, and the
// state recorder that computes minimal policy-situation deltas.
//
// Both components are deliberately free of engine state. The threshold
// tracker's only cross-call memory is the per-run counter cache owned by
// the lens context and passed in by the caller; the recorder is a pure
// computation over the up-to-date object state.
//
// EXACTLY-ONCE COUNTERS: rules are recomputed from scratch on every
// projector round, so a naive "increment if triggered" policy would count
// the same rule once per round. The tracker splits rules into two groups:
// rules already present in the run's cache get their count overwritten from
// the cache, everything else that is triggered and carries a threshold is
// collected into one batch increment delegated to the external counter
// store.
package policy
