// Package clockwork implements the orchestration engine that drives one
// identity change to convergence.
//
// A run advances a mutable lens context through the states INITIAL,
// PRIMARY, SECONDARY (once per execution wave) and FINAL, one click at a
// time. Each click may invoke the projector, the policy threshold
// tracker, the policy state recorder and the change executor, and emits
// audit events per stage. The click loop is bounded: exceeding the
// configured click ceiling is a fatal configuration-loop error.
//
// Thread-safety model:
//   - A lens context is exclusively owned by one run. It is never shared
//     between goroutines.
//   - Parallelism exists only across independent runs (different focus
//     objects), each with its own lens.
//   - The conflict watcher is the one piece of state that crosses into
//     shared territory; it is registered before the first click and
//     checked at the final foreground click.
package clockwork
