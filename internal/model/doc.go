// Package model defines the shared value types of the warden decision core.
//
// The package is a leaf: every other package (policy, reaction, clockwork,
// store) depends on it and it depends on nothing inside the module.
//
// Contents:
//   - FocusObject, Assignment: the identity object being governed and its
//     multi-valued assignment entries, including the persisted policy
//     situation and triggered-rule metadata that the state recorder keeps
//     in sync.
//   - ObjectDelta, ItemDelta: requested and computed changes. Item deltas
//     carry an explicit plus/minus/zero bucket so assignment-scoped
//     modifications land in the right part of a containing delta.
//   - OperationResult: the per-run outcome record (fatal flag, finished
//     flag, background task reference, conflict notes).
//   - Error taxonomy: structured errors with a Kind constant for every
//     failure category the engine distinguishes, plus ConflictDetectedError
//     as a typed value matched with errors.As.
//   - Canonical JSON and content-addressed hashing, used for idempotent
//     audit writes and delta identity.
//
// DETERMINISM: canonical marshaling sorts object keys by UTF-16 code units
// and NFC-normalizes strings, so the same logical value always hashes to
// the same identifier. Floats and nulls are rejected rather than silently
// coerced.
package model
