// Package checkpoint snapshots the learning state (a recent event window,
// the full pattern store, and root identity) into named, restorable bundles.
// Restore is additive on the event log and destructive per pattern category,
// and is always preceded by a safety snapshot of the live state.
package checkpoint
