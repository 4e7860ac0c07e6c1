// Package state owns the on-disk layout of the instinctd learning state.
//
// Every component receives a *StateRoot handle instead of reaching for
// ambient filesystem paths, so tests can run against an isolated root.
package state
