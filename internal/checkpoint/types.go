package checkpoint

import (
	"errors"
	"time"

	"github.com/fyrsmithlabs/instinctd/internal/event"
	"github.com/fyrsmithlabs/instinctd/internal/pattern"
	"github.com/fyrsmithlabs/instinctd/internal/state"
)

// ErrNotFound indicates an unknown checkpoint id.
var ErrNotFound = errors.New("checkpoint not found")

// eventWindow is how many trailing events a checkpoint captures.
const eventWindow = 100

// latestAlias is the filename of the most-recent-checkpoint copy.
const latestAlias = "latest.json"

// Checkpoint is one immutable snapshot of the learning state.
type Checkpoint struct {
	// ID uniquely identifies the checkpoint.
	ID string `json:"id"`

	// Name is the human-readable label given at save time.
	Name string `json:"name"`

	// CreatedAt is the snapshot instant.
	CreatedAt time.Time `json:"created_at"`

	// Events is the trailing window of the event log at save time.
	Events []event.Record `json:"events"`

	// Patterns is the complete pattern store, keyed by category.
	Patterns map[string][]pattern.Record `json:"patterns"`

	// Identity is the state root's identity record.
	Identity state.Identity `json:"identity"`

	// Stats summarizes the state at save time.
	Stats Stats `json:"stats"`

	// ImportedFrom is the external path an imported checkpoint came from.
	ImportedFrom string `json:"imported_from,omitempty"`

	// ImportedAt is when the checkpoint was imported.
	ImportedAt *time.Time `json:"imported_at,omitempty"`
}

// Stats is a point-in-time summary captured with each checkpoint.
type Stats struct {
	// EventTotal is the full event log size, archives included.
	EventTotal int `json:"event_total"`

	// PatternTotal is the pattern count across all categories.
	PatternTotal int `json:"pattern_total"`
}

// Summary is one row of a checkpoint listing.
type Summary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	EventCount   int       `json:"event_count"`
	PatternCount int       `json:"pattern_count"`
	Imported     bool      `json:"imported,omitempty"`
}

// RestoreResult reports what a restore changed.
type RestoreResult struct {
	// CheckpointID is the restored checkpoint.
	CheckpointID string `json:"checkpoint_id"`

	// SafetyCheckpointID is the pre-restore snapshot taken first.
	SafetyCheckpointID string `json:"safety_checkpoint_id"`

	// RestoredEvents is how many records were appended to the live log.
	RestoredEvents int `json:"restored_events"`

	// RestoredCategories lists the pattern categories overwritten.
	RestoredCategories []string `json:"restored_categories"`
}

// Category diff statuses, describing how live state moved relative to the
// checkpoint.
const (
	DiffAdded     = "added"
	DiffRemoved   = "removed"
	DiffModified  = "modified"
	DiffUnchanged = "unchanged"
)

// CategoryDiff compares one pattern category between a checkpoint and live
// state.
type CategoryDiff struct {
	Category        string `json:"category"`
	Status          string `json:"status"`
	CheckpointCount int    `json:"checkpoint_count"`
	LiveCount       int    `json:"live_count"`
}

// Diff compares a checkpoint against the current live state. It is read-only
// and has no side effects.
type Diff struct {
	CheckpointID    string         `json:"checkpoint_id"`
	CheckpointEvent int            `json:"checkpoint_event_count"`
	LiveEvent       int            `json:"live_event_count"`
	EventDelta      int            `json:"event_delta"`
	Categories      []CategoryDiff `json:"categories"`
}
