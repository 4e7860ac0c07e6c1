package event

import (
	"time"
)

// Category classifies an observation. The mining pipeline only understands
// the fixed enumeration below; unknown categories are accepted and stored
// but treated as opaque.
type Category string

const (
	CategoryToolUse            Category = "tool_use"
	CategoryWorkflowPattern    Category = "workflow_pattern"
	CategoryErrorOccurrence    Category = "error_occurrence"
	CategoryErrorFix           Category = "error_fix"
	CategoryFrameworkSelection Category = "framework_selection"
	CategoryNodeUsage          Category = "node_usage"
	CategoryConnectionPattern  Category = "connection_pattern"
	CategoryTestPattern        Category = "test_pattern"
	CategoryModelDefinition    Category = "model_definition"
	CategorySessionSummary     Category = "session_summary"
	CategorySessionStart       Category = "session_start"
	CategorySessionEnd         Category = "session_end"
	CategoryPreCompact         Category = "pre_compact"
	CategoryStop               Category = "stop"
)

// knownCategories is the fixed enumeration of mined categories.
var knownCategories = map[Category]bool{
	CategoryToolUse:            true,
	CategoryWorkflowPattern:    true,
	CategoryErrorOccurrence:    true,
	CategoryErrorFix:           true,
	CategoryFrameworkSelection: true,
	CategoryNodeUsage:          true,
	CategoryConnectionPattern:  true,
	CategoryTestPattern:        true,
	CategoryModelDefinition:    true,
	CategorySessionSummary:     true,
	CategorySessionStart:       true,
	CategorySessionEnd:         true,
	CategoryPreCompact:         true,
	CategoryStop:               true,
}

// Known reports whether the category is part of the fixed enumeration.
func (c Category) Known() bool {
	return knownCategories[c]
}

// Context carries the session circumstances an observation was made under.
type Context struct {
	// SessionID identifies the session the observation came from.
	SessionID string `json:"session_id"`

	// WorkingDirectory is the project directory at observation time.
	WorkingDirectory string `json:"working_directory"`

	// Framework is a free-form classification of the project stack.
	Framework string `json:"framework"`
}

// Record is one observed occurrence. Records are immutable once written;
// they are only ever removed implicitly via archive rotation.
type Record struct {
	// ID sorts lexicographically with creation order.
	ID string `json:"id"`

	// Timestamp is the creation instant.
	Timestamp time.Time `json:"timestamp"`

	// Category classifies the observation.
	Category Category `json:"category"`

	// Payload is opaque category-specific structured data.
	Payload map[string]any `json:"payload,omitempty"`

	// Context is the session context of the observation.
	Context Context `json:"context"`

	// RestoredFrom is set on records re-appended by a checkpoint restore,
	// naming the checkpoint they came from.
	RestoredFrom string `json:"restored_from,omitempty"`

	// RestoredAt is when the restore re-appended this record.
	RestoredAt *time.Time `json:"restored_at,omitempty"`
}

// RecordRequest carries the caller-supplied parts of an observation.
type RecordRequest struct {
	// Category defaults to tool_use when empty.
	Category Category

	// Payload is the category-specific data.
	Payload map[string]any

	// Context is the session context.
	Context Context
}

// Stats summarizes the recorded event history.
type Stats struct {
	// Total is the number of records across live log and archives.
	Total int `json:"total"`

	// CurrentFileCount is the number of records in the live log.
	CurrentFileCount int `json:"current_file_count"`

	// ArchiveCount is the number of sealed archive segments.
	ArchiveCount int `json:"archive_count"`

	// PerCategory counts records by category.
	PerCategory map[Category]int `json:"per_category"`
}
