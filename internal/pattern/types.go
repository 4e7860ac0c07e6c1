package pattern

import (
	"encoding/json"
	"errors"
	"time"
)

// Common errors for pattern operations.
var (
	// ErrNotFound indicates an unknown pattern id.
	ErrNotFound = errors.New("pattern not found")
)

// Mining categories. Each category owns one store document.
const (
	CategoryWorkflowPatterns   = "workflow-patterns"
	CategoryErrorFixes         = "error-fixes"
	CategoryFrameworkSelection = "framework-selection"
)

// Confidence bounds for stored patterns.
const (
	MinConfidence = 0.3
	MaxConfidence = 0.9
)

// Value is an opaque structural pattern payload. Two values are considered
// the same pattern when their canonical serializations match.
type Value map[string]any

// Key returns the canonical serialization used for structural equality.
// encoding/json sorts map keys, so the key is deterministic for any nesting
// of maps, slices, and scalars.
func (v Value) Key() string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// Record is a mined, persisted generalization over one or more observations.
type Record struct {
	// ID is the unique pattern identifier.
	ID string `json:"id"`

	// Category is the mining category the pattern belongs to.
	Category string `json:"category"`

	// Pattern is the generalized structural payload.
	Pattern Value `json:"pattern"`

	// Confidence is in [0.3, 0.9] and never decreases across merges.
	Confidence float64 `json:"confidence"`

	// Occurrences is the cumulative supporting observation count.
	Occurrences int `json:"occurrences"`

	// CreatedAt is when the pattern was first mined.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt advances on every merge.
	UpdatedAt time.Time `json:"updated_at"`

	// Active marks the pattern as live. Freshly mined patterns are active.
	Active bool `json:"active"`
}

// Candidate is one extraction result, before merging into the store.
type Candidate struct {
	// Category is the target store category.
	Category string `json:"category"`

	// Pattern is the generalized payload.
	Pattern Value `json:"pattern"`

	// Confidence is the computed score for this extraction.
	Confidence float64 `json:"confidence"`

	// Occurrences is the supporting observation count in this extraction.
	Occurrences int `json:"occurrences"`
}

// Analysis is the read-only result of one mining pass.
type Analysis struct {
	// WorkflowPatterns are repeated workflow/node-usage payload shapes.
	WorkflowPatterns []Candidate `json:"workflow_patterns"`

	// ErrorFixPatterns are recurring (error_type, fix_type) pairs.
	ErrorFixPatterns []Candidate `json:"error_fix_patterns"`

	// FrameworkPatterns are recurring (project_type, framework) choices.
	FrameworkPatterns []Candidate `json:"framework_patterns"`
}

// Total returns the candidate count across all extractors.
func (a *Analysis) Total() int {
	return len(a.WorkflowPatterns) + len(a.ErrorFixPatterns) + len(a.FrameworkPatterns)
}

// MergeResult summarizes one generate-and-persist pass.
type MergeResult struct {
	// Created is the number of newly inserted pattern records.
	Created int `json:"created"`

	// Updated is the number of existing records merged into.
	Updated int `json:"updated"`

	// Categories lists the store categories touched.
	Categories []string `json:"categories"`
}

func clampConfidence(c float64) float64 {
	if c < MinConfidence {
		return MinConfidence
	}
	if c > MaxConfidence {
		return MaxConfidence
	}
	return c
}
