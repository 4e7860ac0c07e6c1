package promotion

import (
	"errors"
	"time"

	"github.com/fyrsmithlabs/instinctd/internal/pattern"
)

// ErrUnknownKind indicates an artifact kind outside the supported set.
var ErrUnknownKind = errors.New("unknown artifact kind")

// Kind is a promotion target artifact kind.
type Kind string

const (
	// KindSkill is a reusable skill document.
	KindSkill Kind = "skill"

	// KindCommand is a slash-command document.
	KindCommand Kind = "command"

	// KindAgent is a subagent definition document.
	KindAgent Kind = "agent"
)

// Valid reports whether the kind is supported.
func (k Kind) Valid() bool {
	return k == KindSkill || k == KindCommand || k == KindAgent
}

// threshold is one kind's independent promotion rule.
type threshold struct {
	minConfidence  float64
	minOccurrences int
}

// Per-kind candidate thresholds. The rules are independent: a single pattern
// may clear several of them at once.
var kindThresholds = map[Kind]threshold{
	KindSkill:   {minConfidence: 0.70, minOccurrences: 5},
	KindCommand: {minConfidence: 0.60, minOccurrences: 3},
	KindAgent:   {minConfidence: 0.80, minOccurrences: 10},
}

// Auto-promotion applies one stricter combined rule.
const (
	autoMinConfidence  = 0.8
	autoMinOccurrences = 5
)

// Skip reasons reported by AutoPromote.
const (
	SkipLowConfidence           = "low_confidence"
	SkipInsufficientOccurrences = "insufficient_occurrences"
)

// Candidates buckets every pattern by the kinds whose thresholds it clears.
type Candidates struct {
	Skill   []pattern.Record `json:"skill"`
	Command []pattern.Record `json:"command"`
	Agent   []pattern.Record `json:"agent"`
}

// Total returns the bucket entry count across all kinds.
func (c *Candidates) Total() int {
	return len(c.Skill) + len(c.Command) + len(c.Agent)
}

// GeneratedArtifact describes one written artifact.
type GeneratedArtifact struct {
	// PatternID is the promoted pattern.
	PatternID string `json:"pattern_id"`

	// Kind is the artifact kind.
	Kind Kind `json:"kind"`

	// Path is where the artifact was written.
	Path string `json:"path"`

	// CreatedAt is the promotion instant.
	CreatedAt time.Time `json:"created_at"`
}

// LedgerEntry is one append-only promotion audit record. Entries are never
// mutated; re-promoting the same pattern appends a new entry.
type LedgerEntry struct {
	ID           string    `json:"id"`
	PatternID    string    `json:"pattern_id"`
	Category     string    `json:"category"`
	Kind         Kind      `json:"kind"`
	ArtifactPath string    `json:"artifact_path"`
	PromotedAt   time.Time `json:"promoted_at"`
}

// SkippedPattern names a pattern auto-promotion passed over, with the rule it
// failed.
type SkippedPattern struct {
	PatternID string `json:"pattern_id"`
	Category  string `json:"category"`
	Reason    string `json:"reason"`
}

// AutoPromoteResult summarizes one auto-promotion pass.
type AutoPromoteResult struct {
	Promoted []GeneratedArtifact `json:"promoted"`
	Skipped  []SkippedPattern    `json:"skipped"`
}
