package pattern

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/instinctd/internal/event"
)

const minerInstrumentationName = "github.com/fyrsmithlabs/instinctd/internal/pattern/miner"

// Extraction thresholds and the error/fix pairing window.
const (
	workflowMinOccurrences  = 3
	errorFixMinOccurrences  = 2
	frameworkMinOccurrences = 2
	errorFixWindow          = 5 * time.Minute
)

// EventSource supplies the full ordered event history for mining.
type EventSource interface {
	LoadAll(ctx context.Context) ([]event.Record, error)
}

// Miner turns raw observations into scored, deduplicated pattern candidates
// and merges them into the persistent store.
type Miner struct {
	events EventSource
	store  *Store
	logger *zap.Logger

	tracer       trace.Tracer
	meter        metric.Meter
	minedCounter metric.Int64Counter
}

// NewMiner creates a pattern miner.
func NewMiner(events EventSource, store *Store, logger *zap.Logger) (*Miner, error) {
	if events == nil {
		return nil, errors.New("event source is required")
	}
	if store == nil {
		return nil, errors.New("pattern store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Miner{
		events: events,
		store:  store,
		logger: logger,
		tracer: otel.Tracer(minerInstrumentationName),
		meter:  otel.Meter(minerInstrumentationName),
	}
	m.initMetrics()

	return m, nil
}

func (m *Miner) initMetrics() {
	var err error
	m.minedCounter, err = m.meter.Int64Counter(
		"instinctd.patterns.mined_total",
		metric.WithDescription("Total number of pattern candidates extracted"),
		metric.WithUnit("{candidate}"),
	)
	if err != nil {
		m.logger.Warn("failed to create mined counter", zap.Error(err))
	}
}

// Analyze runs all extractors over the full event history. It is pure: no
// store writes happen.
func (m *Miner) Analyze(ctx context.Context) (*Analysis, error) {
	ctx, span := m.tracer.Start(ctx, "pattern.analyze")
	defer span.End()

	records, err := m.events.LoadAll(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	analysis := &Analysis{
		WorkflowPatterns:  extractWorkflows(records),
		ErrorFixPatterns:  extractErrorFixes(records),
		FrameworkPatterns: extractFrameworks(records),
	}

	if m.minedCounter != nil {
		m.minedCounter.Add(ctx, int64(analysis.Total()))
	}
	span.SetAttributes(
		attribute.Int("event_count", len(records)),
		attribute.Int("candidate_count", analysis.Total()),
	)

	return analysis, nil
}

// GenerateAndPersist analyzes the event history and merges every candidate
// into its category store.
func (m *Miner) GenerateAndPersist(ctx context.Context) (*MergeResult, error) {
	ctx, span := m.tracer.Start(ctx, "pattern.generate_and_persist")
	defer span.End()

	analysis, err := m.Analyze(ctx)
	if err != nil {
		return nil, err
	}

	result := &MergeResult{}
	groups := []struct {
		category   string
		candidates []Candidate
	}{
		{CategoryWorkflowPatterns, analysis.WorkflowPatterns},
		{CategoryErrorFixes, analysis.ErrorFixPatterns},
		{CategoryFrameworkSelection, analysis.FrameworkPatterns},
	}

	for _, g := range groups {
		if len(g.candidates) == 0 {
			continue
		}
		created, updated, err := m.store.Merge(ctx, g.category, g.candidates)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		result.Created += created
		result.Updated += updated
		result.Categories = append(result.Categories, g.category)
	}

	m.logger.Info("persisted mined patterns",
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Strings("categories", result.Categories),
	)
	return result, nil
}

// extractWorkflows groups workflow_pattern and node_usage observations by
// the exact serialized value of their payload. Groups seen at least three
// times become candidates.
func extractWorkflows(records []event.Record) []Candidate {
	groups := make(map[string]*candidateGroup)

	for _, rec := range records {
		if rec.Category != event.CategoryWorkflowPattern && rec.Category != event.CategoryNodeUsage {
			continue
		}
		if rec.Payload == nil {
			continue
		}
		pattern := Value(rec.Payload)
		key := pattern.Key()
		g, ok := groups[key]
		if !ok {
			g = &candidateGroup{pattern: pattern, order: len(groups)}
			groups[key] = g
		}
		g.count++
	}

	return collectCandidates(groups, CategoryWorkflowPatterns, workflowMinOccurrences, workflowConfidence)
}

// extractErrorFixes pairs each error_occurrence with the first subsequent
// error_fix in the same session within the pairing window. A fix pairs at
// most once. Unmatched errors and fixes are dropped silently; absence of a
// fix is the expected case for most errors.
func extractErrorFixes(records []event.Record) []Candidate {
	groups := make(map[string]*candidateGroup)
	claimed := make(map[int]bool)

	for i, rec := range records {
		if rec.Category != event.CategoryErrorOccurrence {
			continue
		}

		for j := i + 1; j < len(records); j++ {
			fix := records[j]
			if fix.Category != event.CategoryErrorFix || claimed[j] {
				continue
			}
			if fix.Context.SessionID != rec.Context.SessionID {
				continue
			}
			delta := fix.Timestamp.Sub(rec.Timestamp)
			if delta < 0 {
				continue
			}
			if delta > errorFixWindow {
				// Records are time-ordered, so later fixes are further away.
				break
			}

			claimed[j] = true
			pattern := Value{
				"error_type": stringField(rec.Payload, "error_type"),
				"fix_type":   stringField(fix.Payload, "fix_type"),
			}
			key := pattern.Key()
			g, ok := groups[key]
			if !ok {
				g = &candidateGroup{pattern: pattern, order: len(groups)}
				groups[key] = g
			}
			g.count++
			break
		}
	}

	return collectCandidates(groups, CategoryErrorFixes, errorFixMinOccurrences, errorFixConfidence)
}

// extractFrameworks groups framework_selection observations by their
// (project_type, framework) payload fields.
func extractFrameworks(records []event.Record) []Candidate {
	groups := make(map[string]*candidateGroup)

	for _, rec := range records {
		if rec.Category != event.CategoryFrameworkSelection {
			continue
		}
		pattern := Value{
			"project_type": stringField(rec.Payload, "project_type"),
			"framework":    stringField(rec.Payload, "framework"),
		}
		key := pattern.Key()
		g, ok := groups[key]
		if !ok {
			g = &candidateGroup{pattern: pattern, order: len(groups)}
			groups[key] = g
		}
		g.count++
	}

	return collectCandidates(groups, CategoryFrameworkSelection, frameworkMinOccurrences, frameworkConfidence)
}

// candidateGroup accumulates occurrences of one structural pattern during
// extraction. order preserves first-seen position for deterministic output.
type candidateGroup struct {
	pattern Value
	count   int
	order   int
}

// collectCandidates keeps groups at or above the occurrence floor and scores
// them with the extractor's confidence formula.
func collectCandidates(groups map[string]*candidateGroup, category string, minOccurrences int, confidence func(int) float64) []Candidate {
	kept := make([]*candidateGroup, 0, len(groups))
	for _, g := range groups {
		if g.count >= minOccurrences {
			kept = append(kept, g)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].order < kept[j].order })

	candidates := make([]Candidate, 0, len(kept))
	for _, g := range kept {
		candidates = append(candidates, Candidate{
			Category:    category,
			Pattern:     g.pattern,
			Confidence:  confidence(g.count),
			Occurrences: g.count,
		})
	}
	return candidates
}

func workflowConfidence(occurrences int) float64 {
	return math.Min(MaxConfidence, 0.3+0.1*float64(occurrences))
}

func errorFixConfidence(occurrences int) float64 {
	return math.Min(MaxConfidence, 0.4+0.15*float64(occurrences))
}

func frameworkConfidence(occurrences int) float64 {
	return math.Min(MaxConfidence, 0.4+0.1*float64(occurrences))
}

func stringField(payload map[string]any, key string) string {
	if s, ok := payload[key].(string); ok {
		return s
	}
	return ""
}
