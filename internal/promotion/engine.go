package promotion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/instinctd/internal/pattern"
	"github.com/fyrsmithlabs/instinctd/internal/state"
)

const instrumentationName = "github.com/fyrsmithlabs/instinctd/internal/promotion"

// Engine evaluates promotion thresholds and generates artifacts from
// qualifying patterns. It reads the pattern store but never mutates it; the
// only records it writes are artifacts and ledger entries.
type Engine struct {
	store  *pattern.Store
	root   *state.StateRoot
	logger *zap.Logger

	tracer         trace.Tracer
	meter          metric.Meter
	promoteCounter metric.Int64Counter
}

// NewEngine creates a promotion engine.
func NewEngine(store *pattern.Store, root *state.StateRoot, logger *zap.Logger) (*Engine, error) {
	if store == nil {
		return nil, errors.New("pattern store is required")
	}
	if root == nil {
		return nil, errors.New("state root is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		store:  store,
		root:   root,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
	e.initMetrics()

	return e, nil
}

func (e *Engine) initMetrics() {
	var err error
	e.promoteCounter, err = e.meter.Int64Counter(
		"instinctd.promotions_total",
		metric.WithDescription("Total number of pattern promotions"),
		metric.WithUnit("{promotion}"),
	)
	if err != nil {
		e.logger.Warn("failed to create promotion counter", zap.Error(err))
	}
}

// Candidates buckets every stored pattern under each kind whose thresholds
// it clears. The rules are independent, not tiered.
func (e *Engine) Candidates(ctx context.Context) (*Candidates, error) {
	ctx, span := e.tracer.Start(ctx, "promotion.candidates")
	defer span.End()

	records, err := e.allPatterns(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	out := &Candidates{}
	for _, rec := range records {
		if clears(rec, KindSkill) {
			out.Skill = append(out.Skill, rec)
		}
		if clears(rec, KindCommand) {
			out.Command = append(out.Command, rec)
		}
		if clears(rec, KindAgent) {
			out.Agent = append(out.Agent, rec)
		}
	}

	span.SetAttributes(attribute.Int("candidate_count", out.Total()))
	return out, nil
}

// Promote renders one pattern as an artifact of the given kind, writes it,
// and appends a ledger entry. Re-promoting overwrites the same artifact path
// but still appends a fresh ledger entry.
func (e *Engine) Promote(ctx context.Context, patternID string, kind Kind) (*GeneratedArtifact, error) {
	ctx, span := e.tracer.Start(ctx, "promotion.promote")
	defer span.End()
	span.SetAttributes(
		attribute.String("pattern_id", patternID),
		attribute.String("kind", string(kind)),
	)

	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	rec, err := e.store.Get(ctx, patternID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	now := time.Now().UTC()
	content, err := renderArtifact(rec, kind, now)
	if err != nil {
		return nil, err
	}

	dir, err := e.root.ArtifactDir(string(kind))
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, artifactFilename(rec))
	if err := os.WriteFile(path, content, 0o600); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: failed to write artifact: %v", state.ErrStorage, err)
	}

	if err := e.appendLedger(LedgerEntry{
		ID:           uuid.New().String(),
		PatternID:    rec.ID,
		Category:     rec.Category,
		Kind:         kind,
		ArtifactPath: path,
		PromotedAt:   now,
	}); err != nil {
		return nil, err
	}

	if e.promoteCounter != nil {
		e.promoteCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", string(kind)),
		))
	}
	e.logger.Info("promoted pattern",
		zap.String("pattern_id", rec.ID),
		zap.String("kind", string(kind)),
		zap.String("path", path),
	)

	return &GeneratedArtifact{
		PatternID: rec.ID,
		Kind:      kind,
		Path:      path,
		CreatedAt: now,
	}, nil
}

// AutoPromote applies the combined rule (confidence >= 0.8 and occurrences
// >= 5) to every stored pattern. Qualifying patterns are routed to exactly
// one kind chosen by their category; the rest are reported as skipped with
// the rule they failed.
func (e *Engine) AutoPromote(ctx context.Context) (*AutoPromoteResult, error) {
	ctx, span := e.tracer.Start(ctx, "promotion.auto_promote")
	defer span.End()

	records, err := e.allPatterns(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := &AutoPromoteResult{}
	for _, rec := range records {
		if rec.Confidence < autoMinConfidence {
			result.Skipped = append(result.Skipped, SkippedPattern{
				PatternID: rec.ID,
				Category:  rec.Category,
				Reason:    SkipLowConfidence,
			})
			continue
		}
		if rec.Occurrences < autoMinOccurrences {
			result.Skipped = append(result.Skipped, SkippedPattern{
				PatternID: rec.ID,
				Category:  rec.Category,
				Reason:    SkipInsufficientOccurrences,
			})
			continue
		}

		artifact, err := e.Promote(ctx, rec.ID, routeKind(rec.Category))
		if err != nil {
			return nil, err
		}
		result.Promoted = append(result.Promoted, *artifact)
	}

	span.SetAttributes(
		attribute.Int("promoted_count", len(result.Promoted)),
		attribute.Int("skipped_count", len(result.Skipped)),
	)
	return result, nil
}

// Ledger returns all promotion ledger entries in append order.
func (e *Engine) Ledger(ctx context.Context) ([]LedgerEntry, error) {
	data, err := os.ReadFile(e.root.LedgerPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to read ledger: %v", state.ErrStorage, err)
	}

	var entries []LedgerEntry
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var entry LedgerEntry
		if err := json.Unmarshal(line, &entry); err != nil || entry.ID == "" {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// allPatterns flattens the pattern store in stable category order.
func (e *Engine) allPatterns(ctx context.Context) ([]pattern.Record, error) {
	all, err := e.store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	categories := make([]string, 0, len(all))
	for category := range all {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	var records []pattern.Record
	for _, category := range categories {
		records = append(records, all[category]...)
	}
	return records, nil
}

func (e *Engine) appendLedger(entry LedgerEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry: %w", err)
	}

	f, err := os.OpenFile(e.root.LedgerPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("%w: failed to open ledger: %v", state.ErrStorage, err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("%w: failed to append ledger entry: %v", state.ErrStorage, err)
	}
	return nil
}

func clears(rec pattern.Record, kind Kind) bool {
	t := kindThresholds[kind]
	return rec.Confidence >= t.minConfidence && rec.Occurrences >= t.minOccurrences
}

// routeKind picks the single auto-promotion target for a category.
func routeKind(category string) Kind {
	switch category {
	case pattern.CategoryWorkflowPatterns:
		return KindSkill
	case pattern.CategoryErrorFixes:
		return KindCommand
	default:
		return KindSkill
	}
}
