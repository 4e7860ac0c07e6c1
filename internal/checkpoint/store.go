package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/instinctd/internal/event"
	"github.com/fyrsmithlabs/instinctd/internal/pattern"
	"github.com/fyrsmithlabs/instinctd/internal/state"
)

const instrumentationName = "github.com/fyrsmithlabs/instinctd/internal/checkpoint"

// EventStore is the slice of the event recorder the checkpoint store needs.
type EventStore interface {
	LoadAll(ctx context.Context) ([]event.Record, error)
	Append(ctx context.Context, recs []event.Record) error
}

// PatternStore is the slice of the pattern store the checkpoint store needs.
type PatternStore interface {
	LoadAll(ctx context.Context) (map[string][]pattern.Record, error)
	Replace(ctx context.Context, category string, records []pattern.Record) error
}

// Store saves and restores checkpoints. It never mutates the live event log
// or pattern store outside an explicit Restore.
type Store struct {
	events   EventStore
	patterns PatternStore
	root     *state.StateRoot
	logger   *zap.Logger

	tracer         trace.Tracer
	meter          metric.Meter
	saveCounter    metric.Int64Counter
	restoreCounter metric.Int64Counter
}

// NewStore creates a checkpoint store.
func NewStore(events EventStore, patterns PatternStore, root *state.StateRoot, logger *zap.Logger) (*Store, error) {
	if events == nil {
		return nil, errors.New("event store is required")
	}
	if patterns == nil {
		return nil, errors.New("pattern store is required")
	}
	if root == nil {
		return nil, errors.New("state root is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		events:   events,
		patterns: patterns,
		root:     root,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
	}
	s.initMetrics()

	return s, nil
}

func (s *Store) initMetrics() {
	var err error
	s.saveCounter, err = s.meter.Int64Counter(
		"instinctd.checkpoint.saves_total",
		metric.WithDescription("Total number of checkpoints saved"),
		metric.WithUnit("{save}"),
	)
	if err != nil {
		s.logger.Warn("failed to create save counter", zap.Error(err))
	}

	s.restoreCounter, err = s.meter.Int64Counter(
		"instinctd.checkpoint.restores_total",
		metric.WithDescription("Total number of checkpoint restores"),
		metric.WithUnit("{restore}"),
	)
	if err != nil {
		s.logger.Warn("failed to create restore counter", zap.Error(err))
	}
}

// Save snapshots the trailing event window, the full pattern store, and the
// root identity under a fresh id. The latest alias is overwritten with an
// exact copy.
func (s *Store) Save(ctx context.Context, name string) (*Checkpoint, error) {
	ctx, span := s.tracer.Start(ctx, "checkpoint.save")
	defer span.End()

	now := time.Now().UTC()
	if name == "" {
		name = "checkpoint-" + now.Format("20060102-150405")
	}

	events, err := s.events.LoadAll(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	window := events
	if len(window) > eventWindow {
		window = window[len(window)-eventWindow:]
	}

	patterns, err := s.patterns.LoadAll(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	patternTotal := 0
	for _, records := range patterns {
		patternTotal += len(records)
	}

	cp := &Checkpoint{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: now,
		Events:    window,
		Patterns:  patterns,
		Identity:  s.root.Identity(),
		Stats: Stats{
			EventTotal:   len(events),
			PatternTotal: patternTotal,
		},
	}

	if err := s.write(cp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if s.saveCounter != nil {
		s.saveCounter.Add(ctx, 1)
	}
	s.logger.Info("saved checkpoint",
		zap.String("checkpoint_id", cp.ID),
		zap.String("name", cp.Name),
		zap.Int("events", len(cp.Events)),
		zap.Int("patterns", patternTotal),
	)
	span.SetAttributes(attribute.String("checkpoint_id", cp.ID))

	return cp, nil
}

// List returns summaries of every saved checkpoint, newest first. Malformed
// snapshot files are skipped.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	_, span := s.tracer.Start(ctx, "checkpoint.list")
	defer span.End()

	entries, err := os.ReadDir(s.root.CheckpointsDir)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: failed to read checkpoints: %v", state.ErrStorage, err)
	}

	var summaries []Summary
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == latestAlias || !strings.HasSuffix(name, ".json") {
			continue
		}

		cp, err := s.read(filepath.Join(s.root.CheckpointsDir, name))
		if err != nil {
			s.logger.Warn("skipping malformed checkpoint file",
				zap.String("file", name),
				zap.Error(err),
			)
			continue
		}

		patternCount := 0
		for _, records := range cp.Patterns {
			patternCount += len(records)
		}
		summaries = append(summaries, Summary{
			ID:           cp.ID,
			Name:         cp.Name,
			CreatedAt:    cp.CreatedAt,
			EventCount:   len(cp.Events),
			PatternCount: patternCount,
			Imported:     cp.ImportedFrom != "",
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
		}
		return summaries[i].ID < summaries[j].ID
	})

	span.SetAttributes(attribute.Int("checkpoint_count", len(summaries)))
	return summaries, nil
}

// Get loads one checkpoint by id.
func (s *Store) Get(ctx context.Context, id string) (*Checkpoint, error) {
	path, err := s.checkpointPath(id)
	if err != nil {
		return nil, err
	}
	cp, err := s.read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return cp, nil
}

// Restore brings a checkpoint's state back into the live store. A safety
// snapshot of the current state is taken first, so restore itself is always
// recoverable. Events are appended to the live log with provenance tags;
// pattern categories present in the checkpoint are overwritten wholesale.
func (s *Store) Restore(ctx context.Context, id string) (*RestoreResult, error) {
	ctx, span := s.tracer.Start(ctx, "checkpoint.restore")
	defer span.End()
	span.SetAttributes(attribute.String("checkpoint_id", id))

	cp, err := s.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	safety, err := s.Save(ctx, "pre-restore-"+time.Now().UTC().Format("20060102-150405"))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to take safety checkpoint: %w", err)
	}

	now := time.Now().UTC()
	restored := make([]event.Record, len(cp.Events))
	for i, rec := range cp.Events {
		rec.RestoredFrom = cp.ID
		rec.RestoredAt = &now
		restored[i] = rec
	}
	if err := s.events.Append(ctx, restored); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	categories := make([]string, 0, len(cp.Patterns))
	for category := range cp.Patterns {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	for _, category := range categories {
		if err := s.patterns.Replace(ctx, category, cp.Patterns[category]); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	if s.restoreCounter != nil {
		s.restoreCounter.Add(ctx, 1)
	}
	s.logger.Info("restored checkpoint",
		zap.String("checkpoint_id", cp.ID),
		zap.String("safety_checkpoint_id", safety.ID),
		zap.Int("restored_events", len(restored)),
		zap.Strings("restored_categories", categories),
	)

	return &RestoreResult{
		CheckpointID:       cp.ID,
		SafetyCheckpointID: safety.ID,
		RestoredEvents:     len(restored),
		RestoredCategories: categories,
	}, nil
}

// Diff compares a checkpoint against the current live state.
func (s *Store) Diff(ctx context.Context, id string) (*Diff, error) {
	ctx, span := s.tracer.Start(ctx, "checkpoint.diff")
	defer span.End()
	span.SetAttributes(attribute.String("checkpoint_id", id))

	cp, err := s.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	liveEvents, err := s.events.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	livePatterns, err := s.patterns.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	counts := map[string][2]int{}
	for category, records := range cp.Patterns {
		c := counts[category]
		c[0] = len(records)
		counts[category] = c
	}
	for category, records := range livePatterns {
		c := counts[category]
		c[1] = len(records)
		counts[category] = c
	}

	categories := make([]string, 0, len(counts))
	for category := range counts {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	diff := &Diff{
		CheckpointID:    cp.ID,
		CheckpointEvent: cp.Stats.EventTotal,
		LiveEvent:       len(liveEvents),
		EventDelta:      len(liveEvents) - cp.Stats.EventTotal,
	}
	for _, category := range categories {
		c := counts[category]
		status := DiffUnchanged
		switch {
		case c[0] == 0 && c[1] > 0:
			status = DiffAdded
		case c[0] > 0 && c[1] == 0:
			status = DiffRemoved
		case c[0] != c[1]:
			status = DiffModified
		}
		diff.Categories = append(diff.Categories, CategoryDiff{
			Category:        category,
			Status:          status,
			CheckpointCount: c[0],
			LiveCount:       c[1],
		})
	}

	return diff, nil
}

// Export copies one checkpoint to an external path.
func (s *Store) Export(ctx context.Context, id, path string) error {
	_, span := s.tracer.Start(ctx, "checkpoint.export")
	defer span.End()

	src, err := s.checkpointPath(id)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("%w: failed to read checkpoint: %v", state.ErrStorage, err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: failed to export checkpoint: %v", state.ErrStorage, err)
	}

	s.logger.Info("exported checkpoint",
		zap.String("checkpoint_id", id),
		zap.String("path", path),
	)
	return nil
}

// Import copies an external checkpoint into the store under a fresh id with
// provenance tags. The imported snapshot's contents are otherwise unchanged.
func (s *Store) Import(ctx context.Context, path string) (*Checkpoint, error) {
	_, span := s.tracer.Start(ctx, "checkpoint.import")
	defer span.End()

	cp, err := s.read(path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	now := time.Now().UTC()
	cp.ID = uuid.New().String()
	cp.ImportedFrom = path
	cp.ImportedAt = &now

	dst, err := s.checkpointPath(cp.ID)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: failed to write checkpoint: %v", state.ErrStorage, err)
	}

	s.logger.Info("imported checkpoint",
		zap.String("checkpoint_id", cp.ID),
		zap.String("path", path),
	)
	return cp, nil
}

func (s *Store) write(cp *Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	path, err := s.checkpointPath(cp.ID)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("%w: failed to write checkpoint: %v", state.ErrStorage, err)
	}

	// The latest alias is an exact copy, not a symlink, so an export of it
	// stays self-contained.
	alias := filepath.Join(s.root.CheckpointsDir, latestAlias)
	if err := os.WriteFile(alias, data, 0o600); err != nil {
		return fmt.Errorf("%w: failed to write latest alias: %v", state.ErrStorage, err)
	}

	return nil
}

func (s *Store) read(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint %s: %w", filepath.Base(path), err)
	}
	if cp.ID == "" {
		return nil, fmt.Errorf("checkpoint %s has no id", filepath.Base(path))
	}
	return &cp, nil
}

// checkpointPath maps an id to its snapshot file, rejecting ids that would
// escape the checkpoints directory.
func (s *Store) checkpointPath(id string) (string, error) {
	if id == "" || filepath.Base(id) != id || id == latestAlias {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return filepath.Join(s.root.CheckpointsDir, id+".json"), nil
}
