package pattern

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
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/instinctd/internal/state"
)

const storeInstrumentationName = "github.com/fyrsmithlabs/instinctd/internal/pattern"

// storeDoc is the on-disk shape of one category store.
type storeDoc struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	Patterns  []Record  `json:"patterns"`
}

// Store persists pattern records, one JSON document per mining category.
// The store is the exclusive owner of the files under patterns/.
type Store struct {
	root   *state.StateRoot
	logger *zap.Logger
	tracer trace.Tracer
}

// NewStore creates a pattern store over the given state root.
func NewStore(root *state.StateRoot, logger *zap.Logger) (*Store, error) {
	if root == nil {
		return nil, errors.New("state root is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		root:   root,
		logger: logger,
		tracer: otel.Tracer(storeInstrumentationName),
	}, nil
}

func (s *Store) categoryPath(category string) string {
	return filepath.Join(s.root.PatternsDir, category+".json")
}

// Load returns all records in one category. A missing or unreadable store
// document yields an empty category, never an error to the caller's mining
// flow.
func (s *Store) Load(ctx context.Context, category string) ([]Record, error) {
	data, err := os.ReadFile(s.categoryPath(category))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to read pattern store %s: %v", state.ErrStorage, category, err)
	}

	var doc storeDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("skipping malformed pattern store",
			zap.String("category", category),
			zap.Error(err),
		)
		return nil, nil
	}
	return doc.Patterns, nil
}

// LoadAll returns every category's records, keyed by category name.
func (s *Store) LoadAll(ctx context.Context) (map[string][]Record, error) {
	entries, err := os.ReadDir(s.root.PatternsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string][]Record{}, nil
		}
		return nil, fmt.Errorf("%w: failed to read patterns dir: %v", state.ErrStorage, err)
	}

	all := make(map[string][]Record)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		category := strings.TrimSuffix(entry.Name(), ".json")
		records, err := s.Load(ctx, category)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			all[category] = records
		}
	}
	return all, nil
}

// Get looks a pattern up by id across all categories.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	all, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, records := range all {
		for i := range records {
			if records[i].ID == id {
				return &records[i], nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Merge folds candidates into one category store, enforcing the structural
// uniqueness invariant: a candidate matching an existing pattern key merges
// into the existing record (confidence = max, occurrences accumulate,
// updated_at refreshed); otherwise a new record is inserted.
func (s *Store) Merge(ctx context.Context, category string, candidates []Candidate) (created, updated int, err error) {
	ctx, span := s.tracer.Start(ctx, "pattern.merge")
	defer span.End()
	span.SetAttributes(
		attribute.String("category", category),
		attribute.Int("candidate_count", len(candidates)),
	)

	records, err := s.Load(ctx, category)
	if err != nil {
		span.RecordError(err)
		return 0, 0, err
	}

	byKey := make(map[string]int, len(records))
	for i, rec := range records {
		byKey[rec.Pattern.Key()] = i
	}

	now := time.Now().UTC()
	for _, cand := range candidates {
		key := cand.Pattern.Key()
		conf := clampConfidence(cand.Confidence)

		if i, ok := byKey[key]; ok {
			rec := &records[i]
			if conf > rec.Confidence {
				rec.Confidence = conf
			}
			rec.Occurrences += cand.Occurrences
			rec.UpdatedAt = now
			updated++
			continue
		}

		records = append(records, Record{
			ID:          uuid.New().String(),
			Category:    category,
			Pattern:     cand.Pattern,
			Confidence:  conf,
			Occurrences: cand.Occurrences,
			CreatedAt:   now,
			UpdatedAt:   now,
			Active:      true,
		})
		byKey[key] = len(records) - 1
		created++
	}

	if err := s.write(category, records); err != nil {
		span.RecordError(err)
		return 0, 0, err
	}

	s.logger.Info("merged pattern candidates",
		zap.String("category", category),
		zap.Int("created", created),
		zap.Int("updated", updated),
	)
	return created, updated, nil
}

// Replace overwrites one category store wholesale. Checkpoint restore is the
// only caller; live mining always goes through Merge.
func (s *Store) Replace(ctx context.Context, category string, records []Record) error {
	return s.write(category, records)
}

// Categories returns the category names present in the store, sorted.
func (s *Store) Categories(ctx context.Context) ([]string, error) {
	all, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// write atomically replaces the category document (temp file + rename).
func (s *Store) write(category string, records []Record) error {
	doc := storeDoc{
		Version:   1,
		UpdatedAt: time.Now().UTC(),
		Patterns:  records,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal pattern store: %w", err)
	}

	path := s.categoryPath(category)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("%w: failed to write pattern store %s: %v", state.ErrStorage, category, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: failed to replace pattern store %s: %v", state.ErrStorage, category, err)
	}
	return nil
}
