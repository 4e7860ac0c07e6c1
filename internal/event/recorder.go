package event

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/instinctd/internal/state"
)

const instrumentationName = "github.com/fyrsmithlabs/instinctd/internal/event"

// DefaultRolloverThreshold is the live-log record count at which the log is
// sealed into an archive segment.
const DefaultRolloverThreshold = 1000

// maxLineSize bounds a single serialized record.
const maxLineSize = 1 << 20

// Config configures the event recorder.
type Config struct {
	// RolloverThreshold is the live-log size that triggers archiving
	// (default: 1000).
	RolloverThreshold int
}

// DefaultConfig returns recorder defaults.
func DefaultConfig() *Config {
	return &Config{
		RolloverThreshold: DefaultRolloverThreshold,
	}
}

// Recorder provides durable, append-only observation capture.
type Recorder struct {
	config *Config
	root   *state.StateRoot
	logger *zap.Logger

	tracer          trace.Tracer
	meter           metric.Meter
	recordCounter   metric.Int64Counter
	rolloverCounter metric.Int64Counter

	mu sync.Mutex
	// liveCount is the cached live-log record count; -1 means not yet
	// counted for this process.
	liveCount int
}

// NewRecorder creates an event recorder over the given state root.
func NewRecorder(cfg *Config, root *state.StateRoot, logger *zap.Logger) (*Recorder, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.RolloverThreshold <= 0 {
		cfg.RolloverThreshold = DefaultRolloverThreshold
	}
	if root == nil {
		return nil, errors.New("state root is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Recorder{
		config:    cfg,
		root:      root,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
		meter:     otel.Meter(instrumentationName),
		liveCount: -1,
	}
	r.initMetrics()

	return r, nil
}

func (r *Recorder) initMetrics() {
	var err error

	r.recordCounter, err = r.meter.Int64Counter(
		"instinctd.events.recorded_total",
		metric.WithDescription("Total number of observations recorded"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		r.logger.Warn("failed to create record counter", zap.Error(err))
	}

	r.rolloverCounter, err = r.meter.Int64Counter(
		"instinctd.events.rollovers_total",
		metric.WithDescription("Total number of live-log rollovers"),
		metric.WithUnit("{rollover}"),
	)
	if err != nil {
		r.logger.Warn("failed to create rollover counter", zap.Error(err))
	}
}

// Record captures one observation and returns its id.
//
// Observations are best-effort telemetry: on a storage failure the event is
// lost and the error is surfaced once, with no retry.
func (r *Recorder) Record(ctx context.Context, req *RecordRequest) (string, error) {
	ctx, span := r.tracer.Start(ctx, "event.record")
	defer span.End()

	category := req.Category
	if category == "" {
		category = CategoryToolUse
	}
	span.SetAttributes(
		attribute.String("category", string(category)),
		attribute.String("session_id", req.Context.SessionID),
	)

	now := time.Now().UTC()
	rec := Record{
		ID:        NewID(now),
		Timestamp: now,
		Category:  category,
		Payload:   req.Payload,
		Context:   req.Context,
	}

	if err := r.Append(ctx, []Record{rec}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	if r.recordCounter != nil {
		r.recordCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("category", string(category)),
		))
	}

	r.logger.Debug("recorded observation",
		zap.String("id", rec.ID),
		zap.String("category", string(category)),
		zap.String("session_id", req.Context.SessionID),
	)

	return rec.ID, nil
}

// Append writes pre-built records to the live log in order, applying the
// rollover policy after each append. Restores use this to re-append
// checkpointed events with provenance already set.
func (r *Recorder) Append(ctx context.Context, recs []Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range recs {
		if err := r.appendLocked(rec); err != nil {
			return err
		}
	}
	return nil
}

func (r *Recorder) appendLocked(rec Record) error {
	if r.liveCount < 0 {
		n, err := countLines(r.root.EventLogPath)
		if err != nil {
			return fmt.Errorf("%w: failed to count live log: %v", state.ErrStorage, err)
		}
		r.liveCount = n
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	f, err := os.OpenFile(r.root.EventLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("%w: failed to open live log: %v", state.ErrStorage, err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("%w: failed to append record: %v", state.ErrStorage, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: failed to close live log: %v", state.ErrStorage, err)
	}
	r.liveCount++

	if r.liveCount >= r.config.RolloverThreshold {
		if err := r.rolloverLocked(); err != nil {
			return err
		}
	}
	return nil
}

// rolloverLocked seals the live log into a timestamp-qualified archive
// segment and starts a fresh log. The rename is atomic on the same
// filesystem, so no records are lost or duplicated.
func (r *Recorder) rolloverLocked() error {
	name := fmt.Sprintf("events-%s.jsonl", time.Now().UTC().Format("20060102T150405.000000000"))
	dest := filepath.Join(r.root.ArchiveDir, name)

	if err := os.Rename(r.root.EventLogPath, dest); err != nil {
		return fmt.Errorf("%w: failed to archive live log: %v", state.ErrStorage, err)
	}
	sealed := r.liveCount
	r.liveCount = 0

	if r.rolloverCounter != nil {
		r.rolloverCounter.Add(context.Background(), 1)
	}
	r.logger.Info("sealed event log segment",
		zap.String("archive", name),
		zap.Int("records", sealed),
	)
	return nil
}

// LoadAll returns the full ordered event history: all archived records
// (segments in stable name order, which matches seal order), followed by the
// live log in append order. Unparseable lines are skipped.
func (r *Recorder) LoadAll(ctx context.Context) ([]Record, error) {
	ctx, span := r.tracer.Start(ctx, "event.load_all")
	defer span.End()

	var records []Record
	skipped := 0

	archives, err := r.archiveSegments()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	for _, path := range archives {
		recs, bad, err := readSegment(path)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
		skipped += bad
	}

	recs, bad, err := readSegment(r.root.EventLogPath)
	if err != nil {
		return nil, err
	}
	records = append(records, recs...)
	skipped += bad

	if skipped > 0 {
		r.logger.Debug("skipped malformed event records", zap.Int("count", skipped))
	}
	span.SetAttributes(attribute.Int("record_count", len(records)))

	return records, nil
}

// Stats summarizes the event history.
func (r *Recorder) Stats(ctx context.Context) (*Stats, error) {
	ctx, span := r.tracer.Start(ctx, "event.stats")
	defer span.End()

	archives, err := r.archiveSegments()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	stats := &Stats{
		ArchiveCount: len(archives),
		PerCategory:  make(map[Category]int),
	}

	for _, path := range archives {
		recs, _, err := readSegment(path)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			stats.Total++
			stats.PerCategory[rec.Category]++
		}
	}

	live, _, err := readSegment(r.root.EventLogPath)
	if err != nil {
		return nil, err
	}
	for _, rec := range live {
		stats.Total++
		stats.CurrentFileCount++
		stats.PerCategory[rec.Category]++
	}

	return stats, nil
}

func (r *Recorder) archiveSegments() ([]string, error) {
	entries, err := os.ReadDir(r.root.ArchiveDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to read archive dir: %v", state.ErrStorage, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}
		paths = append(paths, filepath.Join(r.root.ArchiveDir, entry.Name()))
	}
	return paths, nil
}

// readSegment parses one JSONL segment, returning the records it holds and
// the number of malformed lines skipped. A missing file is an empty segment.
func readSegment(path string) ([]Record, int, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("%w: failed to open %s: %v", state.ErrStorage, path, err)
	}
	defer f.Close()

	var records []Record
	skipped := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil || rec.ID == "" {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: failed to scan %s: %v", state.ErrStorage, path, err)
	}

	return records, skipped, nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if len(scanner.Bytes()) > 0 {
			n++
		}
	}
	return n, scanner.Err()
}

// NewID returns an event id that sorts lexicographically with creation
// order: zero-padded unix nanos plus a short random suffix.
func NewID(ts time.Time) string {
	return fmt.Sprintf("%019d-%s", ts.UnixNano(), uuid.New().String()[:8])
}
