package pattern

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/instinctd/internal/event"
	"github.com/fyrsmithlabs/instinctd/internal/state"
)

// fakeSource serves a fixed ordered event history.
type fakeSource struct {
	records []event.Record
}

func (f *fakeSource) LoadAll(ctx context.Context) ([]event.Record, error) {
	return f.records, nil
}

var eventSeq int

func makeEvent(category event.Category, session string, at time.Time, payload map[string]any) event.Record {
	eventSeq++
	return event.Record{
		ID:        fmt.Sprintf("%019d-%08d", at.UnixNano(), eventSeq),
		Timestamp: at,
		Category:  category,
		Payload:   payload,
		Context:   event.Context{SessionID: session, WorkingDirectory: "/work", Framework: "go"},
	}
}

func newTestMiner(t *testing.T, records []event.Record) (*Miner, *Store) {
	t.Helper()
	root, err := state.Open(t.TempDir())
	require.NoError(t, err)
	store, err := NewStore(root, nil)
	require.NoError(t, err)
	miner, err := NewMiner(&fakeSource{records: records}, store, nil)
	require.NoError(t, err)
	return miner, store
}

func TestNewMiner_RequiresDeps(t *testing.T) {
	_, err := NewMiner(nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event source is required")

	_, err = NewMiner(&fakeSource{}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pattern store is required")
}

func TestAnalyze_WorkflowThresholdAndConfidence(t *testing.T) {
	base := time.Now().UTC()
	shape := map[string]any{"steps": []any{"read", "edit", "test"}}
	other := map[string]any{"steps": []any{"read"}}

	var records []event.Record
	for i := 0; i < 4; i++ {
		records = append(records, makeEvent(event.CategoryWorkflowPattern, "s1", base.Add(time.Duration(i)*time.Minute), shape))
	}
	// Below the floor of 3.
	records = append(records, makeEvent(event.CategoryNodeUsage, "s1", base, other))
	records = append(records, makeEvent(event.CategoryNodeUsage, "s1", base, other))

	miner, _ := newTestMiner(t, records)
	analysis, err := miner.Analyze(context.Background())
	require.NoError(t, err)

	require.Len(t, analysis.WorkflowPatterns, 1)
	cand := analysis.WorkflowPatterns[0]
	assert.Equal(t, 4, cand.Occurrences)
	assert.InDelta(t, 0.7, cand.Confidence, 1e-9) // 0.3 + 0.1*4
}

func TestAnalyze_WorkflowMixesNodeUsage(t *testing.T) {
	base := time.Now().UTC()
	shape := map[string]any{"node": "http_request"}

	records := []event.Record{
		makeEvent(event.CategoryWorkflowPattern, "s1", base, shape),
		makeEvent(event.CategoryNodeUsage, "s2", base.Add(time.Minute), shape),
		makeEvent(event.CategoryNodeUsage, "s3", base.Add(2*time.Minute), shape),
	}

	miner, _ := newTestMiner(t, records)
	analysis, err := miner.Analyze(context.Background())
	require.NoError(t, err)
	require.Len(t, analysis.WorkflowPatterns, 1)
	assert.Equal(t, 3, analysis.WorkflowPatterns[0].Occurrences)
}

func TestAnalyze_ErrorFixPairingWindow(t *testing.T) {
	base := time.Now().UTC()

	records := []event.Record{
		// Pairs: fix at +4m59s.
		makeEvent(event.CategoryErrorOccurrence, "s1", base, map[string]any{"error_type": "import_error"}),
		makeEvent(event.CategoryErrorFix, "s1", base.Add(4*time.Minute+59*time.Second), map[string]any{"fix_type": "add_import"}),
		// Does not pair: fix at +5m01s.
		makeEvent(event.CategoryErrorOccurrence, "s1", base.Add(10*time.Minute), map[string]any{"error_type": "type_error"}),
		makeEvent(event.CategoryErrorFix, "s1", base.Add(15*time.Minute+time.Second), map[string]any{"fix_type": "cast"}),
		// Second supporting pair for (import_error, add_import).
		makeEvent(event.CategoryErrorOccurrence, "s1", base.Add(20*time.Minute), map[string]any{"error_type": "import_error"}),
		makeEvent(event.CategoryErrorFix, "s1", base.Add(21*time.Minute), map[string]any{"fix_type": "add_import"}),
	}

	miner, _ := newTestMiner(t, records)
	analysis, err := miner.Analyze(context.Background())
	require.NoError(t, err)

	require.Len(t, analysis.ErrorFixPatterns, 1)
	cand := analysis.ErrorFixPatterns[0]
	assert.Equal(t, "import_error", cand.Pattern["error_type"])
	assert.Equal(t, "add_import", cand.Pattern["fix_type"])
	assert.Equal(t, 2, cand.Occurrences)
	assert.InDelta(t, 0.7, cand.Confidence, 1e-9) // 0.4 + 0.15*2
}

func TestAnalyze_ErrorFixRequiresSameSession(t *testing.T) {
	base := time.Now().UTC()

	records := []event.Record{
		makeEvent(event.CategoryErrorOccurrence, "s1", base, map[string]any{"error_type": "e"}),
		makeEvent(event.CategoryErrorFix, "s2", base.Add(time.Minute), map[string]any{"fix_type": "f"}),
		makeEvent(event.CategoryErrorOccurrence, "s1", base.Add(2*time.Minute), map[string]any{"error_type": "e"}),
		makeEvent(event.CategoryErrorFix, "s2", base.Add(3*time.Minute), map[string]any{"fix_type": "f"}),
	}

	miner, _ := newTestMiner(t, records)
	analysis, err := miner.Analyze(context.Background())
	require.NoError(t, err)
	assert.Empty(t, analysis.ErrorFixPatterns)
}

func TestAnalyze_ErrorFixFirstMatchWins(t *testing.T) {
	base := time.Now().UTC()

	// One error followed by two candidate fixes: only the first pairs, and
	// a later error can then claim the second fix.
	records := []event.Record{
		makeEvent(event.CategoryErrorOccurrence, "s1", base, map[string]any{"error_type": "e"}),
		makeEvent(event.CategoryErrorFix, "s1", base.Add(time.Minute), map[string]any{"fix_type": "first"}),
		makeEvent(event.CategoryErrorFix, "s1", base.Add(2*time.Minute), map[string]any{"fix_type": "second"}),
		makeEvent(event.CategoryErrorOccurrence, "s1", base.Add(90*time.Second), map[string]any{"error_type": "e"}),
		makeEvent(event.CategoryErrorOccurrence, "s1", base.Add(3*time.Minute), map[string]any{"error_type": "e"}),
		makeEvent(event.CategoryErrorFix, "s1", base.Add(4*time.Minute), map[string]any{"fix_type": "first"}),
	}

	miner, _ := newTestMiner(t, records)
	analysis, err := miner.Analyze(context.Background())
	require.NoError(t, err)

	require.Len(t, analysis.ErrorFixPatterns, 1)
	assert.Equal(t, "first", analysis.ErrorFixPatterns[0].Pattern["fix_type"])
	assert.Equal(t, 2, analysis.ErrorFixPatterns[0].Occurrences)
}

func TestAnalyze_FrameworkSelection(t *testing.T) {
	base := time.Now().UTC()

	records := []event.Record{
		makeEvent(event.CategoryFrameworkSelection, "s1", base, map[string]any{"project_type": "api", "framework": "echo"}),
		makeEvent(event.CategoryFrameworkSelection, "s2", base.Add(time.Hour), map[string]any{"project_type": "api", "framework": "echo"}),
		makeEvent(event.CategoryFrameworkSelection, "s3", base.Add(2*time.Hour), map[string]any{"project_type": "api", "framework": "echo"}),
		makeEvent(event.CategoryFrameworkSelection, "s4", base.Add(3*time.Hour), map[string]any{"project_type": "cli", "framework": "cobra"}),
	}

	miner, _ := newTestMiner(t, records)
	analysis, err := miner.Analyze(context.Background())
	require.NoError(t, err)

	require.Len(t, analysis.FrameworkPatterns, 1)
	cand := analysis.FrameworkPatterns[0]
	assert.Equal(t, "echo", cand.Pattern["framework"])
	assert.Equal(t, 3, cand.Occurrences)
	assert.InDelta(t, 0.7, cand.Confidence, 1e-9) // 0.4 + 0.1*3
}

func TestAnalyze_EmptyHistoryIsEmptySuccess(t *testing.T) {
	miner, _ := newTestMiner(t, nil)
	analysis, err := miner.Analyze(context.Background())
	require.NoError(t, err)
	assert.Zero(t, analysis.Total())
}

func TestGenerateAndPersist_IdempotentOnUnchangedInput(t *testing.T) {
	base := time.Now().UTC()
	shape := map[string]any{"steps": []any{"a", "b"}}

	var records []event.Record
	for i := 0; i < 3; i++ {
		records = append(records, makeEvent(event.CategoryWorkflowPattern, "s1", base.Add(time.Duration(i)*time.Minute), shape))
	}

	miner, store := newTestMiner(t, records)
	ctx := context.Background()

	first, err := miner.GenerateAndPersist(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)
	assert.Equal(t, 0, first.Updated)

	second, err := miner.GenerateAndPersist(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 1, second.Updated)

	stored, err := store.Load(ctx, CategoryWorkflowPatterns)
	require.NoError(t, err)
	require.Len(t, stored, 1, "repeated mining must not create structural duplicates")
	assert.Equal(t, 6, stored[0].Occurrences)
	assert.InDelta(t, 0.6, stored[0].Confidence, 1e-9)
}

func TestGenerateAndPersist_TouchesMultipleCategories(t *testing.T) {
	base := time.Now().UTC()
	shape := map[string]any{"steps": []any{"a"}}

	var records []event.Record
	for i := 0; i < 3; i++ {
		records = append(records, makeEvent(event.CategoryWorkflowPattern, "s1", base.Add(time.Duration(i)*time.Second), shape))
	}
	for i := 0; i < 2; i++ {
		records = append(records, makeEvent(event.CategoryFrameworkSelection, "s1", base.Add(time.Duration(i)*time.Hour), map[string]any{"project_type": "api", "framework": "fiber"}))
	}

	miner, _ := newTestMiner(t, records)
	result, err := miner.GenerateAndPersist(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Created)
	assert.ElementsMatch(t, []string{CategoryWorkflowPatterns, CategoryFrameworkSelection}, result.Categories)
}
