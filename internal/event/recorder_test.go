package event

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/instinctd/internal/state"
)

func newTestRecorder(t *testing.T, threshold int) (*Recorder, *state.StateRoot) {
	t.Helper()
	root, err := state.Open(t.TempDir())
	require.NoError(t, err)

	rec, err := NewRecorder(&Config{RolloverThreshold: threshold}, root, nil)
	require.NoError(t, err)
	return rec, root
}

func TestNewRecorder_RequiresRoot(t *testing.T) {
	_, err := NewRecorder(nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state root is required")
}

func TestRecord_DefaultsCategory(t *testing.T) {
	rec, _ := newTestRecorder(t, 1000)
	ctx := context.Background()

	id, err := rec.Record(ctx, &RecordRequest{
		Payload: map[string]any{"tool": "Read"},
		Context: Context{SessionID: "sess_1"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	records, err := rec.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, CategoryToolUse, records[0].Category)
	assert.Equal(t, "sess_1", records[0].Context.SessionID)
}

func TestRecord_IDsSortWithCreationOrder(t *testing.T) {
	rec, _ := newTestRecorder(t, 1000)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 20; i++ {
		id, err := rec.Record(ctx, &RecordRequest{Category: CategoryToolUse})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for i := 1; i < len(ids); i++ {
		assert.Less(t, ids[i-1], ids[i], "ids must sort lexicographically with creation order")
	}
}

func TestRollover_SealsAtThreshold(t *testing.T) {
	rec, root := newTestRecorder(t, 1000)
	ctx := context.Background()

	for i := 0; i < 1001; i++ {
		_, err := rec.Record(ctx, &RecordRequest{
			Category: CategoryToolUse,
			Payload:  map[string]any{"n": i},
		})
		require.NoError(t, err)
	}

	stats, err := rec.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1001, stats.Total)
	assert.Equal(t, 1, stats.CurrentFileCount)
	assert.Equal(t, 1, stats.ArchiveCount)

	entries, err := os.ReadDir(root.ArchiveDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	archived, _, err := readSegment(filepath.Join(root.ArchiveDir, entries[0].Name()))
	require.NoError(t, err)
	assert.Len(t, archived, 1000)
}

func TestLoadAll_PreservesOrderAcrossRollover(t *testing.T) {
	rec, _ := newTestRecorder(t, 10)
	ctx := context.Background()

	for i := 0; i < 35; i++ {
		_, err := rec.Record(ctx, &RecordRequest{
			Category: CategoryToolUse,
			Payload:  map[string]any{"n": float64(i)},
		})
		require.NoError(t, err)
	}

	records, err := rec.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 35)

	for i, r := range records {
		assert.Equal(t, float64(i), r.Payload["n"], "record %d out of order", i)
	}
}

func TestLoadAll_SkipsMalformedLines(t *testing.T) {
	rec, root := newTestRecorder(t, 1000)
	ctx := context.Background()

	_, err := rec.Record(ctx, &RecordRequest{Category: CategoryToolUse})
	require.NoError(t, err)

	f, err := os.OpenFile(root.EventLogPath, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("{truncated garbage\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = rec.Record(ctx, &RecordRequest{Category: CategoryErrorFix})
	require.NoError(t, err)

	records, err := rec.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestStats_PerCategory(t *testing.T) {
	rec, _ := newTestRecorder(t, 1000)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := rec.Record(ctx, &RecordRequest{Category: CategoryWorkflowPattern})
		require.NoError(t, err)
	}
	_, err := rec.Record(ctx, &RecordRequest{Category: CategoryErrorOccurrence})
	require.NoError(t, err)

	stats, err := rec.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 3, stats.PerCategory[CategoryWorkflowPattern])
	assert.Equal(t, 1, stats.PerCategory[CategoryErrorOccurrence])
}

func TestAppend_PreservesProvenance(t *testing.T) {
	rec, _ := newTestRecorder(t, 1000)
	ctx := context.Background()

	now := time.Now().UTC()
	restored := Record{
		ID:           NewID(now),
		Timestamp:    now,
		Category:     CategoryToolUse,
		RestoredFrom: "ckpt_abc",
		RestoredAt:   &now,
	}
	require.NoError(t, rec.Append(ctx, []Record{restored}))

	records, err := rec.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ckpt_abc", records[0].RestoredFrom)
	require.NotNil(t, records[0].RestoredAt)
}

func TestCategory_Known(t *testing.T) {
	assert.True(t, CategoryToolUse.Known())
	assert.True(t, CategoryPreCompact.Known())
	assert.False(t, Category("custom_thing").Known())
}

func TestNewID_Format(t *testing.T) {
	ts := time.Unix(1700000000, 123456789)
	id := NewID(ts)
	assert.Equal(t, fmt.Sprintf("%019d", ts.UnixNano()), id[:19])
}
