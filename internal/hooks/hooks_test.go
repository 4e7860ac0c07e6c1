package hooks

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/instinctd/internal/event"
)

// captureRecorder collects requests instead of persisting them.
type captureRecorder struct {
	requests []*event.RecordRequest
	err      error
}

func (c *captureRecorder) Record(ctx context.Context, req *event.RecordRequest) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	c.requests = append(c.requests, req)
	return "id", nil
}

func TestNewHandler_RequiresRecorder(t *testing.T) {
	_, err := NewHandler(nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recorder is required")
}

func TestCategoryFor_CoversLifecycleEvents(t *testing.T) {
	cases := map[string]event.Category{
		EventSessionStart: event.CategorySessionStart,
		EventSessionEnd:   event.CategorySessionEnd,
		EventPostToolUse:  event.CategoryToolUse,
		EventPreCompact:   event.CategoryPreCompact,
		EventStop:         event.CategoryStop,
	}
	for name, want := range cases {
		assert.Equal(t, want, CategoryFor(name), name)
	}
}

func TestCategoryFor_UnknownEventIsOpaque(t *testing.T) {
	got := CategoryFor("SubagentStop")
	assert.Equal(t, event.Category("subagent_stop"), got)
	assert.False(t, got.Known())
}

func TestHandle_PostToolUse(t *testing.T) {
	rec := &captureRecorder{}
	h, err := NewHandler(rec, nil)
	require.NoError(t, err)

	input := `{
		"session_id": "s1",
		"cwd": "/work",
		"hook_event_name": "PostToolUse",
		"tool_name": "Bash",
		"tool_input": {"command": "go test"},
		"tool_response": {"output": "ok"}
	}`
	require.NoError(t, h.Handle(context.Background(), EventPostToolUse, strings.NewReader(input)))

	require.Len(t, rec.requests, 1)
	req := rec.requests[0]
	assert.Equal(t, event.CategoryToolUse, req.Category)
	assert.Equal(t, "Bash", req.Payload["tool"])
	assert.Equal(t, "s1", req.Context.SessionID)
	assert.Equal(t, "/work", req.Context.WorkingDirectory)
}

func TestHandle_FailedToolAlsoRecordsErrorOccurrence(t *testing.T) {
	rec := &captureRecorder{}
	h, err := NewHandler(rec, nil)
	require.NoError(t, err)

	input := `{
		"session_id": "s1",
		"hook_event_name": "PostToolUse",
		"tool_name": "Bash",
		"tool_response": {"error": "exit status 1"}
	}`
	require.NoError(t, h.Handle(context.Background(), EventPostToolUse, strings.NewReader(input)))

	require.Len(t, rec.requests, 2)
	assert.Equal(t, event.CategoryToolUse, rec.requests[0].Category)
	assert.Equal(t, event.CategoryErrorOccurrence, rec.requests[1].Category)
	assert.Equal(t, "exit status 1", rec.requests[1].Payload["error_type"])
	assert.Equal(t, "Bash", rec.requests[1].Payload["tool"])
}

func TestHandle_PreCompactPayload(t *testing.T) {
	rec := &captureRecorder{}
	h, err := NewHandler(rec, nil)
	require.NoError(t, err)

	input := `{"session_id": "s1", "hook_event_name": "PreCompact", "trigger": "auto"}`
	require.NoError(t, h.Handle(context.Background(), EventPreCompact, strings.NewReader(input)))

	require.Len(t, rec.requests, 1)
	assert.Equal(t, event.CategoryPreCompact, rec.requests[0].Category)
	assert.Equal(t, "auto", rec.requests[0].Payload["trigger"])
}

func TestHandle_EventNameFallsBackToArgument(t *testing.T) {
	rec := &captureRecorder{}
	h, err := NewHandler(rec, nil)
	require.NoError(t, err)

	require.NoError(t, h.Handle(context.Background(), EventSessionStart, strings.NewReader(`{"session_id": "s1"}`)))
	require.Len(t, rec.requests, 1)
	assert.Equal(t, event.CategorySessionStart, rec.requests[0].Category)
}

func TestHandle_MalformedInputNeverFails(t *testing.T) {
	rec := &captureRecorder{}
	h, err := NewHandler(rec, nil)
	require.NoError(t, err)

	require.NoError(t, h.Handle(context.Background(), EventStop, strings.NewReader("not json")))
	assert.Empty(t, rec.requests)
}

func TestHandle_RecorderFailureNeverFails(t *testing.T) {
	rec := &captureRecorder{err: assert.AnError}
	h, err := NewHandler(rec, nil)
	require.NoError(t, err)

	require.NoError(t, h.Handle(context.Background(), EventStop, strings.NewReader(`{"session_id": "s1"}`)))
}
