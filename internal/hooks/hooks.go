package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/instinctd/internal/event"
)

// Lifecycle event names as the agent delivers them.
const (
	EventSessionStart = "SessionStart"
	EventSessionEnd   = "SessionEnd"
	EventPostToolUse  = "PostToolUse"
	EventPreCompact   = "PreCompact"
	EventStop         = "Stop"
)

// Input is the JSON document a hook invocation receives on stdin.
type Input struct {
	SessionID      string         `json:"session_id"`
	TranscriptPath string         `json:"transcript_path"`
	CWD            string         `json:"cwd"`
	HookEventName  string         `json:"hook_event_name"`
	ToolName       string         `json:"tool_name,omitempty"`
	ToolInput      map[string]any `json:"tool_input,omitempty"`
	ToolResponse   map[string]any `json:"tool_response,omitempty"`
	Trigger        string         `json:"trigger,omitempty"`
	Reason         string         `json:"reason,omitempty"`
}

// Recorder is the slice of the event recorder hooks need.
type Recorder interface {
	Record(ctx context.Context, req *event.RecordRequest) (string, error)
}

// Handler maps hook invocations to recorded events.
type Handler struct {
	recorder Recorder
	logger   *zap.Logger
}

// NewHandler creates a hook handler.
func NewHandler(recorder Recorder, logger *zap.Logger) (*Handler, error) {
	if recorder == nil {
		return nil, errors.New("recorder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{recorder: recorder, logger: logger}, nil
}

// Handle reads one hook input document and records the corresponding
// event(s). It always returns nil: hook failures must never break the
// session that triggered them.
func (h *Handler) Handle(ctx context.Context, eventName string, input io.Reader) error {
	var in Input
	if err := json.NewDecoder(input).Decode(&in); err != nil {
		h.logger.Warn("dropping malformed hook input",
			zap.String("event", eventName),
			zap.Error(err),
		)
		return nil
	}
	if in.HookEventName == "" {
		in.HookEventName = eventName
	}

	h.record(ctx, &event.RecordRequest{
		Category: CategoryFor(in.HookEventName),
		Payload:  payloadFor(&in),
		Context: event.Context{
			SessionID:        in.SessionID,
			WorkingDirectory: in.CWD,
		},
	})

	// A failed tool invocation is also an error occurrence in its own
	// right; the miner pairs it with a later fix.
	if in.HookEventName == EventPostToolUse {
		if errType := toolError(in.ToolResponse); errType != "" {
			h.record(ctx, &event.RecordRequest{
				Category: event.CategoryErrorOccurrence,
				Payload: map[string]any{
					"error_type": errType,
					"tool":       in.ToolName,
				},
				Context: event.Context{
					SessionID:        in.SessionID,
					WorkingDirectory: in.CWD,
				},
			})
		}
	}

	return nil
}

func (h *Handler) record(ctx context.Context, req *event.RecordRequest) {
	if _, err := h.recorder.Record(ctx, req); err != nil {
		h.logger.Warn("dropping hook event",
			zap.String("category", string(req.Category)),
			zap.Error(err),
		)
	}
}

// CategoryFor maps a lifecycle event name to a recorder category. Unknown
// names map to an opaque snake_case category; they are recorded but not
// mined.
func CategoryFor(eventName string) event.Category {
	switch eventName {
	case EventSessionStart:
		return event.CategorySessionStart
	case EventSessionEnd:
		return event.CategorySessionEnd
	case EventPostToolUse:
		return event.CategoryToolUse
	case EventPreCompact:
		return event.CategoryPreCompact
	case EventStop:
		return event.CategoryStop
	default:
		return event.Category(snakeCase(eventName))
	}
}

func payloadFor(in *Input) map[string]any {
	payload := map[string]any{}
	switch in.HookEventName {
	case EventPostToolUse:
		payload["tool"] = in.ToolName
		if len(in.ToolInput) > 0 {
			payload["input"] = in.ToolInput
		}
		if len(in.ToolResponse) > 0 {
			payload["response"] = in.ToolResponse
		}
	case EventPreCompact:
		payload["trigger"] = in.Trigger
	case EventSessionEnd, EventStop:
		if in.Reason != "" {
			payload["reason"] = in.Reason
		}
	case EventSessionStart:
		if in.TranscriptPath != "" {
			payload["transcript_path"] = in.TranscriptPath
		}
	}
	return payload
}

// toolError extracts an error marker from a tool response, if any.
func toolError(response map[string]any) string {
	if response == nil {
		return ""
	}
	if s, ok := response["error"].(string); ok && s != "" {
		return s
	}
	if b, ok := response["is_error"].(bool); ok && b {
		return "tool_error"
	}
	return ""
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
