package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/instinctd/internal/event"
	"github.com/fyrsmithlabs/instinctd/internal/hooks"
	"github.com/fyrsmithlabs/instinctd/internal/logging"
)

var (
	obsCategory  string
	obsSessionID string
	obsCWD       string
	obsFramework string
	obsPayload   string
)

func init() {
	rootCmd.AddCommand(observeCmd)
	rootCmd.AddCommand(hookCmd)

	observeCmd.Flags().StringVar(&obsCategory, "category", "", "Event category (default tool_use)")
	observeCmd.Flags().StringVar(&obsSessionID, "session-id", "", "Session identifier")
	observeCmd.Flags().StringVar(&obsCWD, "cwd", "", "Working directory the event occurred in")
	observeCmd.Flags().StringVar(&obsFramework, "framework", "", "Framework in use, if any")
	observeCmd.Flags().StringVar(&obsPayload, "payload", "", "Payload JSON object (default: read from stdin)")
}

var observeCmd = &cobra.Command{
	Use:   "observe",
	Short: "Record one event",
	Long: `Record one event into the live event log.

The payload is an arbitrary JSON object, read from --payload or stdin.

Examples:
  # Record a tool use
  echo '{"tool": "grep"}' | instinctd observe --category tool_use --session-id s1

  # Record a framework selection inline
  instinctd observe --category framework_selection \
    --payload '{"project_type": "api", "framework": "echo"}'`,
	RunE: runObserve,
}

func runObserve(cmd *cobra.Command, args []string) error {
	ctx := logging.WithSessionID(cmd.Context(), obsSessionID)

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	payload, err := readPayload()
	if err != nil {
		return err
	}

	id, err := a.recorder.Record(ctx, &event.RecordRequest{
		Category: event.Category(obsCategory),
		Payload:  payload,
		Context: event.Context{
			SessionID:        obsSessionID,
			WorkingDirectory: obsCWD,
			Framework:        obsFramework,
		},
	})
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(map[string]string{"event_id": id})
	}
	fmt.Println(id)
	return nil
}

func readPayload() (map[string]any, error) {
	raw := []byte(obsPayload)
	if obsPayload == "" {
		stat, err := os.Stdin.Stat()
		if err == nil && (stat.Mode()&os.ModeCharDevice) != 0 {
			// Interactive terminal with no --payload: empty payload.
			return map[string]any{}, nil
		}
		raw, err = io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload from stdin: %w", err)
		}
	}
	if len(raw) == 0 {
		return map[string]any{}, nil
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	return payload, nil
}

var hookCmd = &cobra.Command{
	Use:   "hook <event-name>",
	Short: "Handle an agent lifecycle hook",
	Long: `Handle one agent lifecycle hook invocation, reading the hook's JSON
document from stdin and recording the corresponding event.

This command always exits 0: a learning-pipeline failure must never break
the session that triggered the hook.

Examples:
  instinctd hook PostToolUse < hook-input.json
  instinctd hook SessionStart < hook-input.json`,
	Args: cobra.ExactArgs(1),
	RunE: runHook,
}

func runHook(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "instinctd hook: %v\n", err)
		return nil
	}
	defer a.close(ctx)

	handler, err := hooks.NewHandler(a.recorder, a.logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "instinctd hook: %v\n", err)
		return nil
	}

	return handler.Handle(ctx, args[0], os.Stdin)
}
