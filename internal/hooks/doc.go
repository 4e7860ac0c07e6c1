// Package hooks turns agent-session lifecycle hook invocations into
// recorded events. Hook handling is best-effort: malformed input is dropped
// and failures are logged, never surfaced to the calling session.
package hooks
