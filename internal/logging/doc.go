// Package logging builds the process-wide zap logger and carries request
// correlation (session id, trace context) through context.Context.
package logging
