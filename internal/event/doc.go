// Package event implements durable, append-only capture of session
// observations with archive rollover.
//
// The live log is a JSONL file owned exclusively by the Recorder. When it
// reaches the rollover threshold it is sealed into an immutable archive
// segment and a fresh log is started. Archive segments are never merged or
// compacted.
package event
