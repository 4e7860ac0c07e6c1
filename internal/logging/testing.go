package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// NewTestLogger returns a logger whose output is captured for assertions.
func NewTestLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, observed := observer.New(zapcore.DebugLevel)
	return zap.New(core), observed
}
