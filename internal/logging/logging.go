// Package logging provides the single package-scoped sugared logger used
// throughout this module, mirroring the teacher's own ambient logging
// convention (go-datatrails-common/logger's package-level logger.Sugar,
// used as logger.Sugar.Debugf(...) from every massifs/*.go call site).
// The upstream package isn't vendored into this pack, so this wraps
// go.uber.org/zap directly — the same library that dependency itself
// wraps.
package logging

import "go.uber.org/zap"

// Sugar is the process-wide logger. It starts as a usable default
// (zap's production config) so packages can log before Init is called;
// call Init once, early, to point it at whatever sink the embedding
// process wants.
var Sugar = newDefault()

func newDefault() *zap.SugaredLogger {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	return l.Sugar()
}

// Init replaces Sugar with a logger built from cfg. Passing a nil cfg
// resets to the production default.
func Init(cfg *zap.Config) error {
	if cfg == nil {
		Sugar = newDefault()
		return nil
	}
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	Sugar = l.Sugar()
	return nil
}

// Sync flushes any buffered log entries. Callers should defer this at
// process shutdown.
func Sync() error {
	return Sugar.Sync()
}
