// Package splog is the shared logging backend for every spectrum package,
// grounded on the subsystem-logger pattern the teacher uses throughout
// lnd (each package holds a package-level btclog.Logger set by UseLogger,
// defaulting to btclog.Disabled until the binary wires a backend).
package splog

import (
	"github.com/btcsuite/btclog"
)

// Backend is the shared btclog backend every subsystem logger is derived
// from. cmd/spectrumd wires it to a rotating file + stdout writer; tests
// leave it at its zero value, which yields disabled loggers.
var Backend *btclog.Backend

// subsystems tracks every logger created via NewSubsystem so SetLevel can
// reach all of them after the backend is (re)configured.
var subsystems = make(map[string]btclog.Logger)

// NewSubsystem returns a disabled logger for tag, registering it so a
// later call to ConfigureBackend can upgrade it in place via UseLogger
// callbacks registered by each package's log.go.
func NewSubsystem(tag string) btclog.Logger {
	logger := btclog.Disabled
	subsystems[tag] = logger
	return logger
}

// ConfigureBackend points Backend at backend and returns a logger for tag
// at the given level, the way lnd's main() builds backendLog once and then
// asks it for each subsystem's logger.
func ConfigureBackend(backend *btclog.Backend, tag string, level btclog.Level) btclog.Logger {
	Backend = backend
	logger := backend.Logger(tag)
	logger.SetLevel(level)
	subsystems[tag] = logger
	return logger
}

// SetLevel adjusts the level of a previously configured subsystem logger,
// matching lnd's "debuglevel" dynamic reconfiguration.
func SetLevel(tag string, level btclog.Level) {
	if logger, ok := subsystems[tag]; ok {
		logger.SetLevel(level)
	}
}
