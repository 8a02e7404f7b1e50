package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"

	"github.com/spectrum-network/spectrum/conn"
	"github.com/spectrum-network/spectrum/diffusion"
	"github.com/spectrum-network/spectrum/discovery"
	"github.com/spectrum-network/spectrum/mcast"
	"github.com/spectrum-network/spectrum/netctl"
	"github.com/spectrum-network/spectrum/peer"
	"github.com/spectrum-network/spectrum/rpc"
	"github.com/spectrum-network/spectrum/sigma"
	"github.com/spectrum-network/spectrum/splog"
	"github.com/spectrum-network/spectrum/vault"
)

// logRotator is set up once logDir is known and flushed on shutdown,
// mirroring lnd.go's "defer backendLog.Flush()".
var logRotator *rotator.Rotator

// initLogRotator opens (creating if needed) a rotating log file under
// logDir, the same 10MB/keep-3 shape every lnd-derived binary uses.
func initLogRotator(logDir, filename string) (*rotator.Rotator, error) {
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return nil, fmt.Errorf("log: create log dir: %w", err)
	}
	r, err := rotator.New(filepath.Join(logDir, filename), 10*1024, false, 3)
	if err != nil {
		return nil, fmt.Errorf("log: create rotator: %w", err)
	}
	return r, nil
}

// configureLogging wires every package's UseLogger to a shared backend
// writing to both stdout and the rotating log file, at level, the way
// lnd.go's setLogLevels populates its subsystem map.
func configureLogging(logDir, filename string, level btclog.Level) error {
	r, err := initLogRotator(logDir, filename)
	if err != nil {
		return err
	}
	logRotator = r

	backend := btclog.NewBackend(io.MultiWriter(os.Stdout, logWriter{r}))

	peer.UseLogger(splog.ConfigureBackend(backend, "PEER", level))
	conn.UseLogger(splog.ConfigureBackend(backend, "CONN", level))
	netctl.UseLogger(splog.ConfigureBackend(backend, "NCTL", level))
	discovery.UseLogger(splog.ConfigureBackend(backend, "DISC", level))
	diffusion.UseLogger(splog.ConfigureBackend(backend, "DIFF", level))
	sigma.UseLogger(splog.ConfigureBackend(backend, "SIGM", level))
	mcast.UseLogger(splog.ConfigureBackend(backend, "MCST", level))
	vault.UseLogger(splog.ConfigureBackend(backend, "VALT", level))
	rpc.UseLogger(splog.ConfigureBackend(backend, "RPCS", level))

	log = splog.ConfigureBackend(backend, "SPCD", level)
	return nil
}

// log is this package's own subsystem logger.
var log = btclog.Disabled

// logWriter adapts a *rotator.Rotator to io.Writer for btclog.NewBackend,
// which wants plain writers rather than the rotator's own Write method
// signature quirks across versions.
type logWriter struct {
	r *rotator.Rotator
}

func (w logWriter) Write(p []byte) (int, error) { return w.r.Write(p) }
