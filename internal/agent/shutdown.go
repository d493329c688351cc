package agent

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
)

// Halt releases every resource the agent holds and ends the process with
// code. Resources are released at most once; a repeated Halt only exits.
func (a *Agent) Halt(code int) {
	a.haltOnce.Do(a.release)
	a.exit(code)
}

func (a *Agent) release() {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	resources := []struct {
		name string
		c    io.Closer
	}{
		{"session", a.session},
		{"client", a.client},
		{"server", a.server},
		{"environment", a.env},
		{"output", a.out},
	}
	for _, r := range resources {
		if r.c == nil {
			continue
		}
		if err := r.c.Close(); err != nil {
			a.logger.Warn("release failed", "resource", r.name, "error", err)
		}
	}

	if a.pipe != nil {
		st := a.pipe.Stats()
		a.logger.Info("forwarding summary",
			"forwarded", st.Forwarded,
			"dropped", st.Dropped,
			"failed", st.Failed,
		)
	}
	a.setState(Terminated)
}

// Interrupt logs the signal and stops the provider loop. The termination
// signals log at INFO; anything else is unexpected and logs at ERROR.
func (a *Agent) Interrupt(sig os.Signal) {
	level := slog.LevelError
	if slices.Contains(termSignals, sig) {
		level = slog.LevelInfo
	}
	a.logger.Log(context.Background(), level, "caught signal, exiting", "signal", sig.String())

	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
