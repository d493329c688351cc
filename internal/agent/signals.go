package agent

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

var termSignals = []os.Signal{unix.SIGINT, unix.SIGHUP, unix.SIGQUIT, unix.SIGTERM}

// HandleSignals routes the termination signals to Interrupt until the
// returned stop function is called.
func (a *Agent) HandleSignals() (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, termSignals...)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-ch:
				a.Interrupt(sig)
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
