package tail

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

const (
	// DefaultInterruptLimit is how many interrupts are tolerated while a
	// graceful stop is in progress.
	DefaultInterruptLimit = 3

	// ForcedExitCode is the process exit code after too many interrupts.
	ForcedExitCode = 130
)

// InterruptPolicy escalates repeated interrupts.
//
// The first interrupt requests a graceful stop. If the count exceeds Limit,
// Force is called with the count; it normally ends the process.
type InterruptPolicy struct {
	Limit int
	Force func(count int)
}

// ForceExit returns a Force function that warns on w that a remote
// recording may still be running, then exits with ForcedExitCode.
func ForceExit(w io.Writer) func(int) {
	return func(count int) {
		warnForced(w, count)
		os.Exit(ForcedExitCode)
	}
}

func warnForced(w io.Writer, count int) {
	fmt.Fprintf(w, "Interrupted %d times but could not quit cleanly. "+
		"If the recording is still running, stop it manually.\n", count)
}

// WatchInterrupts applies policy to signals until the returned stop function
// is called. The first signal calls cancel. Watching continues after cancel,
// since the graceful stop that follows (stopping the remote recording) may
// itself hang.
func WatchInterrupts(signals <-chan os.Signal, cancel context.CancelFunc, policy InterruptPolicy) (stop func()) {
	limit := policy.Limit
	if limit <= 0 {
		limit = DefaultInterruptLimit
	}
	force := policy.Force
	if force == nil {
		force = ForceExit(os.Stderr)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		count := 0
		for {
			select {
			case <-done:
				return
			case <-signals:
				count++
				if count == 1 {
					cancel()
				}
				if count > limit {
					force(count)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

// NotifyInterrupts relays SIGINT and SIGTERM to the returned channel until
// the release function is called. The buffer holds enough signals to force
// an exit past limit, since signal delivery drops what does not fit.
func NotifyInterrupts(limit int) (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, max(limit, DefaultInterruptLimit)+1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	return ch, func() { signal.Stop(ch) }
}
