package upload

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Guard warns before the process is left while an upload is running.
// Install and Remove must be idempotent.
type Guard interface {
	Install(message string)
	Remove()
}

// NopGuard is a Guard that does nothing
type NopGuard struct{}

func (NopGuard) Install(string) {}
func (NopGuard) Remove()        {}

// SignalGuard intercepts SIGINT and SIGTERM while installed. The first
// interrupt prints the guard message; a second one within ConfirmWindow
// calls OnCancel.
type SignalGuard struct {
	out           io.Writer
	confirmWindow time.Duration
	onCancel      func()

	// swapped in tests
	notify func(c chan<- os.Signal, sig ...os.Signal)
	stopFn func(c chan<- os.Signal)
	now    func() time.Time

	mu        sync.Mutex
	installed bool
	sigs      chan os.Signal
	stop      chan struct{}
	done      chan struct{}
}

// NewSignalGuard creates a guard writing its warning to out
func NewSignalGuard(out io.Writer, confirmWindow time.Duration, onCancel func()) *SignalGuard {
	if confirmWindow <= 0 {
		confirmWindow = 3 * time.Second
	}
	return &SignalGuard{
		out:           out,
		confirmWindow: confirmWindow,
		onCancel:      onCancel,
		notify:        signal.Notify,
		stopFn:        signal.Stop,
		now:           time.Now,
	}
}

// Install starts intercepting interrupts
func (g *SignalGuard) Install(message string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.installed {
		return
	}
	g.installed = true
	g.sigs = make(chan os.Signal, 1)
	g.stop = make(chan struct{})
	g.done = make(chan struct{})
	g.notify(g.sigs, os.Interrupt, syscall.SIGTERM)

	go g.watch(message, g.sigs, g.stop, g.done)
}

// Remove restores default signal handling
func (g *SignalGuard) Remove() {
	g.mu.Lock()
	if !g.installed {
		g.mu.Unlock()
		return
	}
	g.installed = false
	g.stopFn(g.sigs)
	close(g.stop)
	done := g.done
	g.mu.Unlock()

	<-done
}

// Installed reports whether interrupts are currently intercepted
func (g *SignalGuard) Installed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.installed
}

func (g *SignalGuard) watch(message string, sigs chan os.Signal, stop, done chan struct{}) {
	defer close(done)

	var last time.Time
	for {
		select {
		case <-stop:
			return
		case <-sigs:
			now := g.now()
			if !last.IsZero() && now.Sub(last) <= g.confirmWindow {
				// hand interrupts back to the default handler until Remove
				g.stopFn(sigs)
				if g.onCancel != nil {
					go g.onCancel()
				}
				return
			}
			last = now
			fmt.Fprintf(g.out, "\n%s Press Ctrl+C again within %s to cancel.\n", message, g.confirmWindow)
		}
	}
}
