package control

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

// Signal is an operator request delivered to the Loop.
type Signal int

const (
	Stop Signal = iota + 1 // end the run after the current cycle
	Plot                   // render the data file now
)

func (s Signal) String() string {
	switch s {
	case Stop:
		return "stop"
	case Plot:
		return "plot"
	}
	return "unknown"
}

// ParseSignal maps a console line to a Signal.
func ParseSignal(line string) (Signal, bool) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "q", "quit", "stop":
		return Stop, true
	case "p", "plot":
		return Plot, true
	}
	return 0, false
}

// Keyboard reads lines from r and forwards the recognised ones to ch until
// r is exhausted or ctx is done.
func Keyboard(ctx context.Context, r io.Reader, ch chan<- Signal) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		sig, ok := ParseSignal(sc.Text())
		if !ok {
			continue
		}
		select {
		case ch <- sig:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return sc.Err()
}

// Notify turns the first interrupt or terminate signal into Stop. A second
// one calls cancel so blocked instrument waits return. It returns when ctx
// is done.
func Notify(ctx context.Context, cancel context.CancelFunc, ch chan<- Signal) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	notify(ctx, cancel, sigs, ch)
}

func notify(ctx context.Context, cancel context.CancelFunc, sigs <-chan os.Signal, ch chan<- Signal) {
	select {
	case <-ctx.Done():
		return
	case <-sigs:
	}
	// Stop waits behind queued signals; it is never dropped.
	select {
	case ch <- Stop:
	case <-sigs:
		cancel()
		return
	case <-ctx.Done():
		return
	}
	select {
	case <-sigs:
		cancel()
	case <-ctx.Done():
	}
}
